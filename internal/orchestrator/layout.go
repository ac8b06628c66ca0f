package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout is the directory tree of one run.
type Layout struct {
	Root        string
	Nest        string
	TVB         string
	Translation string
	Log         string

	// Scratch holds the handshake files of this run only.
	Scratch string
}

// NewLayout derives the run directories under resultPath.
func NewLayout(resultPath, runID string) Layout {
	translation := filepath.Join(resultPath, "translation")
	return Layout{
		Root:        resultPath,
		Nest:        filepath.Join(resultPath, "nest"),
		TVB:         filepath.Join(resultPath, "tvb"),
		Translation: translation,
		Log:         filepath.Join(resultPath, "log"),
		Scratch:     filepath.Join(translation, "handshake-"+runID),
	}
}

// Create makes every directory. The scratch directory must not exist yet.
func (l Layout) Create() error {
	for _, dir := range []string{l.Root, l.Nest, l.TVB, l.Translation, l.Log} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := os.Mkdir(l.Scratch, 0755); err != nil {
		return fmt.Errorf("creating scratch directory: %w", err)
	}
	return nil
}
