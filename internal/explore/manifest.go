package explore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ManifestFile is written at the root of every exploration.
const ManifestFile = "experiment_metadata.json"

// Manifest records what an exploration covered.
type Manifest struct {
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	Base         string     `json:"base,omitempty"`
	Variables    []Variable `json:"variables"`
	Combinations int        `json:"combinations"`
	Variants     []string   `json:"variants"`
	CreatedAt    time.Time  `json:"created_at"`
}

// WriteManifest writes dir/experiment_metadata.json.
func WriteManifest(dir string, spec *Spec, variants []Variant) (string, error) {
	m := Manifest{
		Name:         spec.Name,
		Description:  spec.Description,
		Base:         spec.BaseFile,
		Variables:    spec.Variables,
		Combinations: spec.Count(),
		Variants:     make([]string, len(variants)),
		CreatedAt:    time.Now().UTC(),
	}
	if m.Variables == nil {
		m.Variables = []Variable{}
	}
	for i, v := range variants {
		m.Variants[i] = v.Name
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling manifest: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating exploration directory: %w", err)
	}

	path := filepath.Join(dir, ManifestFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return "", fmt.Errorf("writing manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("renaming manifest: %w", err)
	}
	return path, nil
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}
