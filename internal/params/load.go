package params

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvandessel/cosim/internal/pathutil"
	"github.com/nvandessel/cosim/internal/utils"
	"gopkg.in/yaml.v3"
)

// ParameterFile is the name of the persisted configuration inside a run directory.
const ParameterFile = "parameter.json"

// Decode reads a JSON or YAML document chosen by file extension.
// Unknown extensions are tried as JSON, then YAML.
func Decode(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading parameter file: %w", err)
	}

	var tree map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &tree)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &tree)
	default:
		if err = json.Unmarshal(data, &tree); err != nil {
			err = yaml.Unmarshal(data, &tree)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("parsing parameter file %s: %w", pathutil.RedactPath(path), err)
	}
	if tree == nil {
		tree = map[string]any{}
	}
	return tree, nil
}

// Load reads and validates a configuration file.
func Load(path string) (*Configuration, error) {
	tree, err := Decode(path)
	if err != nil {
		return nil, err
	}
	return Parse(tree)
}

// LoadLegacy reads a configuration without schema validation. Only the
// top-level scalars are required so that a run directory can be derived.
func LoadLegacy(path string) (*Configuration, error) {
	tree, err := Decode(path)
	if err != nil {
		return nil, err
	}
	tree = utils.Normalize(tree).(map[string]any)
	if sec, ok := tree[SectionCoSimulation].(map[string]any); ok {
		for key, value := range coSimulationDefaults {
			if _, present := sec[key]; !present {
				sec[key] = value
			}
		}
	}

	var vs []Violation
	for _, f := range topLevel {
		if _, ok := tree[f.Name]; !ok {
			vs = append(vs, Violation{Path: f.Name, Constraint: "required"})
		}
	}
	if len(vs) > 0 {
		return nil, &ValidationError{Violations: vs}
	}
	return fromTree(tree), nil
}

// LoadWithFallback validates the file and, only when validation fails, loads
// it again with the legacy loader. The fallback is logged with every violation.
func LoadWithFallback(path string, logger *slog.Logger) (*Configuration, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		return nil, err
	}

	if logger != nil {
		for _, v := range verr.Violations {
			logger.Warn("validation failed, continuing with legacy loader",
				"path", v.Path, "value", formatValue(v.Value), "constraint", v.Constraint)
		}
	}
	legacy, lerr := LoadLegacy(path)
	if lerr != nil {
		return nil, fmt.Errorf("legacy loader: %w", lerr)
	}
	if logger != nil {
		logger.Warn("using configuration from legacy loader", "file", pathutil.RedactPath(path), "violations", len(verr.Violations))
	}
	return legacy, nil
}

// Save writes the configuration to dir/parameter.json via temp file + rename.
func Save(c *Configuration, dir string) (string, error) {
	data, err := json.MarshalIndent(c.Tree(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling parameters: %w", err)
	}
	data = append(data, '\n')

	path := filepath.Join(dir, ParameterFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("writing parameter temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("renaming parameter file: %w", err)
	}
	return path, nil
}
