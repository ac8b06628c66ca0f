package explore

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/cosim/internal/params"
)

// Variable is one explored parameter and its candidate values, in order.
type Variable struct {
	Name   string `json:"name"`
	Values []any  `json:"values"`
}

// Window overrides the simulated-time window of every variant.
type Window struct {
	Begin float64 `json:"begin"`
	End   float64 `json:"end"`
}

// Spec describes one exploration. Variables keep their file order: the first
// varies slowest.
type Spec struct {
	Name        string
	Description string

	// BaseFile is the parameter file the exploration starts from, resolved
	// relative to the exploration file.
	BaseFile string

	// ResultPath overrides the base result_path when set.
	ResultPath string

	Window    *Window
	Parallel  int
	Variables []Variable

	// Aliases adds explicit locations for cross-cutting variables.
	Aliases map[string][]Location
}

// specFile is the on-disk form. JSON documents are valid YAML, so one decoder
// serves both and keeps mapping order through yaml.Node.
type specFile struct {
	Name        string              `yaml:"name"`
	Description string              `yaml:"description"`
	Base        string              `yaml:"base"`
	ResultPath  string              `yaml:"result_path"`
	Begin       *float64            `yaml:"begin"`
	End         *float64            `yaml:"end"`
	Parallel    int                 `yaml:"parallel"`
	Variables   yaml.Node           `yaml:"variables"`
	Aliases     map[string][]string `yaml:"aliases"`
}

// LoadSpec reads an exploration file.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading exploration file: %w", err)
	}
	spec, err := ParseSpec(data)
	if err != nil {
		return nil, fmt.Errorf("parsing exploration file: %w", err)
	}
	if spec.BaseFile != "" && !filepath.IsAbs(spec.BaseFile) {
		spec.BaseFile = filepath.Join(filepath.Dir(path), spec.BaseFile)
	}
	return spec, nil
}

// LoadBase reads the base parameter file. With legacy set, a base that
// fails validation is loaded anyway and its violations are logged.
func (s *Spec) LoadBase(legacy bool, logger *slog.Logger) (*params.Configuration, error) {
	if s.BaseFile == "" {
		return nil, errors.New("exploration file names no base parameter file")
	}
	if legacy {
		return params.LoadWithFallback(s.BaseFile, logger)
	}
	return params.Load(s.BaseFile)
}

// ParseSpec decodes an exploration document.
func ParseSpec(data []byte) (*Spec, error) {
	var f specFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	spec := &Spec{
		Name:        f.Name,
		Description: f.Description,
		BaseFile:    f.Base,
		ResultPath:  f.ResultPath,
		Parallel:    f.Parallel,
	}

	if f.Begin != nil || f.End != nil {
		if f.Begin == nil || f.End == nil {
			return nil, fmt.Errorf("begin and end must be given together")
		}
		if *f.End <= *f.Begin {
			return nil, fmt.Errorf("end (%v) must be greater than begin (%v)", *f.End, *f.Begin)
		}
		spec.Window = &Window{Begin: *f.Begin, End: *f.End}
	}

	vars, err := decodeVariables(&f.Variables)
	if err != nil {
		return nil, err
	}
	spec.Variables = vars

	if len(f.Aliases) > 0 {
		spec.Aliases = make(map[string][]Location, len(f.Aliases))
		for name, targets := range f.Aliases {
			for _, target := range targets {
				loc, err := ParseLocation(target)
				if err != nil {
					return nil, fmt.Errorf("alias %s: %w", name, err)
				}
				spec.Aliases[name] = append(spec.Aliases[name], loc)
			}
		}
	}
	return spec, nil
}

func decodeVariables(node *yaml.Node) ([]Variable, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("variables must be a mapping (line %d)", node.Line)
	}

	vars := make([]Variable, 0, len(node.Content)/2)
	seen := map[string]bool{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		name := key.Value
		if seen[name] {
			return nil, fmt.Errorf("variable %s listed twice", name)
		}
		seen[name] = true

		if value.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("variable %s: values must be a list (line %d)", name, value.Line)
		}
		var values []any
		if err := value.Decode(&values); err != nil {
			return nil, fmt.Errorf("variable %s: %w", name, err)
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("variable %s: needs at least one value", name)
		}
		vars = append(vars, Variable{Name: name, Values: values})
	}
	return vars, nil
}

// ParseLocation parses "section.key[.key...]".
func ParseLocation(s string) (Location, error) {
	parts := strings.Split(s, ".")
	if len(parts) < 2 {
		return Location{}, fmt.Errorf("location %q must be section.key", s)
	}
	for _, p := range parts {
		if p == "" {
			return Location{}, fmt.Errorf("location %q has an empty element", s)
		}
	}
	return Location{Section: parts[0], Path: parts[1:]}, nil
}

// Count returns the number of variants the exploration expands to.
func (s *Spec) Count() int {
	total := 1
	for _, v := range s.Variables {
		total *= len(v.Values)
	}
	return total
}
