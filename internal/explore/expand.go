package explore

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nvandessel/cosim/internal/params"
)

// UnknownVariableError lists every explored variable that resolves to no
// location in the base configuration.
type UnknownVariableError struct {
	Names []string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("unknown exploration variable(s): %s", strings.Join(e.Names, ", "))
}

// Assignment is one variable set to one value.
type Assignment struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Variant is one point of the product.
type Variant struct {
	Name        string
	Assignments []Assignment
	Config      *params.Configuration
}

// Engine expands specs against a registry.
type Engine struct {
	registry *Registry
}

// NewEngine returns an engine using r for location resolution.
func NewEngine(r *Registry) *Engine {
	if r == nil {
		r = DefaultRegistry()
	}
	return &Engine{registry: r}
}

// Expand is NewEngine(DefaultRegistry()).Expand.
func Expand(base *params.Configuration, spec *Spec) ([]Variant, error) {
	return NewEngine(nil).Expand(base, spec)
}

// Expand produces one variant per element of the Cartesian product of the
// spec's value lists, first variable varying slowest. Every location of each
// variable is overwritten in a deep copy of base. Unknown variables are
// reported together before any variant is built.
//
// Each variant's result path is the base result path (or the exploration override)
// joined with the variant name. A spec without variables yields a single
// variant named "" that keeps the result path unchanged.
func (e *Engine) Expand(base *params.Configuration, spec *Spec) ([]Variant, error) {
	reg := e.registry
	if len(spec.Aliases) > 0 {
		reg = e.registry.with(spec.Aliases)
	}

	locations := make([][]Location, len(spec.Variables))
	var unknown []string
	for i, v := range spec.Variables {
		if len(v.Values) == 0 {
			return nil, fmt.Errorf("variable %s has no candidate values", v.Name)
		}
		locations[i] = reg.Resolve(base, v.Name)
		if len(locations[i]) == 0 {
			unknown = append(unknown, v.Name)
		}
	}
	if len(unknown) > 0 {
		return nil, &UnknownVariableError{Names: unknown}
	}

	root := base.ResultPath()
	if spec.ResultPath != "" {
		root = spec.ResultPath
	}
	template := base
	if spec.Window != nil {
		template = template.WithWindow(spec.Window.Begin, spec.Window.End)
	}

	combos := cartesianProduct(spec.Variables)
	variants := make([]Variant, 0, len(combos))
	for _, combo := range combos {
		cfg := template.Clone()
		for i, a := range combo {
			for _, loc := range locations[i] {
				cfg = cfg.With(loc.Section, loc.Path, a.Value)
			}
		}

		name := CombinationName(combo)
		resultPath := root
		if name != "" {
			resultPath = filepath.Join(root, name)
		}
		variants = append(variants, Variant{
			Name:        name,
			Assignments: combo,
			Config:      cfg.WithResultPath(resultPath),
		})
	}
	return variants, nil
}

// cartesianProduct enumerates combinations with the last variable varying fastest.
func cartesianProduct(vars []Variable) [][]Assignment {
	total := 1
	for _, v := range vars {
		total *= len(v.Values)
	}

	combos := make([][]Assignment, total)
	for i := range combos {
		combos[i] = make([]Assignment, len(vars))
	}

	repeat := 1
	for dim := len(vars) - 1; dim >= 0; dim-- {
		vals := vars[dim].Values
		cycle := len(vals)
		for i := 0; i < total; i++ {
			combos[i][dim] = Assignment{Name: vars[dim].Name, Value: vals[(i/repeat)%cycle]}
		}
		repeat *= cycle
	}
	return combos
}

// CombinationName joins name_value pairs with underscores.
func CombinationName(combo []Assignment) string {
	parts := make([]string, 0, 2*len(combo))
	for _, a := range combo {
		parts = append(parts, a.Name, FormatValue(a.Value))
	}
	return strings.Join(parts, "_")
}

// FormatValue renders a candidate value for a variant name. Floats always
// carry a decimal point (1.0, 50.0, 1.5), integers do not, so a sweep over
// 50 and 50.0 produces distinct names.
func FormatValue(v any) string {
	switch t := v.(type) {
	case float64:
		return formatFloat(t)
	case float32:
		return formatFloat(float64(t))
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case string:
		return t
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", t)
	}
}

func formatFloat(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// with returns a registry extended by extra aliases; the receiver is unchanged.
func (r *Registry) with(extra map[string][]Location) *Registry {
	r.mu.RLock()
	out := NewRegistry()
	for k, v := range r.populations {
		out.populations[k] = append([]string(nil), v...)
	}
	for k, v := range r.aliases {
		out.aliases[k] = append([]Location(nil), v...)
	}
	r.mu.RUnlock()

	for name, locs := range extra {
		out.RegisterAlias(name, locs...)
	}
	return out
}
