package params

import (
	"fmt"
	"strings"
)

// Violation describes one failed constraint.
type Violation struct {
	Path       string `json:"path"`
	Value      any    `json:"value"`
	Constraint string `json:"constraint"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: value=%s constraint=%s", v.Path, formatValue(v.Value), v.Constraint)
}

// ValidationError carries every violation found in a configuration.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	lines := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		lines = append(lines, v.String())
	}
	return fmt.Sprintf("invalid configuration (%d violation(s)): %s", len(e.Violations), strings.Join(lines, "; "))
}

func formatValue(v any) string {
	if v == nil {
		return "<missing>"
	}
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", v)
}
