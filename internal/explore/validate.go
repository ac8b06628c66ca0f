package explore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nvandessel/cosim/internal/params"
)

// InvalidVariantsError reports the violations of every invalid variant of an
// exploration, keyed by variant name.
type InvalidVariantsError struct {
	Total    int
	Names    []string
	Variants map[string]*params.ValidationError
}

func (e *InvalidVariantsError) Error() string {
	parts := make([]string, len(e.Names))
	for i, name := range e.Names {
		parts[i] = fmt.Sprintf("%s: %v", name, e.Variants[name])
	}
	return fmt.Sprintf("%d of %d variant(s) invalid: %s", len(e.Names), e.Total, strings.Join(parts, "; "))
}

// Validate checks every variant as written and after linking. It returns an
// *InvalidVariantsError naming all invalid variants, or nil.
func Validate(variants []Variant) error {
	invalid := &InvalidVariantsError{
		Total:    len(variants),
		Variants: map[string]*params.ValidationError{},
	}
	for _, v := range variants {
		if v.Config == nil {
			return fmt.Errorf("variant %q has no configuration", v.Name)
		}
		_, err := params.ValidateLinked(v.Config)
		if err == nil {
			continue
		}
		var verr *params.ValidationError
		if !errors.As(err, &verr) {
			return fmt.Errorf("variant %q: %w", v.Name, err)
		}
		invalid.Names = append(invalid.Names, v.Name)
		invalid.Variants[v.Name] = verr
	}
	if len(invalid.Names) > 0 {
		return invalid
	}
	return nil
}
