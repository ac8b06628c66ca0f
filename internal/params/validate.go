package params

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/nvandessel/cosim/internal/pathutil"
	"github.com/nvandessel/cosim/internal/utils"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("integral", validateIntegral)
}

// validateIntegral accepts integer kinds and floats without a fractional part.
func validateIntegral(fl validator.FieldLevel) bool {
	f := fl.Field()
	switch f.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	case reflect.Float32, reflect.Float64:
		x := f.Float()
		return !math.IsInf(x, 0) && x == math.Trunc(x)
	default:
		return false
	}
}

// Defaults filled into param_co_simulation when absent.
var coSimulationDefaults = map[string]any{
	"cluster":    false,
	"record_MPI": false,
}

// Parse validates a decoded document and builds a Configuration.
// Every violation is collected; on failure the error is a *ValidationError.
func Parse(raw map[string]any) (*Configuration, error) {
	tree, _ := utils.Normalize(raw).(map[string]any)
	if tree == nil {
		tree = map[string]any{}
	}
	if sec, ok := tree[SectionCoSimulation].(map[string]any); ok {
		for key, value := range coSimulationDefaults {
			if _, present := sec[key]; !present {
				sec[key] = value
			}
		}
	}

	var vs []Violation
	for _, f := range topLevel {
		vs = append(vs, checkField(tree, "", f)...)
	}
	for _, s := range Schema {
		value, present := tree[s.Name]
		if !present {
			if s.Required {
				vs = append(vs, Violation{Path: s.Name, Constraint: "required section"})
			}
			continue
		}
		sec, ok := value.(map[string]any)
		if !ok {
			vs = append(vs, Violation{Path: s.Name, Value: value, Constraint: "must be a mapping"})
			continue
		}
		for _, f := range s.Fields {
			vs = append(vs, checkField(sec, s.Name+".", f)...)
		}
	}
	vs = append(vs, crossChecks(tree)...)

	if len(vs) > 0 {
		return nil, &ValidationError{Violations: vs}
	}
	return fromTree(tree), nil
}

// Validate re-checks an existing configuration, e.g. after exploration
// overrides or linking.
func Validate(c *Configuration) error {
	_, err := Parse(c.Tree())
	return err
}

// ValidateLinked checks c as written and again after Link, returning the
// linked configuration and every violation from both passes. Checking first
// catches values that linking would overwrite, such as a translator synch.
func ValidateLinked(c *Configuration) (*Configuration, error) {
	linked := Link(c)

	var vs []Violation
	seen := map[string]bool{}
	for _, cfg := range []*Configuration{c, linked} {
		err := Validate(cfg)
		if err == nil {
			continue
		}
		var verr *ValidationError
		if !errors.As(err, &verr) {
			return linked, err
		}
		for _, v := range verr.Violations {
			if key := v.String(); !seen[key] {
				seen[key] = true
				vs = append(vs, v)
			}
		}
	}
	if len(vs) > 0 {
		return linked, &ValidationError{Violations: vs}
	}
	return linked, nil
}

// checkField runs presence, kind and rule checks for one field, stopping at
// the first failure.
func checkField(m map[string]any, prefix string, f Field) []Violation {
	path := prefix + f.Name
	value, present := m[f.Name]
	if !present {
		if f.Required {
			return []Violation{{Path: path, Constraint: "required"}}
		}
		return nil
	}
	if !kindMatches(value, f.Kind) {
		return []Violation{{Path: path, Value: value, Constraint: "must be a " + f.Kind.String()}}
	}
	if f.Rule == "" {
		return nil
	}
	if err := validate.Var(value, f.Rule); err != nil {
		return []Violation{{Path: path, Value: value, Constraint: describeRuleError(err, f.Rule)}}
	}
	return nil
}

func kindMatches(value any, kind Kind) bool {
	switch kind {
	case KindBool:
		_, ok := value.(bool)
		return ok
	case KindInt, KindFloat:
		_, ok := utils.AsNumber(value)
		return ok
	case KindString:
		_, ok := value.(string)
		return ok
	case KindList:
		_, ok := value.([]any)
		return ok
	case KindSection:
		_, ok := value.(map[string]any)
		return ok
	}
	return false
}

func describeRuleError(err error, rule string) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		if fe.Param() != "" {
			return fmt.Sprintf("must satisfy %s=%s", fe.Tag(), fe.Param())
		}
		return "must satisfy " + fe.Tag()
	}
	return "must satisfy " + rule
}

// crossChecks covers constraints spanning several fields or sections.
func crossChecks(tree map[string]any) []Violation {
	var vs []Violation

	begin, beginOK := utils.GetNumber(tree, KeyBegin)
	end, endOK := utils.GetNumber(tree, KeyEnd)
	if beginOK && endOK && end <= begin {
		vs = append(vs, Violation{
			Path:       "begin,end",
			Value:      fmt.Sprintf("begin=%v end=%v", begin, end),
			Constraint: "end must be greater than begin",
		})
	}

	if rp, ok := tree[KeyResultPath].(string); ok && rp != "" {
		if err := pathutil.CheckCreatable(rp); err != nil {
			vs = append(vs, Violation{Path: KeyResultPath, Value: rp, Constraint: "must be creatable: " + err.Error()})
		}
	}

	cosim, ok := tree[SectionCoSimulation].(map[string]any)
	if !ok {
		return vs
	}
	enabled := utils.GetBool(cosim, "co-simulation", false)
	synch, synchOK := utils.GetNumber(cosim, "synchronization")

	if enabled {
		if n, ok := utils.GetNumber(cosim, "nb_MPI_nest"); ok && n < 1 {
			vs = append(vs, Violation{
				Path:       SectionCoSimulation + ".nb_MPI_nest",
				Value:      n,
				Constraint: "must be at least 1 when co-simulation is enabled",
			})
		}
		if _, present := cosim["synchronization"]; !present {
			vs = append(vs, Violation{
				Path:       SectionCoSimulation + ".synchronization",
				Constraint: "required when co-simulation is enabled",
			})
		}
		if _, present := cosim["id_region_nest"]; !present {
			vs = append(vs, Violation{
				Path:       SectionCoSimulation + ".id_region_nest",
				Constraint: "required when co-simulation is enabled",
			})
		}
		for _, name := range []string{SectionNestToTVB, SectionTVBToNest} {
			if _, present := tree[name]; !present {
				vs = append(vs, Violation{
					Path:       name,
					Constraint: "required section when co-simulation is enabled",
				})
			}
		}
	}

	if synchOK {
		if endOK && synch >= end {
			vs = append(vs, Violation{
				Path:       SectionCoSimulation + ".synchronization",
				Value:      synch,
				Constraint: fmt.Sprintf("must be less than end (%v)", end),
			})
		}
		for _, name := range []string{SectionNestToTVB, SectionTVBToNest, SectionRecordMPI} {
			sec, ok := tree[name].(map[string]any)
			if !ok {
				continue
			}
			if v, ok := utils.GetNumber(sec, "synch"); ok && v != synch {
				vs = append(vs, Violation{
					Path:       name + ".synch",
					Value:      v,
					Constraint: fmt.Sprintf("must equal %s.synchronization (%v)", SectionCoSimulation, synch),
				})
			}
		}
	}
	return vs
}
