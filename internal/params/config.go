// Package params models the co-simulation parameter tree: a set of named
// `param_` sections plus the simulated-time window and result directory.
//
// A Configuration is an immutable value. Accessors hand out deep copies and
// every mutation returns a new instance, so variants produced by exploration
// never share state with the base configuration.
package params

import (
	"reflect"
	"sort"
	"strings"

	"github.com/nvandessel/cosim/internal/utils"
)

// SectionPrefix marks top-level keys that hold parameter sections.
const SectionPrefix = "param_"

// Section names understood by validation and linking.
const (
	SectionCoSimulation   = "param_co_simulation"
	SectionNest           = "param_nest"
	SectionNestTopology   = "param_nest_topology"
	SectionNestConnection = "param_nest_connection"
	SectionNestBackground = "param_nest_background"
	SectionTVBModel       = "param_tvb_model"
	SectionTVBConnection  = "param_tvb_connection"
	SectionTVBCoupling    = "param_tvb_coupling"
	SectionTVBIntegrator  = "param_tvb_integrator"
	SectionTVBMonitor     = "param_tvb_monitor"
	SectionNestToTVB      = "param_TR_nest_to_tvb"
	SectionTVBToNest      = "param_TR_tvb_to_nest"
	SectionRecordMPI      = "param_record_MPI"
)

// Population sub-models nested inside param_nest_topology.
const (
	PopulationExcitatory = "param_neuron_excitatory"
	PopulationInhibitory = "param_neuron_inhibitory"
)

// Top-level scalar keys.
const (
	KeyResultPath = "result_path"
	KeyBegin      = "begin"
	KeyEnd        = "end"
)

// Configuration is an immutable parameter tree.
type Configuration struct {
	resultPath string
	begin      float64
	end        float64
	sections   map[string]map[string]any
	extra      map[string]any
}

// New builds a Configuration from already validated parts. Sections are
// normalized and copied; the caller keeps ownership of its maps.
func New(resultPath string, begin, end float64, sections map[string]map[string]any) *Configuration {
	c := &Configuration{
		resultPath: resultPath,
		begin:      begin,
		end:        end,
		sections:   make(map[string]map[string]any, len(sections)),
		extra:      map[string]any{},
	}
	for name, sec := range sections {
		c.sections[name] = utils.Normalize(sec).(map[string]any)
	}
	return c
}

// fromTree splits a decoded document into scalars, sections and pass-through keys.
// It does no validation.
func fromTree(tree map[string]any) *Configuration {
	c := &Configuration{
		sections: map[string]map[string]any{},
		extra:    map[string]any{},
	}
	for key, value := range tree {
		switch {
		case key == KeyResultPath:
			c.resultPath, _ = value.(string)
		case key == KeyBegin:
			c.begin, _ = utils.AsNumber(value)
		case key == KeyEnd:
			c.end, _ = utils.AsNumber(value)
		case strings.HasPrefix(key, SectionPrefix):
			if sec, ok := value.(map[string]any); ok {
				c.sections[key] = utils.DeepCopy(sec).(map[string]any)
				continue
			}
			c.extra[key] = utils.DeepCopy(value)
		default:
			c.extra[key] = utils.DeepCopy(value)
		}
	}
	return c
}

// ResultPath returns the run output directory.
func (c *Configuration) ResultPath() string { return c.resultPath }

// Begin returns the start of the recorded simulated time in ms.
func (c *Configuration) Begin() float64 { return c.begin }

// End returns the end of the simulated time in ms.
func (c *Configuration) End() float64 { return c.end }

// SectionNames returns the names of all parameter sections in lexical order.
func (c *Configuration) SectionNames() []string {
	names := make([]string, 0, len(c.sections))
	for name := range c.sections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasSection reports whether the named section is present.
func (c *Configuration) HasSection(name string) bool {
	_, ok := c.sections[name]
	return ok
}

// Section returns a deep copy of the named section.
func (c *Configuration) Section(name string) (map[string]any, bool) {
	sec, ok := c.sections[name]
	if !ok {
		return nil, false
	}
	return utils.DeepCopy(sec).(map[string]any), true
}

// Lookup returns the value at path inside a section. Path elements walk
// nested mappings. The returned value is a copy.
func (c *Configuration) Lookup(section string, path ...string) (any, bool) {
	var cur any = c.sections[section]
	if cur == nil || len(path) == 0 {
		return nil, false
	}
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return utils.DeepCopy(cur), true
}

// CoSimulationEnabled reports param_co_simulation.co-simulation.
func (c *Configuration) CoSimulationEnabled() bool {
	return utils.GetBool(c.sections[SectionCoSimulation], "co-simulation", false)
}

// Synchronization returns the synchronization window in ms, or 0 when unset.
func (c *Configuration) Synchronization() float64 {
	return utils.GetFloat64(c.sections[SectionCoSimulation], "synchronization", 0)
}

// Regions returns the region ids simulated by the spiking simulator.
func (c *Configuration) Regions() []int {
	ids, _ := utils.GetIntSlice(c.sections[SectionCoSimulation], "id_region_nest")
	return ids
}

// Clone returns a deep copy.
func (c *Configuration) Clone() *Configuration {
	out := &Configuration{
		resultPath: c.resultPath,
		begin:      c.begin,
		end:        c.end,
		sections:   make(map[string]map[string]any, len(c.sections)),
		extra:      utils.DeepCopy(c.extra).(map[string]any),
	}
	for name, sec := range c.sections {
		out.sections[name] = utils.DeepCopy(sec).(map[string]any)
	}
	return out
}

// With returns a copy where the value at path inside section is replaced.
// Missing sections and intermediate mappings are created.
func (c *Configuration) With(section string, path []string, value any) *Configuration {
	out := c.Clone()
	out.set(section, path, utils.Normalize(value))
	return out
}

// Without returns a copy with section removed.
func (c *Configuration) Without(section string) *Configuration {
	out := c.Clone()
	delete(out.sections, section)
	return out
}

// set mutates the receiver in place; only used on fresh clones.
func (c *Configuration) set(section string, path []string, value any) {
	if len(path) == 0 {
		return
	}
	sec, ok := c.sections[section]
	if !ok {
		sec = map[string]any{}
		c.sections[section] = sec
	}
	cur := sec
	for _, key := range path[:len(path)-1] {
		next, ok := cur[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[key] = next
		}
		cur = next
	}
	cur[path[len(path)-1]] = value
}

// WithResultPath returns a copy with a different result directory.
func (c *Configuration) WithResultPath(path string) *Configuration {
	out := c.Clone()
	out.resultPath = path
	return out
}

// WithWindow returns a copy with a different simulated-time window.
func (c *Configuration) WithWindow(begin, end float64) *Configuration {
	out := c.Clone()
	out.begin = begin
	out.end = end
	return out
}

// Tree returns the whole configuration as a plain document, the form written
// to parameter.json.
func (c *Configuration) Tree() map[string]any {
	tree := utils.DeepCopy(c.extra).(map[string]any)
	for name, sec := range c.sections {
		tree[name] = utils.DeepCopy(sec)
	}
	tree[KeyResultPath] = c.resultPath
	tree[KeyBegin] = c.begin
	tree[KeyEnd] = c.end
	return tree
}

// Equal reports whether two configurations hold the same values.
func (c *Configuration) Equal(other *Configuration) bool {
	if c == nil || other == nil {
		return c == other
	}
	return reflect.DeepEqual(c.Tree(), other.Tree())
}
