// Package explore expands a base configuration into the Cartesian product of
// candidate parameter values, one named variant per combination.
package explore

import (
	"sort"
	"strings"
	"sync"

	"github.com/nvandessel/cosim/internal/params"
	"github.com/nvandessel/cosim/internal/utils"
)

// Location is one writable place inside a configuration.
type Location struct {
	Section string
	Path    []string
}

func (l Location) String() string {
	return l.Section + "." + strings.Join(l.Path, ".")
}

// Registry resolves variable names to locations. A variable matches:
//   - every section holding the key at its top level,
//   - once per population sub-model of a registered container section,
//   - every location registered for it as an alias.
//
// Resolution is driven by this table, never by inspecting Go types.
type Registry struct {
	mu          sync.RWMutex
	populations map[string][]string
	aliases     map[string][]Location
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		populations: map[string][]string{},
		aliases:     map[string][]Location{},
	}
}

// DefaultRegistry knows the population sub-models of the spiking network.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterPopulations(params.SectionNestTopology, params.PopulationExcitatory, params.PopulationInhibitory)
	return r
}

// RegisterPopulations declares that section nests one sub-model per population.
func (r *Registry) RegisterPopulations(section string, populations ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.populations[section] = append([]string(nil), populations...)
}

// RegisterAlias routes name to explicit locations, in addition to the
// key-matching ones.
func (r *Registry) RegisterAlias(name string, locs ...Location) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[name] = append(r.aliases[name], locs...)
}

// Resolve returns every location name maps to in cfg, in a stable order.
// An empty result means the variable is unknown.
func (r *Registry) Resolve(cfg *params.Configuration, name string) []Location {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var locs []Location
	seen := map[string]bool{}
	add := func(l Location) {
		if key := l.String(); !seen[key] {
			seen[key] = true
			locs = append(locs, l)
		}
	}

	for _, l := range r.aliases[name] {
		add(l)
	}

	for _, section := range cfg.SectionNames() {
		sec, _ := cfg.Section(section)
		if _, ok := sec[name]; ok {
			add(Location{Section: section, Path: []string{name}})
		}
		for _, pop := range r.populations[section] {
			sub := utils.GetMap(sec, pop)
			if _, ok := sub[name]; ok {
				add(Location{Section: section, Path: []string{pop, name}})
			}
		}
	}
	return locs
}

// Aliases returns the registered alias names, sorted.
func (r *Registry) Aliases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.aliases))
	for name := range r.aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
