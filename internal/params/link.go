package params

import "github.com/nvandessel/cosim/internal/utils"

// Link derives the fields that must stay consistent across sections: the
// mean-field model is parameterized from the spiking network, and the
// translators from the co-simulation settings.
//
// Link is pure and idempotent: it returns a new Configuration, never touches
// the filesystem, and Link(Link(c)) equals Link(c). A derivation runs only
// when every source value it reads is present. Targets under param_tvb_* are
// only written when that section exists; translator and record sections are
// created on demand.
func Link(c *Configuration) *Configuration {
	out := c.Clone()

	nest := out.sections[SectionNest]
	conn := out.sections[SectionNestConnection]
	topo := out.sections[SectionNestTopology]
	cosim := out.sections[SectionCoSimulation]
	exc := utils.GetMap(topo, PopulationExcitatory)
	inh := utils.GetMap(topo, PopulationInhibitory)

	copyTo := func(section string, path []string, src map[string]any, key string) {
		if v, ok := src[key]; ok {
			out.setExisting(section, path, utils.DeepCopy(v))
		}
	}
	derive := func(section string, path []string, fn func() (float64, bool)) {
		if v, ok := fn(); ok {
			out.setExisting(section, path, v)
		}
	}
	offset := func(m map[string]any, key string, delta float64) func() (float64, bool) {
		return func() (float64, bool) {
			v, ok := utils.GetNumber(m, key)
			return v + delta, ok
		}
	}

	copyTo(SectionNestBackground, []string{"weight_poisson"}, conn, "weight_local")

	copyTo(SectionTVBConnection, []string{"path_distance"}, conn, "path_distance")
	copyTo(SectionTVBConnection, []string{"path_weight"}, conn, "path_weight")
	copyTo(SectionTVBConnection, []string{"nb_region"}, topo, "nb_region")
	copyTo(SectionTVBConnection, []string{"velocity"}, conn, "velocity")

	copyTo(SectionTVBCoupling, []string{"a"}, conn, "weight_global")

	copyTo(SectionTVBIntegrator, []string{"sim_resolution"}, nest, "sim_resolution")
	derive(SectionTVBIntegrator, []string{"seed"}, offset(nest, "master_seed", -1))
	derive(SectionTVBIntegrator, []string{"seed_init"}, offset(nest, "master_seed", -2))

	modelFromPopulations := []struct {
		target string
		src    map[string]any
		key    string
	}{
		{"g_L", exc, "g_L"},
		{"E_L_e", exc, "E_L"},
		{"E_L_i", inh, "E_L"},
		{"C_m", exc, "C_m"},
		{"b_e", exc, "b"},
		{"a_e", exc, "a"},
		{"b_i", inh, "b"},
		{"a_i", inh, "a"},
		{"tau_w_e", exc, "tau_w"},
		{"tau_w_i", inh, "tau_w"},
		{"E_e", exc, "E_ex"},
		{"E_i", exc, "E_in"},
		{"tau_e", exc, "tau_syn_ex"},
		{"tau_i", exc, "tau_syn_in"},
	}
	for _, m := range modelFromPopulations {
		copyTo(SectionTVBModel, []string{m.target}, m.src, m.key)
	}
	copyTo(SectionTVBModel, []string{"Q_e"}, conn, "weight_local")
	derive(SectionTVBModel, []string{"Q_i"}, func() (float64, bool) {
		w, ok1 := utils.GetNumber(conn, "weight_local")
		g, ok2 := utils.GetNumber(conn, "g")
		return w * g, ok1 && ok2
	})
	copyTo(SectionTVBModel, []string{"N_tot"}, topo, "nb_neuron_by_region")
	copyTo(SectionTVBModel, []string{"p_connect"}, conn, "p_connect")
	copyTo(SectionTVBModel, []string{"g"}, topo, "percentage_inhibitory")
	copyTo(SectionTVBModel, []string{"K_ext_e"}, conn, "nb_external_synapse")

	if monitor := out.sections[SectionTVBMonitor]; monitor != nil {
		if utils.GetMap(monitor, "parameter_TemporalAverage") != nil {
			derive(SectionTVBMonitor, []string{"parameter_TemporalAverage", "period"}, scaled(nest, "sim_resolution", 10))
		}
		if utils.GetMap(monitor, "parameter_Bold") != nil {
			derive(SectionTVBMonitor, []string{"parameter_Bold", "period"}, scaled(nest, "sim_resolution", 20000))
		}
	}

	if utils.GetBool(cosim, "co-simulation", false) {
		out.ensure(SectionTVBToNest)
		copyTo(SectionTVBToNest, []string{"level_log"}, cosim, "level_log")
		derive(SectionTVBToNest, []string{"seed"}, offset(nest, "master_seed", -3))
		copyTo(SectionTVBToNest, []string{"nb_synapses"}, conn, "nb_external_synapse")
		copyTo(SectionTVBToNest, []string{"synch"}, cosim, "synchronization")

		out.ensure(SectionNestToTVB)
		copyTo(SectionNestToTVB, []string{"resolution"}, nest, "sim_resolution")
		derive(SectionNestToTVB, []string{"nb_neurons"}, func() (float64, bool) {
			n, ok1 := utils.GetNumber(topo, "nb_neuron_by_region")
			p, ok2 := utils.GetNumber(topo, "percentage_inhibitory")
			return n * (1 - p), ok1 && ok2
		})
		copyTo(SectionNestToTVB, []string{"synch"}, cosim, "synchronization")
		copyTo(SectionNestToTVB, []string{"width"}, out.sections[SectionTVBModel], "T")
		copyTo(SectionNestToTVB, []string{"level_log"}, cosim, "level_log")
	}

	if utils.GetBool(cosim, "record_MPI", false) {
		out.ensure(SectionRecordMPI)
		copyTo(SectionRecordMPI, []string{"resolution"}, nest, "sim_resolution")
		copyTo(SectionRecordMPI, []string{"synch"}, cosim, "synchronization")
		copyTo(SectionRecordMPI, []string{"level_log"}, cosim, "level_log")
	}

	return out
}

func scaled(m map[string]any, key string, factor float64) func() (float64, bool) {
	return func() (float64, bool) {
		v, ok := utils.GetNumber(m, key)
		return v * factor, ok
	}
}

// ensure creates an empty section when missing. Only used on fresh clones.
func (c *Configuration) ensure(section string) {
	if _, ok := c.sections[section]; !ok {
		c.sections[section] = map[string]any{}
	}
}

// setExisting writes value when the section exists. Only used on fresh clones.
func (c *Configuration) setExisting(section string, path []string, value any) {
	if _, ok := c.sections[section]; !ok {
		return
	}
	c.set(section, path, value)
}
