package params

// validTree returns a complete co-simulation document rooted at dir.
func validTree(dir string) map[string]any {
	return map[string]any{
		"result_path": dir,
		"begin":       0.0,
		"end":         1000.0,
		"param_co_simulation": map[string]any{
			"co-simulation":   true,
			"nb_MPI_nest":     2,
			"level_log":       1,
			"synchronization": 3.5,
			"id_region_nest":  []any{1, 2},
		},
		"param_nest": map[string]any{
			"sim_resolution":          0.1,
			"master_seed":             46,
			"total_num_virtual_procs": 2,
		},
		"param_nest_topology": map[string]any{
			"nb_region":             104,
			"nb_neuron_by_region":   1000,
			"percentage_inhibitory": 0.2,
			"param_neuron_excitatory": map[string]any{
				"C_m": 200.0, "g_L": 10.0, "E_L": -63.0, "a": 0.0, "b": 1.0,
				"tau_w": 500.0, "E_ex": 0.0, "E_in": -80.0, "tau_syn_ex": 5.0, "tau_syn_in": 5.0,
			},
			"param_neuron_inhibitory": map[string]any{
				"C_m": 200.0, "g_L": 10.0, "E_L": -65.0, "a": 0.0, "b": 0.0,
				"tau_w": 1.0, "E_ex": 0.0, "E_in": -80.0, "tau_syn_ex": 5.0, "tau_syn_in": 5.0,
			},
		},
		"param_nest_connection": map[string]any{
			"weight_local":        1.0,
			"weight_global":       1.0,
			"g":                   5.0,
			"p_connect":           0.05,
			"nb_external_synapse": 115,
			"velocity":            3.0,
			"path_weight":         "connectivity/weights.npy",
			"path_distance":       "connectivity/distance.npy",
		},
		"param_nest_background": map[string]any{"poisson": true, "rate": 0.0},
		"param_tvb_model":       map[string]any{"T": 20.0, "order": 2},
		"param_tvb_connection":  map[string]any{},
		"param_tvb_coupling":    map[string]any{},
		"param_tvb_integrator":  map[string]any{"stochastic": true},
		"param_tvb_monitor": map[string]any{
			"Raw":                       true,
			"parameter_TemporalAverage": map[string]any{"variables_of_interest": []any{0, 1}},
			"parameter_Bold":            map[string]any{"variables_of_interest": []any{0}},
		},
		"param_TR_nest_to_tvb": map[string]any{},
		"param_TR_tvb_to_nest": map[string]any{},
		"notes":                "pass-through",
	}
}
