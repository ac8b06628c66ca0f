package mcp

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// writeParameterFile writes a complete co-simulation document to dir and
// returns its path. mutate may edit the tree first.
func writeParameterFile(t *testing.T, dir string, mutate func(map[string]any)) string {
	t.Helper()
	tree := map[string]any{
		"result_path": filepath.Join(dir, "result"),
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
	}
	if mutate != nil {
		mutate(tree)
	}
	data, err := json.Marshal(tree)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	path := filepath.Join(dir, "parameter.json")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	return path
}

func newTestServer(t *testing.T, storePath string) *Server {
	t.Helper()
	s, err := NewServer(&Config{
		Name:      "cosim-test",
		Version:   "v0.0.0",
		StorePath: storePath,
		AuditDir:  filepath.Join(t.TempDir(), "audit"),
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
