package orchestrator

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/cosim/internal/config"
	"github.com/nvandessel/cosim/internal/params"
)

func planNames(plan []ProcessSpec) []string {
	names := make([]string, len(plan))
	for i, p := range plan {
		names[i] = p.Name
	}
	return names
}

func buildPlan(t *testing.T, cfg *params.Configuration, settings *config.CosimConfig) []ProcessSpec {
	t.Helper()
	layout := NewLayout(cfg.ResultPath(), "run-1")
	plan, err := BuildPlan(PlanInput{
		Config:        params.Link(cfg),
		Settings:      settings,
		Layout:        layout,
		ParameterFile: cfg.ResultPath() + "/parameter.json",
		RunID:         "run-1",
		Executable:    "/usr/bin/cosim",
	})
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}
	return plan
}

func TestBuildPlan_CoSimulation(t *testing.T) {
	dir := t.TempDir()
	plan := buildPlan(t, validConfig(t, dir, 1, 2), config.Default())

	want := []string{"nest_to_tvb_1", "tvb_to_nest_1", "nest_to_tvb_2", "tvb_to_nest_2", "nest", "tvb"}
	if got := planNames(plan); !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	worker := plan[0]
	if worker.Group != Background || worker.ReadyRole != "nest_to_tvb_1.ready" {
		t.Errorf("unexpected worker spec: %+v", worker)
	}
	if worker.Command != "/usr/bin/cosim" || worker.Args[0] != "translate" {
		t.Errorf("expected worker to run translate, got %s %v", worker.Command, worker.Args)
	}
	if !slices.Contains(worker.Args, "--scratch") || !slices.Contains(worker.Args, NewLayout(dir, "run-1").Scratch) {
		t.Errorf("expected scratch dir in worker args, got %v", worker.Args)
	}

	for _, sim := range plan[4:] {
		if sim.Group != Foreground {
			t.Errorf("%s: expected foreground group", sim.Name)
		}
		if !slices.Equal(sim.DependsOn, want[:4]) {
			t.Errorf("%s: expected to depend on all workers, got %v", sim.Name, sim.DependsOn)
		}
		if !slices.Contains(sim.Env, "COSIM_REGIONS=1,2") || !slices.Contains(sim.Env, "COSIM_RUN_ID=run-1") {
			t.Errorf("%s: missing COSIM_* environment, got %v", sim.Name, sim.Env)
		}
	}

	nest := plan[4]
	wantNest := []string{"-n", "2", "run_mpi_nest.sh", dir}
	if nest.Command != "mpirun" || !slices.Equal(nest.Args, wantNest) {
		t.Errorf("expected mpirun %v, got %s %v", wantNest, nest.Command, nest.Args)
	}
	if tvb := plan[5]; tvb.Command != "run_mpi_tvb.sh" {
		t.Errorf("expected tvb without MPI, got %s", tvb.Command)
	}
}

func TestBuildPlan_ClusterUsesClusterRunner(t *testing.T) {
	dir := t.TempDir()
	cfg := validConfig(t, dir).With(params.SectionCoSimulation, []string{"cluster"}, true)
	plan := buildPlan(t, cfg, config.Default())

	nest := plan[len(plan)-2]
	if nest.Command != "srun" {
		t.Errorf("expected srun on a cluster, got %s", nest.Command)
	}
}

func TestBuildPlan_SingleSimulator(t *testing.T) {
	tests := []struct {
		name  string
		nbMPI int
		rec   bool
		want  []string
	}{
		{"nest only", 2, false, []string{"nest"}},
		{"nest with recording", 2, true, []string{"nest_record_1", "nest"}},
		{"tvb only", 0, false, []string{"tvb"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t, t.TempDir()).
				With(params.SectionCoSimulation, []string{"co-simulation"}, false).
				With(params.SectionCoSimulation, []string{"nb_MPI_nest"}, tt.nbMPI).
				With(params.SectionCoSimulation, []string{"record_MPI"}, tt.rec)
			plan := buildPlan(t, cfg, config.Default())
			if got := planNames(plan); !slices.Equal(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestBuildPlan_Placeholders(t *testing.T) {
	dir := t.TempDir()
	settings := config.Default()
	settings.Simulators.TVB = config.CommandConfig{
		Command: "tvb.sh",
		Args:    []string{"--params={parameter_file}", "{scratch_dir}", "{run_id}", "{unknown}"},
		Env:     map[string]string{"B_OUT": "{result_path}/tvb", "A_NPROC": "{nb_mpi}"},
	}
	plan := buildPlan(t, validConfig(t, dir), settings)
	tvb := plan[len(plan)-1]

	layout := NewLayout(dir, "run-1")
	wantArgs := []string{"--params=" + dir + "/parameter.json", layout.Scratch, "run-1", "{unknown}"}
	if !slices.Equal(tvb.Args, wantArgs) {
		t.Errorf("expected args %v, got %v", wantArgs, tvb.Args)
	}
	n := len(tvb.Env)
	if tvb.Env[n-2] != "A_NPROC=2" || tvb.Env[n-1] != "B_OUT="+dir+"/tvb" {
		t.Errorf("expected sorted expanded env, got %v", tvb.Env[n-2:])
	}
}

func TestBuildPlan_WorkerHandshakeTiming(t *testing.T) {
	settings := config.Default()
	settings.Handshake.Timeout = 42 * time.Second
	settings.Handshake.PollInterval = 250 * time.Millisecond
	plan := buildPlan(t, validConfig(t, t.TempDir()), settings)

	args := strings.Join(plan[0].Args, " ")
	for _, want := range []string{"--handshake-timeout 42s", "--poll-interval 250ms"} {
		if !strings.Contains(args, want) {
			t.Errorf("expected %q in worker args, got %s", want, args)
		}
	}
}

func TestBuildPlan_WorkerLogLevel(t *testing.T) {
	plan := buildPlan(t, validConfig(t, t.TempDir()), config.Default())
	args := strings.Join(plan[0].Args, " ")
	if !strings.Contains(args, "--log-level info") {
		t.Errorf("expected level_log 1 to map to info, got %s", args)
	}
}
