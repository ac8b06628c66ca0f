package orchestrator

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/nvandessel/cosim/internal/config"
	"github.com/nvandessel/cosim/internal/logging"
	"github.com/nvandessel/cosim/internal/params"
	"github.com/nvandessel/cosim/internal/translation"
	"github.com/nvandessel/cosim/internal/utils"
)

// Group says when a process is started relative to the others.
type Group string

const (
	// Background processes must be ready before their dependents start.
	Background Group = "background"
	// Foreground processes are the simulators themselves.
	Foreground Group = "foreground"
)

// ProcessSpec describes one process of a run.
type ProcessSpec struct {
	Name    string
	Group   Group
	Command string
	Args    []string
	Env     []string
	Dir     string

	// ReadyRole is published by the process once it is ready. Empty means
	// the process is ready as soon as it started.
	ReadyRole string

	// DependsOn lists processes that must be ready first.
	DependsOn []string
}

// PlanInput gathers what BuildPlan needs.
type PlanInput struct {
	Config        *params.Configuration
	Settings      *config.CosimConfig
	Layout        Layout
	ParameterFile string
	RunID         string

	// Executable runs `translate` workers.
	Executable string
}

// BuildPlan lists the processes of a run in launch order.
//
// With co-simulation, every region gets a nest_to_tvb and a tvb_to_nest
// worker, and both simulators depend on all workers. Without it only one
// simulator runs: nest when nb_MPI_nest > 0 (with a recording worker per
// region when record_MPI is set), tvb otherwise.
func BuildPlan(in PlanInput) ([]ProcessSpec, error) {
	cfg := in.Config
	cosim, _ := cfg.Section(params.SectionCoSimulation)
	nbMPI := utils.GetInt(cosim, "nb_MPI_nest", 0)
	cluster := utils.GetBool(cosim, "cluster", false)
	regions := cfg.Regions()

	vars := map[string]string{
		"result_path":    in.Layout.Root,
		"parameter_file": in.ParameterFile,
		"scratch_dir":    in.Layout.Scratch,
		"regions":        joinInts(regions),
		"nb_mpi":         strconv.Itoa(nbMPI),
		"run_id":         in.RunID,
	}
	env := []string{
		"COSIM_RESULT_PATH=" + in.Layout.Root,
		"COSIM_PARAMETER_FILE=" + in.ParameterFile,
		"COSIM_SCRATCH_DIR=" + in.Layout.Scratch,
		"COSIM_RUN_ID=" + in.RunID,
		"COSIM_REGIONS=" + vars["regions"],
	}

	var workers []ProcessSpec
	worker := func(d translation.Direction, region int) ProcessSpec {
		name := fmt.Sprintf("%s_%d", d, region)
		return ProcessSpec{
			Name:    name,
			Group:   Background,
			Command: in.Executable,
			Args: []string{
				"translate",
				"--direction", string(d),
				"--region", strconv.Itoa(region),
				"--parameters", in.ParameterFile,
				"--scratch", in.Layout.Scratch,
				"--log-level", logLevel(cosim, in.Settings),
				"--handshake-timeout", in.Settings.Handshake.Timeout.String(),
				"--poll-interval", in.Settings.Handshake.PollInterval.String(),
			},
			Env:       env,
			Dir:       in.Layout.Translation,
			ReadyRole: translation.ReadyRole(d, region),
		}
	}
	simulator := func(name string, cc config.CommandConfig, nproc int, dir string) ProcessSpec {
		command, args := cc.Command, expandAll(cc.Args, vars)
		if cc.MPI {
			runner := in.Settings.Simulators.MPIRunner
			if cluster {
				runner = in.Settings.Simulators.ClusterRunner
			}
			args = append([]string{"-n", strconv.Itoa(nproc), command}, args...)
			command = runner
		}
		spec := ProcessSpec{
			Name:    name,
			Group:   Foreground,
			Command: command,
			Args:    args,
			Env:     append(append([]string(nil), env...), expandEnv(cc.Env, vars)...),
			Dir:     dir,
		}
		for _, w := range workers {
			spec.DependsOn = append(spec.DependsOn, w.Name)
		}
		return spec
	}

	if cfg.CoSimulationEnabled() {
		if len(regions) == 0 {
			return nil, fmt.Errorf("co-simulation needs at least one region in id_region_nest")
		}
		for _, r := range regions {
			workers = append(workers, worker(translation.NestToTVB, r), worker(translation.TVBToNest, r))
		}
		plan := append([]ProcessSpec(nil), workers...)
		plan = append(plan,
			simulator("nest", in.Settings.Simulators.Nest, nbMPI, in.Layout.Nest),
			simulator("tvb", in.Settings.Simulators.TVB, 1, in.Layout.TVB),
		)
		return plan, nil
	}

	if nbMPI > 0 {
		if utils.GetBool(cosim, "record_MPI", false) {
			for _, r := range regions {
				workers = append(workers, worker(translation.NestRecord, r))
			}
		}
		plan := append([]ProcessSpec(nil), workers...)
		return append(plan, simulator("nest", in.Settings.Simulators.Nest, nbMPI, in.Layout.Nest)), nil
	}
	return []ProcessSpec{simulator("tvb", in.Settings.Simulators.TVB, 1, in.Layout.TVB)}, nil
}

func logLevel(cosim map[string]any, settings *config.CosimConfig) string {
	if n, ok := utils.GetNumber(cosim, "level_log"); ok {
		return logging.LevelFromLogLevel(int(n))
	}
	if settings.Logging.Level != "" {
		return settings.Logging.Level
	}
	return "info"
}

func expandAll(args []string, vars map[string]string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = expand(a, vars)
	}
	return out
}

func expandEnv(env map[string]string, vars map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(env))
	for _, k := range keys {
		out = append(out, k+"="+expand(env[k], vars))
	}
	return out
}

// expand replaces {name} placeholders; unknown ones are left as is.
func expand(s string, vars map[string]string) string {
	if !strings.Contains(s, "{") {
		return s
	}
	for k, v := range vars {
		s = strings.ReplaceAll(s, "{"+k+"}", v)
	}
	return s
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
