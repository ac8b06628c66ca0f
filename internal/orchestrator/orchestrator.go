// Package orchestrator runs simulations: it prepares the run directory,
// launches translator workers and simulators in dependency order, and
// records what happened.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/cosim/internal/config"
	"github.com/nvandessel/cosim/internal/explore"
	"github.com/nvandessel/cosim/internal/handshake"
	"github.com/nvandessel/cosim/internal/logging"
	"github.com/nvandessel/cosim/internal/metrics"
	"github.com/nvandessel/cosim/internal/params"
	"github.com/nvandessel/cosim/internal/store"
)

// Config configures an Orchestrator.
type Config struct {
	Settings *config.CosimConfig

	// Runs is the ledger. Nil records nothing.
	Runs store.RunStore

	// Executable runs translator workers. Empty means Settings.Translator.Executable,
	// then the current executable.
	Executable string

	// Exploration names the exploration the runs belong to.
	Exploration string

	// Legacy runs configurations that fail validation, logging every violation.
	Legacy bool
}

// RunResult is the outcome of one variant.
type RunResult struct {
	RunID         string          `json:"run_id,omitempty"`
	Name          string          `json:"name,omitempty"`
	ResultPath    string          `json:"result_path,omitempty"`
	ParameterFile string          `json:"parameter_file,omitempty"`
	Status        string          `json:"status"`
	Processes     []ProcessResult `json:"processes,omitempty"`
	Duration      time.Duration   `json:"duration"`
	Err           error           `json:"-"`
}

// Succeeded reports whether every process exited cleanly.
func (r RunResult) Succeeded() bool { return r.Status == store.StatusSucceeded }

// ExplorationResult collects the runs of an exploration in variant order.
type ExplorationResult struct {
	Runs []RunResult `json:"runs"`
}

// Failed returns the runs that did not succeed.
func (e ExplorationResult) Failed() []RunResult {
	var out []RunResult
	for _, r := range e.Runs {
		if !r.Succeeded() {
			out = append(out, r)
		}
	}
	return out
}

// Err joins the errors of failed runs, or returns nil.
func (e ExplorationResult) Err() error {
	var errs []error
	for _, r := range e.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", r.Name, r.Err))
	}
	return errors.Join(errs...)
}

// Orchestrator runs variants.
type Orchestrator struct {
	config Config
	logger *slog.Logger
}

// New creates an orchestrator. Settings defaults to config.Default().
func New(cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.Settings == nil {
		cfg.Settings = config.Default()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{config: cfg, logger: logger}
}

// Run executes one variant to completion. Failures are reported in the
// result; a validation failure launches nothing.
func (o *Orchestrator) Run(ctx context.Context, v explore.Variant) RunResult {
	began := time.Now()
	res := RunResult{Name: v.Name, Status: store.StatusFailed}
	finish := func(err error) RunResult {
		res.Err = err
		res.Duration = time.Since(began)
		if err == nil {
			res.Status = store.StatusSucceeded
		}
		return res
	}

	if v.Config == nil {
		return finish(errors.New("variant has no configuration"))
	}
	linked, err := o.check(v)
	if err != nil {
		return finish(err)
	}

	res.RunID = uuid.NewString()
	res.ResultPath = linked.ResultPath()
	layout := NewLayout(res.ResultPath, res.RunID)
	if err := layout.Create(); err != nil {
		return finish(fmt.Errorf("preparing run directory: %w", err))
	}

	logFile, err := logging.OpenLogFile(layout.Log, "orchestrator.log")
	if err != nil {
		return finish(fmt.Errorf("opening orchestrator log: %w", err))
	}
	defer logFile.Close()
	logger := logging.NewLogger(o.logLevel(linked), logFile).With("run_id", res.RunID)
	if v.Name != "" {
		logger = logger.With("variant", v.Name)
	}

	events := logging.NewEventLog(layout.Log)
	defer events.Close()
	m := metrics.New()

	paramFile, err := params.Save(linked, layout.Root)
	if err != nil {
		return finish(err)
	}
	res.ParameterFile = paramFile

	hs := o.config.Settings.Handshake
	ch, err := handshake.NewFileChannel(layout.Scratch, hs.PollInterval, logger)
	if err != nil {
		return finish(err)
	}
	defer func() {
		if o.config.Settings.Run.KeepScratch {
			return
		}
		if err := os.RemoveAll(layout.Scratch); err != nil {
			logger.Warn("removing scratch directory failed", "error", err)
		}
	}()

	plan, err := BuildPlan(PlanInput{
		Config:        linked,
		Settings:      o.config.Settings,
		Layout:        layout,
		ParameterFile: paramFile,
		RunID:         res.RunID,
		Executable:    o.executable(),
	})
	if err != nil {
		return finish(err)
	}

	o.startRun(ctx, logger, store.Run{
		ID:          res.RunID,
		Exploration: o.config.Exploration,
		Combination: v.Name,
		ResultPath:  res.ResultPath,
		StartedAt:   began,
	})
	events.Log(map[string]any{"event": "run_started", "run_id": res.RunID, "variant": v.Name, "processes": len(plan)})
	logger.Info("run started", "result_path", res.ResultPath, "processes", len(plan))

	sup := NewSupervisor(ch, SupervisorConfig{
		LogDir:       layout.Log,
		ReadyTimeout: hs.Timeout,
		RunTimeout:   o.config.Settings.Run.Timeout,
		KillGrace:    o.config.Settings.Run.KillGrace,
	}, logger)
	sup.SetMetrics(m)
	procs, runErr := sup.Run(ctx, plan)
	res.Processes = procs
	res = finish(runErr)

	o.finishRun(logger, res)
	m.RunFinished(res.Status, res.Duration)
	if err := m.WriteTextfile(filepath.Join(layout.Log, "orchestrator.prom")); err != nil {
		logger.Warn("writing metrics failed", "error", err)
	}
	events.Log(map[string]any{"event": "run_finished", "run_id": res.RunID, "status": res.Status, "duration_ms": res.Duration.Milliseconds()})
	for _, l := range []*slog.Logger{logger, o.logger.With("run_id", res.RunID)} {
		if runErr != nil {
			l.Error("run failed", "result_path", res.ResultPath, "error", runErr, "duration", res.Duration)
		} else {
			l.Info("run succeeded", "result_path", res.ResultPath, "duration", res.Duration)
		}
	}
	return res
}

// check validates a variant as written and after linking. In legacy mode
// violations are logged and the linked configuration is used anyway.
func (o *Orchestrator) check(v explore.Variant) (*params.Configuration, error) {
	linked, err := params.ValidateLinked(v.Config)
	if err == nil {
		return linked, nil
	}
	var verr *params.ValidationError
	if !o.config.Legacy || !errors.As(err, &verr) {
		return nil, err
	}
	for _, viol := range verr.Violations {
		o.logger.Warn("validation failed, continuing in legacy mode", "variant", v.Name, "violation", viol.String())
	}
	return linked, nil
}

// RunExploration runs every variant. Up to Settings.Run.Parallelism variants
// run at once; a failed variant never stops the others. Outside legacy mode
// every variant is validated first, and if any is invalid nothing is launched.
func (o *Orchestrator) RunExploration(ctx context.Context, variants []explore.Variant) ExplorationResult {
	results := make([]RunResult, len(variants))

	if !o.config.Legacy {
		if err := explore.Validate(variants); err != nil {
			var invalid *explore.InvalidVariantsError
			errors.As(err, &invalid)
			for i, v := range variants {
				results[i] = RunResult{Name: v.Name, Status: store.StatusFailed, Err: err}
				if invalid != nil {
					if verr, ok := invalid.Variants[v.Name]; ok {
						results[i].Err = verr
					} else {
						results[i].Err = fmt.Errorf("not launched: %w", err)
					}
				}
			}
			o.logger.Error("exploration rejected before launch", "error", err)
			return ExplorationResult{Runs: results}
		}
	}

	var g errgroup.Group
	g.SetLimit(max(o.config.Settings.Run.Parallelism, 1))
	for i, v := range variants {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = RunResult{Name: v.Name, Status: store.StatusFailed, Err: err}
				return nil
			}
			results[i] = o.Run(ctx, v)
			o.logger.Info("variant finished", "variant", v.Name, "status", results[i].Status,
				"index", i+1, "total", len(variants))
			return nil
		})
	}
	_ = g.Wait()
	return ExplorationResult{Runs: results}
}

func (o *Orchestrator) startRun(ctx context.Context, logger *slog.Logger, run store.Run) {
	if o.config.Runs == nil {
		return
	}
	if err := o.config.Runs.StartRun(ctx, run); err != nil {
		logger.Warn("recording run start failed", "error", err)
	}
}

// finishRun uses a fresh context so cancelled runs are still recorded.
func (o *Orchestrator) finishRun(logger *slog.Logger, res RunResult) {
	if o.config.Runs == nil {
		return
	}
	procs := make([]store.Process, 0, len(res.Processes))
	for _, p := range res.Processes {
		sp := store.Process{Name: p.Name, Group: string(p.Group), ExitCode: p.ExitCode}
		if p.Err != nil {
			sp.Error = p.Err.Error()
		} else if !p.Started {
			sp.Error = "not started"
		}
		procs = append(procs, sp)
	}
	errMsg := ""
	if res.Err != nil {
		errMsg = res.Err.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.config.Runs.FinishRun(ctx, res.RunID, res.Status, errMsg, procs); err != nil {
		logger.Warn("recording run outcome failed", "error", err)
	}
}

func (o *Orchestrator) executable() string {
	if o.config.Executable != "" {
		return o.config.Executable
	}
	if exe := o.config.Settings.Translator.Executable; exe != "" {
		return exe
	}
	if exe, err := os.Executable(); err == nil {
		return exe
	}
	return os.Args[0]
}

func (o *Orchestrator) logLevel(cfg *params.Configuration) string {
	cosim, _ := cfg.Section(params.SectionCoSimulation)
	return logLevel(cosim, o.config.Settings)
}
