package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/cosim/internal/handshake"
	"github.com/nvandessel/cosim/internal/metrics"
)

// ProcessResult is the outcome of one planned process.
type ProcessResult struct {
	Name     string        `json:"name"`
	Group    Group         `json:"group"`
	Started  bool          `json:"started"`
	ExitCode int           `json:"exit_code"`
	Killed   bool          `json:"killed,omitempty"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Outcome is "ok", "failed", "killed" or "not_started".
func (r ProcessResult) Outcome() string {
	switch {
	case !r.Started:
		return "not_started"
	case r.Killed:
		return "killed"
	case r.Err != nil:
		return "failed"
	}
	return "ok"
}

// SupervisorConfig configures a Supervisor.
type SupervisorConfig struct {
	// LogDir receives one {name}.log per process.
	LogDir string

	// ReadyTimeout bounds the wait for each ReadyRole.
	ReadyTimeout time.Duration

	// RunTimeout bounds the whole run. Zero disables it.
	RunTimeout time.Duration

	// KillGrace is the delay between interrupt and kill.
	KillGrace time.Duration
}

// Supervisor launches a plan and waits for it.
type Supervisor struct {
	config  SupervisorConfig
	channel handshake.Channel
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	results map[string]*ProcessResult
}

// NewSupervisor creates a supervisor that waits for readiness on channel.
func NewSupervisor(channel handshake.Channel, config SupervisorConfig, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Supervisor{
		config:  config,
		channel: channel,
		logger:  logger,
	}
}

// SetMetrics attaches instruments.
func (s *Supervisor) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// Run starts the plan level by level. A level starts once every process
// of the previous levels that publishes a ReadyRole has done so. The first
// process failure, readiness failure or the run timeout terminates every
// process still running.
//
// The returned results follow plan order and include processes that were
// never started.
func (s *Supervisor) Run(ctx context.Context, plan []ProcessSpec) ([]ProcessResult, error) {
	levels, err := launchLevels(plan)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.results = make(map[string]*ProcessResult, len(plan))
	for _, p := range plan {
		s.results[p.Name] = &ProcessResult{Name: p.Name, Group: p.Group, ExitCode: -1}
	}
	s.mu.Unlock()

	runCtx := ctx
	if s.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.config.RunTimeout)
		defer cancel()
	}
	runCtx, abort := context.WithCancel(runCtx)
	defer abort()

	g, gctx := errgroup.WithContext(runCtx)

	var launchErr error
	for i, level := range levels {
		s.logger.Debug("launching level", "level", i, "processes", len(level))
		for _, spec := range level {
			if err := s.start(gctx, g, spec); err != nil {
				launchErr = &LaunchError{Process: spec.Name, Err: err}
				break
			}
		}
		if launchErr != nil {
			break
		}
		if err := s.awaitReady(gctx, level); err != nil {
			launchErr = err
			break
		}
	}

	if launchErr != nil {
		abort()
	}
	waitErr := g.Wait()

	results := s.collect(plan)
	switch {
	case ctx.Err() != nil:
		return results, ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && waitErr == nil:
		return results, fmt.Errorf("%w after %v", ErrRunTimeout, s.config.RunTimeout)
	case waitErr != nil:
		return results, waitErr
	case launchErr != nil:
		return results, launchErr
	}
	return results, nil
}

// start launches one process and registers its waiter in g.
func (s *Supervisor) start(ctx context.Context, g *errgroup.Group, spec ProcessSpec) error {
	if spec.Command == "" {
		return errors.New("empty command")
	}

	logFile, err := os.OpenFile(filepath.Join(s.config.LogDir, spec.Name+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening process log: %w", err)
	}

	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	setProcessGroup(cmd)
	if s.config.KillGrace > 0 {
		cmd.Cancel = func() error { return interruptGroup(cmd) }
		cmd.WaitDelay = s.config.KillGrace
	} else {
		cmd.Cancel = func() error { return killGroup(cmd) }
	}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return err
	}
	started := time.Now()
	s.update(spec.Name, func(r *ProcessResult) { r.Started = true })
	s.logger.Info("process started", "process", spec.Name, "pid", cmd.Process.Pid, "group", spec.Group)

	g.Go(func() error {
		defer logFile.Close()
		err := cmd.Wait()
		code := -1
		if cmd.ProcessState != nil {
			code = cmd.ProcessState.ExitCode()
		}
		killed := err != nil && ctx.Err() != nil

		s.update(spec.Name, func(r *ProcessResult) {
			r.ExitCode = code
			r.Duration = time.Since(started)
			r.Err = err
			r.Killed = killed
		})

		switch {
		case killed:
			s.logger.Warn("process terminated", "process", spec.Name, "exit_code", code)
			s.metrics.ProcessExited(spec.Name, "killed")
			return nil
		case err != nil:
			s.logger.Error("process failed", "process", spec.Name, "exit_code", code, "error", err)
			s.metrics.ProcessExited(spec.Name, "failed")
			return &ProcessFailureError{Process: spec.Name, ExitCode: code, Err: err}
		}
		s.logger.Info("process exited", "process", spec.Name, "duration", time.Since(started))
		s.metrics.ProcessExited(spec.Name, "ok")
		return nil
	})
	return nil
}

// awaitReady waits for every ReadyRole of a level concurrently.
func (s *Supervisor) awaitReady(ctx context.Context, level []ProcessSpec) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, spec := range level {
		if spec.ReadyRole == "" {
			continue
		}
		g.Go(func() error {
			begin := time.Now()
			if _, err := s.channel.Connect(gctx, spec.ReadyRole, s.config.ReadyTimeout); err != nil {
				return &LaunchError{Process: spec.Name, Err: err}
			}
			s.metrics.ObserveHandshake(spec.ReadyRole, time.Since(begin))
			s.logger.Debug("process ready", "process", spec.Name, "role", spec.ReadyRole)
			return nil
		})
	}
	return g.Wait()
}

func (s *Supervisor) update(name string, fn func(*ProcessResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.results[name])
}

func (s *Supervisor) collect(plan []ProcessSpec) []ProcessResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ProcessResult, 0, len(plan))
	for _, p := range plan {
		out = append(out, *s.results[p.Name])
	}
	return out
}

// launchLevels groups a plan into launch levels. Level 0 holds processes
// without dependencies; every other process sits one level above its
// deepest dependency. Plan order is kept within a level.
func launchLevels(plan []ProcessSpec) ([][]ProcessSpec, error) {
	byName := make(map[string]ProcessSpec, len(plan))
	for _, p := range plan {
		if _, dup := byName[p.Name]; dup {
			return nil, fmt.Errorf("duplicate process name %q", p.Name)
		}
		byName[p.Name] = p
	}
	for _, p := range plan {
		for _, dep := range p.DependsOn {
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("process %s depends on unknown process %s", p.Name, dep)
			}
		}
	}
	if err := detectCycles(plan, byName); err != nil {
		return nil, err
	}

	depth := make(map[string]int, len(plan))
	var levelOf func(name string) int
	levelOf = func(name string) int {
		if d, ok := depth[name]; ok {
			return d
		}
		d := 0
		for _, dep := range byName[name].DependsOn {
			if l := levelOf(dep) + 1; l > d {
				d = l
			}
		}
		depth[name] = d
		return d
	}

	var levels [][]ProcessSpec
	for _, p := range plan {
		l := levelOf(p.Name)
		for len(levels) <= l {
			levels = append(levels, nil)
		}
		levels[l] = append(levels[l], p)
	}
	return levels, nil
}

// detectCycles uses DFS to find a dependency cycle.
func detectCycles(plan []ProcessSpec, byName map[string]ProcessSpec) error {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var path []string

	var dfs func(name string) error
	dfs = func(name string) error {
		visited[name] = true
		onStack[name] = true
		path = append(path, name)

		for _, dep := range byName[name].DependsOn {
			if !visited[dep] {
				if err := dfs(dep); err != nil {
					return err
				}
			} else if onStack[dep] {
				start := 0
				for i, n := range path {
					if n == dep {
						start = i
						break
					}
				}
				cycle := append(append([]string(nil), path[start:]...), dep)
				return &CycleError{Path: cycle}
			}
		}

		path = path[:len(path)-1]
		onStack[name] = false
		return nil
	}

	for _, p := range plan {
		if !visited[p.Name] {
			if err := dfs(p.Name); err != nil {
				return err
			}
		}
	}
	return nil
}
