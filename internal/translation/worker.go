package translation

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/nvandessel/cosim/internal/config"
	"github.com/nvandessel/cosim/internal/handshake"
	"github.com/nvandessel/cosim/internal/metrics"
	"github.com/nvandessel/cosim/internal/params"
	"github.com/nvandessel/cosim/internal/recorder"
	"github.com/nvandessel/cosim/internal/utils"
)

// WorkerOptions configures RunWorker.
type WorkerOptions struct {
	Direction     Direction
	Region        int
	ParameterFile string
	ScratchDir    string
	Handshake     config.HandshakeConfig
	Logger        *slog.Logger

	// Dial overrides the data channel dialer.
	Dial DialFunc
}

// WorkerName is the process name of a translation worker.
func WorkerName(d Direction, region int) string {
	return fmt.Sprintf("%s_%d", d, region)
}

// RecordPath is the frame recording of a worker inside a run directory.
func RecordPath(resultPath, worker string) string {
	return filepath.Join(resultPath, "translation", "record", worker+".arrow")
}

// RunWorker runs one pipeline as a standalone process would: it reads the
// run's parameter file, announces readiness on the scratch channel when
// the pipeline starts connecting, and leaves its metrics next to the
// process logs.
func RunWorker(ctx context.Context, opts WorkerOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	cfg, err := params.LoadLegacy(opts.ParameterFile)
	if err != nil {
		return fmt.Errorf("loading parameters: %w", err)
	}
	pc, err := ConfigFor(cfg, opts.Direction, opts.Region)
	if err != nil {
		return err
	}
	pc.ConnectTimeout = opts.Handshake.Timeout

	ch, err := handshake.NewFileChannel(opts.ScratchDir, opts.Handshake.PollInterval, logger)
	if err != nil {
		return err
	}

	name := WorkerName(opts.Direction, opts.Region)
	m := metrics.New()
	p := NewPipeline(ch, pc, logger)
	p.SetMetrics(m)
	if opts.Dial != nil {
		p.SetDialer(opts.Dial)
	}

	cosim, _ := cfg.Section(params.SectionCoSimulation)
	if opts.Direction == NestRecord || utils.GetBool(cosim, "record_MPI", false) {
		rec, err := recorder.Create(RecordPath(cfg.ResultPath(), name))
		if err != nil {
			return err
		}
		defer rec.Close()
		p.SetRecorder(rec)
	}

	ready := ReadyRole(opts.Direction, opts.Region)
	p.OnStateChange(func(s State) {
		if s != StateConnecting {
			return
		}
		if err := ch.Publish(ready, handshake.Descriptor{Token: name}); err != nil {
			logger.Warn("publishing readiness failed", "role", ready, "error", err)
		}
	})

	runErr := p.Run(ctx)
	logger.Info("worker finished", "worker", name, "windows", p.Windows(), "state", p.State().String())
	if err := m.WriteTextfile(filepath.Join(cfg.ResultPath(), "log", name+".prom")); err != nil {
		logger.Warn("writing metrics failed", "error", err)
	}
	return runErr
}
