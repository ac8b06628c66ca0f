package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/nvandessel/cosim/internal/config"
	"github.com/nvandessel/cosim/internal/logging"
	"github.com/nvandessel/cosim/internal/store"
)

// Set via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cosim",
		Short: "Co-simulation orchestrator for coupled spiking and mean-field brain models",
		Long: `cosim validates co-simulation parameter files, launches the spiking network
simulator, the whole-brain simulator and the translation workers between them,
and runs parameter explorations.

Settings are read from ~/.cosim/config.yaml and COSIM_* environment variables.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("log-level", "", "Override logging.level (debug, info, warn, error, critical)")
	rootCmd.PersistentFlags().String("config", "", "Settings file (default ~/.cosim/config.yaml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newValidateCmd(),
		newExploreCmd(),
		newTranslateCmd(),
		newRunsCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}

// loadSettings resolves defaults, the settings file, COSIM_* overrides and
// the --log-level flag, then validates the result.
func loadSettings(cmd *cobra.Command) (*config.CosimConfig, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		settings *config.CosimConfig
		err      error
	)
	if path != "" {
		settings, err = config.LoadFromFile(path)
	} else {
		settings, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		settings.Logging.Level = level
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return settings, nil
}

func newLogger(settings *config.CosimConfig) *slog.Logger {
	return logging.NewLogger(settings.Logging.Level, os.Stderr)
}

// openLedger opens the run ledger. A disabled or unusable ledger yields nil
// so that runs still proceed.
func openLedger(settings *config.CosimConfig, logger *slog.Logger) store.RunStore {
	if settings.Store.Path == "" {
		return nil
	}
	runs, err := store.NewSQLiteRunStore(settings.Store.Path)
	if err != nil {
		logger.Warn("run ledger unavailable", "error", err)
		return nil
	}
	return runs
}

// signalContext is cancelled on the first interrupt, which stops every
// supervised process.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
