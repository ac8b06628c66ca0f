package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/cosim/internal/config"
	"github.com/nvandessel/cosim/internal/logging"
	"github.com/nvandessel/cosim/internal/translation"
)

func newTranslateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Run one translation worker (launched by run and explore)",
		Long: `Run a translation worker between the two simulators for one region.

The worker reads the run's parameter file, announces readiness in the scratch
directory, and converts every synchronization window until the run ends.
Workers write their logs to stderr, which the supervisor redirects into the
run's log directory.`,
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dirFlag, _ := cmd.Flags().GetString("direction")
			region, _ := cmd.Flags().GetInt("region")
			parameterFile, _ := cmd.Flags().GetString("parameters")
			scratch, _ := cmd.Flags().GetString("scratch")

			direction, err := translation.ParseDirection(dirFlag)
			if err != nil {
				return err
			}
			if parameterFile == "" || scratch == "" {
				return fmt.Errorf("--parameters and --scratch are required")
			}

			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			applyHandshakeFlags(cmd, &settings.Handshake)
			logger := logging.NewLogger(settings.Logging.Level, os.Stderr).With(
				"worker", translation.WorkerName(direction, region))

			ctx, cancel := signalContext()
			defer cancel()

			return translation.RunWorker(ctx, translation.WorkerOptions{
				Direction:     direction,
				Region:        region,
				ParameterFile: parameterFile,
				ScratchDir:    scratch,
				Handshake:     settings.Handshake,
				Logger:        logger,
			})
		},
	}

	cmd.Flags().String("direction", "", "Translation direction (nest_to_tvb, tvb_to_nest, nest_record)")
	cmd.Flags().Int("region", 0, "Region id served by this worker")
	cmd.Flags().String("parameters", "", "Parameter file of the run")
	cmd.Flags().String("scratch", "", "Handshake scratch directory of the run")
	cmd.Flags().Duration("handshake-timeout", 0, "Override handshake.timeout (set by the supervisor)")
	cmd.Flags().Duration("poll-interval", 0, "Override handshake.poll_interval (set by the supervisor)")

	return cmd
}

// applyHandshakeFlags lets the supervisor hand its own handshake timing to a
// worker, whatever settings file the worker would load.
func applyHandshakeFlags(cmd *cobra.Command, hs *config.HandshakeConfig) {
	if d, _ := cmd.Flags().GetDuration("handshake-timeout"); d > 0 {
		hs.Timeout = d
	}
	if d, _ := cmd.Flags().GetDuration("poll-interval"); d > 0 {
		hs.PollInterval = d
	}
}
