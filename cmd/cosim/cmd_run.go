package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/cosim/internal/explore"
	"github.com/nvandessel/cosim/internal/orchestrator"
	"github.com/nvandessel/cosim/internal/params"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <parameter-file>",
		Short: "Run one co-simulation",
		Long: `Validate a parameter file, prepare its run directory and supervise the
simulators and translation workers until they finish.

With --legacy-fallback, a file that fails validation is loaded with the
legacy loader after every violation has been logged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			legacy, _ := cmd.Flags().GetBool("legacy-fallback")
			out := cmd.OutOrStdout()

			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(settings)

			var cfg *params.Configuration
			if legacy {
				cfg, err = params.LoadWithFallback(args[0], logger)
			} else {
				cfg, err = params.Load(args[0])
			}
			if err != nil {
				var verr *params.ValidationError
				if errors.As(err, &verr) {
					printViolations(out, jsonOut, verr)
					return fmt.Errorf("%s is invalid", args[0])
				}
				return err
			}

			runs := openLedger(settings, logger)
			if runs != nil {
				defer runs.Close()
			}

			ctx, cancel := signalContext()
			defer cancel()

			o := orchestrator.New(orchestrator.Config{
				Settings: settings,
				Runs:     runs,
				Legacy:   legacy,
			}, logger)
			res := o.Run(ctx, explore.Variant{Config: cfg})

			if jsonOut {
				json.NewEncoder(out).Encode(runJSON(res))
			} else {
				printRun(out, res)
			}
			if !res.Succeeded() {
				return fmt.Errorf("run failed: %w", res.Err)
			}
			return nil
		},
	}

	cmd.Flags().Bool("legacy-fallback", false, "Load files that fail validation with the legacy loader")

	return cmd
}

// runJSON flattens a result for JSON output, including its error text.
func runJSON(res orchestrator.RunResult) map[string]any {
	procs := make([]map[string]any, len(res.Processes))
	for i, p := range res.Processes {
		procs[i] = map[string]any{
			"name":      p.Name,
			"group":     p.Group,
			"outcome":   p.Outcome(),
			"exit_code": p.ExitCode,
			"duration":  p.Duration.String(),
		}
	}
	m := map[string]any{
		"run_id":      res.RunID,
		"name":        res.Name,
		"result_path": res.ResultPath,
		"status":      res.Status,
		"duration":    res.Duration.String(),
		"processes":   procs,
	}
	if res.Err != nil {
		m["error"] = res.Err.Error()
	}
	return m
}

func printRun(w io.Writer, res orchestrator.RunResult) {
	label := res.Name
	if label == "" {
		label = res.ResultPath
	}
	fmt.Fprintf(w, "Run %s %s in %s\n", label, res.Status, res.Duration.Round(time.Millisecond))
	if res.RunID != "" {
		fmt.Fprintf(w, "  run id: %s\n", res.RunID)
	}
	for _, p := range res.Processes {
		fmt.Fprintf(w, "  %-16s %-10s %-11s exit=%d\n", p.Name, p.Group, p.Outcome(), p.ExitCode)
	}
	if res.Err != nil {
		fmt.Fprintf(w, "  error: %v\n", res.Err)
	}
}
