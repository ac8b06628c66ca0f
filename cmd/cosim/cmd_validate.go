package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nvandessel/cosim/internal/params"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <parameter-file>",
		Short: "Validate a parameter file and list every violation",
		Long: `Validate a co-simulation parameter file (JSON or YAML) against the parameter
schema and the cross-section constraints. Every violation is reported with its
path, value and constraint; the command fails when there is at least one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()

			cfg, err := params.Load(args[0])
			if err != nil {
				var verr *params.ValidationError
				if errors.As(err, &verr) {
					printViolations(out, jsonOut, verr)
					return fmt.Errorf("%s is invalid", args[0])
				}
				return err
			}

			if jsonOut {
				json.NewEncoder(out).Encode(map[string]any{
					"valid":         true,
					"co_simulation": cfg.CoSimulationEnabled(),
					"regions":       cfg.Regions(),
					"result_path":   cfg.ResultPath(),
				})
				return nil
			}
			fmt.Fprintf(out, "%s is valid\n", args[0])
			fmt.Fprintf(out, "  result_path:   %s\n", cfg.ResultPath())
			fmt.Fprintf(out, "  window:        [%v, %v]\n", cfg.Begin(), cfg.End())
			if cfg.CoSimulationEnabled() {
				fmt.Fprintf(out, "  co-simulation: regions %v, synchronization %v\n", cfg.Regions(), cfg.Synchronization())
			} else {
				fmt.Fprintln(out, "  co-simulation: disabled")
			}
			return nil
		},
	}
}

// printViolations lists every violation of a failed validation.
func printViolations(w io.Writer, jsonOut bool, verr *params.ValidationError) {
	if jsonOut {
		json.NewEncoder(w).Encode(map[string]any{
			"valid":      false,
			"violations": verr.Violations,
		})
		return
	}
	fmt.Fprintf(w, "%d violation(s):\n", len(verr.Violations))
	for _, v := range verr.Violations {
		fmt.Fprintf(w, "  - %s\n", v.String())
	}
}
