package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nvandessel/cosim/internal/explore"
	"github.com/nvandessel/cosim/internal/orchestrator"
	"github.com/nvandessel/cosim/internal/params"
)

func newExploreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explore <exploration-file>",
		Short: "Run a parameter exploration",
		Long: `Expand an exploration file into the Cartesian product of its variables and
run one co-simulation per combination. Each combination gets its own run
directory below the base result path; a failed combination does not stop
the others.

Example exploration file:
  name: coupling
  base: parameter.json
  variables:
    g: [1.0, 2.0]
    b: [0.0, 60.0]`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			legacy, _ := cmd.Flags().GetBool("legacy-fallback")
			out := cmd.OutOrStdout()

			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(settings)

			spec, err := explore.LoadSpec(args[0])
			if err != nil {
				return err
			}
			base, err := spec.LoadBase(legacy, logger)
			if err != nil {
				return fmt.Errorf("loading base configuration: %w", err)
			}
			variants, err := explore.NewEngine(nil).Expand(base, spec)
			if err != nil {
				return err
			}

			root := base.ResultPath()
			if spec.ResultPath != "" {
				root = spec.ResultPath
			}

			var invalid *explore.InvalidVariantsError
			if err := explore.Validate(variants); err != nil && !errors.As(err, &invalid) {
				return err
			}
			rejected := invalid != nil && !legacy

			if dryRun {
				if jsonOut {
					list := make([]map[string]any, len(variants))
					for i, v := range variants {
						list[i] = map[string]any{
							"name":        v.Name,
							"assignments": v.Assignments,
							"result_path": v.Config.ResultPath(),
						}
						if invalid != nil {
							if verr, ok := invalid.Variants[v.Name]; ok {
								list[i]["violations"] = verr.Violations
							}
						}
					}
					json.NewEncoder(out).Encode(map[string]any{
						"exploration": explorationName(spec, args[0]),
						"count":       len(variants),
						"variants":    list,
					})
				} else {
					fmt.Fprintf(out, "%d variant(s) under %s:\n", len(variants), root)
					for _, v := range variants {
						fmt.Fprintf(out, "  %s\n", v.Config.ResultPath())
						if invalid != nil {
							if verr, ok := invalid.Variants[v.Name]; ok {
								for _, viol := range verr.Violations {
									fmt.Fprintf(out, "    - %s\n", viol.String())
								}
							}
						}
					}
				}
				if rejected {
					return fmt.Errorf("%d of %d variant(s) invalid", len(invalid.Names), len(variants))
				}
				return nil
			}

			if rejected {
				if jsonOut {
					byName := make(map[string][]params.Violation, len(invalid.Names))
					for _, name := range invalid.Names {
						byName[name] = invalid.Variants[name].Violations
					}
					json.NewEncoder(out).Encode(map[string]any{
						"launched": false,
						"invalid":  byName,
					})
				} else {
					for _, name := range invalid.Names {
						fmt.Fprintf(out, "%s: ", name)
						printViolations(out, false, invalid.Variants[name])
					}
				}
				return fmt.Errorf("exploration not launched: %d of %d variant(s) invalid", len(invalid.Names), len(variants))
			}

			manifest, err := explore.WriteManifest(root, spec, variants)
			if err != nil {
				return err
			}
			logger.Info("exploration manifest written", "path", manifest, "variants", len(variants))

			if spec.Parallel > 0 {
				settings.Run.Parallelism = spec.Parallel
			}

			runs := openLedger(settings, logger)
			if runs != nil {
				defer runs.Close()
			}

			ctx, cancel := signalContext()
			defer cancel()

			o := orchestrator.New(orchestrator.Config{
				Settings:    settings,
				Runs:        runs,
				Exploration: explorationName(spec, args[0]),
				Legacy:      legacy,
			}, logger)
			result := o.RunExploration(ctx, variants)

			if jsonOut {
				list := make([]map[string]any, len(result.Runs))
				for i, r := range result.Runs {
					list[i] = runJSON(r)
				}
				json.NewEncoder(out).Encode(map[string]any{
					"manifest": manifest,
					"runs":     list,
					"failed":   len(result.Failed()),
				})
			} else {
				for _, r := range result.Runs {
					printRun(out, r)
				}
				fmt.Fprintf(out, "\n%d of %d variant(s) succeeded\n", len(result.Runs)-len(result.Failed()), len(result.Runs))
			}

			if failed := result.Failed(); len(failed) > 0 {
				return fmt.Errorf("%d variant(s) failed: %w", len(failed), result.Err())
			}
			return nil
		},
	}

	cmd.Flags().Bool("dry-run", false, "List the variants without running them")
	cmd.Flags().Bool("legacy-fallback", false, "Load a base file that fails validation with the legacy loader")

	return cmd
}

// explorationName is the name field of the exploration file, or its base
// name without extension.
func explorationName(spec *explore.Spec, path string) string {
	if spec.Name != "" {
		return spec.Name
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
