package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/cosim/internal/store"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recent runs from the run ledger",
		Long: `List recent runs recorded in the run ledger (store.path in the settings),
most recent first. With a run id, show that run and the exit status of every
process it launched.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")
			out := cmd.OutOrStdout()

			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if settings.Store.Path == "" {
				return fmt.Errorf("run ledger is disabled (store.path is empty)")
			}
			runs, err := store.NewSQLiteRunStore(settings.Store.Path)
			if err != nil {
				return err
			}
			defer runs.Close()

			ctx := context.Background()

			if len(args) == 1 {
				run, err := runs.GetRun(ctx, args[0])
				if err != nil {
					return fmt.Errorf("run %s: %w", args[0], err)
				}
				if jsonOut {
					json.NewEncoder(out).Encode(run)
					return nil
				}
				printLedgerRun(cmd, *run)
				for _, p := range run.Processes {
					line := fmt.Sprintf("    %-16s %-10s exit=%d", p.Name, p.Group, p.ExitCode)
					if p.Error != "" {
						line += "  " + p.Error
					}
					fmt.Fprintln(out, line)
				}
				return nil
			}

			list, err := runs.ListRuns(ctx, limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			if jsonOut {
				json.NewEncoder(out).Encode(map[string]any{
					"runs":  list,
					"count": len(list),
				})
				return nil
			}
			if len(list) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}
			for _, r := range list {
				printLedgerRun(cmd, r)
			}
			return nil
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum number of runs to list (0 for all)")

	return cmd
}

func printLedgerRun(cmd *cobra.Command, r store.Run) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  %-9s  %s  %s\n", r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Status, r.ID, r.ResultPath)
	if r.Exploration != "" {
		fmt.Fprintf(out, "    exploration %s, combination %s\n", r.Exploration, valueOrDefault(r.Combination, "(base)"))
	}
	if r.Error != "" {
		fmt.Fprintf(out, "    error: %s\n", r.Error)
	}
}

func valueOrDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
