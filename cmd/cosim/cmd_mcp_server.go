package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/cosim/internal/mcp"
	"github.com/nvandessel/cosim/internal/store"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve cosim tools over MCP (stdio)",
		Long: `Start a Model Context Protocol server on stdin/stdout exposing:

  cosim_validate  validate a parameter file and list every violation
  cosim_expand    expand an exploration file without running it
  cosim_runs      query the run ledger

Tool calls are audited to ~/.cosim/audit.jsonl without file paths.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			auditDir, err := store.GlobalCosimPath()
			if err != nil {
				return err
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:      "cosim",
				Version:   version,
				StorePath: settings.Store.Path,
				AuditDir:  auditDir,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			defer server.Close()

			return server.Run(context.Background())
		},
	}
}
