// Package mcp provides an MCP (Model Context Protocol) server for cosim.
package mcp

import (
	"context"
	"fmt"
	"os"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/cosim/internal/explore"
	"github.com/nvandessel/cosim/internal/ratelimit"
	"github.com/nvandessel/cosim/internal/store"
)

// Server wraps the MCP SDK server and exposes cosim tools.
type Server struct {
	server       *sdk.Server
	runs         store.RunStore
	registry     *explore.Registry
	audit        *AuditLogger
	toolLimiters ratelimit.ToolLimiters

	closeOnce sync.Once
	closeErr  error
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "cosim")
	Version string // Server version

	// StorePath is the run ledger. Empty serves an empty in-memory ledger.
	StorePath string

	// AuditDir receives audit.jsonl. Empty disables auditing.
	AuditDir string
}

// NewServer creates a new MCP server with cosim tools.
func NewServer(cfg *Config) (*Server, error) {
	var runs store.RunStore = store.NewInMemoryRunStore()
	if cfg.StorePath != "" {
		sqlite, err := store.NewSQLiteRunStore(cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open run ledger: %w", err)
		}
		runs = sqlite
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server:       mcpServer,
		runs:         runs,
		registry:     explore.DefaultRegistry(),
		toolLimiters: ratelimit.NewToolLimiters(),
	}
	if cfg.AuditDir != "" {
		s.audit = NewAuditLogger(cfg.AuditDir)
	}

	s.registerTools()
	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})
	s.Close()
	return err
}

// Close releases the ledger and the audit log. Safe to call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.runs.Close()
		if err := s.audit.Close(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}
