// Package store defines the RunStore interface: the ledger of co-simulation
// runs and the exit status of every process they launched.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one row of the ledger.
type Run struct {
	ID          string     `json:"id"`
	Exploration string     `json:"exploration,omitempty"`
	Combination string     `json:"combination,omitempty"`
	ResultPath  string     `json:"result_path"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Processes   []Process  `json:"processes,omitempty"`
}

// Process is the outcome of one supervised process.
type Process struct {
	Name     string `json:"name"`
	Group    string `json:"group"` // "background" or "foreground"
	ExitCode int    `json:"exit_code"`
	Error    string `json:"error,omitempty"`
}

// RunStore records runs.
type RunStore interface {
	// StartRun inserts a run in StatusRunning.
	StartRun(ctx context.Context, run Run) error

	// FinishRun sets the final status and the process outcomes.
	FinishRun(ctx context.Context, id, status, errMsg string, processes []Process) error

	// GetRun returns a run with its processes.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns the most recent runs first. limit <= 0 means all.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	Close() error
}
