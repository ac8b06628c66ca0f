package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// InMemoryRunStore keeps runs in memory. Used when the ledger is disabled
// and in tests.
type InMemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewInMemoryRunStore returns an empty store.
func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{runs: map[string]*Run{}}
}

// StartRun inserts a running run.
func (s *InMemoryRunStore) StartRun(ctx context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.Status = StatusRunning
	run.Processes = nil
	s.runs[run.ID] = &run
	return nil
}

// FinishRun sets the outcome of a run.
func (s *InMemoryRunStore) FinishRun(ctx context.Context, id, status, errMsg string, processes []Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	now := time.Now()
	run.Status = status
	run.Error = errMsg
	run.FinishedAt = &now
	run.Processes = append([]Process(nil), processes...)
	sort.Slice(run.Processes, func(i, j int) bool { return run.Processes[i].Name < run.Processes[j].Name })
	return nil
}

// GetRun returns a copy of one run.
func (s *InMemoryRunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	cp := *run
	cp.Processes = append([]Process(nil), run.Processes...)
	return &cp, nil
}

// ListRuns returns runs, newest first.
func (s *InMemoryRunStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]Run, 0, len(s.runs))
	for _, r := range s.runs {
		cp := *r
		cp.Processes = nil
		runs = append(runs, cp)
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID < runs[j].ID
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Close is a no-op.
func (s *InMemoryRunStore) Close() error { return nil }
