package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// timeFormat has a fixed width so TEXT columns sort chronologically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRunStore is the RunStore kept in a SQLite file.
type SQLiteRunStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteRunStore opens (creating if needed) the ledger at dbPath.
func NewSQLiteRunStore(dbPath string) (*SQLiteRunStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteRunStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file.
func (s *SQLiteRunStore) Path() string { return s.dbPath }

// StartRun inserts a running row.
func (s *SQLiteRunStore) StartRun(ctx context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, exploration, combination, result_path, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, nullString(run.Exploration), nullString(run.Combination), run.ResultPath,
		StatusRunning, run.StartedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun updates the run and replaces its process rows in one transaction.
func (s *SQLiteRunStore) FinishRun(ctx context.Context, id, status, errMsg string, processes []Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, nullString(errMsg), time.Now().UTC().Format(timeFormat), id)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_processes WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear processes: %w", err)
	}
	for _, p := range processes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_processes (run_id, name, grp, exit_code, error) VALUES (?, ?, ?, ?, ?)`,
			id, p.Name, p.Group, p.ExitCode, nullString(p.Error)); err != nil {
			return fmt.Errorf("failed to insert process %s: %w", p.Name, err)
		}
	}
	return tx.Commit()
}

// GetRun returns one run with its processes.
func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, exploration, combination, result_path, status, error, started_at, finished_at
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, grp, exit_code, error FROM run_processes WHERE run_id = ? ORDER BY name`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query processes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p Process
		var errMsg sql.NullString
		if err := rows.Scan(&p.Name, &p.Group, &p.ExitCode, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan process: %w", err)
		}
		p.Error = errMsg.String
		run.Processes = append(run.Processes, p)
	}
	return run, rows.Err()
}

// ListRuns returns runs, newest first.
func (s *SQLiteRunStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, exploration, combination, result_path, status, error, started_at, finished_at
		FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Close closes the database.
func (s *SQLiteRunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var exploration, combination, errMsg, finished sql.NullString
	var started string
	if err := row.Scan(&run.ID, &exploration, &combination, &run.ResultPath, &run.Status, &errMsg, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.Exploration = exploration.String
	run.Combination = combination.String
	run.Error = errMsg.String

	t, err := time.Parse(timeFormat, started)
	if err != nil {
		return nil, fmt.Errorf("invalid started_at %q: %w", started, err)
	}
	run.StartedAt = t
	if finished.Valid {
		ft, err := time.Parse(timeFormat, finished.String)
		if err != nil {
			return nil, fmt.Errorf("invalid finished_at %q: %w", finished.String, err)
		}
		run.FinishedAt = &ft
	}
	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
