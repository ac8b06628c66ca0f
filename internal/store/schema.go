package store

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations[i] upgrades the ledger from user_version i to i+1.
var migrations = []string{
	`
CREATE TABLE runs (
    id TEXT PRIMARY KEY,
    exploration TEXT,
    combination TEXT,
    result_path TEXT NOT NULL,
    status TEXT NOT NULL,      -- running, succeeded, failed
    error TEXT,
    started_at TEXT NOT NULL,
    finished_at TEXT
);
CREATE INDEX idx_runs_started ON runs(started_at);
CREATE INDEX idx_runs_exploration ON runs(exploration);

CREATE TABLE run_processes (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    grp TEXT NOT NULL,         -- background, foreground
    exit_code INTEGER NOT NULL,
    error TEXT,
    PRIMARY KEY (run_id, name)
);
`,
}

// SchemaVersion is the ledger version this build writes.
var SchemaVersion = len(migrations)

// InitSchema brings db up to SchemaVersion. A ledger written by a newer
// build is refused rather than downgraded.
func InitSchema(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("reading ledger version: %w", err)
	}
	if version > SchemaVersion {
		return fmt.Errorf("ledger version %d is newer than supported version %d", version, SchemaVersion)
	}
	if version > 0 {
		if err := quickCheck(ctx, db); err != nil {
			return err
		}
	}

	for v := version; v < SchemaVersion; v++ {
		if err := migrate(ctx, db, v); err != nil {
			return fmt.Errorf("migrating ledger to version %d: %w", v+1, err)
		}
	}
	return nil
}

func migrate(ctx context.Context, db *sql.DB, from int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migrations[from]); err != nil {
		return err
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, from+1)); err != nil {
		return err
	}
	return tx.Commit()
}

// quickCheck fails on a corrupted ledger file.
func quickCheck(ctx context.Context, db *sql.DB) error {
	var result string
	if err := db.QueryRowContext(ctx, `PRAGMA quick_check`).Scan(&result); err != nil {
		return fmt.Errorf("checking ledger: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("ledger is corrupted: %s", result)
	}
	return nil
}
