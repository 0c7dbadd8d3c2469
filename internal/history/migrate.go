package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// migrations[i] moves the schema from version i to i+1. The version lives in
// SQLite's user_version header field.
var migrations = []struct {
	name  string
	stmts []string
}{
	{"dispatch journal", []string{
		`CREATE TABLE IF NOT EXISTS dispatches (
			id          TEXT PRIMARY KEY,
			capability  TEXT NOT NULL,
			status      TEXT NOT NULL,
			message     TEXT,
			data        TEXT,
			duration_ms INTEGER DEFAULT 0,
			started_at  DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dispatches_started ON dispatches(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_dispatches_status ON dispatches(status)`,
	}},
	{"source tags and macro runs", []string{
		`ALTER TABLE dispatches ADD COLUMN source TEXT DEFAULT ''`,
		`ALTER TABLE dispatches ADD COLUMN macro_run TEXT DEFAULT ''`,
		`CREATE TABLE IF NOT EXISTS macro_runs (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			macro         TEXT NOT NULL,
			completed     INTEGER DEFAULT 0,
			failed_step   INTEGER DEFAULT 0,
			not_attempted INTEGER DEFAULT 0,
			cancelled     BOOLEAN DEFAULT 0,
			summary       TEXT,
			created_at    DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_macro_runs_created ON macro_runs(created_at)`,
	}},
}

func latestVersion() int { return len(migrations) }

// migrate brings db up to latestVersion. Each step commits together with its
// version bump.
func migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if current > latestVersion() {
		return fmt.Errorf("history database is at schema v%d, this build knows v%d", current, latestVersion())
	}
	for v := current; v < latestVersion(); v++ {
		m := migrations[v]
		logger.Info("migrating history database", "to", v+1, "step", m.name)
		if err := applyStep(ctx, db, v+1, m.stmts); err != nil {
			return fmt.Errorf("migration v%d (%s): %w", v+1, m.name, err)
		}
	}
	return nil
}

func applyStep(ctx context.Context, db *sql.DB, version int, stmts []string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	// PRAGMA takes no bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return err
	}
	return tx.Commit()
}

// schemaVersion is 0 for a fresh database.
func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}
