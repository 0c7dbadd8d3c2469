// Package history keeps a SQLite journal of every dispatch result and macro
// report so the operator can see what the assistant did.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"jarvis/internal/domain"

	_ "modernc.org/sqlite"
)

// Entry is one journaled dispatch.
type Entry struct {
	ID         string
	Capability string
	Status     domain.Status
	Message    string
	Data       map[string]any
	Source     string
	MacroRun   string
	DurationMs int64
	StartedAt  time.Time
}

// MacroEntry is one journaled macro run.
type MacroEntry struct {
	ID           int64
	Macro        string
	Completed    int
	FailedStep   int
	NotAttempted int
	Cancelled    bool
	Summary      string
	CreatedAt    time.Time
}

type sourceKey struct{}
type macroRunKey struct{}

// WithSource tags dispatches made with ctx with the channel they came from.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

// WithMacroRun tags dispatches made with ctx as steps of a macro run.
func WithMacroRun(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, macroRunKey{}, runID)
}

// Source returns the channel tag set by WithSource, or "".
func Source(ctx context.Context) string { return stringValue(ctx, sourceKey{}) }

func stringValue(ctx context.Context, key any) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// Journal is the SQLite-backed dispatch log.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

func Open(dbPath string, logger *slog.Logger) (*Journal, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := migrate(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &Journal{db: db, logger: logger}, nil
}

// Record appends a dispatch result.
func (j *Journal) Record(ctx context.Context, r domain.Result) error {
	var data sql.NullString
	if len(r.Data) > 0 {
		b, err := json.Marshal(r.Data)
		if err != nil {
			return fmt.Errorf("encode result data: %w", err)
		}
		data = sql.NullString{String: string(b), Valid: true}
	}
	started := r.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO dispatches (id, capability, status, message, data, source, macro_run, duration_ms, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Capability, string(r.Status), r.Message, data,
		stringValue(ctx, sourceKey{}), stringValue(ctx, macroRunKey{}),
		r.DurationMs, started.UTC(),
	)
	return err
}

// RecordMacro appends a macro report.
func (j *Journal) RecordMacro(ctx context.Context, r *domain.Report) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO macro_runs (macro, completed, failed_step, not_attempted, cancelled, summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Macro, r.Completed, r.FailedStep, r.NotAttempted, r.Cancelled, r.Summary(), time.Now().UTC(),
	)
	return err
}

// Recent returns the last limit dispatches, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, capability, status, message, data, source, macro_run, duration_ms, started_at
		 FROM dispatches ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var status string
		var data, source, macroRun sql.NullString
		if err := rows.Scan(&e.ID, &e.Capability, &status, &e.Message, &data,
			&source, &macroRun, &e.DurationMs, &e.StartedAt); err != nil {
			return nil, err
		}
		e.Status = domain.Status(status)
		e.Source = source.String
		e.MacroRun = macroRun.String
		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &e.Data); err != nil {
				j.logger.Warn("undecodable journal data", "id", e.ID, "error", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RecentMacros returns the last limit macro runs, newest first.
func (j *Journal) RecentMacros(ctx context.Context, limit int) ([]MacroEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, macro, completed, failed_step, not_attempted, cancelled, summary, created_at
		 FROM macro_runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []MacroEntry
	for rows.Next() {
		var e MacroEntry
		if err := rows.Scan(&e.ID, &e.Macro, &e.Completed, &e.FailedStep,
			&e.NotAttempted, &e.Cancelled, &e.Summary, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// StatusCounts returns how many dispatches ended in each status.
func (j *Journal) StatusCounts(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM dispatches GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.Status(status)] = n
	}
	return counts, rows.Err()
}

// Prune deletes dispatches and macro runs older than cutoff.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM dispatches WHERE started_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if _, err := j.db.ExecContext(ctx, `DELETE FROM macro_runs WHERE created_at < ?`, cutoff.UTC()); err != nil {
		return n, err
	}
	return n, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}
