// Package sweeplog keeps a SQLite journal of TTL sweeper runs.
//
// Redis holds the events themselves; the journal only answers "when did
// expiry last run and what did it remove", which survives Redis resets.
package sweeplog

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on sweeps.started_at
const currentSchemaVersion = 1

// Entry is one recorded sweeper run.
type Entry struct {
	ID        int64
	StartedAt time.Time
	Duration  time.Duration
	Result    string
	Error     string
	Removed   map[string]int64 // event type → removed count
}

// Log is the sweep journal.
type Log struct {
	db *sql.DB
}

// Open creates or opens a journal at the given path.
// Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Log{db: db}, nil
}

// Close closes the database connection.
func (l *Log) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Record appends a sweeper run and returns its id.
func (l *Log) Record(ctx context.Context, e Entry) (int64, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("record sweep: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO sweeps (started_at, duration_ms, result, error)
		VALUES (?, ?, ?, ?)
	`, e.StartedAt.Unix(), e.Duration.Milliseconds(), e.Result, e.Error)
	if err != nil {
		return 0, fmt.Errorf("record sweep: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record sweep: %w", err)
	}

	for event, removed := range e.Removed {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sweep_events (sweep_id, event, removed)
			VALUES (?, ?, ?)
		`, id, event, removed); err != nil {
			return 0, fmt.Errorf("record sweep event %s: %w", event, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("record sweep: %w", err)
	}
	return id, nil
}

// Recent returns up to limit runs, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT s.id, s.started_at, s.duration_ms, s.result, s.error, e.event, e.removed
		FROM (SELECT * FROM sweeps ORDER BY id DESC LIMIT ?) s
		LEFT JOIN sweep_events e ON e.sweep_id = s.id
		ORDER BY s.id DESC, e.event ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent sweeps: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			id, startedAt, durationMS int64
			result, errText           string
			event                     sql.NullString
			removed                   sql.NullInt64
		)
		if err := rows.Scan(&id, &startedAt, &durationMS, &result, &errText, &event, &removed); err != nil {
			return nil, fmt.Errorf("scan sweep: %w", err)
		}

		if len(out) == 0 || out[len(out)-1].ID != id {
			out = append(out, Entry{
				ID:        id,
				StartedAt: time.Unix(startedAt, 0).UTC(),
				Duration:  time.Duration(durationMS) * time.Millisecond,
				Result:    result,
				Error:     errText,
				Removed:   map[string]int64{},
			})
		}
		if event.Valid {
			out[len(out)-1].Removed[event.String] = removed.Int64
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sweeps: %w", err)
	}
	return out, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 indexes sweeps by start time for range lookups.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_sweeps_started_at
		ON sweeps(started_at)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (l *Log) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := l.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
