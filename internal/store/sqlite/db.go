// Package sqlite implements the wager stores on an embedded SQLite database
// (pure Go, no cgo) for single-node deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Timestamps are stored as Unix nanoseconds so range comparisons are exact.
const schema = `
CREATE TABLE IF NOT EXISTS wagers (
    id             TEXT PRIMARY KEY,
    event_id       TEXT NOT NULL,
    league         TEXT NOT NULL,
    mode_key       TEXT NOT NULL,
    config         TEXT NOT NULL DEFAULT '{}',
    status         TEXT NOT NULL,
    close_time     INTEGER NOT NULL,
    winning_choice TEXT,
    wash_reason    TEXT,
    resolved_at    INTEGER,
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_wagers_event_status ON wagers(event_id, status);
CREATE INDEX IF NOT EXISTS idx_wagers_status_close ON wagers(status, close_time);

CREATE TABLE IF NOT EXISTS wager_history (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    id         TEXT NOT NULL UNIQUE,
    wager_id   TEXT NOT NULL,
    event      TEXT NOT NULL,
    detail     TEXT,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_wager ON wager_history(wager_id, created_at);

CREATE TABLE IF NOT EXISTS wager_baselines (
    wager_id    TEXT PRIMARY KEY,
    vals        TEXT NOT NULL,
    labels      TEXT NOT NULL DEFAULT '{}',
    captured_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS wager_progress (
    wager_id     TEXT PRIMARY KEY,
    participants TEXT NOT NULL,
    decision     TEXT,
    updated_at   INTEGER NOT NULL
);
`

// DB is an open SQLite database with the resolver schema applied.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path. ":memory:" gives a private
// in-memory database.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// single writer; also keeps ":memory:" to one shared database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA foreign_keys = ON"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Ping checks the database handle.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// Close releases the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// WagerStore returns the wager store over d.
func (d *DB) WagerStore() *WagerStore { return &WagerStore{db: d.db} }

// HistoryStore returns the history store over d.
func (d *DB) HistoryStore() *HistoryStore { return &HistoryStore{db: d.db} }

// BaselineStore returns the baseline store over d.
func (d *DB) BaselineStore() *BaselineStore { return &BaselineStore{db: d.db} }

// ProgressStore returns the progress store over d.
func (d *DB) ProgressStore() *ProgressStore { return &ProgressStore{db: d.db} }

func toNanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nullableNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(*t), Valid: true}
}

func withTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
