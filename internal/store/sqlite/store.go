// Package sqlite implements the alert service store on an embedded SQLite
// database. Documents whose shape the engine does not query on are kept as
// JSON text next to the columns it filters by.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is a SQLite-backed store.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path. Call Migrate before use.
func Open(path string) (*Store, error) {
	dsn := path
	if path != MemoryPath {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		dsn = "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: SQLite serializes writers anyway, and an in-memory
	// database exists only on the connection that created it.
	db.SetMaxOpenConns(1)
	return &Store{db: db, path: path}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS notification_preferences (
	user_id    TEXT PRIMARY KEY,
	enabled    INTEGER NOT NULL DEFAULT 0,
	payload    TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_preferences_enabled ON notification_preferences(enabled);

CREATE TABLE IF NOT EXISTS push_tokens (
	user_id    TEXT PRIMARY KEY,
	token      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS threshold_cache (
	river_id     TEXT PRIMARY KEY,
	payload      TEXT NOT NULL,
	last_updated TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS forecast_cache (
	river_id     TEXT PRIMARY KEY,
	external_id  TEXT NOT NULL,
	short_range  TEXT NOT NULL,
	medium_range TEXT NOT NULL,
	last_updated TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS river_mappings (
	river_id    TEXT PRIMARY KEY,
	external_id TEXT NOT NULL DEFAULT '',
	name        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS stations (
	id       TEXT PRIMARY KEY,
	name     TEXT NOT NULL DEFAULT '',
	reach_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS alert_history (
	user_id            TEXT NOT NULL,
	alert_id           TEXT NOT NULL,
	river_id           TEXT NOT NULL,
	return_period      INTEGER NOT NULL,
	alert_triggered_at TEXT NOT NULL,
	sent               INTEGER NOT NULL DEFAULT 0,
	sent_at            TEXT,
	payload            TEXT NOT NULL,
	PRIMARY KEY (user_id, alert_id)
);
CREATE INDEX IF NOT EXISTS idx_alert_history_dedup
	ON alert_history(user_id, river_id, return_period, alert_triggered_at);`

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}
