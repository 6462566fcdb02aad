// Package postgres implements the alert service store on PostgreSQL through a
// pgx connection pool. Document-shaped values live in JSONB columns.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a PostgreSQL-backed store.
type Store struct {
	pool *pgxpool.Pool
}

// New creates and validates a connection pool for databaseURL.
func New(ctx context.Context, databaseURL string, maxConns int) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS notification_preferences (
	user_id    TEXT PRIMARY KEY,
	enabled    BOOLEAN NOT NULL DEFAULT FALSE,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_preferences_enabled ON notification_preferences(enabled) WHERE enabled;

CREATE TABLE IF NOT EXISTS push_tokens (
	user_id    TEXT PRIMARY KEY,
	token      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS threshold_cache (
	river_id     TEXT PRIMARY KEY,
	payload      JSONB NOT NULL,
	last_updated TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS forecast_cache (
	river_id     TEXT PRIMARY KEY,
	external_id  TEXT NOT NULL,
	short_range  JSONB NOT NULL,
	medium_range JSONB NOT NULL,
	last_updated TIMESTAMPTZ NOT NULL
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
	alert_triggered_at TIMESTAMPTZ NOT NULL,
	sent               BOOLEAN NOT NULL DEFAULT FALSE,
	sent_at            TIMESTAMPTZ,
	payload            JSONB NOT NULL,
	PRIMARY KEY (user_id, alert_id)
);
CREATE INDEX IF NOT EXISTS idx_alert_history_dedup
	ON alert_history(user_id, river_id, return_period, alert_triggered_at);`

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Ping runs a trivial query to verify the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	var n int
	return s.pool.QueryRow(ctx, "SELECT 1").Scan(&n)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
