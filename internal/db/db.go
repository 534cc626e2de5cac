// Package db provides PostgreSQL storage for job reports.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// schema creates the tables the store needs. Statements are idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS reports (
		id          UUID PRIMARY KEY,
		job_id      TEXT NOT NULL,
		target_url  TEXT NOT NULL DEFAULT '',
		aborted     BOOLEAN NOT NULL DEFAULT FALSE,
		act_count   INTEGER NOT NULL DEFAULT 0,
		instances   INTEGER NOT NULL DEFAULT 0,
		content     JSONB NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS reports_job_id_idx ON reports (job_id, created_at DESC)`,
}

// Migrate creates the report tables if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}
