// Package database provides the Postgres-backed vote store.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool and verifies it.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS rating_posts (
		channel_id    BIGINT NOT NULL,
		message_id    BIGINT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_activity TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (channel_id, message_id)
	)`,
	`CREATE TABLE IF NOT EXISTS rating_votes (
		channel_id BIGINT NOT NULL,
		message_id BIGINT NOT NULL,
		user_id    TEXT NOT NULL,
		score      SMALLINT NOT NULL CHECK (score BETWEEN 1 AND 10),
		voted_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (channel_id, message_id, user_id),
		FOREIGN KEY (channel_id, message_id)
			REFERENCES rating_posts (channel_id, message_id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rating_posts_last_activity
		ON rating_posts (last_activity)`,
}

// RunMigrations applies the schema. Statements are idempotent.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
