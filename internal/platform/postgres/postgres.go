// Package postgres opens the connection pools shared by the entity store,
// the workflow instance store, and the audit outbox.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"github.com/pagopa/io-functions-admin-sub002/internal/platform/config"
)

// NewPool opens a pgx pool for the versioned entity and instance stores.
func NewPool(ctx context.Context, cfg config.Postgres) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("POSTGRES_URL is required")
	}
	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return pool, nil
}

// NewDB opens a database/sql handle for the audit outbox store, which joins
// caller transactions through pkg/platform/tx.
func NewDB(cfg config.Postgres) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("POSTGRES_URL is required")
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open sql db: %w", err)
	}
	return db, nil
}
