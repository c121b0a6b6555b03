package orchestration

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagopa/io-functions-admin-sub002/pkg/platform/sentinel"
	"github.com/pagopa/io-functions-admin-sub002/pkg/requestcontext"
)

// PostgresStore persists workflow instances and step logs in PostgreSQL.
//
// Schema:
//
//	CREATE TABLE workflow_instances (
//	    id         TEXT PRIMARY KEY,
//	    workflow   TEXT NOT NULL,
//	    input      BYTEA NOT NULL,
//	    status     TEXT NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX workflow_instances_status_idx ON workflow_instances (status, created_at);
//
//	CREATE TABLE workflow_steps (
//	    instance_id TEXT NOT NULL REFERENCES workflow_instances (id) ON DELETE CASCADE,
//	    step        TEXT NOT NULL,
//	    result      BYTEA,
//	    recorded_at TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (instance_id, step)
//	);
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Instance, error) {
	var inst Instance
	err := s.pool.QueryRow(ctx, `
		SELECT id, workflow, input, status, created_at, updated_at
		FROM workflow_instances
		WHERE id = $1
	`, id).Scan(&inst.ID, &inst.Workflow, &inst.Input, &inst.Status, &inst.CreatedAt, &inst.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow instance: %w", err)
	}
	return &inst, nil
}

func (s *PostgresStore) Create(ctx context.Context, inst *Instance) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create instance: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Only a terminal instance may be reset to a fresh run. A live one makes
	// the conditional UPDATE match nothing, and the following INSERT trips
	// the primary key.
	_, err = tx.Exec(ctx, `
		DELETE FROM workflow_instances
		WHERE id = $1 AND status IN ($2, $3)
	`, inst.ID, RunStatusCompleted, RunStatusFailed)
	if err != nil {
		return fmt.Errorf("reset terminal instance: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO workflow_instances (id, workflow, input, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, inst.ID, inst.Workflow, inst.Input, inst.Status, inst.CreatedAt, inst.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create workflow instance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create instance: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, id string, status RunStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE workflow_instances
		SET status = $2, updated_at = $3
		WHERE id = $1
	`, id, status, requestcontext.Now(ctx))
	if err != nil {
		return fmt.Errorf("set instance status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RecordStep(ctx context.Context, id, step string, result []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workflow_steps (instance_id, step, result, recorded_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (instance_id, step) DO NOTHING
	`, id, step, result, requestcontext.Now(ctx))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("record workflow step: %w", err)
	}
	return nil
}

func (s *PostgresStore) CompletedSteps(ctx context.Context, id string) (map[string][]byte, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT step, result
		FROM workflow_steps
		WHERE instance_id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load step log: %w", err)
	}
	defer rows.Close()

	steps := make(map[string][]byte)
	for rows.Next() {
		var step string
		var result []byte
		if err := rows.Scan(&step, &result); err != nil {
			return nil, fmt.Errorf("scan step log: %w", err)
		}
		steps[step] = result
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate step log: %w", err)
	}
	return steps, nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status RunStatus) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id
		FROM workflow_instances
		WHERE status = $1
		ORDER BY created_at
	`, status)
	if err != nil {
		return nil, fmt.Errorf("list instances by status: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan instance id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instances: %w", err)
	}
	return ids, nil
}
