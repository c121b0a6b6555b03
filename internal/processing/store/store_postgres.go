package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagopa/io-functions-admin-sub002/internal/processing/models"
	id "github.com/pagopa/io-functions-admin-sub002/pkg/domain"
	"github.com/pagopa/io-functions-admin-sub002/pkg/platform/sentinel"
)

// PostgresStore persists processing records in PostgreSQL.
//
// Schema:
//
//	CREATE TABLE user_data_processing (
//	    processing_id  TEXT NOT NULL,
//	    fiscal_code    TEXT NOT NULL,
//	    choice         TEXT NOT NULL,
//	    status         TEXT NOT NULL,
//	    version        INT NOT NULL,
//	    failure_reason TEXT NOT NULL DEFAULT '',
//	    created_at     TIMESTAMPTZ NOT NULL,
//	    updated_at     TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (processing_id, version)
//	);
//	CREATE INDEX user_data_processing_status_idx ON user_data_processing (status, created_at);
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const selectColumns = `processing_id, fiscal_code, choice, status, version, failure_reason, created_at, updated_at`

func (s *PostgresStore) FindLastVersion(ctx context.Context, processingID id.ProcessingID, fiscalCode id.FiscalCode) (*models.Request, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+selectColumns+`
		FROM user_data_processing
		WHERE processing_id = $1 AND fiscal_code = $2
		ORDER BY version DESC
		LIMIT 1
	`, processingID, fiscalCode)

	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find last version: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) AppendVersion(ctx context.Context, req *models.Request) (*models.Request, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_data_processing
			(processing_id, fiscal_code, choice, status, version, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, req.ProcessingID, req.FiscalCode, req.Choice, req.Status, req.Version,
		req.FailureReason, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, sentinel.ErrConflict
		}
		return nil, fmt.Errorf("append processing version: %w", err)
	}
	cp := *req
	return &cp, nil
}

func (s *PostgresStore) FindAllFailed(ctx context.Context) ([]*models.Request, error) {
	// DISTINCT ON picks the highest version per processing id; the outer
	// filter keeps only those whose current status is FAILED.
	rows, err := s.pool.Query(ctx, `
		SELECT `+selectColumns+` FROM (
			SELECT DISTINCT ON (processing_id) `+selectColumns+`
			FROM user_data_processing
			ORDER BY processing_id, version DESC
		) current
		WHERE status = $1
		ORDER BY created_at
	`, id.StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("find failed records: %w", err)
	}
	defer rows.Close()

	var failed []*models.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed record: %w", err)
		}
		failed = append(failed, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failed records: %w", err)
	}
	return failed, nil
}

func scanRequest(row pgx.Row) (*models.Request, error) {
	var req models.Request
	err := row.Scan(&req.ProcessingID, &req.FiscalCode, &req.Choice, &req.Status,
		&req.Version, &req.FailureReason, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &req, nil
}
