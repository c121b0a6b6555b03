package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "github.com/pagopa/io-functions-admin-sub002/pkg/domain"
	audit "github.com/pagopa/io-functions-admin-sub002/pkg/platform/audit"
	txcontext "github.com/pagopa/io-functions-admin-sub002/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table in the same transaction as the
// state change that produced them, when the caller put one in context.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure stored in the outbox row.
// Field names match audit.Event for deserialization by downstream readers.
type outboxPayload struct {
	ID           string `json:"ID"`
	Timestamp    string `json:"Timestamp"`
	FiscalCode   string `json:"FiscalCode,omitempty"`
	ProcessingID string `json:"ProcessingID,omitempty"`
	Action       string `json:"Action"`
	Reason       string `json:"Reason,omitempty"`
	RequestID    string `json:"RequestID,omitempty"`
	ActorID      string `json:"ActorID,omitempty"`
}

// Append writes an audit event to the outbox table.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	payload := outboxPayload{
		ID:           eventID.String(),
		Timestamp:    ts.Format(time.RFC3339Nano),
		FiscalCode:   event.FiscalCode.String(),
		ProcessingID: event.ProcessingID.String(),
		Action:       event.Action,
		Reason:       event.Reason,
		RequestID:    event.RequestID,
		ActorID:      event.ActorID,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateType := "audit"
	aggregateID := eventID.String()
	if event.ProcessingID != "" {
		aggregateType = "user_data_processing"
		aggregateID = event.ProcessingID.String()
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		eventID,
		aggregateType,
		aggregateID,
		event.Action,
		payloadBytes,
		ts,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// ListByFiscalCode reads back outbox events for one citizen, newest last.
// Used by the admin audit endpoint and by the deletion activity to prove
// what was purged.
func (s *Store) ListByFiscalCode(ctx context.Context, fiscalCode id.FiscalCode) ([]audit.Event, error) {
	query := `
		SELECT payload FROM outbox
		WHERE payload->>'FiscalCode' = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, fiscalCode.String())
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		var p outboxPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode outbox payload: %w", err)
		}
		ts, _ := time.Parse(time.RFC3339Nano, p.Timestamp)
		events = append(events, audit.Event{
			Timestamp:    ts,
			FiscalCode:   id.FiscalCode(p.FiscalCode),
			ProcessingID: id.ProcessingID(p.ProcessingID),
			Action:       p.Action,
			Reason:       p.Reason,
			RequestID:    p.RequestID,
			ActorID:      p.ActorID,
		})
	}
	return events, rows.Err()
}
