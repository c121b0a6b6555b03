package audit

import (
	"context"
	"time"

	id "github.com/pagopa/io-functions-admin-sub002/pkg/domain"
)

// Event is emitted from domain logic to capture key lifecycle actions. Keep
// it transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp    time.Time
	FiscalCode   id.FiscalCode
	ProcessingID id.ProcessingID
	Action       string
	Reason       string
	// RequestID is the correlation id from the HTTP request context, when
	// the event originated from an admin call rather than a worker.
	RequestID string
	// ActorID tracks the admin subject that triggered the action, when
	// different from the citizen the record belongs to.
	ActorID string
}

type AuditEvent string

const (
	// User-data processing lifecycle
	EventRequestCreated      AuditEvent = "processing_request_created"
	EventProcessingStarted   AuditEvent = "processing_started"
	EventProcessingClosed    AuditEvent = "processing_closed"
	EventProcessingFailed    AuditEvent = "processing_failed"
	EventProcessingRecovered AuditEvent = "processing_recovery_started"
	EventProcessingAbandoned AuditEvent = "processing_abandoned"

	// Visible-services cache
	EventVisibleServicesUpdated AuditEvent = "visible_services_updated"
)

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByFiscalCode(ctx context.Context, fiscalCode id.FiscalCode) ([]Event, error)
}
