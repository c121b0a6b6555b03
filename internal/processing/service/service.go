// Package service exposes the admin-facing operations on user-data
// processing requests.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pagopa/io-functions-admin-sub002/internal/processing"
	"github.com/pagopa/io-functions-admin-sub002/internal/processing/metrics"
	"github.com/pagopa/io-functions-admin-sub002/internal/processing/models"
	"github.com/pagopa/io-functions-admin-sub002/internal/processing/store"
	id "github.com/pagopa/io-functions-admin-sub002/pkg/domain"
	dErrors "github.com/pagopa/io-functions-admin-sub002/pkg/domain-errors"
	"github.com/pagopa/io-functions-admin-sub002/pkg/platform/audit"
	"github.com/pagopa/io-functions-admin-sub002/pkg/platform/sentinel"
	"github.com/pagopa/io-functions-admin-sub002/pkg/requestcontext"
)

// Driver starts workflow instances idempotently.
type Driver interface {
	StartOrchestrator(ctx context.Context, name, instanceID string, input any) (string, error)
}

// RecoveryScanner sweeps FAILED records back into the saga.
type RecoveryScanner interface {
	ProcessFailed(ctx context.Context) ([]string, error)
}

// AuditPublisher emits lifecycle audit events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates admin operations on processing requests.
type Service struct {
	store          store.Store
	driver         Driver
	scanner        RecoveryScanner
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New constructs a Service.
func New(st store.Store, driver Driver, scanner RecoveryScanner, opts ...Option) *Service {
	s := &Service{store: st, driver: driver, scanner: scanner, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetStatus applies an admin-requested status to the citizen's request.
//
//   - PENDING creates the request (or a fresh lifecycle after CLOSED) and
//     starts the saga. Re-submitting while a request is live is idempotent
//     and returns the current record.
//   - WIP re-drives a FAILED request through the recovery instance.
//   - CLOSED abandons a FAILED request without re-driving it.
//   - Anything else the state machine forbids fails with CodeConflict.
func (s *Service) SetStatus(ctx context.Context, fiscalCode id.FiscalCode, choice id.Choice, target id.Status) (*models.Request, error) {
	start := time.Now()
	defer s.observeSetStatus(start)

	switch target {
	case id.StatusPending:
		return s.createRequest(ctx, fiscalCode, choice)
	case id.StatusWIP:
		return s.reDrive(ctx, fiscalCode, choice)
	case id.StatusClosed:
		return s.abandon(ctx, fiscalCode, choice)
	default:
		return nil, dErrors.Newf(dErrors.CodeInvalidInput,
			"status %s cannot be requested directly", target)
	}
}

func (s *Service) createRequest(ctx context.Context, fiscalCode id.FiscalCode, choice id.Choice) (*models.Request, error) {
	processingID := id.MakeProcessingID(fiscalCode, choice)
	now := requestcontext.Now(ctx)

	current, err := s.store.FindLastVersion(ctx, processingID, fiscalCode)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		req, err := models.NewRequest(fiscalCode, choice, now)
		if err != nil {
			return nil, err
		}
		return s.persistAndStart(ctx, req)
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load processing record")
	}

	switch current.Status {
	case id.StatusPending, id.StatusWIP:
		// Already in flight: accepting the duplicate changes nothing.
		return current, nil
	case id.StatusClosed:
		// A closed request may be submitted again: new lifecycle, next
		// version, same processing id.
		req, err := models.NewRequest(fiscalCode, choice, now)
		if err != nil {
			return nil, err
		}
		req.Version = current.Version + 1
		return s.persistAndStart(ctx, req)
	default:
		return nil, dErrors.New(dErrors.CodeConflict,
			"request previously failed; re-drive it via recovery instead of re-submitting")
	}
}

func (s *Service) persistAndStart(ctx context.Context, req *models.Request) (*models.Request, error) {
	stored, err := s.store.AppendVersion(ctx, req)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "concurrent submission won the version race")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist processing request")
	}

	s.emitAudit(ctx, audit.Event{
		FiscalCode:   req.FiscalCode,
		ProcessingID: req.ProcessingID,
		Action:       string(audit.EventRequestCreated),
	})
	s.incrementRequest(req.Choice)

	input := processing.WorkflowInput{
		FiscalCode: req.FiscalCode.String(),
		Choice:     req.Choice.String(),
	}
	if _, err := s.driver.StartOrchestrator(ctx, processing.WorkflowName, req.ProcessingID.String(), input); err != nil {
		// The record exists; the recovery sweep or a re-submission will
		// start the saga later.
		s.logger.Error("cannot start processing saga",
			"processing_id", req.ProcessingID, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "start processing saga")
	}
	s.emitAudit(ctx, audit.Event{
		FiscalCode:   req.FiscalCode,
		ProcessingID: req.ProcessingID,
		Action:       string(audit.EventProcessingStarted),
	})
	return stored, nil
}

func (s *Service) reDrive(ctx context.Context, fiscalCode id.FiscalCode, choice id.Choice) (*models.Request, error) {
	current, err := s.load(ctx, fiscalCode, choice)
	if err != nil {
		return nil, err
	}
	if !current.CanTransitionTo(id.StatusWIP) {
		return nil, dErrors.Newf(dErrors.CodeConflict,
			"cannot re-drive a request in status %s", current.Status)
	}

	instanceID := models.MakeRecoveryOrchestratorID(choice, fiscalCode)
	input := processing.WorkflowInput{FiscalCode: fiscalCode.String(), Choice: choice.String()}
	if _, err := s.driver.StartOrchestrator(ctx, processing.WorkflowName, instanceID, input); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "start recovery saga")
	}

	s.emitAudit(ctx, audit.Event{
		FiscalCode:   fiscalCode,
		ProcessingID: current.ProcessingID,
		Action:       string(audit.EventProcessingRecovered),
	})
	return current, nil
}

func (s *Service) abandon(ctx context.Context, fiscalCode id.FiscalCode, choice id.Choice) (*models.Request, error) {
	current, err := s.load(ctx, fiscalCode, choice)
	if err != nil {
		return nil, err
	}
	if current.Status != id.StatusFailed {
		return nil, dErrors.Newf(dErrors.CodeConflict,
			"only a FAILED request can be closed by an operator, not %s", current.Status)
	}

	closed, err := current.WithStatus(id.StatusClosed, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	stored, err := s.store.AppendVersion(ctx, closed)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "record changed underneath; re-fetch and retry")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist abandoned request")
	}

	s.emitAudit(ctx, audit.Event{
		FiscalCode:   fiscalCode,
		ProcessingID: current.ProcessingID,
		Action:       string(audit.EventProcessingAbandoned),
		Reason:       current.FailureReason,
	})
	s.recordTransition(current.Status, id.StatusClosed)
	return stored, nil
}

// Get returns the current version of the citizen's request.
func (s *Service) Get(ctx context.Context, fiscalCode id.FiscalCode, choice id.Choice) (*models.Request, error) {
	return s.load(ctx, fiscalCode, choice)
}

// ListFailed returns the current version of every FAILED request.
func (s *Service) ListFailed(ctx context.Context) ([]*models.Request, error) {
	failed, err := s.store.FindAllFailed(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list failed requests")
	}
	return failed, nil
}

// Recover runs one recovery sweep on demand.
func (s *Service) Recover(ctx context.Context) ([]string, error) {
	started, err := s.scanner.ProcessFailed(ctx)
	s.recordSweep(len(started))
	if err != nil {
		// Partial progress still counts; the caller sees both.
		return started, dErrors.Wrap(err, dErrors.CodeUnavailable, "recovery sweep had failures")
	}
	return started, nil
}

func (s *Service) load(ctx context.Context, fiscalCode id.FiscalCode, choice id.Choice) (*models.Request, error) {
	processingID := id.MakeProcessingID(fiscalCode, choice)
	current, err := s.store.FindLastVersion(ctx, processingID, fiscalCode)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "no processing request for this citizen and choice")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load processing record")
	}
	return current, nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.Error("cannot emit audit event", "action", event.Action, "error", err)
	}
}

func (s *Service) incrementRequest(choice id.Choice) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncrementRequest(choice.String())
}

func (s *Service) recordTransition(from, to id.Status) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordTransition(from.String(), to.String())
}

func (s *Service) recordSweep(reDriven int) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordSweep(reDriven)
}

func (s *Service) observeSetStatus(start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveSetStatus(start)
}
