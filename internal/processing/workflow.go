// Package processing implements the user-data processing lifecycle: the
// durable saga that serves a citizen's download or delete request, the
// admin-facing operations on it, and the recovery sweep over failed runs.
package processing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/pagopa/io-functions-admin-sub002/internal/platform/orchestration"
	"github.com/pagopa/io-functions-admin-sub002/internal/processing/models"
	"github.com/pagopa/io-functions-admin-sub002/internal/processing/store"
	id "github.com/pagopa/io-functions-admin-sub002/pkg/domain"
	dErrors "github.com/pagopa/io-functions-admin-sub002/pkg/domain-errors"
	"github.com/pagopa/io-functions-admin-sub002/pkg/platform/audit"
	"github.com/pagopa/io-functions-admin-sub002/pkg/platform/sentinel"
	"github.com/pagopa/io-functions-admin-sub002/pkg/requestcontext"
)

// WorkflowName is the registered name of the processing saga.
const WorkflowName = "UserDataProcessingWorkflow"

// Step names double as step-log keys, so they must stay stable across
// deployments or in-flight instances lose their replay history.
const (
	stepSetWIP    = "SetUserDataProcessingStatusActivity/WIP"
	stepDownload  = "UserDataDownloadActivity"
	stepDelete    = "UserDataDeleteActivity"
	stepSetClosed = "SetUserDataProcessingStatusActivity/CLOSED"
)

// WorkflowInput is the serialized input of one saga instance.
type WorkflowInput struct {
	FiscalCode string `json:"fiscal_code"`
	Choice     string `json:"choice"`
}

// DownloadActivity produces the citizen's data bundle and notifies them.
type DownloadActivity interface {
	Run(ctx context.Context, fiscalCode id.FiscalCode) error
}

// DeleteActivity purges the citizen's data.
type DeleteActivity interface {
	Run(ctx context.Context, fiscalCode id.FiscalCode) error
}

// AuditPublisher emits lifecycle audit events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Workflow is the saga driving one processing request from PENDING to a
// terminal state. Status changes are persisted as new record versions; the
// side effect runs exactly once per run thanks to the engine's step log.
type Workflow struct {
	store          store.Store
	download       DownloadActivity
	deletion       DeleteActivity
	logger         *slog.Logger
	auditPublisher AuditPublisher
}

type WorkflowOption func(*Workflow)

func WithWorkflowLogger(logger *slog.Logger) WorkflowOption {
	return func(w *Workflow) { w.logger = logger }
}

func WithWorkflowAuditPublisher(publisher AuditPublisher) WorkflowOption {
	return func(w *Workflow) { w.auditPublisher = publisher }
}

func NewWorkflow(s store.Store, download DownloadActivity, deletion DeleteActivity, opts ...WorkflowOption) *Workflow {
	w := &Workflow{store: s, download: download, deletion: deletion, logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Workflow) Name() string { return WorkflowName }

func (w *Workflow) Execute(ctx context.Context, run *orchestration.Run, rawInput []byte) error {
	var input WorkflowInput
	if err := json.Unmarshal(rawInput, &input); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "decode workflow input")
	}
	fiscalCode, err := id.ParseFiscalCode(input.FiscalCode)
	if err != nil {
		return err
	}
	choice, err := id.ParseChoice(input.Choice)
	if err != nil {
		return err
	}
	processingID := id.MakeProcessingID(fiscalCode, choice)

	if _, err := run.Step(ctx, stepSetWIP, func(ctx context.Context) ([]byte, error) {
		return nil, w.setStatus(ctx, processingID, fiscalCode, id.StatusWIP)
	}); err != nil {
		return w.fail(ctx, processingID, fiscalCode, err)
	}

	sideEffect := stepDownload
	activity := w.download
	if choice == id.ChoiceDelete {
		sideEffect = stepDelete
		activity = w.deletion
	}
	if _, err := run.Step(ctx, sideEffect, func(ctx context.Context) ([]byte, error) {
		return nil, activity.Run(ctx, fiscalCode)
	}); err != nil {
		return w.fail(ctx, processingID, fiscalCode, err)
	}

	if _, err := run.Step(ctx, stepSetClosed, func(ctx context.Context) ([]byte, error) {
		return nil, w.setStatus(ctx, processingID, fiscalCode, id.StatusClosed)
	}); err != nil {
		return w.fail(ctx, processingID, fiscalCode, err)
	}

	w.emitAudit(ctx, audit.Event{
		FiscalCode:   fiscalCode,
		ProcessingID: processingID,
		Action:       string(audit.EventProcessingClosed),
	})
	return nil
}

// setStatus appends the next record version in the target status.
func (w *Workflow) setStatus(ctx context.Context, processingID id.ProcessingID, fiscalCode id.FiscalCode, target id.Status) error {
	current, err := w.store.FindLastVersion(ctx, processingID, fiscalCode)
	if err != nil {
		return err
	}
	if current.Status == target {
		// A previous attempt got the write through before failing.
		return nil
	}
	next, err := current.WithStatus(target, requestcontext.Now(ctx))
	if err != nil {
		return err
	}
	_, err = w.store.AppendVersion(ctx, next)
	if errors.Is(err, sentinel.ErrConflict) {
		// Lost a version race with an earlier attempt of this same run.
		return nil
	}
	return err
}

// fail records the FAILED version with a descriptor naming the activity
// that exhausted its retries, then surfaces the original error so the
// engine marks the instance failed.
func (w *Workflow) fail(ctx context.Context, processingID id.ProcessingID, fiscalCode id.FiscalCode, cause error) error {
	desc := models.FailureDescriptor{Activity: WorkflowName, Reason: cause.Error()}
	if ae, ok := orchestration.AsActivityError(cause); ok {
		desc.Activity = ae.Activity
		desc.Reason = ae.Err.Error()
	}

	current, err := w.store.FindLastVersion(ctx, processingID, fiscalCode)
	if err != nil {
		w.logger.Error("cannot load record to mark failed",
			"processing_id", processingID, "error", err)
		return cause
	}
	if current.Status == id.StatusFailed {
		return cause
	}
	failed, err := current.WithFailure(desc, requestcontext.Now(ctx))
	if err != nil {
		w.logger.Error("cannot build failed version",
			"processing_id", processingID, "error", err)
		return cause
	}
	if _, err := w.store.AppendVersion(ctx, failed); err != nil && !errors.Is(err, sentinel.ErrConflict) {
		w.logger.Error("cannot persist failed version",
			"processing_id", processingID, "error", err)
	}
	w.emitAudit(ctx, audit.Event{
		FiscalCode:   fiscalCode,
		ProcessingID: processingID,
		Action:       string(audit.EventProcessingFailed),
		Reason:       desc.String(),
	})
	return cause
}

func (w *Workflow) emitAudit(ctx context.Context, event audit.Event) {
	if w.auditPublisher == nil {
		return
	}
	if err := w.auditPublisher.Emit(ctx, event); err != nil {
		w.logger.Error("cannot emit audit event", "action", event.Action, "error", err)
	}
}
