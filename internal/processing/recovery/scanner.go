// Package recovery sweeps FAILED processing records back into the saga.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pagopa/io-functions-admin-sub002/internal/processing"
	"github.com/pagopa/io-functions-admin-sub002/internal/processing/models"
	"github.com/pagopa/io-functions-admin-sub002/internal/processing/store"
	id "github.com/pagopa/io-functions-admin-sub002/pkg/domain"
)

// OrchestratorStarter is the driver slice the scanner needs.
type OrchestratorStarter interface {
	StartOrchestrator(ctx context.Context, name, instanceID string, input any) (string, error)
}

// Scanner finds processing records whose current version is FAILED and
// re-drives each through the saga under a deterministic recovery instance
// id. The sweep is best effort: one bad record never blocks the rest.
type Scanner struct {
	store  store.Store
	driver OrchestratorStarter
	logger *slog.Logger
}

type ScannerOption func(*Scanner)

func WithLogger(logger *slog.Logger) ScannerOption {
	return func(s *Scanner) { s.logger = logger }
}

func NewScanner(st store.Store, driver OrchestratorStarter, opts ...ScannerOption) *Scanner {
	s := &Scanner{store: st, driver: driver, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessFailed runs one sweep. Records are deduplicated by processing id
// in discovery order, so a record surfacing twice in one scan is driven
// once. Returns the recovery instance ids it asked the driver to start and
// the per-record errors joined together.
func (s *Scanner) ProcessFailed(ctx context.Context) ([]string, error) {
	failed, err := s.store.FindAllFailed(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan failed records: %w", err)
	}

	seen := make(map[id.ProcessingID]bool, len(failed))
	var started []string
	var errs []error
	for _, record := range failed {
		if seen[record.ProcessingID] {
			continue
		}
		seen[record.ProcessingID] = true

		instanceID := models.MakeRecoveryOrchestratorID(record.Choice, record.FiscalCode)
		input := processing.WorkflowInput{
			FiscalCode: record.FiscalCode.String(),
			Choice:     record.Choice.String(),
		}
		if _, err := s.driver.StartOrchestrator(ctx, processing.WorkflowName, instanceID, input); err != nil {
			s.logger.Error("cannot re-drive failed record",
				"processing_id", record.ProcessingID, "instance_id", instanceID, "error", err)
			errs = append(errs, fmt.Errorf("re-drive %s: %w", record.ProcessingID, err))
			continue
		}
		started = append(started, instanceID)
	}

	s.logger.Info("recovery sweep done",
		"failed_records", len(failed), "started", len(started), "errors", len(errs))
	return started, errors.Join(errs...)
}

// RunPeriodic sweeps on a fixed interval until ctx is cancelled. Sweep
// errors are logged, not fatal: the next tick tries again.
func (s *Scanner) RunPeriodic(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.ProcessFailed(ctx); err != nil {
				s.logger.Error("recovery sweep finished with errors", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
