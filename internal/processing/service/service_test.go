package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/pagopa/io-functions-admin-sub002/internal/processing"
	"github.com/pagopa/io-functions-admin-sub002/internal/processing/models"
	"github.com/pagopa/io-functions-admin-sub002/internal/processing/store"
	id "github.com/pagopa/io-functions-admin-sub002/pkg/domain"
	dErrors "github.com/pagopa/io-functions-admin-sub002/pkg/domain-errors"
	"github.com/pagopa/io-functions-admin-sub002/pkg/platform/audit"
	auditmemory "github.com/pagopa/io-functions-admin-sub002/pkg/platform/audit/store/memory"
	"github.com/pagopa/io-functions-admin-sub002/pkg/platform/audit/publisher"
)

// =============================================================================
// Processing Service Test Suite
// =============================================================================
// Justification for unit tests: the service carries the create/re-drive/
// abandon branching and the idempotent-start contract, which E2E tests
// cannot exercise precisely without racing a real engine.

const testFiscalCode = id.FiscalCode("RSSMRA85T10A562S")

type fakeDriver struct {
	err     error
	started []string
	inputs  []any
}

func (d *fakeDriver) StartOrchestrator(_ context.Context, _ string, instanceID string, input any) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	d.started = append(d.started, instanceID)
	d.inputs = append(d.inputs, input)
	return instanceID, nil
}

type fakeScanner struct {
	started []string
	err     error
}

func (s *fakeScanner) ProcessFailed(context.Context) ([]string, error) {
	return s.started, s.err
}

type ProcessingServiceSuite struct {
	suite.Suite
	store      *store.InMemoryStore
	driver     *fakeDriver
	scanner    *fakeScanner
	auditStore *auditmemory.InMemoryStore
	service    *Service
}

func TestProcessingServiceSuite(t *testing.T) {
	suite.Run(t, new(ProcessingServiceSuite))
}

func (s *ProcessingServiceSuite) SetupTest() {
	s.store = store.NewInMemoryStore()
	s.driver = &fakeDriver{}
	s.scanner = &fakeScanner{}
	s.auditStore = auditmemory.NewInMemoryStore()

	s.service = New(s.store, s.driver, s.scanner,
		WithAuditPublisher(publisher.NewPublisher(s.auditStore)),
	)
}

func (s *ProcessingServiceSuite) seed(status id.Status) *models.Request {
	ctx := context.Background()
	now := time.Now()

	req, err := models.NewRequest(testFiscalCode, id.ChoiceDownload, now)
	s.Require().NoError(err)
	_, err = s.store.AppendVersion(ctx, req)
	s.Require().NoError(err)
	if status == id.StatusPending {
		return req
	}

	wip, err := req.WithStatus(id.StatusWIP, now)
	s.Require().NoError(err)
	_, err = s.store.AppendVersion(ctx, wip)
	s.Require().NoError(err)
	if status == id.StatusWIP {
		return wip
	}

	next, err := wip.WithStatus(status, now)
	s.Require().NoError(err)
	_, err = s.store.AppendVersion(ctx, next)
	s.Require().NoError(err)
	return next
}

func (s *ProcessingServiceSuite) auditActions() []string {
	events, err := s.auditStore.ListByFiscalCode(context.Background(), testFiscalCode)
	s.Require().NoError(err)
	actions := make([]string, 0, len(events))
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	return actions
}

// =============================================================================
// SetStatus: PENDING (request creation)
// =============================================================================

func (s *ProcessingServiceSuite) TestSetStatusPending() {
	ctx := context.Background()

	s.Run("first request creates record and starts saga", func() {
		req, err := s.service.SetStatus(ctx, testFiscalCode, id.ChoiceDownload, id.StatusPending)
		s.Require().NoError(err)
		s.Equal(id.StatusPending, req.Status)
		s.Equal(0, req.Version)

		// The saga instance id is the deterministic processing id.
		s.Equal([]string{"RSSMRA85T10A562S-DOWNLOAD"}, s.driver.started)
		input, ok := s.driver.inputs[0].(processing.WorkflowInput)
		s.Require().True(ok)
		s.Equal("DOWNLOAD", input.Choice)

		s.Equal([]string{
			string(audit.EventRequestCreated),
			string(audit.EventProcessingStarted),
		}, s.auditActions())
	})

	s.Run("re-submitting a live request is idempotent", func() {
		first, err := s.service.SetStatus(ctx, testFiscalCode, id.ChoiceDownload, id.StatusPending)
		s.Require().NoError(err)

		again, err := s.service.SetStatus(ctx, testFiscalCode, id.ChoiceDownload, id.StatusPending)
		s.Require().NoError(err)
		s.Equal(first.Version, again.Version)

		// The driver was asked once, not twice.
		s.Len(s.driver.started, 1)
	})

	s.Run("closed request can start a new lifecycle", func() {
		s.SetupTest()
		s.seed(id.StatusClosed)

		req, err := s.service.SetStatus(ctx, testFiscalCode, id.ChoiceDownload, id.StatusPending)
		s.Require().NoError(err)
		s.Equal(id.StatusPending, req.Status)
		s.Equal(3, req.Version)
	})

	s.Run("failed request cannot be re-submitted", func() {
		s.SetupTest()
		s.seed(id.StatusFailed)

		_, err := s.service.SetStatus(ctx, testFiscalCode, id.ChoiceDownload, id.StatusPending)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Empty(s.driver.started)
	})

	s.Run("driver failure surfaces as unavailable", func() {
		s.SetupTest()
		s.driver.err = dErrors.New(dErrors.CodeUnavailable, "engine down")

		_, err := s.service.SetStatus(ctx, testFiscalCode, id.ChoiceDownload, id.StatusPending)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}

// =============================================================================
// SetStatus: WIP (manual re-drive) and CLOSED (abandon)
// =============================================================================

func (s *ProcessingServiceSuite) TestSetStatusWIP() {
	ctx := context.Background()

	s.Run("failed request is re-driven under the recovery instance id", func() {
		s.seed(id.StatusFailed)

		req, err := s.service.SetStatus(ctx, testFiscalCode, id.ChoiceDownload, id.StatusWIP)
		s.Require().NoError(err)
		s.Equal(id.StatusFailed, req.Status, "the saga, not the admin call, moves the record to WIP")
		s.Equal([]string{"DOWNLOAD-RSSMRA85T10A562S-FAILED-USER-DATA-PROCESSING-RECOVERY"}, s.driver.started)
		s.Contains(s.auditActions(), string(audit.EventProcessingRecovered))
	})

	s.Run("closed request cannot be re-driven", func() {
		s.SetupTest()
		s.seed(id.StatusClosed)

		_, err := s.service.SetStatus(ctx, testFiscalCode, id.ChoiceDownload, id.StatusWIP)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("missing request is not found", func() {
		s.SetupTest()
		_, err := s.service.SetStatus(ctx, testFiscalCode, id.ChoiceDownload, id.StatusWIP)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ProcessingServiceSuite) TestSetStatusClosed() {
	ctx := context.Background()

	s.Run("failed request can be abandoned", func() {
		failed := s.seed(id.StatusFailed)

		req, err := s.service.SetStatus(ctx, testFiscalCode, id.ChoiceDownload, id.StatusClosed)
		s.Require().NoError(err)
		s.Equal(id.StatusClosed, req.Status)
		s.Equal(failed.Version+1, req.Version)
		s.Contains(s.auditActions(), string(audit.EventProcessingAbandoned))
	})

	s.Run("a healthy request cannot be force-closed", func() {
		s.SetupTest()
		s.seed(id.StatusWIP)

		_, err := s.service.SetStatus(ctx, testFiscalCode, id.ChoiceDownload, id.StatusClosed)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ProcessingServiceSuite) TestSetStatusFailedRejected() {
	_, err := s.service.SetStatus(context.Background(), testFiscalCode, id.ChoiceDownload, id.StatusFailed)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

// =============================================================================
// Get / ListFailed / Recover
// =============================================================================

func (s *ProcessingServiceSuite) TestGet() {
	ctx := context.Background()

	s.Run("returns current version", func() {
		s.seed(id.StatusWIP)
		req, err := s.service.Get(ctx, testFiscalCode, id.ChoiceDownload)
		s.Require().NoError(err)
		s.Equal(id.StatusWIP, req.Status)
	})

	s.Run("missing request is not found", func() {
		s.SetupTest()
		_, err := s.service.Get(ctx, testFiscalCode, id.ChoiceDownload)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ProcessingServiceSuite) TestListFailed() {
	s.seed(id.StatusFailed)

	failed, err := s.service.ListFailed(context.Background())
	s.Require().NoError(err)
	s.Require().Len(failed, 1)
	s.Equal(id.StatusFailed, failed[0].Status)
}

func (s *ProcessingServiceSuite) TestRecover() {
	s.Run("returns started instance ids", func() {
		s.scanner.started = []string{"DOWNLOAD-RSSMRA85T10A562S-FAILED-USER-DATA-PROCESSING-RECOVERY"}

		started, err := s.service.Recover(context.Background())
		s.Require().NoError(err)
		s.Equal(s.scanner.started, started)
	})

	s.Run("partial sweep surfaces both progress and error", func() {
		s.scanner.started = []string{"a"}
		s.scanner.err = dErrors.New(dErrors.CodeUnavailable, "one record stuck")

		started, err := s.service.Recover(context.Background())
		s.Equal([]string{"a"}, started)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}
