package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"github.com/pagopa/io-functions-admin-sub002/internal/platform/blob"
	"github.com/pagopa/io-functions-admin-sub002/internal/platform/logger"
	"github.com/pagopa/io-functions-admin-sub002/internal/platform/middleware"
	"github.com/pagopa/io-functions-admin-sub002/internal/processing/models"
	"github.com/pagopa/io-functions-admin-sub002/internal/visibleservices"
	id "github.com/pagopa/io-functions-admin-sub002/pkg/domain"
	dErrors "github.com/pagopa/io-functions-admin-sub002/pkg/domain-errors"
)

// =============================================================================
// Admin Handler Test Suite
// =============================================================================

const testFiscalCode = "RSSMRA85T10A562S"

type stubValidator struct{}

func (stubValidator) ValidateToken(token string) (*middleware.JWTClaims, error) {
	if token != "valid-token" {
		return nil, fmt.Errorf("invalid token")
	}
	return &middleware.JWTClaims{Subject: "admin-1"}, nil
}

type stubService struct {
	setStatusResult *models.Request
	setStatusErr    error
	getResult       *models.Request
	getErr          error
	failed          []*models.Request
	recovered       []string
	recoverErr      error
}

func (s *stubService) SetStatus(_ context.Context, _ id.FiscalCode, _ id.Choice, _ id.Status) (*models.Request, error) {
	return s.setStatusResult, s.setStatusErr
}

func (s *stubService) Get(context.Context, id.FiscalCode, id.Choice) (*models.Request, error) {
	return s.getResult, s.getErr
}

func (s *stubService) ListFailed(context.Context) ([]*models.Request, error) {
	return s.failed, nil
}

func (s *stubService) Recover(context.Context) ([]string, error) {
	return s.recovered, s.recoverErr
}

type HandlerSuite struct {
	suite.Suite
	service *stubService
	router  chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.service = &stubService{}
	updater := visibleservices.NewUpdater(blob.NewInMemoryStore(), "visible-services.json", 15*time.Second)

	h := New(s.service, updater, logger.New(), stubValidator{})
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *HandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer valid-token")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HandlerSuite) TestAuthRequired() {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/user-data-processing/failed", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *HandlerSuite) TestSetStatus() {
	s.Run("creating a request returns 201", func() {
		record, err := models.NewRequest(testFiscalCode, id.ChoiceDownload, time.Now())
		s.Require().NoError(err)
		s.service.setStatusResult = record

		w := s.do(http.MethodPut,
			"/api/v1/user-data-processing/"+testFiscalCode+"/DOWNLOAD",
			setStatusRequest{Status: "PENDING"})

		s.Equal(http.StatusCreated, w.Code)
		var got models.Request
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &got))
		s.Equal(id.StatusPending, got.Status)
	})

	s.Run("invalid fiscal code is rejected before the service runs", func() {
		w := s.do(http.MethodPut,
			"/api/v1/user-data-processing/nope/DOWNLOAD",
			setStatusRequest{Status: "PENDING"})
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("unknown choice is rejected", func() {
		w := s.do(http.MethodPut,
			"/api/v1/user-data-processing/"+testFiscalCode+"/EXPORT",
			setStatusRequest{Status: "PENDING"})
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("conflict maps to 409", func() {
		s.service.setStatusErr = dErrors.New(dErrors.CodeConflict, "already failed")
		w := s.do(http.MethodPut,
			"/api/v1/user-data-processing/"+testFiscalCode+"/DOWNLOAD",
			setStatusRequest{Status: "PENDING"})
		s.Equal(http.StatusConflict, w.Code)
	})
}

func (s *HandlerSuite) TestGet() {
	s.Run("missing record maps to 404", func() {
		s.service.getErr = dErrors.New(dErrors.CodeNotFound, "no processing request")
		w := s.do(http.MethodGet, "/api/v1/user-data-processing/"+testFiscalCode+"/DELETE", nil)
		s.Equal(http.StatusNotFound, w.Code)
	})

	s.Run("existing record is returned", func() {
		record, err := models.NewRequest(testFiscalCode, id.ChoiceDelete, time.Now())
		s.Require().NoError(err)
		s.service.getErr = nil
		s.service.getResult = record

		w := s.do(http.MethodGet, "/api/v1/user-data-processing/"+testFiscalCode+"/DELETE", nil)
		s.Equal(http.StatusOK, w.Code)
	})
}

func (s *HandlerSuite) TestListFailed() {
	w := s.do(http.MethodGet, "/api/v1/user-data-processing/failed", nil)
	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"items":[]}`, w.Body.String())
}

func (s *HandlerSuite) TestRecover() {
	s.Run("clean sweep is accepted", func() {
		s.service.recovered = []string{"DOWNLOAD-RSSMRA85T10A562S-FAILED-USER-DATA-PROCESSING-RECOVERY"}

		w := s.do(http.MethodPost, "/api/v1/user-data-processing/failed/recover", nil)
		s.Equal(http.StatusAccepted, w.Code)

		var resp recoverResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Len(resp.Started, 1)
		s.Empty(resp.Error)
	})

	s.Run("partial sweep reports started instances alongside the failure", func() {
		s.service.recovered = []string{"DELETE-RSSMRA85T10A562S-FAILED-USER-DATA-PROCESSING-RECOVERY"}
		s.service.recoverErr = dErrors.New(dErrors.CodeUnavailable, "recovery sweep had failures")

		w := s.do(http.MethodPost, "/api/v1/user-data-processing/failed/recover", nil)
		s.Equal(http.StatusMultiStatus, w.Code)

		var resp recoverResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal([]string{"DELETE-RSSMRA85T10A562S-FAILED-USER-DATA-PROCESSING-RECOVERY"}, resp.Started)
		s.Equal("unavailable", resp.Error)
	})

	s.Run("sweep that started nothing maps the error directly", func() {
		s.service.recovered = nil
		s.service.recoverErr = dErrors.New(dErrors.CodeUnavailable, "recovery sweep had failures")

		w := s.do(http.MethodPost, "/api/v1/user-data-processing/failed/recover", nil)
		s.Equal(http.StatusServiceUnavailable, w.Code)
	})
}

func (s *HandlerSuite) TestVisibilityEvent() {
	s.Run("upsert event is applied", func() {
		w := s.do(http.MethodPost, "/api/v1/services/visibility-events", visibilityEventRequest{
			Service:   visibleservices.VisibleService{ServiceID: "svc-1", Version: 1, Name: "Tax reminders"},
			IsVisible: true,
		})
		s.Equal(http.StatusOK, w.Code)
		s.JSONEq(`{"action":"UPSERT"}`, w.Body.String())
	})

	s.Run("missing service id is rejected", func() {
		w := s.do(http.MethodPost, "/api/v1/services/visibility-events", visibilityEventRequest{IsVisible: true})
		s.Equal(http.StatusBadRequest, w.Code)
	})
}
