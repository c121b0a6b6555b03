// Package handler exposes the admin HTTP surface for user-data processing
// and service visibility events.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pagopa/io-functions-admin-sub002/internal/platform/middleware"
	"github.com/pagopa/io-functions-admin-sub002/internal/processing/models"
	"github.com/pagopa/io-functions-admin-sub002/internal/visibleservices"
	id "github.com/pagopa/io-functions-admin-sub002/pkg/domain"
	dErrors "github.com/pagopa/io-functions-admin-sub002/pkg/domain-errors"
	"github.com/pagopa/io-functions-admin-sub002/pkg/platform/httputil"
)

// Service defines the processing operations the handler needs.
type Service interface {
	SetStatus(ctx context.Context, fiscalCode id.FiscalCode, choice id.Choice, target id.Status) (*models.Request, error)
	Get(ctx context.Context, fiscalCode id.FiscalCode, choice id.Choice) (*models.Request, error)
	ListFailed(ctx context.Context) ([]*models.Request, error)
	Recover(ctx context.Context) ([]string, error)
}

// CacheUpdater applies service visibility events.
type CacheUpdater interface {
	Update(ctx context.Context, svc visibleservices.VisibleService, action visibleservices.Action) error
}

// Handler handles the admin endpoints.
type Handler struct {
	logger       *slog.Logger
	service      Service
	updater      CacheUpdater
	jwtValidator middleware.JWTValidator
}

// New creates a new admin Handler.
func New(service Service, updater CacheUpdater, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		service:      service,
		updater:      updater,
		jwtValidator: jwtValidator,
	}
}

// Register registers the admin routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	adminRouter := chi.NewRouter()
	adminRouter.Use(middleware.Recovery(h.logger))
	adminRouter.Use(middleware.RequestID)
	adminRouter.Use(middleware.Logger(h.logger))
	adminRouter.Use(middleware.Timeout(30 * time.Second))
	adminRouter.Use(middleware.ContentTypeJSON)
	adminRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	adminRouter.Put("/api/v1/user-data-processing/{fiscalCode}/{choice}", h.handleSetStatus)
	adminRouter.Get("/api/v1/user-data-processing/{fiscalCode}/{choice}", h.handleGet)
	adminRouter.Get("/api/v1/user-data-processing/failed", h.handleListFailed)
	adminRouter.Post("/api/v1/user-data-processing/failed/recover", h.handleRecover)
	adminRouter.Post("/api/v1/services/visibility-events", h.handleVisibilityEvent)

	r.Mount("/", adminRouter)
}

func pathParams(r *http.Request) (id.FiscalCode, id.Choice, error) {
	fiscalCode, err := id.ParseFiscalCode(chi.URLParam(r, "fiscalCode"))
	if err != nil {
		return "", "", err
	}
	choice, err := id.ParseChoice(chi.URLParam(r, "choice"))
	if err != nil {
		return "", "", err
	}
	return fiscalCode, choice, nil
}

// setStatusRequest is the PUT body.
type setStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	fiscalCode, choice, err := pathParams(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var body setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	target, err := id.ParseStatus(body.Status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, err := h.service.SetStatus(ctx, fiscalCode, choice, target)
	if err != nil {
		h.logger.WarnContext(ctx, "set status rejected",
			"request_id", requestID,
			"choice", choice,
			"target", target,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if target == id.StatusPending && req.Version == 0 {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, req)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fiscalCode, choice, err := pathParams(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, err := h.service.Get(ctx, fiscalCode, choice)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

type listFailedResponse struct {
	Items []*models.Request `json:"items"`
}

func (h *Handler) handleListFailed(w http.ResponseWriter, r *http.Request) {
	failed, err := h.service.ListFailed(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if failed == nil {
		failed = []*models.Request{}
	}
	httputil.WriteJSON(w, http.StatusOK, listFailedResponse{Items: failed})
}

type recoverResponse struct {
	Started []string `json:"started"`
	Error   string   `json:"error,omitempty"`
}

func (h *Handler) handleRecover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	started, err := h.service.Recover(ctx)
	if started == nil {
		started = []string{}
	}
	if err != nil {
		h.logger.WarnContext(ctx, "recovery sweep had failures",
			"request_id", requestID,
			"started", len(started),
			"error", err.Error(),
		)
		if len(started) == 0 {
			httputil.WriteError(w, err)
			return
		}
		// The sweep is best-effort: report what did start alongside the
		// failure, so partial progress is visible to the operator.
		httputil.WriteJSON(w, http.StatusMultiStatus, recoverResponse{
			Started: started,
			Error:   string(dErrors.CodeOf(err)),
		})
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, recoverResponse{Started: started})
}

// visibilityEventRequest is one service visibility change event.
type visibilityEventRequest struct {
	Service    visibleservices.VisibleService `json:"service"`
	WasVisible bool                           `json:"was_visible"`
	IsVisible  bool                           `json:"is_visible"`
}

func (h *Handler) handleVisibilityEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var event visibilityEventRequest
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	if event.Service.ServiceID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "service id is required"))
		return
	}

	action := visibleservices.ComputeAction(event.WasVisible, event.IsVisible)
	if err := h.updater.Update(ctx, event.Service, action); err != nil {
		h.logger.WarnContext(ctx, "visibility event rejected",
			"request_id", requestID,
			"service_id", event.Service.ServiceID,
			"action", string(action),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"action": string(action)})
}
