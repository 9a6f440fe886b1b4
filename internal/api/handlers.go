package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"sagaorchestrator/internal/config"
	orchestratorerrors "sagaorchestrator/internal/errors"
	"sagaorchestrator/internal/metrics"
	"sagaorchestrator/internal/orchestrator"
	"sagaorchestrator/internal/saga"
	pkgapi "sagaorchestrator/pkg/api"
)

// Handlers holds the dependencies every saga endpoint calls into.
type Handlers struct {
	orchestrator *orchestrator.Orchestrator
	metrics      *metrics.Registry
	errors       *orchestratorerrors.ErrorHandler
	validate     *validator.Validate
	logger       *orchestratorerrors.StructuredLogger
}

// NewHandlers builds the handler set mounted by NewRouter.
func NewHandlers(o *orchestrator.Orchestrator, m *metrics.Registry, eh *orchestratorerrors.ErrorHandler, logger *zap.Logger) *Handlers {
	return &Handlers{
		orchestrator: o,
		metrics:      m,
		errors:       eh,
		validate:     validator.New(),
		logger:       &orchestratorerrors.StructuredLogger{Logger: logger},
	}
}

// CreateSaga handles POST /api/v1/sagas.
func (h *Handlers) CreateSaga(w http.ResponseWriter, r *http.Request) {
	var req pkgapi.CreateSagaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errors.HandleHTTPError(w, r, orchestratorerrors.NewError(orchestratorerrors.Validation, "invalid request body: "+err.Error()).Build())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.errors.HandleHTTPError(w, r, orchestratorerrors.NewError(orchestratorerrors.Validation, "validation error: "+err.Error()).Build())
		return
	}

	opts := orchestrator.CreateOptions{
		CorrelationID: req.CorrelationID,
		InputData:     req.InputData,
		TimeoutMs:     req.TimeoutMs,
		Priority:      req.Priority,
		Async:         req.Async,
	}
	s, err := h.orchestrator.Create(r.Context(), req.Name, stepsFromRequest(req.Steps), opts)
	if err != nil {
		h.errors.HandleHTTPError(w, r, err)
		return
	}
	pkgapi.Success(w, http.StatusCreated, sagaToResponse(s))
}

// GetSaga handles GET /api/v1/sagas/{sagaId}.
func (h *Handlers) GetSaga(w http.ResponseWriter, r *http.Request) {
	sagaID := chi.URLParam(r, "sagaId")
	s, err := h.orchestrator.Get(r.Context(), sagaID)
	if err != nil {
		h.errors.HandleHTTPError(w, r, err)
		return
	}
	pkgapi.Success(w, http.StatusOK, sagaToResponse(s))
}

// ListSagas handles GET /api/v1/sagas?status=...&correlation_id=...
func (h *Handlers) ListSagas(w http.ResponseWriter, r *http.Request) {
	flags := config.GetFeatureFlags(config.GetAPIVersionConfig().CurrentVersion)
	limit := flags.DefaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= flags.MaxPageSize {
			limit = n
		}
	}

	if correlationID := r.URL.Query().Get("correlation_id"); correlationID != "" {
		sagas, err := h.orchestrator.ListByCorrelation(r.Context(), correlationID, limit)
		if err != nil {
			h.errors.HandleHTTPError(w, r, err)
			return
		}
		pkgapi.Success(w, http.StatusOK, sagasToListResponse(sagas))
		return
	}

	status := saga.Status(r.URL.Query().Get("status"))
	if status == "" {
		status = saga.StatusRunning
	}
	sagas, err := h.orchestrator.ListByStatus(r.Context(), status, limit)
	if err != nil {
		h.errors.HandleHTTPError(w, r, err)
		return
	}
	pkgapi.Success(w, http.StatusOK, sagasToListResponse(sagas))
}

// ExecuteSaga handles POST /api/v1/sagas/{sagaId}/execute.
func (h *Handlers) ExecuteSaga(w http.ResponseWriter, r *http.Request) {
	sagaID := chi.URLParam(r, "sagaId")
	if err := h.orchestrator.Execute(r.Context(), sagaID); err != nil {
		h.errors.HandleHTTPError(w, r, err)
		return
	}
	s, err := h.orchestrator.Get(r.Context(), sagaID)
	if err != nil {
		h.errors.HandleHTTPError(w, r, err)
		return
	}
	pkgapi.Success(w, http.StatusOK, sagaToResponse(s))
}

// RetrySaga handles POST /api/v1/sagas/{sagaId}/retry.
func (h *Handlers) RetrySaga(w http.ResponseWriter, r *http.Request) {
	sagaID := chi.URLParam(r, "sagaId")
	s, err := h.orchestrator.Retry(r.Context(), sagaID)
	if err != nil {
		h.errors.HandleHTTPError(w, r, err)
		return
	}
	orchestratorerrors.AuditLog(r.Context(), h.logger, "saga_retry", map[string]interface{}{"saga_id": sagaID})
	pkgapi.Success(w, http.StatusOK, sagaToResponse(s))
}

// CompensateSaga handles POST /api/v1/sagas/{sagaId}/compensate.
func (h *Handlers) CompensateSaga(w http.ResponseWriter, r *http.Request) {
	sagaID := chi.URLParam(r, "sagaId")
	s, err := h.orchestrator.Compensate(r.Context(), sagaID)
	if err != nil {
		h.errors.HandleHTTPError(w, r, err)
		return
	}
	orchestratorerrors.AuditLog(r.Context(), h.logger, "saga_compensate", map[string]interface{}{"saga_id": sagaID})
	pkgapi.Success(w, http.StatusOK, sagaToResponse(s))
}

// Metrics handles GET /api/v1/metrics and /metrics.
func (h *Handlers) Metrics(w http.ResponseWriter, r *http.Request) {
	pkgapi.Success(w, http.StatusOK, h.metrics.Snapshot())
}
