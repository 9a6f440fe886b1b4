package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"sagaorchestrator/internal/breaker"
	pkgapi "sagaorchestrator/pkg/api"
)

// AdminHandler exposes introspection and manual override endpoints for the
// per-step-type circuit breakers the engine drives steps through.
type AdminHandler struct {
	breakers *breaker.Registry
}

// NewAdminHandler builds an AdminHandler. breakers may be nil, in which case
// both endpoints report an empty breaker set rather than panicking.
func NewAdminHandler(breakers *breaker.Registry) *AdminHandler {
	return &AdminHandler{breakers: breakers}
}

type breakerStatus struct {
	Service string `json:"service"`
	State   string `json:"state"`
	Counts  struct {
		Requests             uint32 `json:"requests"`
		TotalSuccesses       uint32 `json:"total_successes"`
		TotalFailures        uint32 `json:"total_failures"`
		ConsecutiveSuccesses uint32 `json:"consecutive_successes"`
		ConsecutiveFailures  uint32 `json:"consecutive_failures"`
	} `json:"counts"`
}

// ListBreakers handles GET /api/v1/admin/breakers.
func (h *AdminHandler) ListBreakers(w http.ResponseWriter, r *http.Request) {
	if h.breakers == nil {
		pkgapi.Success(w, http.StatusOK, []breakerStatus{})
		return
	}
	services := h.breakers.Services()
	statuses := make([]breakerStatus, len(services))
	for i, svc := range services {
		counts := h.breakers.Counts(svc)
		statuses[i] = breakerStatus{Service: svc, State: h.breakers.State(svc)}
		statuses[i].Counts.Requests = counts.Requests
		statuses[i].Counts.TotalSuccesses = counts.TotalSuccesses
		statuses[i].Counts.TotalFailures = counts.TotalFailures
		statuses[i].Counts.ConsecutiveSuccesses = counts.ConsecutiveSuccesses
		statuses[i].Counts.ConsecutiveFailures = counts.ConsecutiveFailures
	}
	pkgapi.Success(w, http.StatusOK, statuses)
}

// ResetBreaker handles POST /api/v1/admin/breakers/{service}/reset.
func (h *AdminHandler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	if h.breakers != nil {
		h.breakers.Reset(service)
	}
	pkgapi.Success(w, http.StatusOK, map[string]string{"service": service, "state": "reset"})
}
