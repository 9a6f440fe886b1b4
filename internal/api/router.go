package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"sagaorchestrator/internal/breaker"
	"sagaorchestrator/internal/config"
	orchestratorerrors "sagaorchestrator/internal/errors"
	appmiddleware "sagaorchestrator/internal/middleware"
	"sagaorchestrator/internal/metrics"
	"sagaorchestrator/internal/orchestrator"
)

// Router assembles the saga orchestrator's REST surface.
type Router struct {
	handlers       *Handlers
	adminHandler   *AdminHandler
	logger         *zap.Logger
	requestTimeout time.Duration
}

// NewRouter builds a Router wired to the orchestrator facade, the runtime
// metrics registry, and the circuit breaker registry the engine shares.
// requestTimeout bounds every request's context (config.Server.RequestTimeout);
// zero disables the per-request deadline.
func NewRouter(o *orchestrator.Orchestrator, m *metrics.Registry, breakers *breaker.Registry, requestTimeout time.Duration, logger *zap.Logger) *Router {
	eh := orchestratorerrors.NewErrorHandler(orchestratorerrors.ErrorHandlerConfig{
		Logger:      logger,
		EnableDebug: false,
	})
	appmiddleware.SetLogger(logger)
	return &Router{
		handlers:       NewHandlers(o, m, eh, logger),
		adminHandler:   NewAdminHandler(breakers),
		logger:         logger,
		requestTimeout: requestTimeout,
	}
}

// Setup configures every route and middleware layer and returns the handler
// an http.Server mounts.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(orchestratorerrors.RecoveryMiddleware(rt.logger))
	structuredLogger := &orchestratorerrors.StructuredLogger{Logger: rt.logger}
	r.Use(orchestratorerrors.CorrelationIDMiddleware(structuredLogger))
	r.Use(orchestratorerrors.RequestLoggingMiddleware(structuredLogger))
	r.Use(versionHeaders)
	if rt.requestTimeout > 0 {
		r.Use(appmiddleware.Timeout(rt.requestTimeout))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Correlation-ID"},
		ExposedHeaders:   []string{"X-Correlation-ID", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthCheck)
	r.Get("/metrics", rt.handlers.Metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/sagas", func(r chi.Router) {
			r.Post("/", rt.handlers.CreateSaga)
			r.Get("/", rt.handlers.ListSagas)
			r.Get("/{sagaId}", rt.handlers.GetSaga)
			r.Post("/{sagaId}/execute", rt.handlers.ExecuteSaga)
			r.Post("/{sagaId}/retry", rt.handlers.RetrySaga)
			r.Post("/{sagaId}/compensate", rt.handlers.CompensateSaga)
		})

		r.Get("/metrics", rt.handlers.Metrics)

		r.Route("/admin/breakers", func(r chi.Router) {
			r.Get("/", rt.adminHandler.ListBreakers)
			r.Post("/{service}/reset", rt.adminHandler.ResetBreaker)
		})
	})

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// versionHeaders advertises the API version surface the orchestrator
// currently serves, per config.GetAPIVersionConfig's supported-version list.
func versionHeaders(next http.Handler) http.Handler {
	versions := config.GetAPIVersionConfig()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-API-Version", versions.CurrentVersion)
		w.Header().Set("X-API-Supported-Versions", joinVersions(versions.GetSupportedVersions()))
		next.ServeHTTP(w, r)
	})
}

func joinVersions(versions []string) string {
	out := ""
	for i, v := range versions {
		if i > 0 {
			out += ","
		}
		out += v
	}
	return out
}
