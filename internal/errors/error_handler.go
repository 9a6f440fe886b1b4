// Package errors provides unified error handling for HTTP responses and logging.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// MetricsClient defines the interface for error metrics collection.
type MetricsClient interface {
	IncrementCounter(name string, tags map[string]string)
	RecordDuration(name string, duration time.Duration, tags map[string]string)
}

// ErrorHandler converts OrchestratorErrors into the uniform REST error body
// and structured log entries, in one place rather than scattered per-handler.
type ErrorHandler struct {
	logger        *zap.Logger
	enableDebug   bool
	enableMetrics bool
	metricsClient MetricsClient
}

type ErrorHandlerConfig struct {
	Logger        *zap.Logger
	EnableDebug   bool
	EnableMetrics bool
	MetricsClient MetricsClient
}

func NewErrorHandler(config ErrorHandlerConfig) *ErrorHandler {
	return &ErrorHandler{
		logger:        config.Logger,
		enableDebug:   config.EnableDebug,
		enableMetrics: config.EnableMetrics,
		metricsClient: config.MetricsClient,
	}
}

// ErrorBody is the uniform error response shape from §6.
type ErrorBody struct {
	Timestamp string `json:"timestamp"`
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	SagaID    string `json:"sagaId,omitempty"`
	StepID    string `json:"stepId,omitempty"`
	ErrorCode string `json:"errorCode"`
	Severity  string `json:"severity"`
}

// HandleHTTPError logs err, records metrics, and writes the uniform error
// body with the status code appropriate to its kind.
func (h *ErrorHandler) HandleHTTPError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	oe := h.ensure(err)
	h.logError(oe)
	h.collectMetrics(oe)
	writeJSONError(w, h.statusFor(oe.Kind), oe)
}

func (h *ErrorHandler) ensure(err error) *OrchestratorError {
	var oe *OrchestratorError
	if errors.As(err, &oe) {
		return oe
	}
	return Wrap(err, "")
}

func (h *ErrorHandler) logError(err *OrchestratorError) {
	if h.logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("error_kind", string(err.Kind)),
		zap.String("severity", string(err.Severity)),
		zap.Bool("retryable", err.Retryable),
	}
	if err.SagaID != "" {
		fields = append(fields, zap.String("saga_id", err.SagaID))
	}
	if err.StepID != "" {
		fields = append(fields, zap.String("step_id", err.StepID))
	}
	if err.Cause != nil {
		fields = append(fields, zap.NamedError("cause", err.Cause))
	}
	if h.enableDebug && err.File != "" {
		fields = append(fields, zap.String("file", err.File), zap.Int("line", err.Line))
	}
	switch err.Severity {
	case SeverityLow:
		h.logger.Info(err.Message, fields...)
	case SeverityMedium:
		h.logger.Warn(err.Message, fields...)
	default:
		h.logger.Error(err.Message, fields...)
	}
}

func (h *ErrorHandler) collectMetrics(err *OrchestratorError) {
	if !h.enableMetrics || h.metricsClient == nil {
		return
	}
	h.metricsClient.IncrementCounter("errors_total", map[string]string{
		"kind":     string(err.Kind),
		"severity": string(err.Severity),
	})
}

// statusFor maps an error kind to the HTTP status the REST boundary should
// return; only VALIDATION and RATE_LIMITED are meant to reach external
// callers per the propagation policy, but this maps every kind defensively.
func (h *ErrorHandler) statusFor(kind ErrorKind) int {
	switch kind {
	case Validation:
		return http.StatusBadRequest
	case RateLimited:
		return http.StatusTooManyRequests
	case CircuitOpen:
		return http.StatusServiceUnavailable
	case StaleVersion:
		return http.StatusConflict
	case UnsupportedStepType:
		return http.StatusUnprocessableEntity
	case StoreError, CompensationFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeJSONError(w http.ResponseWriter, status int, err *OrchestratorError) {
	body := ErrorBody{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Status:    status,
		Error:     string(err.Kind),
		Message:   err.Message,
		SagaID:    err.SagaID,
		StepID:    err.StepID,
		ErrorCode: string(err.Kind),
		Severity:  string(err.Severity),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"timestamp":%q,"status":%d,"error":%q,"message":%q,"sagaId":%q,"stepId":%q,"errorCode":%q,"severity":%q}`,
		body.Timestamp, body.Status, body.Error, body.Message, body.SagaID, body.StepID, body.ErrorCode, body.Severity)
}
