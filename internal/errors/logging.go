// Package errors provides structured logging utilities for error handling.
package errors

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// StructuredLogger wraps zap logger with context-aware functionality.
type StructuredLogger struct {
	*zap.Logger
}

// NewStructuredLogger builds a zap logger configured for the given
// environment ("production" or anything else for development).
func NewStructuredLogger(environment string) (*StructuredLogger, error) {
	var config zap.Config

	if environment == "production" {
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		config.Sampling = &zap.SamplingConfig{Initial: 100, Thereafter: 100}
	} else {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	logger, err := config.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel), zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &StructuredLogger{logger}, nil
}

type correlationIDKey struct{}

// WithContext returns a logger enriched with the request/correlation id
// carried on ctx, if any.
func (l *StructuredLogger) WithContext(ctx context.Context) *StructuredLogger {
	var fields []zap.Field
	if cid, ok := ctx.Value(correlationIDKey{}).(string); ok && cid != "" {
		fields = append(fields, zap.String("correlation_id", cid))
	}
	if requestID := middleware.GetReqID(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	return &StructuredLogger{l.Logger.With(fields...)}
}

// LogError logs err at the severity carried by its OrchestratorError
// classification, or at Error level for unclassified errors.
func (l *StructuredLogger) LogError(err error, message string, fields ...zap.Field) {
	if err == nil {
		return
	}
	var oe *OrchestratorError
	if errors.As(err, &oe) {
		fields = append(fields,
			zap.String("error_kind", string(oe.Kind)),
			zap.String("error_severity", string(oe.Severity)),
			zap.Bool("retryable", oe.Retryable),
		)
		if oe.SagaID != "" {
			fields = append(fields, zap.String("saga_id", oe.SagaID))
		}
		if oe.StepID != "" {
			fields = append(fields, zap.String("step_id", oe.StepID))
		}
		if oe.Cause != nil {
			fields = append(fields, zap.Error(oe.Cause))
		}
		l.Log(logLevel(oe.Severity), message, fields...)
		return
	}
	fields = append(fields, zap.Error(err))
	l.Error(message, fields...)
}

func logLevel(severity ErrorSeverity) zapcore.Level {
	switch severity {
	case SeverityLow:
		return zapcore.InfoLevel
	case SeverityMedium:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// CorrelationIDMiddleware assigns (or forwards) an X-Correlation-ID header
// and threads it through the request context for downstream logging.
func CorrelationIDMiddleware(logger *StructuredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := r.Header.Get("X-Correlation-ID")
			if correlationID == "" {
				correlationID = uuid.New().String()
			}
			ctx := context.WithValue(r.Context(), correlationIDKey{}, correlationID)
			w.Header().Set("X-Correlation-ID", correlationID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLoggingMiddleware logs every HTTP request with method, path,
// status, duration.
func RequestLoggingMiddleware(logger *StructuredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(wrapped, r)
			duration := time.Since(start)

			contextLogger := logger.WithContext(r.Context())
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wrapped.Status()),
				zap.Int("bytes_written", wrapped.BytesWritten()),
				zap.Duration("duration", duration),
				zap.String("remote_addr", r.RemoteAddr),
			}
			switch {
			case wrapped.Status() >= 500:
				contextLogger.Error("request failed", fields...)
			case wrapped.Status() >= 400:
				contextLogger.Warn("request client error", fields...)
			default:
				contextLogger.Info("request completed", fields...)
			}
		})
	}
}

// LogOperation times fn and logs its outcome under the given operation name,
// used by the store and engine for consistent operation-level logging.
func LogOperation(ctx context.Context, logger *StructuredLogger, operation string, fn func() error) error {
	contextLogger := logger.WithContext(ctx)
	start := time.Now()
	err := fn()
	duration := time.Since(start)

	if err != nil {
		contextLogger.LogError(err, "operation failed",
			zap.String("operation", operation),
			zap.Duration("duration", duration),
		)
	} else {
		contextLogger.Debug("operation completed",
			zap.String("operation", operation),
			zap.Duration("duration", duration),
		)
	}
	return err
}

// AuditLog records an administrative action (retry, compensate, reset)
// for traceability.
func AuditLog(ctx context.Context, logger *StructuredLogger, event string, details map[string]interface{}) {
	contextLogger := logger.WithContext(ctx)
	fields := []zap.Field{
		zap.String("audit_event", event),
		zap.Time("timestamp", time.Now().UTC()),
	}
	for k, v := range details {
		fields = append(fields, zap.Any(k, v))
	}
	contextLogger.Info("audit event", fields...)
}
