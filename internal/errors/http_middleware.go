// Package errors provides HTTP middleware for error enrichment and handling.
package errors

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// errorCapturingResponseWriter wraps http.ResponseWriter so a recovered
// panic can still produce a clean response if nothing has been written yet.
type errorCapturingResponseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (w *errorCapturingResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
		w.ResponseWriter.WriteHeader(code)
	}
}

func (w *errorCapturingResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// RecoveryMiddleware recovers panics escaping a handler, logs them with the
// request's chi request-id, and writes the uniform error body instead of
// letting net/http close the connection bare.
func RecoveryMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &errorCapturingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			defer func() {
				if rec := recover(); rec != nil {
					requestID := middleware.GetReqID(r.Context())
					logger.Error("panic recovered",
						zap.String("request_id", requestID),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.Any("panic", rec),
						zap.String("stack", string(debug.Stack())),
					)
					oe := NewError(StoreError, fmt.Sprintf("internal error handling %s %s", r.Method, r.URL.Path)).
						WithSeverity(SeverityCritical).
						Build()
					writeJSONError(w, http.StatusInternalServerError, oe)
				}
			}()
			next.ServeHTTP(wrapped, r)
		})
	}
}

type ctxKey string

const errorCtxKey ctxKey = "orchestrator_error"

// WithErrorContext stashes an error on the request context so downstream
// middleware (logging, metrics) can inspect what a handler produced.
func WithErrorContext(ctx context.Context, err *OrchestratorError) context.Context {
	return context.WithValue(ctx, errorCtxKey, err)
}

// ErrorFromContext retrieves an error previously attached with
// WithErrorContext.
func ErrorFromContext(ctx context.Context) (*OrchestratorError, bool) {
	err, ok := ctx.Value(errorCtxKey).(*OrchestratorError)
	return err, ok
}
