package middleware

import (
	"context"
	"net/http"
	"time"

	"sagaorchestrator/pkg/api"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Timeout bounds a request's context to timeout and fails it with 408 if
// the handler hasn't responded by then. The handler keeps running in its
// goroutine after the deadline (net/http gives no way to abort it), so a
// handler that ignores ctx.Done() can still leak past the deadline; it's
// on handlers downstream to respect the context the way the engine's own
// step dispatch does.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			r = r.WithContext(ctx)

			done := make(chan struct{})
			go func() {
				defer func() {
					if err := recover(); err != nil {
						logger.Error("panic in timeout handler",
							zap.String("request_id", chimiddleware.GetReqID(r.Context())),
							zap.Any("panic", err))
					}
				}()
				next.ServeHTTP(w, r)
				close(done)
			}()

			select {
			case <-done:
				return
			case <-ctx.Done():
				logger.Warn("request timeout",
					zap.String("request_id", chimiddleware.GetReqID(r.Context())),
					zap.Error(ctx.Err()))
				if w.Header().Get("Content-Type") == "" {
					api.Error(w, http.StatusRequestTimeout, "request timeout")
				}
				return
			}
		})
	}
}
