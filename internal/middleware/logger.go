package middleware

import "go.uber.org/zap"

// logger is the structured logger used by this package's middleware. It
// defaults to a no-op logger so tests and callers that never call
// SetLogger still run without panicking; SetLogger should be called once
// during application startup with the process-wide zap logger.
var logger = zap.NewNop()

// SetLogger installs the logger used by timeout/circuit-breaker/recovery
// middleware. Passing nil is a no-op.
func SetLogger(l *zap.Logger) {
	if l != nil {
		logger = l
	}
}
