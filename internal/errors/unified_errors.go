// Package errors provides the orchestrator's single error type. Every
// component that fails reports through OrchestratorError rather than ad-hoc
// fmt.Errorf strings, so the API boundary and the event bus can classify and
// log failures uniformly.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"time"
)

// ErrorKind classifies the reason a saga or step operation failed.
type ErrorKind string

const (
	StepTransient       ErrorKind = "STEP_TRANSIENT"
	StepTerminal        ErrorKind = "STEP_TERMINAL"
	StepSkipped         ErrorKind = "STEP_SKIPPED"
	StepTimeout         ErrorKind = "STEP_TIMEOUT"
	CircuitOpen         ErrorKind = "CIRCUIT_OPEN"
	RateLimited         ErrorKind = "RATE_LIMITED"
	UnsupportedStepType ErrorKind = "UNSUPPORTED_STEP_TYPE"
	SagaTimeout         ErrorKind = "SAGA_TIMEOUT"
	CompensationFailed  ErrorKind = "COMPENSATION_FAILED"
	StaleVersion        ErrorKind = "STALE_VERSION"
	StoreError          ErrorKind = "STORE_ERROR"
	Validation          ErrorKind = "VALIDATION"
)

// ErrorSeverity is attached to errors for dashboards.
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "LOW"
	SeverityMedium   ErrorSeverity = "MEDIUM"
	SeverityHigh     ErrorSeverity = "HIGH"
	SeverityCritical ErrorSeverity = "CRITICAL"
)

// defaultSeverity is the severity implied by a kind when the caller doesn't
// override it, per the table in the error-handling design.
var defaultSeverity = map[ErrorKind]ErrorSeverity{
	StepTransient:       SeverityMedium,
	StepTerminal:        SeverityHigh,
	StepSkipped:         SeverityLow,
	StepTimeout:         SeverityMedium,
	CircuitOpen:         SeverityMedium,
	RateLimited:         SeverityLow,
	UnsupportedStepType: SeverityHigh,
	SagaTimeout:         SeverityHigh,
	CompensationFailed:  SeverityCritical,
	StaleVersion:        SeverityMedium,
	StoreError:          SeverityCritical,
	Validation:          SeverityLow,
}

// OrchestratorError is the single error type used throughout the engine,
// compensation driver, store adapters, and API boundary.
type OrchestratorError struct {
	Kind      ErrorKind
	Message   string
	SagaID    string
	StepID    string
	Severity  ErrorSeverity
	Retryable bool
	Cause     error

	File string
	Line int
}

func (e *OrchestratorError) Error() string {
	if e.SagaID != "" && e.StepID != "" {
		return fmt.Sprintf("[%s] saga=%s step=%s: %s", e.Kind, e.SagaID, e.StepID, e.Message)
	}
	if e.SagaID != "" {
		return fmt.Sprintf("[%s] saga=%s: %s", e.Kind, e.SagaID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *OrchestratorError) Unwrap() error { return e.Cause }

// ErrorBuilder constructs an OrchestratorError fluently.
type ErrorBuilder struct {
	err *OrchestratorError
}

// NewError starts a builder for the given kind, pre-filling its default
// severity and retryability from the error-handling design table.
func NewError(kind ErrorKind, message string) *ErrorBuilder {
	_, file, line, _ := runtime.Caller(1)
	sev, ok := defaultSeverity[kind]
	if !ok {
		sev = SeverityMedium
	}
	return &ErrorBuilder{
		err: &OrchestratorError{
			Kind:      kind,
			Message:   message,
			Severity:  sev,
			Retryable: kind == StepTransient || kind == StepTimeout || kind == CircuitOpen || kind == StaleVersion || kind == StoreError,
			File:      file,
			Line:      line,
		},
	}
}

func (b *ErrorBuilder) WithSaga(sagaID string) *ErrorBuilder {
	b.err.SagaID = sagaID
	return b
}

func (b *ErrorBuilder) WithStep(stepID string) *ErrorBuilder {
	b.err.StepID = stepID
	return b
}

func (b *ErrorBuilder) WithSeverity(s ErrorSeverity) *ErrorBuilder {
	b.err.Severity = s
	return b
}

func (b *ErrorBuilder) WithRetryable(r bool) *ErrorBuilder {
	b.err.Retryable = r
	return b
}

func (b *ErrorBuilder) WithCause(cause error) *ErrorBuilder {
	b.err.Cause = cause
	return b
}

func (b *ErrorBuilder) Build() *OrchestratorError {
	return b.err
}

// IsKind reports whether err is an OrchestratorError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var oe *OrchestratorError
	if errors.As(err, &oe) {
		return oe.Kind == kind
	}
	return false
}

// IsRetryable reports whether err should be retried in place.
func IsRetryable(err error) bool {
	var oe *OrchestratorError
	if errors.As(err, &oe) {
		return oe.Retryable
	}
	return false
}

// Severity returns the severity of err, defaulting to MEDIUM for errors
// that aren't OrchestratorError.
func Severity(err error) ErrorSeverity {
	var oe *OrchestratorError
	if errors.As(err, &oe) {
		return oe.Severity
	}
	return SeverityMedium
}

// Wrap preserves an existing OrchestratorError's classification while
// attaching additional saga/step context, or creates a STORE_ERROR wrapper
// for an unclassified cause.
func Wrap(err error, sagaID string) *OrchestratorError {
	if err == nil {
		return nil
	}
	var existing *OrchestratorError
	if errors.As(err, &existing) {
		wrapped := *existing
		if wrapped.SagaID == "" {
			wrapped.SagaID = sagaID
		}
		return &wrapped
	}
	_, file, line, _ := runtime.Caller(1)
	return &OrchestratorError{
		Kind:      StoreError,
		Message:   err.Error(),
		SagaID:    sagaID,
		Severity:  SeverityCritical,
		Retryable: true,
		Cause:     err,
		File:      file,
		Line:      line,
	}
}

// RetryAfter is a convenience used by callers that want to surface a
// suggested backoff alongside a transient error; it does not affect
// classification.
func RetryAfter(err *OrchestratorError, d time.Duration) *OrchestratorError {
	err.Retryable = true
	return err
}
