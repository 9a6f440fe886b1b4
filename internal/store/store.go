// Package store defines the persistence boundary for sagas: the SagaStore
// port, and the optimistic-concurrency contract every implementation must
// honor (§3 invariant 7, §6 persisted layout).
package store

import (
	"context"

	"sagaorchestrator/internal/saga"
)

// SagaStore persists Saga aggregates with optimistic concurrency control.
// Save must fail with errors.StaleVersion when the stored version does not
// match the version the caller last read.
type SagaStore interface {
	// Save writes s, requiring the currently-stored version to equal
	// s.Version - 1 (or, for a new saga, that no row exists). On success the
	// implementation must have durably incremented the row's version.
	Save(ctx context.Context, s *saga.Saga) error

	// Get loads a saga by ID. Returns errors.StoreError wrapping
	// ErrNotFound-equivalent semantics when absent (checked with IsNotFound).
	Get(ctx context.Context, sagaID string) (*saga.Saga, error)

	// Delete removes a saga row outright (administrative use only; normal
	// lifecycle never deletes a saga — it reaches a terminal status).
	Delete(ctx context.Context, sagaID string) error

	// ListPending returns sagas in CREATED, RUNNING, RETRYING, PAUSED or
	// COMPENSATING status, for the scheduler's recovery sweep (§4.7).
	ListPending(ctx context.Context, limit int) ([]*saga.Saga, error)

	// ListByStatus returns sagas in a specific status, for operator queries
	// and the REST listing endpoint (§6).
	ListByStatus(ctx context.Context, status saga.Status, limit int) ([]*saga.Saga, error)

	// ListByCorrelation returns sagas sharing a correlation_id, for tracing a
	// business transaction across the sagas it spawned (§6).
	ListByCorrelation(ctx context.Context, correlationID string, limit int) ([]*saga.Saga, error)
}

// NotFoundError marks a Get/Delete miss distinctly from a transport or
// encoding failure, so callers can branch without string matching.
type NotFoundError struct {
	SagaID string
}

func (e *NotFoundError) Error() string {
	return "saga not found: " + e.SagaID
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}
