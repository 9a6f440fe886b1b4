// Package orchestrator is the facade external callers (the REST boundary,
// the scheduler, cmd/worker) drive a saga through (§4.9): creation, the
// synchronous and asynchronous execute paths, and the administrative
// retry/compensate operations.
package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sagaorchestrator/internal/concurrency"
	"sagaorchestrator/internal/engine"
	orcherrors "sagaorchestrator/internal/errors"
	"sagaorchestrator/internal/infrastructure/cache"
	"sagaorchestrator/internal/saga"
	"sagaorchestrator/internal/store"
)

// Orchestrator wires the engine and store into the operations the outside
// world calls. It never drives a saga's steps itself; Engine.Advance owns
// that, one saga at a time, with Orchestrator only responsible for the
// first persist (so Engine.Advance always has a row to read version from)
// and for routing admin requests to the right state transition.
type Orchestrator struct {
	store    store.SagaStore
	engine   *engine.Engine
	pools    *concurrency.Group
	cache    *cache.MemoryCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// New builds an Orchestrator. pools may be nil, in which case ExecuteAsync
// runs Execute inline instead of handing it to a worker pool. sagaCache may
// also be nil, in which case Get always reads through to the store; when
// set, it backs Get with the read-through cache described by the config
// package's Cache section (maxItems/TTL), keyed by saga ID.
func New(st store.SagaStore, eng *engine.Engine, pools *concurrency.Group, sagaCache *cache.MemoryCache, cacheTTL time.Duration, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{store: st, engine: eng, pools: pools, cache: sagaCache, cacheTTL: cacheTTL, logger: logger}
}

// CreateOptions carries the optional fields a caller may set on a new saga,
// mirroring CreateSagaRequest at the REST boundary (§6) without importing
// pkg/api from internal code.
type CreateOptions struct {
	CorrelationID string
	InputData     map[string]interface{}
	TimeoutMs     int
	Priority      int
	Async         bool
}

// Create assigns a new saga ID, persists the saga in CREATED status at
// version 0, and — unless opts.Async is set — immediately drives it via
// Execute. The initial Save happens here, outside the engine, because
// Engine.Advance only ever saves a saga it already read back with a known
// version; a saga's very first row has no such prior read to build on.
func (o *Orchestrator) Create(ctx context.Context, name string, steps []saga.Step, opts CreateOptions) (*saga.Saga, error) {
	sagaID := uuid.New().String()
	for i := range steps {
		if steps[i].StepID == "" {
			steps[i].StepID = uuid.New().String()
		}
	}

	s := saga.New(sagaID, name, steps, opts.InputData)
	s.CorrelationID = opts.CorrelationID
	s.Priority = opts.Priority
	if opts.TimeoutMs > 0 {
		s.TimeoutMs = opts.TimeoutMs
	}
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now

	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := o.store.Save(ctx, s); err != nil {
		return nil, orcherrors.Wrap(err, sagaID)
	}

	if opts.Async {
		o.submitExecute(sagaID)
		return s, nil
	}

	execErr := o.Execute(ctx, sagaID)
	final, getErr := o.Get(ctx, sagaID)
	if getErr != nil {
		return nil, getErr
	}
	return final, execErr
}

// Execute loads s and drives it to its next terminal status via
// Engine.Advance. Calling it on an already-terminal saga is a no-op.
func (o *Orchestrator) Execute(ctx context.Context, sagaID string) error {
	s, err := o.store.Get(ctx, sagaID)
	if err != nil {
		return mapNotFound(err, sagaID)
	}
	if s.Status.IsTerminal() {
		return nil
	}
	return o.engine.Advance(ctx, s)
}

// ExecuteAsync enqueues Execute onto the saga-exec pool, or runs it inline
// if no pool was configured.
func (o *Orchestrator) ExecuteAsync(sagaID string) {
	o.submitExecute(sagaID)
}

func (o *Orchestrator) submitExecute(sagaID string) {
	run := func(ctx context.Context) {
		if err := o.Execute(ctx, sagaID); err != nil {
			o.logger.Error("async saga execution failed", zap.String("saga_id", sagaID), zap.Error(err))
		}
	}
	if o.pools == nil || o.pools.SagaExec == nil {
		run(context.Background())
		return
	}
	if err := o.pools.SagaExec.Submit(run); err != nil {
		o.logger.Error("failed to submit saga for async execution", zap.String("saga_id", sagaID), zap.Error(err))
	}
}

// Retry re-drives a FAILED saga from its current step, provided it has not
// exhausted its saga-level retry budget. It is an administrative override:
// ordinary step-level retries are the engine's own concern and never reach
// this path.
func (o *Orchestrator) Retry(ctx context.Context, sagaID string) (*saga.Saga, error) {
	s, err := o.store.Get(ctx, sagaID)
	if err != nil {
		return nil, mapNotFound(err, sagaID)
	}
	if s.Status != saga.StatusFailed && s.Status != saga.StatusTimeout {
		return nil, orcherrors.NewError(orcherrors.Validation, "saga is not in a retryable status").
			WithSaga(sagaID).Build()
	}
	if s.RetryCount >= s.MaxRetries {
		return nil, orcherrors.NewError(orcherrors.Validation, "saga has exhausted its retry budget").
			WithSaga(sagaID).Build()
	}

	s.RetryCount = 0
	s.Status = saga.StatusRunning
	s.ErrorMessage = ""
	s.ErrorTrace = ""
	s.CompletedAt = nil
	if step := s.CurrentStep(); step != nil {
		step.Status = saga.StepStatusCreated
		step.ErrorMessage = ""
		step.ErrorTrace = ""
		step.RetryCount = 0
	}
	s.Touch(time.Now())
	s.Version++
	if err := o.store.Save(ctx, s); err != nil {
		s.Version--
		return nil, orcherrors.Wrap(err, sagaID)
	}
	o.invalidateCache(ctx, sagaID)

	err = o.engine.Advance(ctx, s)
	return s, err
}

// Compensate forces a FAILED or RUNNING saga into compensation regardless
// of whether the engine would have reached that state on its own — the
// administrative escape hatch for "stop forward progress and undo what
// happened so far" (§4.9).
func (o *Orchestrator) Compensate(ctx context.Context, sagaID string) (*saga.Saga, error) {
	s, err := o.store.Get(ctx, sagaID)
	if err != nil {
		return nil, mapNotFound(err, sagaID)
	}
	if s.Status.IsTerminal() {
		return nil, orcherrors.NewError(orcherrors.Validation, "saga is already in a terminal status").
			WithSaga(sagaID).Build()
	}

	now := time.Now()
	s.Status = saga.StatusCompensating
	s.Touch(now)
	s.Version++
	if err := o.store.Save(ctx, s); err != nil {
		s.Version--
		return nil, orcherrors.Wrap(err, sagaID)
	}
	o.invalidateCache(ctx, sagaID)

	err = o.engine.Advance(ctx, s)
	return s, err
}

// Get loads a saga by ID, serving from the read-through cache when one is
// configured. A cache miss (including no cache configured) falls through
// to the store and, on a hit there, populates the cache for next time.
func (o *Orchestrator) Get(ctx context.Context, sagaID string) (*saga.Saga, error) {
	if o.cache != nil {
		if raw, ok, err := o.cache.Get(ctx, sagaID); err == nil && ok {
			var s saga.Saga
			if err := json.Unmarshal(raw, &s); err == nil {
				return &s, nil
			}
		}
	}

	s, err := o.store.Get(ctx, sagaID)
	if err != nil {
		return nil, mapNotFound(err, sagaID)
	}
	o.cacheSaga(ctx, s)
	return s, nil
}

// cacheSaga populates the read-through cache, best effort: a marshal or
// cache-set failure just means the next Get falls through to the store
// again, never a caller-visible error.
func (o *Orchestrator) cacheSaga(ctx context.Context, s *saga.Saga) {
	if o.cache == nil {
		return
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	_ = o.cache.Set(ctx, s.SagaID, raw, o.cacheTTL)
}

// invalidateCache drops sagaID from the read-through cache after an
// administrative write, so the next Get reflects it immediately instead of
// waiting out the TTL.
func (o *Orchestrator) invalidateCache(ctx context.Context, sagaID string) {
	if o.cache == nil {
		return
	}
	_ = o.cache.Delete(ctx, sagaID)
}

// ListByStatus returns sagas in a given status, capped at limit.
func (o *Orchestrator) ListByStatus(ctx context.Context, status saga.Status, limit int) ([]*saga.Saga, error) {
	sagas, err := o.store.ListByStatus(ctx, status, limit)
	if err != nil {
		return nil, orcherrors.Wrap(err, "")
	}
	return sagas, nil
}

// ListByCorrelation returns every saga sharing a correlation ID, capped at
// limit.
func (o *Orchestrator) ListByCorrelation(ctx context.Context, correlationID string, limit int) ([]*saga.Saga, error) {
	sagas, err := o.store.ListByCorrelation(ctx, correlationID, limit)
	if err != nil {
		return nil, orcherrors.Wrap(err, "")
	}
	return sagas, nil
}

func mapNotFound(err error, sagaID string) error {
	if store.IsNotFound(err) {
		return orcherrors.NewError(orcherrors.Validation, "saga not found").WithSaga(sagaID).Build()
	}
	return orcherrors.Wrap(err, sagaID)
}
