// Package engine implements the saga state machine (§4.8): the single
// advancement algorithm that drives one saga from CREATED through its
// steps to a terminal status, dispatching through the executor registry,
// circuit breaker and rate limiter, and handing off to the compensation
// driver on a required step's exhausted failure or a saga-level timeout.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sagaorchestrator/internal/breaker"
	"sagaorchestrator/internal/compensation"
	orcherrors "sagaorchestrator/internal/errors"
	"sagaorchestrator/internal/eventbus"
	"sagaorchestrator/internal/executor"
	"sagaorchestrator/internal/metrics"
	"sagaorchestrator/internal/saga"
	"sagaorchestrator/internal/store"
)

// Engine drives one saga at a time through the advancement algorithm.
// Cross-saga concurrency is the caller's responsibility (the worker pools
// in internal/concurrency); within a single Advance call, steps run
// strictly sequentially by design.
type Engine struct {
	store       store.SagaStore
	registry    *executor.Registry
	breakers    *breaker.Registry
	compensator *compensation.Driver
	events      eventbus.EventBus
	metrics     *metrics.Registry
	logger      *zap.Logger
	limiter     limiter
}

// limiter is the narrow slice of ratelimit.Composite the engine needs,
// kept as an interface so tests can stub it without pulling in real
// windows.
type limiter interface {
	Allow(ctx context.Context, key string) error
}

// New builds an Engine from its collaborators. events and limiterImpl may
// be nil (eventbus.NoOp and an always-allow limiter are substituted).
func New(
	st store.SagaStore,
	registry *executor.Registry,
	breakers *breaker.Registry,
	compensator *compensation.Driver,
	events eventbus.EventBus,
	metricsReg *metrics.Registry,
	limiterImpl limiter,
	logger *zap.Logger,
) *Engine {
	if events == nil {
		events = eventbus.NoOp{}
	}
	if limiterImpl == nil {
		limiterImpl = allowAll{}
	}
	return &Engine{
		store:       st,
		registry:    registry,
		breakers:    breakers,
		compensator: compensator,
		events:      events,
		metrics:     metricsReg,
		limiter:     limiterImpl,
		logger:      logger,
	}
}

type allowAll struct{}

func (allowAll) Allow(ctx context.Context, key string) error { return nil }

// Advance drives s forward until it reaches a terminal status, blocks on a
// cancelled context, or a step's failure cascades into a saga-level error.
// Every transition is persisted through e.store before being observed by
// any other goroutine (read-your-writes, per §5's ordering guarantee), and
// every event is published only after its triggering persist succeeds.
func (e *Engine) Advance(ctx context.Context, s *saga.Saga) error {
	for {
		if s.Status.IsTerminal() {
			return nil
		}

		if timedOut(s) {
			return e.timeoutSaga(ctx, s)
		}

		if s.Status == saga.StatusCompensating {
			return e.runCompensation(ctx, s)
		}

		if s.Status == saga.StatusCreated {
			if err := e.startSaga(ctx, s); err != nil {
				return err
			}
		}

		step := s.CurrentStep()
		if step == nil {
			return e.completeSaga(ctx, s)
		}

		stepCtx, cancel := e.boundToSagaDeadline(ctx, s)
		err := e.runStep(ctx, stepCtx, s, step)
		cancel()
		if err != nil {
			return err
		}
	}
}

// boundToSagaDeadline derives a context that also expires at the saga's
// wall-clock budget, so a single long-running step can't outlive it
// (§5: "abandons current step as TIMEOUT mid-step").
func (e *Engine) boundToSagaDeadline(ctx context.Context, s *saga.Saga) (context.Context, context.CancelFunc) {
	if s.StartedAt == nil || s.TimeoutMs <= 0 {
		return ctx, func() {}
	}
	deadline := s.StartedAt.Add(time.Duration(s.TimeoutMs) * time.Millisecond)
	return context.WithDeadline(ctx, deadline)
}

func timedOut(s *saga.Saga) bool {
	if s.StartedAt == nil || s.TimeoutMs <= 0 {
		return false
	}
	return time.Since(*s.StartedAt) > time.Duration(s.TimeoutMs)*time.Millisecond
}

func (e *Engine) startSaga(ctx context.Context, s *saga.Saga) error {
	now := time.Now()
	s.Status = saga.StatusRunning
	s.StartedAt = &now
	s.Touch(now)
	if err := e.save(ctx, s); err != nil {
		return err
	}
	e.metrics.RecordSagaStarted()
	e.publishSaga(ctx, eventbus.SagaStarted, s)
	return nil
}

func (e *Engine) completeSaga(ctx context.Context, s *saga.Saga) error {
	now := time.Now()
	s.Status = saga.StatusCompleted
	s.CompletedAt = &now
	s.RetryCount = 0
	s.Touch(now)
	if err := e.save(ctx, s); err != nil {
		return err
	}
	e.publishSaga(ctx, eventbus.SagaCompleted, s)
	e.metrics.RecordSagaCompleted("completed", sagaDuration(s, now))
	return nil
}

// runStep drives a single step through its retry loop until it reaches a
// terminal outcome for this Advance call: COMPLETED (index advances,
// caller's Advance loop continues), non-required FAILED (index advances,
// saga stays RUNNING), or required FAILED (saga moves to COMPENSATING and
// this returns the compensation outcome as an error).
func (e *Engine) runStep(ctx, stepCtx context.Context, s *saga.Saga, step *saga.Step) error {
	for {
		now := time.Now()
		step.Status = saga.StepStatusRunning
		step.StartedAt = &now
		s.Touch(now)
		if err := e.save(ctx, s); err != nil {
			return err
		}
		e.publishStep(ctx, eventbus.StepStarted, s, step)

		result := e.dispatch(stepCtx, s, step)

		completedAt := time.Now()
		step.CompletedAt = &completedAt
		step.DurationMs = completedAt.Sub(*step.StartedAt).Milliseconds()

		if !result.Success && timedOut(s) {
			return e.timeoutSaga(ctx, s)
		}

		if result.Success {
			s.MergeOutput(result.Output)
			step.OutputData = result.Output
			step.Status = saga.StepStatusCompleted
			step.ErrorMessage = ""
			step.ErrorTrace = ""
			s.CurrentStepIndex++
			s.RetryCount = 0
			s.Status = saga.StatusRunning
			s.Touch(completedAt)
			if err := e.save(ctx, s); err != nil {
				return err
			}
			e.publishStep(ctx, eventbus.StepCompleted, s, step)
			e.metrics.RecordStep(string(step.Type), "completed", time.Duration(step.DurationMs)*time.Millisecond)
			return nil
		}

		step.ErrorMessage = result.ErrorMessage
		step.ErrorTrace = result.ErrorTrace

		if step.RetryCount < step.MaxRetries {
			step.RetryCount++
			s.RetryCount++
			step.Status = saga.StepStatusRetrying
			s.Status = saga.StatusRetrying
			s.Touch(completedAt)
			if err := e.save(ctx, s); err != nil {
				return err
			}
			e.publishStep(ctx, eventbus.StepRetrying, s, step)
			e.metrics.RecordStepRetried()

			delay := time.Duration(step.RetryDelayMs) * time.Millisecond
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return e.abandonOnCancel(ctx, s, step)
			}
			continue
		}

		step.Status = saga.StepStatusFailed
		e.metrics.RecordStep(string(step.Type), "failed", time.Duration(step.DurationMs)*time.Millisecond)
		e.publishStep(ctx, eventbus.StepFailed, s, step)

		if !step.Required {
			s.CurrentStepIndex++
			s.Status = saga.StatusRunning
			s.Touch(completedAt)
			return e.save(ctx, s)
		}

		return e.failAndCompensate(ctx, s)
	}
}

// dispatch resolves step's executor, enforces the rate limiter and circuit
// breaker for its service identity, and runs it. An unsupported step type
// or a rejection from either guard surfaces as a non-retryable Result
// failure, identical in shape to an executor-reported failure.
func (e *Engine) dispatch(ctx context.Context, s *saga.Saga, step *saga.Step) executor.Result {
	exec, ok := e.registry.Resolve(step.Type)
	if !ok {
		return executor.Result{
			Success:      false,
			ErrorMessage: string(orcherrors.UnsupportedStepType),
		}
	}

	identity := serviceIdentity(step)

	if err := e.limiter.Allow(ctx, identity); err != nil {
		e.metrics.RecordRateLimited(identity)
		return executor.Result{Success: false, ErrorMessage: err.Error()}
	}

	var result executor.Result
	execErr := e.breakers.Execute(ctx, identity, func(bctx context.Context) error {
		stepCtx := bctx
		var cancel context.CancelFunc
		if step.TimeoutMs > 0 {
			stepCtx, cancel = context.WithTimeout(bctx, time.Duration(step.TimeoutMs)*time.Millisecond)
			defer cancel()
		}
		result = exec.Execute(stepCtx, step, s.InputData)
		if stepCtx.Err() == context.DeadlineExceeded && !result.Success {
			result.ErrorMessage = "timeout: " + result.ErrorMessage
		}
		if !result.Success {
			return errors.New(result.ErrorMessage)
		}
		return nil
	})
	if execErr != nil && orcherrors.IsKind(execErr, orcherrors.CircuitOpen) {
		return executor.Result{Success: false, ErrorMessage: execErr.Error()}
	}
	return result
}

// serviceIdentity extracts the circuit-breaker/rate-limiter key for a step
// (§4.2): an HTTP step's URL host, a caller-supplied "service" config
// value for other types, or the step type itself as a last resort so every
// step still has a breaker identity.
func serviceIdentity(step *saga.Step) string {
	if step.Type == saga.StepTypeHTTPCall {
		return executor.ServiceIdentity(step)
	}
	if svc, ok := step.Config["service"].(string); ok && svc != "" {
		return svc
	}
	return string(step.Type)
}

func (e *Engine) failAndCompensate(ctx context.Context, s *saga.Saga) error {
	now := time.Now()
	s.Status = saga.StatusCompensating
	s.Touch(now)
	if err := e.save(ctx, s); err != nil {
		return err
	}
	return e.runCompensation(ctx, s)
}

// runCompensation runs the compensation driver against s (already in
// COMPENSATING status, whether the engine put it there after a required
// step's exhausted failure or a caller forced it via an administrative
// compensate request) and persists the resulting terminal status.
func (e *Engine) runCompensation(ctx context.Context, s *saga.Saga) error {
	compErr := e.compensator.Run(ctx, s)
	finishedAt := time.Now()
	s.CompletedAt = &finishedAt
	s.Touch(finishedAt)

	if compErr != nil {
		s.Status = saga.StatusFailed
		s.ErrorMessage = compErr.Error()
		if err := e.save(ctx, s); err != nil {
			return err
		}
		e.publishSaga(ctx, eventbus.SagaFailed, s)
		e.metrics.RecordCompensation("failed")
		e.metrics.RecordSagaCompleted("failed", sagaDuration(s, finishedAt))
		return compErr
	}

	s.Status = saga.StatusCompensated
	if err := e.save(ctx, s); err != nil {
		return err
	}
	e.publishSaga(ctx, eventbus.SagaCompensated, s)
	e.metrics.RecordCompensation("completed")
	e.metrics.RecordSagaCompleted("compensated", sagaDuration(s, finishedAt))
	return nil
}

// timeoutSaga abandons s's in-flight step as TIMEOUT and compensates the
// completed prefix. The spec's diagram shows this trigger as asynchronous;
// here it runs inline because the engine has no other notion of
// "asynchronously" than handing the same work to a worker pool, which
// would only add latency without changing the outcome for a single saga.
func (e *Engine) timeoutSaga(ctx context.Context, s *saga.Saga) error {
	now := time.Now()
	if step := s.CurrentStep(); step != nil && step.Status == saga.StepStatusRunning {
		step.Status = saga.StepStatusTimeout
		step.CompletedAt = &now
		step.ErrorMessage = "saga timeout"
	}
	s.Status = saga.StatusTimeout
	s.CompletedAt = &now
	s.Touch(now)
	if err := e.save(ctx, s); err != nil {
		return err
	}

	e.metrics.RecordSagaCompleted("timeout", sagaDuration(s, now))

	if err := e.compensator.Run(ctx, s); err != nil {
		s.ErrorMessage = fmt.Sprintf("post-timeout compensation: %s", err.Error())
		e.metrics.RecordCompensation("failed")
		return e.save(ctx, s)
	}
	e.metrics.RecordCompensation("completed")
	return e.save(ctx, s)
}

func (e *Engine) abandonOnCancel(ctx context.Context, s *saga.Saga, step *saga.Step) error {
	now := time.Now()
	step.Status = saga.StepStatusTimeout
	step.CompletedAt = &now
	step.ErrorMessage = "cancelled during retry backoff"
	s.Status = saga.StatusTimeout
	s.CompletedAt = &now
	s.Touch(now)
	_ = e.save(context.Background(), s)
	return orcherrors.NewError(orcherrors.StepTimeout, "step cancelled during retry backoff").
		WithSaga(s.SagaID).WithStep(step.StepID).WithCause(ctx.Err()).Build()
}

func (e *Engine) save(ctx context.Context, s *saga.Saga) error {
	s.Version++
	if err := e.store.Save(ctx, s); err != nil {
		s.Version--
		return orcherrors.Wrap(err, s.SagaID)
	}
	return nil
}

func (e *Engine) publishSaga(ctx context.Context, t eventbus.EventType, s *saga.Saga) {
	if err := e.events.Publish(ctx, eventbus.Event{
		Type:       t,
		SagaID:     s.SagaID,
		Status:     string(s.Status),
		OccurredAt: time.Now(),
	}); err != nil {
		e.logger.Warn("event publish failed", zap.String("saga_id", s.SagaID), zap.Error(err))
	}
}

func (e *Engine) publishStep(ctx context.Context, t eventbus.EventType, s *saga.Saga, step *saga.Step) {
	if err := e.events.Publish(ctx, eventbus.Event{
		Type:       t,
		SagaID:     s.SagaID,
		StepID:     step.StepID,
		Status:     string(step.Status),
		OccurredAt: time.Now(),
	}); err != nil {
		e.logger.Warn("event publish failed", zap.String("saga_id", s.SagaID), zap.String("step_id", step.StepID), zap.Error(err))
	}
}

func sagaDuration(s *saga.Saga, now time.Time) time.Duration {
	if s.StartedAt == nil {
		return 0
	}
	return now.Sub(*s.StartedAt)
}
