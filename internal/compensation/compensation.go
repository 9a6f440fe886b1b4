// Package compensation implements the rollback path for a failed saga
// (§4.7): walking completed, compensatable steps in reverse order and
// dispatching each one's compensating action through the same executor
// registry used for forward execution.
package compensation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	orcherrors "sagaorchestrator/internal/errors"
	"sagaorchestrator/internal/eventbus"
	"sagaorchestrator/internal/executor"
	"sagaorchestrator/internal/saga"
)

// Driver runs the compensation sequence for a saga already marked
// COMPENSATING.
type Driver struct {
	registry *executor.Registry
	events   eventbus.EventBus
	logger   *zap.Logger
}

// New returns a Driver dispatching compensating actions through registry.
func New(registry *executor.Registry, events eventbus.EventBus, logger *zap.Logger) *Driver {
	if events == nil {
		events = eventbus.NoOp{}
	}
	return &Driver{registry: registry, events: events, logger: logger}
}

// Run compensates s's completed, compensatable steps in reverse execution
// order (§3, §4.7). It mutates s in place: each step's status becomes
// COMPENSATED on success. If a required step's compensation exhausts its
// retries, Run returns an error and leaves s ready for the caller to mark
// FAILED with the spec's exact message format; if every step succeeds (or
// only non-required ones fail), Run returns nil and the caller marks s
// COMPENSATED.
func (d *Driver) Run(ctx context.Context, s *saga.Saga) error {
	steps := s.CompensatableSteps()

	for _, step := range steps {
		if err := d.compensateStep(ctx, s, step); err != nil {
			if step.CompensationConfig.Required {
				return err
			}
			d.logger.Warn("optional compensation failed, continuing",
				zap.String("saga_id", s.SagaID),
				zap.String("step_id", step.StepID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (d *Driver) compensateStep(ctx context.Context, s *saga.Saga, step *saga.Step) error {
	cfg := step.CompensationConfig
	exec, ok := d.registry.Resolve(cfg.Type)
	if !ok {
		return orcherrors.NewError(orcherrors.UnsupportedStepType,
			fmt.Sprintf("no executor for compensation type %s on step %s", cfg.Type, step.StepID)).
			WithSaga(s.SagaID).WithStep(step.StepID).Build()
	}

	step.Status = saga.StepStatusCompensating
	now := time.Now()
	step.StartedAt = &now

	attempts := step.MaxRetries + 1
	if cfg.Config != nil {
		if mr, ok := asInt(cfg.Config["max_retries"]); ok {
			attempts = mr + 1
		}
	}
	delay := time.Duration(step.RetryDelayMs) * time.Millisecond

	compensationStep := &saga.Step{
		StepID:     step.StepID,
		Name:       step.Name,
		Order:      step.Order,
		Type:       cfg.Type,
		Config:     cfg.Config,
		InputData:  step.OutputData,
		MaxRetries: step.MaxRetries,
		TimeoutMs:  step.TimeoutMs,
	}

	var lastErr string
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return orcherrors.NewError(orcherrors.CompensationFailed, "compensation cancelled").
					WithSaga(s.SagaID).WithStep(step.StepID).WithCause(ctx.Err()).Build()
			}
		}

		result := exec.Execute(ctx, compensationStep, s.InputData)
		if result.Success {
			completed := time.Now()
			step.Status = saga.StepStatusCompensated
			step.CompletedAt = &completed
			d.events.Publish(ctx, eventbus.Event{
				Type:       eventbus.StepCompleted,
				SagaID:     s.SagaID,
				StepID:     step.StepID,
				Status:     string(step.Status),
				OccurredAt: completed,
				Detail:     map[string]interface{}{"compensation": true},
			})
			return nil
		}
		lastErr = result.ErrorMessage
		d.logger.Warn("compensation attempt failed",
			zap.String("saga_id", s.SagaID),
			zap.String("step_id", step.StepID),
			zap.Int("attempt", attempt+1),
			zap.String("error", lastErr),
		)
	}

	step.Status = saga.StepStatusFailed
	step.ErrorMessage = lastErr
	return orcherrors.NewError(orcherrors.CompensationFailed,
		fmt.Sprintf("compensation failed: %s", step.Name)).
		WithSaga(s.SagaID).WithStep(step.StepID).Build()
}

// asInt coerces a step config value into an int. Config maps are decoded
// from JSON request bodies (encoding/json decodes numbers as float64), so a
// bare type assertion to int only matches values set programmatically in
// tests, never ones supplied over the API.
func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
