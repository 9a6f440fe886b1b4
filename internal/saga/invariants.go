package saga

import (
	"fmt"

	orcherrors "sagaorchestrator/internal/errors"
)

// Validate checks the structural invariants a Saga must hold before it can
// be persisted (§3): step ordering, index bounds, and status/terminal
// consistency. It does not check business-level semantics (those live in
// the engine, which knows what a valid transition is).
func (s *Saga) Validate() error {
	if s.SagaID == "" {
		return orcherrors.NewError(orcherrors.Validation, "saga_id is required").Build()
	}
	if len(s.Steps) == 0 {
		return orcherrors.NewError(orcherrors.Validation, "saga must have at least one step").
			WithSaga(s.SagaID).Build()
	}
	for i, step := range s.Steps {
		if step.Order != i {
			return orcherrors.NewError(orcherrors.Validation,
				fmt.Sprintf("step %d (%s) has order %d, want %d", i, step.StepID, step.Order, i)).
				WithSaga(s.SagaID).WithStep(step.StepID).Build()
		}
		if step.StepID == "" {
			return orcherrors.NewError(orcherrors.Validation, fmt.Sprintf("step at index %d is missing step_id", i)).
				WithSaga(s.SagaID).Build()
		}
	}
	if s.CurrentStepIndex < 0 || s.CurrentStepIndex > len(s.Steps) {
		return orcherrors.NewError(orcherrors.Validation,
			fmt.Sprintf("current_step_index %d out of bounds [0,%d]", s.CurrentStepIndex, len(s.Steps))).
			WithSaga(s.SagaID).Build()
	}
	if s.Status.IsTerminal() && s.CompletedAt == nil {
		return orcherrors.NewError(orcherrors.Validation,
			fmt.Sprintf("saga in terminal status %s must have completed_at set", s.Status)).
			WithSaga(s.SagaID).Build()
	}
	if !s.Status.IsTerminal() && s.CompletedAt != nil {
		return orcherrors.NewError(orcherrors.Validation,
			fmt.Sprintf("saga in non-terminal status %s must not have completed_at set", s.Status)).
			WithSaga(s.SagaID).Build()
	}
	return nil
}

// New constructs a Saga in CREATED status from the given name and steps,
// assigning Order to match slice position and defaulting per-step
// Required/Compensatable/MaxRetries/TimeoutMs where the caller left them
// zero-valued.
func New(sagaID, name string, steps []Step, input map[string]interface{}) *Saga {
	for i := range steps {
		steps[i].Order = i
		if steps[i].Status == "" {
			steps[i].Status = StepStatusCreated
		}
		if steps[i].TimeoutMs == 0 {
			steps[i].TimeoutMs = 30000
		}
		if steps[i].MaxRetries == 0 {
			steps[i].MaxRetries = 3
		}
	}
	return &Saga{
		SagaID:           sagaID,
		Name:             name,
		Status:           StatusCreated,
		Steps:            steps,
		CurrentStepIndex: 0,
		InputData:        input,
		MaxRetries:       3,
		Version:          0,
	}
}

// AllStepsTerminal reports whether every step up to and including
// CurrentStepIndex-1 is COMPLETED, SKIPPED or COMPENSATED — used by the
// engine to decide whether a saga that reached the end of its step list is
// actually done.
func (s *Saga) AllStepsTerminal() bool {
	for _, step := range s.Steps {
		switch step.Status {
		case StepStatusCompleted, StepStatusSkipped, StepStatusCompensated:
			continue
		default:
			return false
		}
	}
	return true
}

// CompensatableSteps returns completed, compensatable steps in reverse
// execution order — the order the compensation driver must run them in
// (§3, §4.6).
func (s *Saga) CompensatableSteps() []*Step {
	var out []*Step
	for i := len(s.Steps) - 1; i >= 0; i-- {
		step := &s.Steps[i]
		if step.Status == StepStatusCompleted && step.Compensatable && step.CompensationConfig != nil {
			out = append(out, step)
		}
	}
	return out
}
