package compensation

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"sagaorchestrator/internal/executor"
	"sagaorchestrator/internal/saga"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completedStep(id string, order int, required bool) saga.Step {
	return saga.Step{
		StepID:        id,
		Name:          id,
		Order:         order,
		Status:        saga.StepStatusCompleted,
		Compensatable: true,
		CompensationConfig: &saga.CompensationConfig{
			Type:     saga.StepTypeBusinessLogic,
			Config:   saga.StepConfig{"handler": "undo-" + id},
			Required: required,
		},
		MaxRetries: 1,
	}
}

func TestDriver_CompensatesInReverseOrder(t *testing.T) {
	var order []string
	bl := executor.NewBusinessLogicExecutor()
	bl.Register("undo-a", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		order = append(order, "a")
		return nil, nil
	})
	bl.Register("undo-b", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		order = append(order, "b")
		return nil, nil
	})

	reg := executor.NewRegistry()
	reg.Register(saga.StepTypeBusinessLogic, bl)

	s := &saga.Saga{
		SagaID: "s1",
		Status: saga.StatusCompensating,
		Steps: []saga.Step{
			completedStep("a", 0, true),
			completedStep("b", 1, true),
		},
	}

	d := New(reg, nil, zap.NewNop())
	err := d.Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, order)
	assert.Equal(t, saga.StepStatusCompensated, s.Steps[0].Status)
	assert.Equal(t, saga.StepStatusCompensated, s.Steps[1].Status)
}

func TestDriver_RequiredFailureReturnsError(t *testing.T) {
	bl := executor.NewBusinessLogicExecutor()
	bl.Register("undo-a", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return nil, assertErr{}
	})

	reg := executor.NewRegistry()
	reg.Register(saga.StepTypeBusinessLogic, bl)

	s := &saga.Saga{
		SagaID: "s1",
		Steps:  []saga.Step{completedStep("a", 0, true)},
	}

	d := New(reg, nil, zap.NewNop())
	err := d.Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compensation failed: a")
	assert.Equal(t, saga.StepStatusFailed, s.Steps[0].Status)
}

func TestDriver_OptionalFailureDoesNotAbort(t *testing.T) {
	bl := executor.NewBusinessLogicExecutor()
	bl.Register("undo-a", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return nil, assertErr{}
	})

	reg := executor.NewRegistry()
	reg.Register(saga.StepTypeBusinessLogic, bl)

	s := &saga.Saga{
		SagaID: "s1",
		Steps:  []saga.Step{completedStep("a", 0, false)},
	}

	d := New(reg, nil, zap.NewNop())
	err := d.Run(context.Background(), s)
	assert.NoError(t, err)
}

func TestDriver_RetriesBeforeFailing(t *testing.T) {
	attempts := 0
	bl := executor.NewBusinessLogicExecutor()
	bl.Register("undo-a", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		attempts++
		if attempts < 2 {
			return nil, assertErr{}
		}
		return nil, nil
	})

	reg := executor.NewRegistry()
	reg.Register(saga.StepTypeBusinessLogic, bl)

	step := completedStep("a", 0, true)
	step.MaxRetries = 2
	s := &saga.Saga{SagaID: "s1", Steps: []saga.Step{step}}

	d := New(reg, nil, zap.NewNop())
	err := d.Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestDriver_HonorsJSONDecodedMaxRetriesOverride(t *testing.T) {
	attempts := 0
	bl := executor.NewBusinessLogicExecutor()
	bl.Register("undo-a", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		attempts++
		return nil, assertErr{}
	})

	reg := executor.NewRegistry()
	reg.Register(saga.StepTypeBusinessLogic, bl)

	step := completedStep("a", 0, true)
	step.MaxRetries = 0
	// a JSON request body decodes all numbers as float64, never int; the
	// override must still be honored.
	step.CompensationConfig.Config["max_retries"] = float64(3)
	s := &saga.Saga{SagaID: "s1", Steps: []saga.Step{step}}

	d := New(reg, nil, zap.NewNop())
	err := d.Run(context.Background(), s)
	require.Error(t, err)
	assert.Equal(t, 4, attempts)
}

func TestDriver_SkipsNonCompensatableSteps(t *testing.T) {
	reg := executor.NewRegistry()
	s := &saga.Saga{
		SagaID: "s1",
		Steps: []saga.Step{
			{StepID: "a", Status: saga.StepStatusCompleted, Compensatable: false},
		},
	}
	d := New(reg, nil, zap.NewNop())
	start := time.Now()
	err := d.Run(context.Background(), s)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
