package engine

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"sagaorchestrator/internal/breaker"
	"sagaorchestrator/internal/compensation"
	"sagaorchestrator/internal/eventbus"
	"sagaorchestrator/internal/executor"
	"sagaorchestrator/internal/metrics"
	"sagaorchestrator/internal/saga"
	"sagaorchestrator/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, reg *executor.Registry) (*Engine, *store.MemStore) {
	t.Helper()
	st := store.NewMemStore()
	metricsReg := metrics.New(prometheus.NewRegistry(), "test")
	breakers := breaker.NewRegistry(breaker.DefaultConfig(), zap.NewNop(), metricsReg)
	comp := compensation.New(reg, eventbus.NoOp{}, zap.NewNop())
	eng := New(st, reg, breakers, comp, eventbus.NoOp{}, metricsReg, nil, zap.NewNop())
	return eng, st
}

func businessLogicStep(id string, order int, handler string, required bool) saga.Step {
	return saga.Step{
		StepID:     id,
		Name:       id,
		Order:      order,
		Type:       saga.StepTypeBusinessLogic,
		Status:     saga.StepStatusCreated,
		Config:     saga.StepConfig{"handler": handler},
		Required:   required,
		MaxRetries: 0,
		TimeoutMs:  1000,
	}
}

func TestAdvance_RunsAllStepsToCompletion(t *testing.T) {
	reg := executor.NewRegistry()
	bl := executor.NewBusinessLogicExecutor()
	bl.Register("step-a", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"a": 1}, nil
	})
	bl.Register("step-b", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"b": 2}, nil
	})
	reg.Register(saga.StepTypeBusinessLogic, bl)

	eng, st := newTestEngine(t, reg)

	s := saga.New("saga-1", "order-fulfillment", []saga.Step{
		businessLogicStep("s1", 0, "step-a", true),
		businessLogicStep("s2", 1, "step-b", true),
	}, nil)
	require.NoError(t, st.Save(context.Background(), s))

	err := eng.Advance(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusCompleted, s.Status)
	assert.Equal(t, 1, s.OutputData["a"])
	assert.Equal(t, 2, s.OutputData["b"])
	assert.NotNil(t, s.CompletedAt)
}

func TestAdvance_RequiredFailureCompensatesPriorSteps(t *testing.T) {
	var undone []string

	reg := executor.NewRegistry()
	bl := executor.NewBusinessLogicExecutor()
	bl.Register("step-a", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return nil, nil
	})
	bl.Register("undo-a", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		undone = append(undone, "a")
		return nil, nil
	})
	bl.Register("step-b", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return nil, assertErr{}
	})
	reg.Register(saga.StepTypeBusinessLogic, bl)

	eng, st := newTestEngine(t, reg)

	stepA := businessLogicStep("s1", 0, "step-a", true)
	stepA.Compensatable = true
	stepA.CompensationConfig = &saga.CompensationConfig{
		Type: saga.StepTypeBusinessLogic, Config: saga.StepConfig{"handler": "undo-a"}, Required: true,
	}
	stepB := businessLogicStep("s2", 1, "step-b", true)

	s := saga.New("saga-2", "payment", []saga.Step{stepA, stepB}, nil)
	require.NoError(t, st.Save(context.Background(), s))

	err := eng.Advance(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusCompensated, s.Status)
	assert.Equal(t, []string{"a"}, undone)
}

func TestAdvance_NonRequiredFailureAdvances(t *testing.T) {
	reg := executor.NewRegistry()
	bl := executor.NewBusinessLogicExecutor()
	bl.Register("flaky", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return nil, assertErr{}
	})
	bl.Register("final", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"done": true}, nil
	})
	reg.Register(saga.StepTypeBusinessLogic, bl)

	eng, st := newTestEngine(t, reg)

	s := saga.New("saga-3", "best-effort", []saga.Step{
		businessLogicStep("s1", 0, "flaky", false),
		businessLogicStep("s2", 1, "final", true),
	}, nil)
	require.NoError(t, st.Save(context.Background(), s))

	err := eng.Advance(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusCompleted, s.Status)
	assert.Equal(t, saga.StepStatusFailed, s.Steps[0].Status)
	assert.Equal(t, saga.StepStatusCompleted, s.Steps[1].Status)
}

func TestAdvance_RetriesThenSucceeds(t *testing.T) {
	attempts := 0
	reg := executor.NewRegistry()
	bl := executor.NewBusinessLogicExecutor()
	bl.Register("eventually", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		attempts++
		if attempts < 3 {
			return nil, assertErr{}
		}
		return map[string]interface{}{"tries": attempts}, nil
	})
	reg.Register(saga.StepTypeBusinessLogic, bl)

	eng, st := newTestEngine(t, reg)

	step := businessLogicStep("s1", 0, "eventually", true)
	step.MaxRetries = 5
	step.RetryDelayMs = 1

	s := saga.New("saga-4", "retrying", []saga.Step{step}, nil)
	require.NoError(t, st.Save(context.Background(), s))

	err := eng.Advance(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusCompleted, s.Status)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 2, s.Steps[0].RetryCount)
}

func TestAdvance_UnsupportedStepTypeFailsClosed(t *testing.T) {
	reg := executor.NewRegistry()
	eng, st := newTestEngine(t, reg)

	step := saga.Step{
		StepID: "s1", Name: "parallel-step", Order: 0,
		Type: saga.StepTypeParallel, Required: true, MaxRetries: 0, TimeoutMs: 1000,
	}
	s := saga.New("saga-5", "unsupported", []saga.Step{step}, nil)
	require.NoError(t, st.Save(context.Background(), s))

	// No prior steps were completed, so compensation has nothing to undo
	// and vacuously succeeds: the saga ends COMPENSATED, not FAILED.
	err := eng.Advance(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusCompensated, s.Status)
	assert.Equal(t, saga.StepStatusFailed, s.Steps[0].Status)
}

func TestAdvance_SagaTimeoutAbandonsStepAndCompensates(t *testing.T) {
	reg := executor.NewRegistry()

	step := saga.Step{
		StepID: "s1", Name: "slow-wait", Order: 0,
		Type: saga.StepTypeWait, Required: true, MaxRetries: 0, TimeoutMs: 5000,
		Config: saga.StepConfig{"delay_ms": float64(200)},
	}
	s := saga.New("saga-6", "timeout-case", []saga.Step{step}, nil)
	s.TimeoutMs = 20

	eng, st := newTestEngine(t, reg)
	require.NoError(t, st.Save(context.Background(), s))

	start := time.Now()
	err := eng.Advance(context.Background(), s)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, saga.StatusTimeout, s.Status)
	assert.Less(t, elapsed, 200*time.Millisecond)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
