package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sagaorchestrator/internal/breaker"
	"sagaorchestrator/internal/compensation"
	"sagaorchestrator/internal/engine"
	"sagaorchestrator/internal/eventbus"
	"sagaorchestrator/internal/executor"
	"sagaorchestrator/internal/infrastructure/cache"
	"sagaorchestrator/internal/metrics"
	"sagaorchestrator/internal/saga"
	"sagaorchestrator/internal/store"
)

func newTestOrchestrator(t *testing.T, reg *executor.Registry) (*Orchestrator, *store.MemStore) {
	t.Helper()
	st := store.NewMemStore()
	metricsReg := metrics.New(prometheus.NewRegistry(), "test")
	breakers := breaker.NewRegistry(breaker.DefaultConfig(), zap.NewNop(), metricsReg)
	comp := compensation.New(reg, eventbus.NoOp{}, zap.NewNop())
	eng := engine.New(st, reg, breakers, comp, eventbus.NoOp{}, metricsReg, nil, zap.NewNop())
	return New(st, eng, nil, nil, 0, zap.NewNop()), st
}

var errBoom = errors.New("boom")

func step(name, handler string, required bool) saga.Step {
	return saga.Step{
		Name:     name,
		Type:     saga.StepTypeBusinessLogic,
		Config:   saga.StepConfig{"handler": handler},
		Required: required,
	}
}

func TestCreate_RunsSynchronouslyToCompletion(t *testing.T) {
	reg := executor.NewRegistry()
	bl := executor.NewBusinessLogicExecutor()
	bl.Register("charge", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"charged": true}, nil
	})
	reg.Register(saga.StepTypeBusinessLogic, bl)

	orch, _ := newTestOrchestrator(t, reg)

	s, err := orch.Create(context.Background(), "checkout", []saga.Step{step("charge", "charge", true)}, CreateOptions{
		CorrelationID: "order-1",
	})
	require.NoError(t, err)
	assert.Equal(t, saga.StatusCompleted, s.Status)
	assert.Equal(t, "order-1", s.CorrelationID)
	assert.NotEmpty(t, s.SagaID)
}

func TestCreate_AsyncLeavesSagaPendingUntilExecute(t *testing.T) {
	reg := executor.NewRegistry()
	bl := executor.NewBusinessLogicExecutor()
	bl.Register("charge", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return nil, nil
	})
	reg.Register(saga.StepTypeBusinessLogic, bl)

	orch, _ := newTestOrchestrator(t, reg)

	s, err := orch.Create(context.Background(), "checkout", []saga.Step{step("charge", "charge", true)}, CreateOptions{
		Async: true,
	})
	require.NoError(t, err)
	assert.Equal(t, saga.StatusCreated, s.Status)

	require.NoError(t, orch.Execute(context.Background(), s.SagaID))
	final, err := orch.Get(context.Background(), s.SagaID)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusCompleted, final.Status)
}

func TestRetry_RejectsNonRetryableStatus(t *testing.T) {
	reg := executor.NewRegistry()
	bl := executor.NewBusinessLogicExecutor()
	bl.Register("noop", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return nil, nil
	})
	reg.Register(saga.StepTypeBusinessLogic, bl)

	orch, _ := newTestOrchestrator(t, reg)

	s, err := orch.Create(context.Background(), "checkout", []saga.Step{step("noop", "noop", true)}, CreateOptions{})
	require.NoError(t, err)
	require.Equal(t, saga.StatusCompleted, s.Status)

	_, retryErr := orch.Retry(context.Background(), s.SagaID)
	require.Error(t, retryErr)
}

func TestRetry_ExhaustedBudgetRejected(t *testing.T) {
	reg := executor.NewRegistry()
	orch, st := newTestOrchestrator(t, reg)

	now := time.Now()
	s := saga.New("saga-exhausted", "checkout", []saga.Step{step("missing", "missing", true)}, nil)
	s.Status = saga.StatusFailed
	s.RetryCount = s.MaxRetries
	s.CompletedAt = &now
	s.CreatedAt = now
	s.UpdatedAt = now
	require.NoError(t, st.Save(context.Background(), s))

	_, err := orch.Retry(context.Background(), s.SagaID)
	require.Error(t, err)
}

func TestRetry_RunsRemainingStepsAfterReset(t *testing.T) {
	reg := executor.NewRegistry()
	bl := executor.NewBusinessLogicExecutor()
	bl.Register("eventually-ok", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"ok": true}, nil
	})
	reg.Register(saga.StepTypeBusinessLogic, bl)

	orch, st := newTestOrchestrator(t, reg)

	failing := step("eventually-ok", "eventually-ok", true)
	failing.Status = saga.StepStatusFailed
	failing.ErrorMessage = "boom"

	now := time.Now()
	s := saga.New("saga-retry", "checkout", []saga.Step{failing}, nil)
	s.Status = saga.StatusFailed
	s.ErrorMessage = "boom"
	s.RetryCount = 0
	s.MaxRetries = 3
	s.StartedAt = &now
	s.CompletedAt = &now
	s.CreatedAt = now
	s.UpdatedAt = now
	require.NoError(t, st.Save(context.Background(), s))

	final, err := orch.Retry(context.Background(), s.SagaID)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusCompleted, final.Status)
	// the engine resets RetryCount to 0 on a step's successful completion.
	assert.Equal(t, 0, final.RetryCount)
}

func TestRetry_ResetsRetryCountFromNonzero(t *testing.T) {
	reg := executor.NewRegistry()
	bl := executor.NewBusinessLogicExecutor()
	bl.Register("always-fails", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return nil, errBoom
	})
	reg.Register(saga.StepTypeBusinessLogic, bl)

	orch, st := newTestOrchestrator(t, reg)

	failing := step("always-fails", "always-fails", true)
	failing.Status = saga.StepStatusFailed
	failing.ErrorMessage = "boom"

	now := time.Now()
	s := saga.New("saga-retry-nonzero", "checkout", []saga.Step{failing}, nil)
	s.Status = saga.StatusFailed
	s.ErrorMessage = "boom"
	s.RetryCount = 2
	s.MaxRetries = 3
	s.StartedAt = &now
	s.CompletedAt = &now
	s.CreatedAt = now
	s.UpdatedAt = now
	require.NoError(t, st.Save(context.Background(), s))

	final, err := orch.Retry(context.Background(), s.SagaID)
	require.NoError(t, err)
	// the step has no retry budget of its own, so it fails terminally and
	// the saga moves into (no-op) compensation without the engine ever
	// touching RetryCount again: the only write left standing is the
	// administrative reset.
	assert.Equal(t, saga.StatusCompensated, final.Status)
	assert.Equal(t, 0, final.RetryCount)
}

func TestGet_ServesFromCacheOnHit(t *testing.T) {
	reg := executor.NewRegistry()
	bl := executor.NewBusinessLogicExecutor()
	bl.Register("noop", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return nil, nil
	})
	reg.Register(saga.StepTypeBusinessLogic, bl)

	st := store.NewMemStore()
	metricsReg := metrics.New(prometheus.NewRegistry(), "test")
	breakers := breaker.NewRegistry(breaker.DefaultConfig(), zap.NewNop(), metricsReg)
	comp := compensation.New(reg, eventbus.NoOp{}, zap.NewNop())
	eng := engine.New(st, reg, breakers, comp, eventbus.NoOp{}, metricsReg, nil, zap.NewNop())
	sagaCache := cache.NewMemoryCache(100, 1<<20, zap.NewNop())
	orch := New(st, eng, nil, sagaCache, time.Minute, zap.NewNop())

	s, err := orch.Create(context.Background(), "checkout", []saga.Step{step("noop", "noop", true)}, CreateOptions{})
	require.NoError(t, err)

	cached, err := orch.Get(context.Background(), s.SagaID)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusCompleted, cached.Status)

	// mutate the store directly, bypassing the orchestrator: if Get still
	// reports StatusCompleted the read came from the cache, not the store.
	direct, err := st.Get(context.Background(), s.SagaID)
	require.NoError(t, err)
	direct.Status = saga.StatusFailed
	require.NoError(t, st.Save(context.Background(), direct))

	stale, err := orch.Get(context.Background(), s.SagaID)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusCompleted, stale.Status)
}

func TestRetry_InvalidatesCacheSoGetSeesTheReset(t *testing.T) {
	reg := executor.NewRegistry()
	orch, st := newTestOrchestratorWithCache(t, reg)

	now := time.Now()
	s := saga.New("saga-cache-retry", "checkout", []saga.Step{step("missing", "missing", true)}, nil)
	s.Status = saga.StatusFailed
	s.RetryCount = 1
	s.MaxRetries = 3
	s.CompletedAt = &now
	s.CreatedAt = now
	s.UpdatedAt = now
	require.NoError(t, st.Save(context.Background(), s))

	_, err := orch.Get(context.Background(), s.SagaID)
	require.NoError(t, err)

	_, err = orch.Retry(context.Background(), s.SagaID)
	require.NoError(t, err)

	final, err := orch.Get(context.Background(), s.SagaID)
	require.NoError(t, err)
	assert.Equal(t, 0, final.RetryCount)
}

func newTestOrchestratorWithCache(t *testing.T, reg *executor.Registry) (*Orchestrator, *store.MemStore) {
	t.Helper()
	st := store.NewMemStore()
	metricsReg := metrics.New(prometheus.NewRegistry(), "test")
	breakers := breaker.NewRegistry(breaker.DefaultConfig(), zap.NewNop(), metricsReg)
	comp := compensation.New(reg, eventbus.NoOp{}, zap.NewNop())
	eng := engine.New(st, reg, breakers, comp, eventbus.NoOp{}, metricsReg, nil, zap.NewNop())
	sagaCache := cache.NewMemoryCache(100, 1<<20, zap.NewNop())
	return New(st, eng, nil, sagaCache, time.Minute, zap.NewNop()), st
}

func TestCompensate_ForcesCompensationFromRunning(t *testing.T) {
	var undone bool

	reg := executor.NewRegistry()
	bl := executor.NewBusinessLogicExecutor()
	bl.Register("release", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		undone = true
		return nil, nil
	})
	reg.Register(saga.StepTypeBusinessLogic, bl)

	orch, st := newTestOrchestrator(t, reg)

	stepA := step("reserve", "reserve", true)
	stepA.Compensatable = true
	stepA.CompensationConfig = &saga.CompensationConfig{
		Type: saga.StepTypeBusinessLogic, Config: saga.StepConfig{"handler": "release"}, Required: true,
	}
	stepA.Status = saga.StepStatusCompleted
	stepB := step("never-runs", "never-registered", true)

	s := saga.New("saga-compensate", "reserve-then-stall", []saga.Step{stepA, stepB}, nil)
	s.Status = saga.StatusRunning
	s.CurrentStepIndex = 1
	require.NoError(t, st.Save(context.Background(), s))

	final, err := orch.Compensate(context.Background(), s.SagaID)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusCompensated, final.Status)
	assert.True(t, undone)
}

func TestListByCorrelation_ReturnsMatchingSagas(t *testing.T) {
	reg := executor.NewRegistry()
	bl := executor.NewBusinessLogicExecutor()
	bl.Register("noop", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return nil, nil
	})
	reg.Register(saga.StepTypeBusinessLogic, bl)

	orch, _ := newTestOrchestrator(t, reg)

	_, err := orch.Create(context.Background(), "a", []saga.Step{step("noop", "noop", true)}, CreateOptions{CorrelationID: "txn-9"})
	require.NoError(t, err)
	_, err = orch.Create(context.Background(), "b", []saga.Step{step("noop", "noop", true)}, CreateOptions{CorrelationID: "txn-9"})
	require.NoError(t, err)
	_, err = orch.Create(context.Background(), "c", []saga.Step{step("noop", "noop", true)}, CreateOptions{CorrelationID: "txn-other"})
	require.NoError(t, err)

	matches, err := orch.ListByCorrelation(context.Background(), "txn-9", 0)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}
