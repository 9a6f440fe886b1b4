package scheduler

import (
	"context"
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
	"sagaorchestrator/internal/metrics"
	"sagaorchestrator/internal/orchestrator"
	"sagaorchestrator/internal/saga"
	"sagaorchestrator/internal/store"
)

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *store.MemStore, *orchestrator.Orchestrator) {
	t.Helper()
	st := store.NewMemStore()
	reg := executor.NewRegistry()
	metricsReg := metrics.New(prometheus.NewRegistry(), "test")
	breakers := breaker.NewRegistry(breaker.DefaultConfig(), zap.NewNop(), metricsReg)
	comp := compensation.New(reg, eventbus.NoOp{}, zap.NewNop())
	eng := engine.New(st, reg, breakers, comp, eventbus.NoOp{}, metricsReg, nil, zap.NewNop())
	orch := orchestrator.New(st, eng, nil, nil, 0, zap.NewNop())
	s := New(cfg, st, orch, eventbus.NoOp{}, metricsReg, zap.NewNop())
	return s, st, orch
}

func TestSweepTimeouts_TransitionsExpiredSagaToTimeout(t *testing.T) {
	s, st, _ := newTestScheduler(t, DefaultConfig())

	started := time.Now().Add(-time.Hour)
	sg := saga.New("saga-1", "stuck", []saga.Step{
		{StepID: "s1", Name: "wait", Order: 0, Type: saga.StepTypeWait, Required: true,
			Config: saga.StepConfig{"delay_ms": float64(999999)}, TimeoutMs: 999999},
	}, nil)
	sg.Status = saga.StatusRunning
	sg.StartedAt = &started
	sg.TimeoutMs = 1000
	require.NoError(t, st.Save(context.Background(), sg))

	s.sweepTimeouts(context.Background())

	got, err := st.Get(context.Background(), "saga-1")
	require.NoError(t, err)
	assert.Equal(t, saga.StatusTimeout, got.Status)
}

func TestSweepRetryable_DisabledByDefaultLeavesSagaUntouched(t *testing.T) {
	cfg := DefaultConfig()
	s, st, _ := newTestScheduler(t, cfg)

	sg := saga.New("saga-2", "failed-one", []saga.Step{
		{StepID: "s1", Name: "step", Order: 0, Type: saga.StepTypeBusinessLogic, Required: true},
	}, nil)
	sg.Status = saga.StatusFailed
	now := time.Now()
	sg.CompletedAt = &now
	require.NoError(t, st.Save(context.Background(), sg))

	s.sweepRetryable(context.Background())

	got, err := st.Get(context.Background(), "saga-2")
	require.NoError(t, err)
	assert.Equal(t, saga.StatusFailed, got.Status)
	assert.Equal(t, int64(0), got.Version)
}

func TestBulkDeleteOlderThan_RemovesOnlyStaleTerminalSagas(t *testing.T) {
	s, st, _ := newTestScheduler(t, DefaultConfig())

	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now()

	stale := saga.New("saga-old", "done", []saga.Step{{StepID: "s1", Order: 0, Type: saga.StepTypeBusinessLogic, Required: true}}, nil)
	stale.Status = saga.StatusCompleted
	stale.CompletedAt = &old
	require.NoError(t, st.Save(context.Background(), stale))

	fresh := saga.New("saga-new", "done", []saga.Step{{StepID: "s1", Order: 0, Type: saga.StepTypeBusinessLogic, Required: true}}, nil)
	fresh.Status = saga.StatusCompleted
	fresh.CompletedAt = &recent
	require.NoError(t, st.Save(context.Background(), fresh))

	deleted := s.BulkDeleteOlderThan(context.Background(), time.Now().Add(-24*time.Hour))
	assert.Equal(t, 1, deleted)

	_, err := st.Get(context.Background(), "saga-old")
	assert.True(t, store.IsNotFound(err))
	_, err = st.Get(context.Background(), "saga-new")
	assert.NoError(t, err)
}

func TestStartStop_RunsLoopsWithoutPanicking(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeoutSweepInterval = 5 * time.Millisecond
	cfg.RetrySweepInterval = 5 * time.Millisecond
	cfg.CleanupSweepInterval = 5 * time.Millisecond
	cfg.MetricsPushInterval = 5 * time.Millisecond

	s, _, _ := newTestScheduler(t, cfg)
	s.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	s.Stop()
}
