// Package scheduler runs the orchestrator's periodic background sweeps
// (§4.10): timeout detection, bounded auto-retry of failed sagas, terminal
// saga cleanup, and a metrics snapshot pushed onto the event bus for any
// observer to pick up.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sagaorchestrator/internal/eventbus"
	"sagaorchestrator/internal/metrics"
	"sagaorchestrator/internal/orchestrator"
	"sagaorchestrator/internal/saga"
	"sagaorchestrator/internal/store"
)

// Config sizes the four sweep intervals and the cleanup retention window.
// Zero-valued fields fall back to the spec's stated defaults via
// DefaultConfig.
type Config struct {
	TimeoutSweepInterval time.Duration
	RetrySweepInterval   time.Duration
	CleanupSweepInterval time.Duration
	MetricsPushInterval  time.Duration
	Retention            time.Duration
	AutoRetryEnabled     bool
	ListBatchSize        int
}

// DefaultConfig returns the interval table from §4.10: timeouts every 10s,
// retries every 60s (auto-retry off), cleanup hourly, metrics every 5s.
func DefaultConfig() Config {
	return Config{
		TimeoutSweepInterval: 10 * time.Second,
		RetrySweepInterval:   60 * time.Second,
		CleanupSweepInterval: time.Hour,
		MetricsPushInterval:  5 * time.Second,
		Retention:            30 * 24 * time.Hour,
		AutoRetryEnabled:     false,
		ListBatchSize:        200,
	}
}

// Scheduler drives the four sweeps, each on its own ticker, until Stop is
// called or its context is cancelled.
type Scheduler struct {
	cfg     Config
	store   store.SagaStore
	orch    *orchestrator.Orchestrator
	events  eventbus.EventBus
	metrics *metrics.Registry
	logger  *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Scheduler. It does not start any goroutine until Start is
// called.
func New(cfg Config, st store.SagaStore, orch *orchestrator.Orchestrator, events eventbus.EventBus, metricsReg *metrics.Registry, logger *zap.Logger) *Scheduler {
	if events == nil {
		events = eventbus.NoOp{}
	}
	return &Scheduler{cfg: cfg, store: st, orch: orch, events: events, metrics: metricsReg, logger: logger}
}

// Start launches the four sweep loops as goroutines bound to ctx. Stop (or
// cancelling ctx) ends all of them.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(runCtx, s.cfg.TimeoutSweepInterval, s.sweepTimeouts)
	go s.loop(runCtx, s.cfg.RetrySweepInterval, s.sweepRetryable)
	go s.loop(runCtx, s.cfg.CleanupSweepInterval, s.sweepCleanup)
	go func() {
		s.loop(runCtx, s.cfg.MetricsPushInterval, s.pushMetrics)
		close(s.done)
	}()
}

// Stop cancels every sweep loop and waits for them to exit.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, sweep func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep(ctx)
		}
	}
}

// sweepTimeouts finds sagas whose wall-clock budget has expired and drives
// them through Execute, which (per the engine's own timedOut check) marks
// them TIMEOUT and triggers compensation on the very next Advance call.
func (s *Scheduler) sweepTimeouts(ctx context.Context) {
	pending, err := s.store.ListPending(ctx, s.cfg.ListBatchSize)
	if err != nil {
		s.logger.Warn("timeout sweep: list pending failed", zap.Error(err))
		return
	}
	now := time.Now()
	for _, sg := range pending {
		if sg.StartedAt == nil || sg.TimeoutMs <= 0 {
			continue
		}
		if now.Sub(*sg.StartedAt) <= time.Duration(sg.TimeoutMs)*time.Millisecond {
			continue
		}
		if err := s.orch.Execute(ctx, sg.SagaID); err != nil {
			s.logger.Warn("timeout sweep: execute failed", zap.String("saga_id", sg.SagaID), zap.Error(err))
		}
	}
}

// sweepRetryable finds FAILED sagas still under their retry budget and, if
// auto-retry is enabled, re-enqueues them. Disabled by default per §4.10 —
// a FAILED saga otherwise waits for an operator-initiated Retry.
func (s *Scheduler) sweepRetryable(ctx context.Context) {
	if !s.cfg.AutoRetryEnabled {
		return
	}
	failed, err := s.store.ListByStatus(ctx, saga.StatusFailed, s.cfg.ListBatchSize)
	if err != nil {
		s.logger.Warn("retry sweep: list failed failed", zap.Error(err))
		return
	}
	for _, sg := range failed {
		if sg.RetryCount >= sg.MaxRetries {
			continue
		}
		if _, err := s.orch.Retry(ctx, sg.SagaID); err != nil {
			s.logger.Warn("retry sweep: retry failed", zap.String("saga_id", sg.SagaID), zap.Error(err))
		}
	}
}

// sweepCleanup deletes terminal sagas older than the retention window.
// ListPending never returns terminal sagas, so this walks each terminal
// status explicitly.
func (s *Scheduler) sweepCleanup(ctx context.Context) {
	s.bulkDeleteOlderThan(ctx, time.Now().Add(-s.cfg.Retention))
}

// BulkDeleteOlderThan is the public entry point for an on-demand cleanup
// (the REST admin surface can call this directly rather than waiting for
// the next hourly tick).
func (s *Scheduler) BulkDeleteOlderThan(ctx context.Context, cutoff time.Time) int {
	return s.bulkDeleteOlderThan(ctx, cutoff)
}

func (s *Scheduler) bulkDeleteOlderThan(ctx context.Context, cutoff time.Time) int {
	terminal := []saga.Status{saga.StatusCompleted, saga.StatusFailed, saga.StatusCompensated, saga.StatusTimeout}
	deleted := 0
	for _, status := range terminal {
		sagas, err := s.store.ListByStatus(ctx, status, s.cfg.ListBatchSize)
		if err != nil {
			s.logger.Warn("cleanup sweep: list failed", zap.String("status", string(status)), zap.Error(err))
			continue
		}
		for _, sg := range sagas {
			if sg.CompletedAt == nil || sg.CompletedAt.After(cutoff) {
				continue
			}
			if err := s.store.Delete(ctx, sg.SagaID); err != nil {
				s.logger.Warn("cleanup sweep: delete failed", zap.String("saga_id", sg.SagaID), zap.Error(err))
				continue
			}
			deleted++
		}
	}
	return deleted
}

func (s *Scheduler) pushMetrics(ctx context.Context) {
	snapshot := s.metrics.Snapshot()
	_ = s.events.Publish(ctx, eventbus.Event{
		Type:       "METRICS_SNAPSHOT",
		OccurredAt: time.Now(),
		Detail: map[string]interface{}{
			"sagas_started":         snapshot.SagasStarted,
			"sagas_completed":       snapshot.SagasCompleted,
			"sagas_failed":          snapshot.SagasFailed,
			"sagas_compensated":     snapshot.SagasCompensated,
			"steps_executed":        snapshot.StepsExecuted,
			"steps_failed":          snapshot.StepsFailed,
			"step_duration_ema_s":   snapshot.StepDurationEMASecs,
			"saga_duration_ema_s":   snapshot.SagaDurationEMASecs,
		},
	})
}
