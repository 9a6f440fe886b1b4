// Package concurrency provides the engine's three named worker pools
// (§5): saga-exec, step-exec and compensation, each with its own bounded
// queue and caller-runs backpressure so a saturated pool slows its
// producer instead of dropping or blocking indefinitely.
package concurrency

import (
	"context"
	"sync"
	"sync/atomic"

	orcherrors "sagaorchestrator/internal/errors"
)

// PoolConfig sizes one named pool. Core is the number of goroutines
// started eagerly; Max is never exceeded because the pool has no dynamic
// scale-up — core workers drain the queue, and a full queue triggers
// caller-runs instead of spawning beyond Max.
type PoolConfig struct {
	Name      string
	Core      int
	Max       int
	QueueSize int
}

// Pools returns the three default pool configurations from §5's table.
func Pools() map[string]PoolConfig {
	return map[string]PoolConfig{
		"saga-exec":    {Name: "saga-exec", Core: 50, Max: 200, QueueSize: 2000},
		"step-exec":    {Name: "step-exec", Core: 100, Max: 400, QueueSize: 2000},
		"compensation": {Name: "compensation", Core: 10, Max: 50, QueueSize: 200},
	}
}

// Pool is a bounded worker pool with caller-runs backpressure.
type Pool struct {
	cfg     PoolConfig
	tasks   chan func(context.Context)
	active  atomic.Int64
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	onDepth func(name string, active int)
}

// NewPool starts cfg.Core workers draining a queue of size cfg.QueueSize.
// onDepth, if non-nil, is called after every dispatch with the pool's
// current active-worker count (used to feed metrics.SetActiveWorkers).
func NewPool(ctx context.Context, cfg PoolConfig, onDepth func(name string, active int)) *Pool {
	pctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		cfg:     cfg,
		tasks:   make(chan func(context.Context), cfg.QueueSize),
		ctx:     pctx,
		cancel:  cancel,
		onDepth: onDepth,
	}
	for i := 0; i < cfg.Core; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.run(task)
		}
	}
}

func (p *Pool) run(task func(context.Context)) {
	p.active.Add(1)
	if p.onDepth != nil {
		p.onDepth(p.cfg.Name, int(p.active.Load()))
	}
	defer func() {
		p.active.Add(-1)
		if p.onDepth != nil {
			p.onDepth(p.cfg.Name, int(p.active.Load()))
		}
	}()
	task(p.ctx)
}

// Submit enqueues task. If the queue is full, the calling goroutine runs
// the task inline (caller-runs) rather than blocking on or overflowing the
// queue — the spec's stated rejection policy, which also means Submit
// itself may take as long as task does.
func (p *Pool) Submit(task func(context.Context)) error {
	select {
	case <-p.ctx.Done():
		return orcherrors.NewError(orcherrors.StoreError, "pool "+p.cfg.Name+" is shutting down").Build()
	default:
	}

	select {
	case p.tasks <- task:
		return nil
	default:
		p.run(task)
		return nil
	}
}

// Shutdown stops accepting new work, drains in-flight tasks, and waits for
// every worker goroutine to exit.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.cancel()
	close(p.tasks)
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns the current number of in-flight tasks.
func (p *Pool) Active() int { return int(p.active.Load()) }

// Group owns all three named pools and exposes them by name so callers
// don't need to thread three separate pool references through the engine.
type Group struct {
	SagaExec     *Pool
	StepExec     *Pool
	Compensation *Pool
}

// NewGroup constructs the three pools from Pools(), wiring onDepth to
// report into a metrics sink.
func NewGroup(ctx context.Context, onDepth func(name string, active int)) *Group {
	cfgs := Pools()
	return &Group{
		SagaExec:     NewPool(ctx, cfgs["saga-exec"], onDepth),
		StepExec:     NewPool(ctx, cfgs["step-exec"], onDepth),
		Compensation: NewPool(ctx, cfgs["compensation"], onDepth),
	}
}

// Shutdown drains all three pools, stopping at the first error.
func (g *Group) Shutdown(ctx context.Context) error {
	for _, p := range []*Pool{g.SagaExec, g.StepExec, g.Compensation} {
		if err := p.Shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}
