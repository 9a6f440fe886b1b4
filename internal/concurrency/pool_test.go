package concurrency

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsSubmittedTasks(t *testing.T) {
	ctx := context.Background()
	p := NewPool(ctx, PoolConfig{Name: "t", Core: 2, Max: 2, QueueSize: 4}, nil)
	defer p.Shutdown(ctx)

	var done atomic.Int32
	for i := 0; i < 4; i++ {
		require.NoError(t, p.Submit(func(context.Context) { done.Add(1) }))
	}

	assert.Eventually(t, func() bool { return done.Load() == 4 }, time.Second, time.Millisecond)
}

func TestPool_CallerRunsWhenQueueFull(t *testing.T) {
	ctx := context.Background()
	// Zero core workers: nothing drains the queue, so once it's full every
	// Submit must run inline on the calling goroutine.
	p := NewPool(ctx, PoolConfig{Name: "t", Core: 0, Max: 0, QueueSize: 1}, nil)
	defer p.Shutdown(ctx)

	require.NoError(t, p.Submit(func(context.Context) {})) // fills the queue
	ranInline := false
	require.NoError(t, p.Submit(func(context.Context) { ranInline = true }))
	assert.True(t, ranInline)
}

func TestPool_ShutdownWaitsForInFlight(t *testing.T) {
	ctx := context.Background()
	p := NewPool(ctx, PoolConfig{Name: "t", Core: 1, Max: 1, QueueSize: 1}, nil)

	var ran atomic.Bool
	require.NoError(t, p.Submit(func(context.Context) {
		time.Sleep(20 * time.Millisecond)
		ran.Store(true)
	}))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(shutdownCtx))
	assert.True(t, ran.Load())
}

func TestNewGroup_ThreeNamedPools(t *testing.T) {
	ctx := context.Background()
	g := NewGroup(ctx, nil)
	defer g.Shutdown(ctx)

	assert.NotNil(t, g.SagaExec)
	assert.NotNil(t, g.StepExec)
	assert.NotNil(t, g.Compensation)
}
