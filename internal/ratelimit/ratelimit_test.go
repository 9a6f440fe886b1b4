package ratelimit

import (
	"context"
	"testing"
	"time"

	orcherrors "sagaorchestrator/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposite_AllowsWithinBurstLimit(t *testing.T) {
	c := New(Config{BurstLimit: 3, BurstInterval: time.Minute, PerMinute: 100, PerHour: 1000})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Allow(ctx, "payments"))
	}
}

func TestComposite_RejectsOverBurstLimit(t *testing.T) {
	c := New(Config{BurstLimit: 2, BurstInterval: time.Minute, PerMinute: 100, PerHour: 1000})
	ctx := context.Background()

	require.NoError(t, c.Allow(ctx, "payments"))
	require.NoError(t, c.Allow(ctx, "payments"))

	err := c.Allow(ctx, "payments")
	require.Error(t, err)
	assert.True(t, orcherrors.IsKind(err, orcherrors.RateLimited))
}

func TestComposite_RejectsOverMinuteLimit(t *testing.T) {
	c := New(Config{BurstLimit: 1000, BurstInterval: time.Minute, PerMinute: 1, PerHour: 1000})
	ctx := context.Background()

	require.NoError(t, c.Allow(ctx, "inventory"))
	err := c.Allow(ctx, "inventory")
	require.Error(t, err)
	assert.True(t, orcherrors.IsKind(err, orcherrors.RateLimited))
}

func TestComposite_IndependentKeys(t *testing.T) {
	c := New(Config{BurstLimit: 1, BurstInterval: time.Minute, PerMinute: 100, PerHour: 1000})
	ctx := context.Background()

	require.NoError(t, c.Allow(ctx, "svc-a"))
	require.NoError(t, c.Allow(ctx, "svc-b"))
}

func TestComposite_ResetClearsAllWindows(t *testing.T) {
	c := New(Config{BurstLimit: 1, BurstInterval: time.Minute, PerMinute: 100, PerHour: 1000})
	ctx := context.Background()

	require.NoError(t, c.Allow(ctx, "svc"))
	require.Error(t, c.Allow(ctx, "svc"))

	require.NoError(t, c.Reset(ctx, "svc"))
	require.NoError(t, c.Allow(ctx, "svc"))
}
