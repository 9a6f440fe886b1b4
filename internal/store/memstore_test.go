package store

import (
	"context"
	"testing"

	"sagaorchestrator/internal/saga"

	orcherrors "sagaorchestrator/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSaga(id string) *saga.Saga {
	return saga.New(id, "checkout", []saga.Step{
		{StepID: "s1", Name: "reserve", Type: saga.StepTypeHTTPCall, Required: true},
	}, nil)
}

func TestMemStore_SaveThenGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	sg := newSaga("saga-1")

	require.NoError(t, s.Save(ctx, sg))

	got, err := s.Get(ctx, "saga-1")
	require.NoError(t, err)
	assert.Equal(t, "saga-1", got.SagaID)
}

func TestMemStore_Get_NotFound(t *testing.T) {
	s := NewMemStore()
	_, err := s.Get(context.Background(), "missing")
	assert.True(t, IsNotFound(err))
}

func TestMemStore_Save_RejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	sg := newSaga("saga-1")
	require.NoError(t, s.Save(ctx, sg))

	stale := newSaga("saga-1")
	stale.Version = 0
	err := s.Save(ctx, stale)
	require.Error(t, err)
	assert.True(t, orcherrors.IsKind(err, orcherrors.StaleVersion))
}

func TestMemStore_Save_AcceptsSequentialVersionBump(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	sg := newSaga("saga-1")
	require.NoError(t, s.Save(ctx, sg))

	sg.Version = 1
	require.NoError(t, s.Save(ctx, sg))
}

func TestMemStore_ListPending_ExcludesTerminal(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	running := newSaga("saga-running")
	require.NoError(t, s.Save(ctx, running))

	done := newSaga("saga-done")
	done.Status = saga.StatusCompleted
	now := done.CreatedAt
	done.CompletedAt = &now
	require.NoError(t, s.Save(ctx, done))

	pending, err := s.ListPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "saga-running", pending[0].SagaID)
}

func TestMemStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	sg := newSaga("saga-1")
	require.NoError(t, s.Save(ctx, sg))

	require.NoError(t, s.Delete(ctx, "saga-1"))
	_, err := s.Get(ctx, "saga-1")
	assert.True(t, IsNotFound(err))
}
