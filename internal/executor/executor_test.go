package executor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sagaorchestrator/internal/saga"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ResolvesRequiredVariants(t *testing.T) {
	r := NewRegistry()

	for _, st := range []saga.StepType{saga.StepTypeHTTPCall, saga.StepTypeDatabaseOp, saga.StepTypeWait} {
		_, ok := r.Resolve(st)
		assert.True(t, ok, "expected %s to be registered", st)
	}
}

func TestRegistry_UnregisteredTypeNotFound(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Resolve(saga.StepTypeParallel)
	assert.False(t, ok)
}

func TestHTTPExecutor_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	exec := NewHTTPExecutor(nil)
	step := &saga.Step{Config: saga.StepConfig{"http_method": "GET", "url": srv.URL}}

	result := exec.Execute(context.Background(), step, nil)
	require.True(t, result.Success)
	assert.Equal(t, http.StatusOK, result.Output["status_code"])
}

func TestHTTPExecutor_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	exec := NewHTTPExecutor(nil)
	step := &saga.Step{Config: saga.StepConfig{"http_method": "GET", "url": srv.URL}}

	result := exec.Execute(context.Background(), step, nil)
	assert.False(t, result.Success)
}

func TestHTTPExecutor_MissingURL(t *testing.T) {
	exec := NewHTTPExecutor(nil)
	result := exec.Execute(context.Background(), &saga.Step{Config: saga.StepConfig{}}, nil)
	assert.False(t, result.Success)
}

func TestServiceIdentity_ExtractsHost(t *testing.T) {
	step := &saga.Step{Config: saga.StepConfig{"url": "https://payments.example.com/charge"}}
	assert.Equal(t, "payments.example.com", ServiceIdentity(step))
}

func TestWaitExecutor_SucceedsAfterDelay(t *testing.T) {
	step := &saga.Step{Config: saga.StepConfig{"delay_ms": float64(5)}}
	start := time.Now()
	result := WaitExecutor{}.Execute(context.Background(), step, nil)
	require.True(t, result.Success)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestWaitExecutor_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	step := &saga.Step{Config: saga.StepConfig{"delay_ms": float64(1000)}}
	result := WaitExecutor{}.Execute(ctx, step, nil)
	assert.False(t, result.Success)
}

func TestBusinessLogicExecutor_DispatchesNamedHandler(t *testing.T) {
	exec := NewBusinessLogicExecutor()
	exec.Register("reserve-inventory", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"reserved": true}, nil
	})

	step := &saga.Step{Config: saga.StepConfig{"handler": "reserve-inventory"}}
	result := exec.Execute(context.Background(), step, nil)
	require.True(t, result.Success)
	assert.Equal(t, true, result.Output["reserved"])
}

func TestBusinessLogicExecutor_UnknownHandler(t *testing.T) {
	exec := NewBusinessLogicExecutor()
	step := &saga.Step{Config: saga.StepConfig{"handler": "does-not-exist"}}
	result := exec.Execute(context.Background(), step, nil)
	assert.False(t, result.Success)
}

func TestDatabaseExecutor_NoBindingFailsClosed(t *testing.T) {
	exec := NewNoopDatabaseExecutor()
	step := &saga.Step{Config: saga.StepConfig{"query": "UPDATE x SET y=1"}}
	result := exec.Execute(context.Background(), step, nil)
	assert.False(t, result.Success)
}
