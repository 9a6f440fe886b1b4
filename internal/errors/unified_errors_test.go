package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorBuilder_Defaults(t *testing.T) {
	err := NewError(StepTransient, "http call failed").Build()

	assert.Equal(t, StepTransient, err.Kind)
	assert.Equal(t, SeverityMedium, err.Severity)
	assert.True(t, err.Retryable)
}

func TestErrorBuilder_CompensationFailedDefaultsCritical(t *testing.T) {
	err := NewError(CompensationFailed, "compensation failed: charge-card").Build()

	assert.Equal(t, SeverityCritical, err.Severity)
	assert.False(t, err.Retryable)
}

func TestErrorBuilder_WithOverrides(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(StepTerminal, "payment step failed").
		WithSaga("saga-1").
		WithStep("step-3").
		WithSeverity(SeverityHigh).
		WithCause(cause).
		Build()

	assert.Equal(t, "saga-1", err.SagaID)
	assert.Equal(t, "step-3", err.StepID)
	assert.Equal(t, SeverityHigh, err.Severity)
	assert.ErrorIs(t, err, cause)
}

func TestOrchestratorError_ErrorString(t *testing.T) {
	err := NewError(StepTimeout, "timed out").WithSaga("s1").WithStep("st1").Build()
	assert.Contains(t, err.Error(), "s1")
	assert.Contains(t, err.Error(), "st1")
	assert.Contains(t, err.Error(), "timed out")
}

func TestIsKind(t *testing.T) {
	err := NewError(StaleVersion, "version mismatch").Build()
	assert.True(t, IsKind(err, StaleVersion))
	assert.False(t, IsKind(err, CircuitOpen))
	assert.False(t, IsKind(errors.New("plain"), StaleVersion))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewError(StepTransient, "x").Build()))
	assert.False(t, IsRetryable(NewError(Validation, "bad input").Build()))
}

func TestWrap_PreservesExistingClassification(t *testing.T) {
	inner := NewError(StoreError, "write failed").WithSaga("s1").Build()
	wrapped := Wrap(inner, "s1")

	require.NotNil(t, wrapped)
	assert.Equal(t, StoreError, wrapped.Kind)
	assert.Equal(t, "s1", wrapped.SagaID)
}

func TestWrap_UnclassifiedBecomesStoreError(t *testing.T) {
	wrapped := Wrap(errors.New("boom"), "s2")

	require.NotNil(t, wrapped)
	assert.Equal(t, StoreError, wrapped.Kind)
	assert.Equal(t, "s2", wrapped.SagaID)
	assert.True(t, wrapped.Retryable)
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "s1"))
}
