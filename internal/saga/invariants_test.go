package saga

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSaga() *Saga {
	steps := []Step{
		{StepID: "s1", Name: "reserve-inventory", Type: StepTypeHTTPCall, Required: true, Compensatable: true,
			CompensationConfig: &CompensationConfig{Type: StepTypeHTTPCall}},
		{StepID: "s2", Name: "charge-card", Type: StepTypeHTTPCall, Required: true, Compensatable: true,
			CompensationConfig: &CompensationConfig{Type: StepTypeHTTPCall}},
	}
	return New("saga-1", "checkout", steps, map[string]interface{}{"order_id": "o1"})
}

func TestNew_AssignsOrderAndDefaults(t *testing.T) {
	s := newTestSaga()

	assert.Equal(t, 0, s.Steps[0].Order)
	assert.Equal(t, 1, s.Steps[1].Order)
	assert.Equal(t, StatusCreated, s.Status)
	assert.Equal(t, StepStatusCreated, s.Steps[0].Status)
	assert.Equal(t, 30000, s.Steps[0].TimeoutMs)
	assert.Equal(t, 3, s.Steps[0].MaxRetries)
}

func TestValidate_RejectsMissingSagaID(t *testing.T) {
	s := newTestSaga()
	s.SagaID = ""
	require.Error(t, s.Validate())
}

func TestValidate_RejectsOutOfOrderSteps(t *testing.T) {
	s := newTestSaga()
	s.Steps[1].Order = 5
	require.Error(t, s.Validate())
}

func TestValidate_RejectsIndexOutOfBounds(t *testing.T) {
	s := newTestSaga()
	s.CurrentStepIndex = 10
	require.Error(t, s.Validate())
}

func TestValidate_TerminalRequiresCompletedAt(t *testing.T) {
	s := newTestSaga()
	s.Status = StatusCompleted
	require.Error(t, s.Validate())

	now := time.Now()
	s.CompletedAt = &now
	assert.NoError(t, s.Validate())
}

func TestValidate_NonTerminalRejectsCompletedAt(t *testing.T) {
	s := newTestSaga()
	now := time.Now()
	s.CompletedAt = &now
	require.Error(t, s.Validate())
}

func TestAllStepsTerminal(t *testing.T) {
	s := newTestSaga()
	assert.False(t, s.AllStepsTerminal())

	s.Steps[0].Status = StepStatusCompleted
	s.Steps[1].Status = StepStatusCompleted
	assert.True(t, s.AllStepsTerminal())
}

func TestCompensatableSteps_ReverseOrder(t *testing.T) {
	s := newTestSaga()
	s.Steps[0].Status = StepStatusCompleted
	s.Steps[1].Status = StepStatusCompleted

	comp := s.CompensatableSteps()
	require.Len(t, comp, 2)
	assert.Equal(t, "s2", comp[0].StepID)
	assert.Equal(t, "s1", comp[1].StepID)
}

func TestCurrentStep_OutOfBoundsReturnsNil(t *testing.T) {
	s := newTestSaga()
	s.CurrentStepIndex = len(s.Steps)
	assert.Nil(t, s.CurrentStep())
}

func TestMergeOutput_LaterOverwritesEarlier(t *testing.T) {
	s := newTestSaga()
	s.MergeOutput(map[string]interface{}{"a": 1})
	s.MergeOutput(map[string]interface{}{"a": 2, "b": 3})

	assert.Equal(t, 2, s.OutputData["a"])
	assert.Equal(t, 3, s.OutputData["b"])
}
