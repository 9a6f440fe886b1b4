package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return New(prometheus.NewRegistry(), "test_saga_orchestrator")
}

func TestRegistry_RecordSagaCompleted(t *testing.T) {
	r := newTestRegistry(t)
	r.RecordSagaStarted()
	r.RecordSagaCompleted("completed", 200*time.Millisecond)

	snap := r.Snapshot()
	assert.EqualValues(t, 1, snap.SagasStarted)
	assert.EqualValues(t, 1, snap.SagasCompleted)
	assert.InDelta(t, 0.2, snap.SagaDurationEMASecs, 0.001)
}

func TestRegistry_RecordStep_TracksFailures(t *testing.T) {
	r := newTestRegistry(t)
	r.RecordStep("http_call", "completed", 10*time.Millisecond)
	r.RecordStep("http_call", "failed", 20*time.Millisecond)

	snap := r.Snapshot()
	assert.EqualValues(t, 2, snap.StepsExecuted)
	assert.EqualValues(t, 1, snap.StepsFailed)
	assert.EqualValues(t, 2, snap.StepsByType["http_call"].Executed)
	assert.EqualValues(t, 1, snap.StepsByType["http_call"].Failed)
}

func TestRegistry_EMA_SmoothsOverSamples(t *testing.T) {
	r := newTestRegistry(t)
	r.RecordStep("http_call", "completed", 1*time.Second)
	first := r.Snapshot().StepDurationEMASecs
	require.InDelta(t, 1.0, first, 0.001)

	r.RecordStep("http_call", "completed", 2*time.Second)
	second := r.Snapshot().StepDurationEMASecs
	assert.Greater(t, second, first)
	assert.Less(t, second, 2.0)
}

func TestRegistry_CircuitBreakerAndRateLimitCounts(t *testing.T) {
	r := newTestRegistry(t)
	r.RecordCircuitTrip("payments")
	r.RecordCircuitTrip("payments")
	r.RecordCircuitReset("payments")
	r.RecordRateLimited("payments")

	snap := r.Snapshot()
	assert.EqualValues(t, 2, snap.BreakersByService["payments"].Trips)
	assert.EqualValues(t, 1, snap.BreakersByService["payments"].Resets)
	assert.EqualValues(t, 1, snap.RateLimitedByService["payments"])
}

func TestRegistry_CompensationOutcomes(t *testing.T) {
	r := newTestRegistry(t)
	r.RecordCompensation("completed")
	r.RecordCompensation("failed")

	snap := r.Snapshot()
	assert.EqualValues(t, 2, snap.CompensationsRun)
	assert.EqualValues(t, 1, snap.CompensationsFailed)
}
