// Package metrics holds the orchestrator's lock-free runtime counters
// (§5): atomics updated on every hot-path event, mirrored into a Prometheus
// registry for scraping via GET /api/v1/metrics and /metrics.
package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// the moving averages of step and saga duration follow the averaging rule
// avg ← (avg + observed) / 2 — equal weight to history and the latest
// sample, not a tunable exponential smoothing factor.

// Registry holds atomic counters for the hot path plus the Prometheus
// metrics they mirror into. Every Record* method is lock-free: it is safe
// to call from as many goroutines as the worker pools run.
type Registry struct {
	sagasStarted    uint64
	sagasCompleted  uint64
	sagasFailed     uint64
	sagasCompensated uint64
	stepsExecuted   uint64
	stepsFailed     uint64
	stepsRetried    uint64
	compensationsRun uint64
	compensationsFailed uint64

	// stored as math.Float64bits so they can live in an atomic.Uint64
	stepDurationEMA atomic.Uint64
	sagaDurationEMA atomic.Uint64

	// keyed aggregates (step type, service identity) can't live in plain
	// atomics, so they share one mutex. Still cheap: held only for a map
	// lookup plus a couple of field updates, never across a blocking call.
	mu              sync.Mutex
	stepTypeStats   map[string]*stepTypeStat
	breakerStats    map[string]*breakerStat
	rateLimitEvents map[string]uint64

	promSagaTotal          *prometheus.CounterVec
	promStepTotal          *prometheus.CounterVec
	promStepTypeTotal      *prometheus.CounterVec
	promCompensationTotal  *prometheus.CounterVec
	promStepDuration       prometheus.Histogram
	promStepTypeDuration   *prometheus.HistogramVec
	promSagaDuration       prometheus.Histogram
	promActiveWorkers      *prometheus.GaugeVec
	promBreakerTrips       *prometheus.CounterVec
	promBreakerResets      *prometheus.CounterVec
	promRateLimitExceeded  *prometheus.CounterVec
}

// stepTypeStat tracks per-step-type execution/failure counts and a duration
// EMA, mirroring the Registry-wide fields but broken out by step type
// (§4.4's required per-type breakdown).
type stepTypeStat struct {
	executed    uint64
	failed      uint64
	durationEMA float64
}

// breakerStat tracks how often a service's circuit breaker has tripped
// (gone OPEN) and reset (gone back to CLOSED).
type breakerStat struct {
	trips  uint64
	resets uint64
}

// New builds a Registry and registers its Prometheus series under reg.
func New(reg prometheus.Registerer, namespace string) *Registry {
	r := &Registry{
		stepTypeStats:   make(map[string]*stepTypeStat),
		breakerStats:    make(map[string]*breakerStat),
		rateLimitEvents: make(map[string]uint64),

		promSagaTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sagas_total", Help: "Sagas by terminal outcome.",
		}, []string{"outcome"}),
		promStepTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "steps_total", Help: "Steps executed by outcome.",
		}, []string{"outcome"}),
		promStepTypeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "steps_by_type_total", Help: "Steps executed by step type and outcome.",
		}, []string{"step_type", "outcome"}),
		promCompensationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "compensations_total", Help: "Compensations run by outcome.",
		}, []string{"outcome"}),
		promStepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "step_duration_seconds", Help: "Step execution duration.",
			Buckets: prometheus.DefBuckets,
		}),
		promStepTypeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "step_duration_by_type_seconds", Help: "Step execution duration by step type.",
			Buckets: prometheus.DefBuckets,
		}, []string{"step_type"}),
		promSagaDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "saga_duration_seconds", Help: "End-to-end saga duration.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		promActiveWorkers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "worker_pool_active", Help: "Active goroutines per worker pool.",
		}, []string{"pool"}),
		promBreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "circuit_breaker_trips_total", Help: "Circuit breaker OPEN transitions by service.",
		}, []string{"service"}),
		promBreakerResets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "circuit_breaker_resets_total", Help: "Circuit breaker CLOSED transitions by service.",
		}, []string{"service"}),
		promRateLimitExceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rate_limit_exceeded_total", Help: "Rejected requests by service due to rate limiting.",
		}, []string{"service"}),
	}
	reg.MustRegister(r.promSagaTotal, r.promStepTotal, r.promStepTypeTotal, r.promCompensationTotal,
		r.promStepDuration, r.promStepTypeDuration, r.promSagaDuration, r.promActiveWorkers,
		r.promBreakerTrips, r.promBreakerResets, r.promRateLimitExceeded)
	return r
}

func loadFloat(a *atomic.Uint64) float64 {
	return math.Float64frombits(a.Load())
}

func updateEMA(a *atomic.Uint64, sample float64) {
	for {
		old := a.Load()
		oldVal := math.Float64frombits(old)
		var next float64
		if oldVal == 0 {
			next = sample
		} else {
			next = (oldVal + sample) / 2
		}
		if a.CompareAndSwap(old, math.Float64bits(next)) {
			return
		}
	}
}

// RecordSagaStarted increments the started counter.
func (r *Registry) RecordSagaStarted() {
	atomic.AddUint64(&r.sagasStarted, 1)
}

// RecordSagaCompleted records a terminal saga outcome and its total
// duration.
func (r *Registry) RecordSagaCompleted(outcome string, duration time.Duration) {
	switch outcome {
	case "completed":
		atomic.AddUint64(&r.sagasCompleted, 1)
	case "failed":
		atomic.AddUint64(&r.sagasFailed, 1)
	case "compensated":
		atomic.AddUint64(&r.sagasCompensated, 1)
	}
	updateEMA(&r.sagaDurationEMA, duration.Seconds())
	r.promSagaTotal.WithLabelValues(outcome).Inc()
	r.promSagaDuration.Observe(duration.Seconds())
}

// RecordStep records one step execution outcome and duration, broken out by
// stepType (§4.4's per-step-type execution/failure counts and moving-average
// duration) as well as the registry-wide aggregate.
func (r *Registry) RecordStep(stepType, outcome string, duration time.Duration) {
	atomic.AddUint64(&r.stepsExecuted, 1)
	if outcome == "failed" {
		atomic.AddUint64(&r.stepsFailed, 1)
	}
	updateEMA(&r.stepDurationEMA, duration.Seconds())
	r.promStepTotal.WithLabelValues(outcome).Inc()
	r.promStepDuration.Observe(duration.Seconds())

	r.mu.Lock()
	stat, ok := r.stepTypeStats[stepType]
	if !ok {
		stat = &stepTypeStat{}
		r.stepTypeStats[stepType] = stat
	}
	stat.executed++
	if outcome == "failed" {
		stat.failed++
	}
	if stat.durationEMA == 0 {
		stat.durationEMA = duration.Seconds()
	} else {
		stat.durationEMA = (stat.durationEMA + duration.Seconds()) / 2
	}
	r.mu.Unlock()

	r.promStepTypeTotal.WithLabelValues(stepType, outcome).Inc()
	r.promStepTypeDuration.WithLabelValues(stepType).Observe(duration.Seconds())
}

// RecordStepRetried records a step being retried after a transient failure.
func (r *Registry) RecordStepRetried() {
	atomic.AddUint64(&r.stepsRetried, 1)
}

// RecordCompensation records one compensation run outcome.
func (r *Registry) RecordCompensation(outcome string) {
	atomic.AddUint64(&r.compensationsRun, 1)
	if outcome == "failed" {
		atomic.AddUint64(&r.compensationsFailed, 1)
	}
	r.promCompensationTotal.WithLabelValues(outcome).Inc()
}

// SetActiveWorkers reports the current goroutine count for a named pool.
func (r *Registry) SetActiveWorkers(pool string, count int) {
	r.promActiveWorkers.WithLabelValues(pool).Set(float64(count))
}

// RecordCircuitTrip records a service's circuit breaker going OPEN.
func (r *Registry) RecordCircuitTrip(service string) {
	r.mu.Lock()
	stat, ok := r.breakerStats[service]
	if !ok {
		stat = &breakerStat{}
		r.breakerStats[service] = stat
	}
	stat.trips++
	r.mu.Unlock()
	r.promBreakerTrips.WithLabelValues(service).Inc()
}

// RecordCircuitReset records a service's circuit breaker going back to
// CLOSED, whether by successful HALF_OPEN probes or an admin reset.
func (r *Registry) RecordCircuitReset(service string) {
	r.mu.Lock()
	stat, ok := r.breakerStats[service]
	if !ok {
		stat = &breakerStat{}
		r.breakerStats[service] = stat
	}
	stat.resets++
	r.mu.Unlock()
	r.promBreakerResets.WithLabelValues(service).Inc()
}

// RecordRateLimited records a request rejected by the rate limiter for
// service.
func (r *Registry) RecordRateLimited(service string) {
	r.mu.Lock()
	r.rateLimitEvents[service]++
	r.mu.Unlock()
	r.promRateLimitExceeded.WithLabelValues(service).Inc()
}

// StepTypeSnapshot is one step type's slice of the per-type breakdown.
type StepTypeSnapshot struct {
	Executed            uint64  `json:"executed"`
	Failed              uint64  `json:"failed"`
	DurationEMASecs     float64 `json:"duration_ema_seconds"`
}

// BreakerSnapshot is one service's circuit breaker trip/reset counts.
type BreakerSnapshot struct {
	Trips  uint64 `json:"trips"`
	Resets uint64 `json:"resets"`
}

// Snapshot is the read-only view returned by the GET /api/v1/metrics
// introspection endpoint.
type Snapshot struct {
	SagasStarted        uint64  `json:"sagas_started"`
	SagasCompleted      uint64  `json:"sagas_completed"`
	SagasFailed         uint64  `json:"sagas_failed"`
	SagasCompensated    uint64  `json:"sagas_compensated"`
	StepsExecuted       uint64  `json:"steps_executed"`
	StepsFailed         uint64  `json:"steps_failed"`
	StepsRetried        uint64  `json:"steps_retried"`
	CompensationsRun    uint64  `json:"compensations_run"`
	CompensationsFailed uint64  `json:"compensations_failed"`
	StepDurationEMASecs float64 `json:"step_duration_ema_seconds"`
	SagaDurationEMASecs float64 `json:"saga_duration_ema_seconds"`

	StepsByType      map[string]StepTypeSnapshot `json:"steps_by_type"`
	BreakersByService map[string]BreakerSnapshot `json:"breakers_by_service"`
	RateLimitedByService map[string]uint64       `json:"rate_limited_by_service"`
}

// Snapshot reads every counter atomically (each individually, not as one
// transaction — acceptable for a point-in-time monitoring view).
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	stepsByType := make(map[string]StepTypeSnapshot, len(r.stepTypeStats))
	for k, v := range r.stepTypeStats {
		stepsByType[k] = StepTypeSnapshot{Executed: v.executed, Failed: v.failed, DurationEMASecs: v.durationEMA}
	}
	breakersByService := make(map[string]BreakerSnapshot, len(r.breakerStats))
	for k, v := range r.breakerStats {
		breakersByService[k] = BreakerSnapshot{Trips: v.trips, Resets: v.resets}
	}
	rateLimited := make(map[string]uint64, len(r.rateLimitEvents))
	for k, v := range r.rateLimitEvents {
		rateLimited[k] = v
	}
	r.mu.Unlock()

	return Snapshot{
		SagasStarted:        atomic.LoadUint64(&r.sagasStarted),
		SagasCompleted:      atomic.LoadUint64(&r.sagasCompleted),
		SagasFailed:         atomic.LoadUint64(&r.sagasFailed),
		SagasCompensated:    atomic.LoadUint64(&r.sagasCompensated),
		StepsExecuted:       atomic.LoadUint64(&r.stepsExecuted),
		StepsFailed:         atomic.LoadUint64(&r.stepsFailed),
		StepsRetried:        atomic.LoadUint64(&r.stepsRetried),
		CompensationsRun:    atomic.LoadUint64(&r.compensationsRun),
		CompensationsFailed: atomic.LoadUint64(&r.compensationsFailed),
		StepDurationEMASecs: loadFloat(&r.stepDurationEMA),
		SagaDurationEMASecs: loadFloat(&r.sagaDurationEMA),
		StepsByType:          stepsByType,
		BreakersByService:    breakersByService,
		RateLimitedByService: rateLimited,
	}
}
