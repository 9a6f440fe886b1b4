// Package breaker provides a per-service-identity circuit breaker registry
// built on sony/gobreaker, wired to the orchestrator's error taxonomy and
// its admin introspection/reset surface (§4.2, §6).
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	orcherrors "sagaorchestrator/internal/errors"
	"sagaorchestrator/internal/metrics"
)

// Config tunes the trip/reset behavior shared by every service's breaker.
type Config struct {
	// ConsecutiveFailures opens the circuit once a service accrues this many
	// consecutive failures (§4.2's stated trip condition).
	ConsecutiveFailures uint32
	// OpenDuration is how long the circuit stays OPEN before probing
	// HALF_OPEN.
	OpenDuration time.Duration
	// HalfOpenMaxRequests caps concurrent probes while HALF_OPEN.
	HalfOpenMaxRequests uint32
}

// DefaultConfig matches the spec's worked example: open after 5 consecutive
// failures, probe again after 30s, close only after 3 consecutive successes
// in HALF_OPEN.
func DefaultConfig() Config {
	return Config{
		ConsecutiveFailures: 5,
		OpenDuration:        30 * time.Second,
		HalfOpenMaxRequests: 3,
	}
}

// Registry hands out one gobreaker.CircuitBreaker per service identity,
// creating it lazily on first use.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	logger   *zap.Logger
	metrics  *metrics.Registry
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewRegistry returns an empty Registry. metricsReg may be nil, in which
// case trip/reset counts (§4.4) are simply not recorded.
func NewRegistry(cfg Config, logger *zap.Logger, metricsReg *metrics.Registry) *Registry {
	return &Registry{
		cfg:      cfg,
		logger:   logger,
		metrics:  metricsReg,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (r *Registry) get(service string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[service]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        service,
		MaxRequests: r.cfg.HalfOpenMaxRequests,
		Timeout:     r.cfg.OpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Info("circuit breaker state changed",
				zap.String("service", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if r.metrics == nil {
				return
			}
			switch to {
			case gobreaker.StateOpen:
				r.metrics.RecordCircuitTrip(name)
			case gobreaker.StateClosed:
				r.metrics.RecordCircuitReset(name)
			}
		},
	})
	r.breakers[service] = cb
	return cb
}

// Execute runs fn through the named service's breaker, translating a
// gobreaker open/too-many-requests rejection into errors.CircuitOpen.
func (r *Registry) Execute(ctx context.Context, service string, fn func(context.Context) error) error {
	cb := r.get(service)
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return orcherrors.NewError(orcherrors.CircuitOpen, "circuit open for service "+service).
			WithRetryable(true).Build()
	}
	return err
}

// State reports the current state of a service's breaker ("closed" if it
// has never been used).
func (r *Registry) State(service string) string {
	r.mu.Lock()
	cb, ok := r.breakers[service]
	r.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed.String()
	}
	return cb.State().String()
}

// Counts reports the current request counters for a service's breaker.
func (r *Registry) Counts(service string) gobreaker.Counts {
	r.mu.Lock()
	cb, ok := r.breakers[service]
	r.mu.Unlock()
	if !ok {
		return gobreaker.Counts{}
	}
	return cb.Counts()
}

// Services lists every service identity that has a breaker, for the
// GET /api/v1/breakers introspection endpoint.
func (r *Registry) Services() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		out = append(out, name)
	}
	return out
}

// Reset forces a service's breaker back to CLOSED, used by the admin
// POST /api/v1/breakers/{service}/reset endpoint. gobreaker has no native
// force-close, so Reset replaces the breaker with a fresh one.
func (r *Registry) Reset(service string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.breakers, service)
}
