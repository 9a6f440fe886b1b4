// Package ratelimit implements the composite per-service rate limiter
// (§4.3): a burst token bucket plus sliding per-minute and per-hour
// windows, all of which must allow a request before it proceeds.
package ratelimit

import (
	"context"
	"sync"
	"time"

	orcherrors "sagaorchestrator/internal/errors"
)

// Limiter is satisfied by each individual window; Allow reports whether one
// more request fits, consuming capacity if so.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

// window is a sliding-window counter: requests older than windowSize are
// dropped before the limit is checked.
type window struct {
	mu         sync.Mutex
	limit      int
	windowSize time.Duration
	requests   map[string][]time.Time
}

func newWindow(limit int, windowSize time.Duration) *window {
	return &window{limit: limit, windowSize: windowSize, requests: make(map[string][]time.Time)}
}

func (w *window) Allow(ctx context.Context, key string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-w.windowSize)

	kept := w.requests[key][:0]
	for _, t := range w.requests[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= w.limit {
		w.requests[key] = kept
		return false, nil
	}
	w.requests[key] = append(kept, now)
	return true, nil
}

func (w *window) Reset(ctx context.Context, key string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.requests, key)
	return nil
}

// bucket is a token bucket used for the burst window: a short window with a
// hard cap and no smoothing, refilled wholesale once it empties past its
// duration.
type bucket struct {
	mu       sync.Mutex
	limit    int
	interval time.Duration
	used     map[string]int
	resetAt  map[string]time.Time
}

func newBucket(limit int, interval time.Duration) *bucket {
	return &bucket{limit: limit, interval: interval, used: make(map[string]int), resetAt: make(map[string]time.Time)}
}

func (b *bucket) Allow(ctx context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if now.After(b.resetAt[key]) {
		b.used[key] = 0
		b.resetAt[key] = now.Add(b.interval)
	}
	if b.used[key] >= b.limit {
		return false, nil
	}
	b.used[key]++
	return true, nil
}

func (b *bucket) Reset(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.used, key)
	delete(b.resetAt, key)
	return nil
}

// Config sets the three window sizes the composite limiter enforces
// together (§4.3's worked defaults: 10/burst, 100/minute, 1000/hour).
type Config struct {
	BurstLimit    int
	BurstInterval time.Duration
	PerMinute     int
	PerHour       int
}

// DefaultConfig matches the spec's worked example.
func DefaultConfig() Config {
	return Config{
		BurstLimit:    10,
		BurstInterval: time.Second,
		PerMinute:     100,
		PerHour:       1000,
	}
}

// Composite enforces burst, per-minute and per-hour windows together; a
// request must pass all three, keyed by service identity.
type Composite struct {
	burst  *bucket
	minute *window
	hour   *window
}

// New builds a Composite from cfg.
func New(cfg Config) *Composite {
	return &Composite{
		burst:  newBucket(cfg.BurstLimit, cfg.BurstInterval),
		minute: newWindow(cfg.PerMinute, time.Minute),
		hour:   newWindow(cfg.PerHour, time.Hour),
	}
}

// Allow returns errors.RateLimited if any window rejects the request for
// key (typically the target service identity), nil otherwise.
func (c *Composite) Allow(ctx context.Context, key string) error {
	for _, l := range []Limiter{c.burst, c.minute, c.hour} {
		ok, err := l.Allow(ctx, key)
		if err != nil {
			return orcherrors.NewError(orcherrors.RateLimited, "rate limiter error").WithCause(err).Build()
		}
		if !ok {
			return orcherrors.NewError(orcherrors.RateLimited, "rate limit exceeded for "+key).
				WithRetryable(true).Build()
		}
	}
	return nil
}

// Reset clears all three windows for key, used by the admin reset endpoint.
func (c *Composite) Reset(ctx context.Context, key string) error {
	_ = c.burst.Reset(ctx, key)
	_ = c.minute.Reset(ctx, key)
	_ = c.hour.Reset(ctx, key)
	return nil
}
