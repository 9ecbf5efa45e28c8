// Package ratelimit implements four rate limiting algorithms (token
// bucket, sliding window, fixed window, leaky bucket) plus an adaptive
// wrapper that halves the effective rate on HTTP 429 and recovers it
// gradually. All four share the Limiter shape so the engine can swap
// between them by configuration alone.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is satisfied by every algorithm implementation. Wait blocks
// until the caller may proceed or ctx is done; Allow is the
// non-blocking equivalent used by callers that want to drop rather
// than queue on overflow.
type Limiter interface {
	Wait(ctx context.Context) error
	Allow() bool
	CurrentRate() float64
}

// TokenBucket wraps golang.org/x/time/rate.Limiter.
type TokenBucket struct {
	mu      sync.RWMutex
	limiter *rate.Limiter
	rps     float64
}

// NewTokenBucket creates a token bucket limiter with the given
// steady-state rate and burst capacity.
func NewTokenBucket(requestsPerSecond float64, capacity int) *TokenBucket {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	if capacity <= 0 {
		capacity = int(requestsPerSecond)
		if capacity < 1 {
			capacity = 1
		}
	}
	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), capacity),
		rps:     requestsPerSecond,
	}
}

func (t *TokenBucket) Wait(ctx context.Context) error {
	t.mu.RLock()
	l := t.limiter
	t.mu.RUnlock()
	return l.Wait(ctx)
}

func (t *TokenBucket) Allow() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.limiter.Allow()
}

func (t *TokenBucket) CurrentRate() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rps
}

// SetRate replaces the limiter's rate while keeping its current burst
// capacity, used by the adaptive wrapper to scale the effective rate
// up or down without losing accumulated tokens unnecessarily.
func (t *TokenBucket) SetRate(rps float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rps <= 0 {
		rps = 0.01
	}
	burst := t.limiter.Burst()
	t.limiter.SetLimit(rate.Limit(rps))
	t.limiter.SetBurst(burst)
	t.rps = rps
}
