// Package resilience implements the per-endpoint circuit breaker and
// bulkhead-group registry: a Closed/Open/HalfOpen state machine with
// exponential growth of the open-state timeout across repeated trips
// (capped at MaxBackoffMs) and an optional metrics hook per breaker.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents a circuit breaker's current state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config controls one breaker instance.
type Config struct {
	MaxFailures       int
	Timeout           time.Duration
	HalfOpenMax       int
	BackoffMultiplier float64
	MaxTimeout        time.Duration
	OnStateChange     func(from, to State)
}

// DefaultConfig returns the documented out-of-the-box circuit breaker
// defaults.
func DefaultConfig() Config {
	return Config{
		MaxFailures:       5,
		Timeout:           30 * time.Second,
		HalfOpenMax:       3,
		BackoffMultiplier: 2.0,
		MaxTimeout:        60 * time.Second,
	}
}

// Breaker implements the closed/open/half-open circuit breaker pattern
// for a single endpoint.
type Breaker struct {
	mu            sync.RWMutex
	config        Config
	state         State
	failures      int
	successes     int
	halfOpenReqs  int
	lastFailure   time.Time
	currentTimeout time.Duration
	consecutiveTrips int
}

// New creates a Breaker, filling in zero-valued fields from DefaultConfig.
func New(cfg Config) *Breaker {
	d := DefaultConfig()
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = d.MaxFailures
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = d.HalfOpenMax
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = d.BackoffMultiplier
	}
	if cfg.MaxTimeout <= 0 {
		cfg.MaxTimeout = d.MaxTimeout
	}
	return &Breaker{config: cfg, state: StateClosed, currentTimeout: cfg.Timeout}
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Execute runs fn under the breaker's protection, returning
// ErrCircuitOpen or ErrTooManyRequests without calling fn when the
// breaker is not admitting requests.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	if err := b.beforeRequest(); err != nil {
		return err
	}
	err := fn()
	b.afterRequest(err == nil)
	return err
}

// Trip forces the breaker directly to Open, bypassing the
// failure-count threshold. A classified non-retryable error must open
// the breaker immediately regardless of the counter; callers invoke
// this after Execute returns such an error.
func (b *Breaker) Trip() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailure = time.Now()
	b.growTimeout()
	b.setState(StateOpen)
}

func (b *Breaker) beforeRequest() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.lastFailure) > b.currentTimeout {
			b.setState(StateHalfOpen)
			b.halfOpenReqs = 1
			return nil
		}
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.halfOpenReqs >= b.config.HalfOpenMax {
			return ErrTooManyRequests
		}
		b.halfOpenReqs++
	}
	return nil
}

func (b *Breaker) afterRequest(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if success {
		b.onSuccess()
	} else {
		b.onFailure()
	}
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.config.HalfOpenMax {
			b.consecutiveTrips = 0
			b.currentTimeout = b.config.Timeout
			b.setState(StateClosed)
		}
	case StateClosed:
		b.failures = 0
	}
}

func (b *Breaker) onFailure() {
	b.failures++
	b.lastFailure = time.Now()

	switch b.state {
	case StateHalfOpen:
		b.growTimeout()
		b.setState(StateOpen)
	case StateClosed:
		if b.failures >= b.config.MaxFailures {
			b.growTimeout()
			b.setState(StateOpen)
		}
	}
}

// growTimeout extends the open-state duration geometrically on repeated
// trips, capped at MaxTimeout, so a persistently failing endpoint backs
// off further each time rather than hammering it every Timeout interval.
func (b *Breaker) growTimeout() {
	b.consecutiveTrips++
	next := b.config.Timeout
	for i := 1; i < b.consecutiveTrips; i++ {
		next = time.Duration(float64(next) * b.config.BackoffMultiplier)
		if next >= b.config.MaxTimeout {
			next = b.config.MaxTimeout
			break
		}
	}
	b.currentTimeout = next
}

func (b *Breaker) setState(newState State) {
	if b.state == newState {
		return
	}
	old := b.state
	b.state = newState
	b.failures = 0
	b.successes = 0
	b.halfOpenReqs = 0
	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(old, newState)
	}
}
