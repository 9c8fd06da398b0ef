// Package breaker implements a per-canonical-model circuit breaker: closed,
// open, and half-open states gating whether the router may select a model.
package breaker

import (
	"sync"
	"time"
)

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

// Config tunes the breaker's thresholds and recovery timing.
type Config struct {
	FailureThreshold    int
	SuccessThreshold    int
	RecoveryTimeout     time.Duration
	HalfOpenMaxRequests int
}

// DefaultConfig closes after one success in half-open, matching the
// single-probe recovery the router relies on.
func DefaultConfig() Config {
	return Config{FailureThreshold: 3, SuccessThreshold: 1, RecoveryTimeout: 30 * time.Second, HalfOpenMaxRequests: 1}
}

// Breaker is a single model's state machine. Mutations from success/failure
// recording, and the read of State that may transition open->half-open, are
// both serialized by mu.
type Breaker struct {
	mu              sync.Mutex
	name            string
	state           State
	failureCount    int
	successCount    int
	halfOpenCount   int
	lastFailureTime time.Time
	cfg             Config
	onStateChange   func(name string, from, to State)
}

func New(name string, cfg Config) *Breaker {
	return &Breaker{name: name, state: StateClosed, cfg: cfg}
}

// OnStateChange registers a callback invoked outside the lock on every
// transition.
func (b *Breaker) OnStateChange(fn func(name string, from, to State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = fn
}

// IsAvailable is true in Closed and Half-Open. A read here may itself
// trigger the Open -> HalfOpen transition once the recovery timeout has
// elapsed, so it must be performed under the lock like Allow. Unlike Allow,
// it does not use up a half-open probe slot.
func (b *Breaker) IsAvailable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if time.Since(b.lastFailureTime) >= b.cfg.RecoveryTimeout {
			b.transitionLocked(StateHalfOpen)
			b.halfOpenCount = 0
			return true
		}
	}
	return false
}

// Allow reports whether a new attempt may proceed, performing the lazy
// Open -> HalfOpen transition when the recovery timeout has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.lastFailureTime) >= b.cfg.RecoveryTimeout {
			b.transitionLocked(StateHalfOpen)
			b.halfOpenCount = 1
			return true
		}
		return false
	case StateHalfOpen:
		if b.halfOpenCount < b.cfg.HalfOpenMaxRequests {
			b.halfOpenCount++
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess resets the failure count and, from any state, returns the
// breaker to closed once the success threshold (default 1) is met.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successCount++
	if b.successCount >= max(b.cfg.SuccessThreshold, 1) {
		b.failureCount = 0
		b.successCount = 0
		b.halfOpenCount = 0
		b.transitionLocked(StateClosed)
	}
}

// RecordFailure increments the failure count in Closed (opening the circuit
// past the threshold) or immediately reopens a Half-Open circuit, preserving
// the failure count across that reopen.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailureTime = time.Now()

	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		b.successCount = 0
		b.transitionLocked(StateOpen)
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Name() string { return b.name }

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount, b.successCount, b.halfOpenCount = 0, 0, 0
	b.transitionLocked(StateClosed)
}

func (b *Breaker) transitionLocked(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	if b.onStateChange != nil {
		go b.onStateChange(b.name, from, to)
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
