package resilience

import (
	"sync"
	"time"
)

// BreakerState represents the circuit breaker state.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // Normal operation, calls pass through.
	BreakerOpen                         // Calls rejected immediately.
	BreakerHalfOpen                     // Probe calls allowed; halfOpenMax successes close, any failure reopens.
)

// CircuitBreaker implements the circuit breaker pattern per guarded
// operation. Thread-safe: all state transitions use a mutex.
//
// Name identifies the thing being guarded — here, the remote channel a
// ResilientBuilder rebuilds against (its transport address) rather than a
// service name, since this repo's unit of failure is a channel rebuild, not
// an RPC. It has no effect on the state machine; it only rides along in
// ErrCircuitOpen so an operator can tell which channel tripped.
type CircuitBreaker struct {
	mu           sync.Mutex
	name         string
	state        BreakerState
	failures     int
	successes    int
	threshold    int           // failures before opening
	resetTimeout time.Duration // how long to stay open before half-open
	halfOpenMax  int           // successes in half-open before closing
	lastFailure  time.Time
	lastErr      error            // most recent failure, for diagnostics
	now          func() time.Time // injectable clock for testing
}

// BreakerOption configures a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithBreakerThreshold sets the failure count that trips the breaker open.
func WithBreakerThreshold(n int) BreakerOption {
	return func(cb *CircuitBreaker) { cb.threshold = n }
}

// WithBreakerResetTimeout sets how long the breaker stays open before
// transitioning to half-open.
func WithBreakerResetTimeout(d time.Duration) BreakerOption {
	return func(cb *CircuitBreaker) { cb.resetTimeout = d }
}

// WithBreakerHalfOpenMax sets how many consecutive successes in half-open
// are needed to close the breaker.
func WithBreakerHalfOpenMax(n int) BreakerOption {
	return func(cb *CircuitBreaker) { cb.halfOpenMax = n }
}

// WithBreakerClock sets a custom clock function (for testing).
func WithBreakerClock(fn func() time.Time) BreakerOption {
	return func(cb *CircuitBreaker) { cb.now = fn }
}

// WithBreakerName labels the breaker with the channel identity it guards
// (e.g. a transport address), carried into ErrCircuitOpen and diagnostics.
func WithBreakerName(name string) BreakerOption {
	return func(cb *CircuitBreaker) { cb.name = name }
}

// NewCircuitBreaker creates a breaker with sensible defaults:
// 5 failures to open, 30s reset timeout, 2 successes to close from half-open.
func NewCircuitBreaker(opts ...BreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		state:        BreakerClosed,
		threshold:    5,
		resetTimeout: 30 * time.Second,
		halfOpenMax:  2,
		now:          time.Now,
	}
	for _, o := range opts {
		o(cb)
	}
	return cb
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeTransition()
	return cb.state
}

// Allow checks whether a call is allowed. Returns false if the breaker
// is open and the reset timeout has not elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeTransition()
	return cb.state != BreakerOpen
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case BreakerHalfOpen:
		cb.successes++
		if cb.successes >= cb.halfOpenMax {
			cb.state = BreakerClosed
			cb.failures = 0
			cb.successes = 0
		}
	case BreakerClosed:
		cb.failures = 0
	}
}

// RecordFailure records a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.recordFailure(nil)
}

// LastError returns the error from the most recent recorded failure, or nil
// if none has been recorded (or the failure carried no error, as with a
// bare RecordFailure() call from a test).
func (cb *CircuitBreaker) LastError() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.lastErr
}

func (cb *CircuitBreaker) recordFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.lastFailure = cb.now()
	cb.lastErr = err
	switch cb.state {
	case BreakerClosed:
		cb.failures++
		if cb.failures >= cb.threshold {
			cb.state = BreakerOpen
		}
	case BreakerHalfOpen:
		// Any failure in half-open goes back to open.
		cb.state = BreakerOpen
		cb.successes = 0
	}
}

// Reset forces the breaker back to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = BreakerClosed
	cb.failures = 0
	cb.successes = 0
}

// maybeTransition checks if an open breaker should move to half-open.
// Must be called with mu held.
func (cb *CircuitBreaker) maybeTransition() {
	if cb.state == BreakerOpen && cb.now().Sub(cb.lastFailure) >= cb.resetTimeout {
		cb.state = BreakerHalfOpen
		cb.successes = 0
	}
}

// Guard wraps fn with the breaker: rejects with ErrCircuitOpen when open,
// otherwise runs fn and records the outcome. The breaker's Name, if set via
// WithBreakerName, travels with the rejection so a rebuild loop spanning
// several channels can tell which one tripped.
func (cb *CircuitBreaker) Guard(operation string, fn func() error) error {
	if !cb.Allow() {
		return &ErrCircuitOpen{Operation: operation, Channel: cb.name}
	}
	err := fn()
	if err != nil {
		cb.recordFailure(err)
	} else {
		cb.RecordSuccess()
	}
	return err
}
