package errors

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a call is refused because the
// circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the circuit breaker state.
type State int

const (
	// StateClosed admits every request.
	StateClosed State = iota
	// StateOpen refuses requests until the cooldown elapses.
	StateOpen
	// StateHalfOpen admits a single probe to test recovery.
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

// CircuitBreaker fails fast during a cooldown window after repeated
// failures, which keeps steward from hammering a rate-limited LLM
// backend. After the cooldown one probe is let through; its outcome
// decides between closing the circuit and another cooldown.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu          sync.RWMutex
	state       State
	failures    int
	probing     bool
	lastFailure time.Time
}

// CircuitBreakerOption configures a CircuitBreaker.
type CircuitBreakerOption func(*CircuitBreaker)

// WithMaxFailures sets how many consecutive failures open the circuit.
func WithMaxFailures(n int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.maxFailures = n }
}

// WithResetTimeout sets the cooldown before a recovery probe.
func WithResetTimeout(d time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.resetTimeout = d }
}

// NewCircuitBreaker starts closed. Defaults: 3 failures, then a 30
// second cooldown.
func NewCircuitBreaker(name string, opts ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         name,
		maxFailures:  3,
		resetTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

func (cb *CircuitBreaker) Name() string { return cb.name }

// State returns the current state, surfacing half-open once the
// cooldown has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.currentState()
}

// currentState must be called with at least a read lock held.
func (cb *CircuitBreaker) currentState() State {
	if cb.state == StateOpen && time.Since(cb.lastFailure) > cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failures
}

// Allow reports whether a request would currently be admitted. It does
// not reserve the half-open probe slot; Execute does.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.currentState() != StateOpen
}

// RecordSuccess resets the breaker to closed.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.state = StateClosed
}

// RecordFailure counts a failure, opening the circuit at the limit.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	cb.lastFailure = time.Now()
	if cb.failures >= cb.maxFailures {
		cb.state = StateOpen
	}
}

// admit decides whether a call may proceed and in which state the
// decision was made. In half-open only one probe is admitted at a
// time; the rest are refused as if the circuit were open.
func (cb *CircuitBreaker) admit() (State, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentState() {
	case StateOpen:
		return StateOpen, false
	case StateHalfOpen:
		if cb.probing {
			return StateOpen, false
		}
		cb.state = StateHalfOpen
		cb.probing = true
		return StateHalfOpen, true
	default:
		return StateClosed, true
	}
}

// settle records the outcome of an admitted call.
func (cb *CircuitBreaker) settle(admitted State, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if admitted == StateHalfOpen {
		cb.probing = false
	}
	if err == nil {
		cb.failures = 0
		cb.state = StateClosed
		return
	}

	cb.lastFailure = time.Now()
	if admitted == StateHalfOpen {
		// A failed probe means another full cooldown.
		cb.state = StateOpen
		return
	}
	cb.failures++
	if cb.failures >= cb.maxFailures {
		cb.state = StateOpen
	}
}

// Execute runs fn through the breaker, returning ErrCircuitOpen when
// the call is refused.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	state, ok := cb.admit()
	if !ok {
		return ErrCircuitOpen
	}
	err := fn()
	cb.settle(state, err)
	return err
}

// CircuitExecuteWithResult runs fn through the breaker, calling
// fallback instead when the call is refused or a half-open probe
// fails. A failure in the closed state is returned as-is so the
// caller's own retry logic still sees it.
func CircuitExecuteWithResult[T any](cb *CircuitBreaker, fn func() (T, error), fallback func() (T, error)) (T, error) {
	state, ok := cb.admit()
	if !ok {
		return fallback()
	}

	result, err := fn()
	cb.settle(state, err)
	if err != nil {
		if state == StateHalfOpen {
			return fallback()
		}
		return result, err
	}
	return result, nil
}
