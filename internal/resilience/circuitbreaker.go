// Package resilience guards calls to remote dependencies. It provides a
// circuit breaker for the secret backend and a fixed-window limiter shared
// through Redis.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the current state of a circuit breaker.
type CircuitState int

const (
	// StateClosed allows requests to pass through normally.
	StateClosed CircuitState = iota
	// StateOpen blocks all requests.
	StateOpen
	// StateHalfOpen allows a limited number of probe requests.
	StateHalfOpen
)

func (s CircuitState) String() string {
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

// ErrCircuitOpen is returned by Do when the breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig contains configuration for a circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that closes it again.
	SuccessThreshold int
	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration
	// HalfOpenMaxRequests caps the probes admitted while half-open.
	HalfOpenMaxRequests int
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

type transition struct {
	from, to CircuitState
}

// CircuitBreaker stops calls to a dependency after repeated failures and
// probes it again once Timeout has passed.
type CircuitBreaker struct {
	mu            sync.Mutex
	name          string
	state         CircuitState
	failureCount  int
	successCount  int
	halfOpenCount int
	openedAt      time.Time
	config        CircuitBreakerConfig
	onStateChange func(name string, from, to CircuitState)
	now           func() time.Time
}

// NewCircuitBreaker creates a closed circuit breaker. Zero config fields take
// their default values.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = def.HalfOpenMaxRequests
	}
	return &CircuitBreaker{
		name:   name,
		state:  StateClosed,
		config: cfg,
		now:    time.Now,
	}
}

// OnStateChange sets a callback for state transitions. The callback runs
// synchronously after the breaker's lock is released.
func (cb *CircuitBreaker) OnStateChange(fn func(name string, from, to CircuitState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Allow reports whether a call may proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	var change *transition
	allowed := false

	switch cb.state {
	case StateClosed:
		allowed = true
	case StateOpen:
		if cb.now().Sub(cb.openedAt) >= cb.config.Timeout {
			change = cb.transitionTo(StateHalfOpen)
			cb.halfOpenCount = 1
			allowed = true
		}
	case StateHalfOpen:
		if cb.halfOpenCount < cb.config.HalfOpenMaxRequests {
			cb.halfOpenCount++
			allowed = true
		}
	}
	cb.mu.Unlock()

	cb.notify(change)
	return allowed
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	var change *transition

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			change = cb.transitionTo(StateClosed)
		}
	}
	cb.mu.Unlock()

	cb.notify(change)
}

// RecordFailure records a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	var change *transition

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			change = cb.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		change = cb.transitionTo(StateOpen)
	}
	cb.mu.Unlock()

	cb.notify(change)
}

// Do runs fn when the breaker allows it. Errors for which isFailure returns
// true count against the breaker; other errors count as successes. A nil
// isFailure treats every error as a failure.
func (cb *CircuitBreaker) Do(fn func() error, isFailure func(error) bool) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}
	err := fn()
	if err != nil && (isFailure == nil || isFailure(err)) {
		cb.RecordFailure()
	} else {
		cb.RecordSuccess()
	}
	return err
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the circuit breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Reset closes the circuit and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	change := cb.transitionTo(StateClosed)
	cb.failureCount = 0
	cb.mu.Unlock()

	cb.notify(change)
}

// transitionTo must be called with mu held.
func (cb *CircuitBreaker) transitionTo(newState CircuitState) *transition {
	cb.successCount = 0
	cb.halfOpenCount = 0
	if newState == StateOpen {
		cb.openedAt = cb.now()
	}
	if newState == StateClosed {
		cb.failureCount = 0
	}
	if cb.state == newState {
		return nil
	}
	change := &transition{from: cb.state, to: newState}
	cb.state = newState
	return change
}

func (cb *CircuitBreaker) notify(change *transition) {
	if change == nil {
		return
	}
	cb.mu.Lock()
	fn := cb.onStateChange
	cb.mu.Unlock()
	if fn != nil {
		fn(cb.name, change.from, change.to)
	}
}
