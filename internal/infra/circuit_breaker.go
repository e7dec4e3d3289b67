package infra

import (
	"log/slog"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Live lookups allowed
	StateOpen                  // Live lookups skipped, converter falls back
	StateHalfOpen              // Probing the price service again
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker stops hammering a price service that keeps failing.
// While open, FetchRate fails fast and the generate action goes straight
// to the fallback table instead of waiting for another timeout.
// Thread-safe for concurrent use.
type CircuitBreaker struct {
	name string
	mu   sync.Mutex

	state        State
	failureCount int
	successCount int
	reopens      int // Failed half-open trials since last close
	lastFailure  time.Time

	failureThreshold int           // Consecutive failures before opening
	successThreshold int           // Successes before closing (in half-open)
	timeout          time.Duration // Base cooldown before half-open

	onStateChange func(name string, s State)
	now           func() time.Time
}

// CircuitBreakerConfig holds configuration for creating a circuit breaker.
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	OnStateChange    func(name string, s State) // Optional, called with the lock held
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Timeout:          30 * time.Second,
	}
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	cb := &CircuitBreaker{
		name:             cfg.Name,
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		timeout:          cfg.Timeout,
		onStateChange:    cfg.OnStateChange,
		now:              time.Now,
	}
	cb.notify()
	return cb
}

// Allow reports whether a live lookup may proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true

	case StateOpen:
		if cb.now().Sub(cb.lastFailure) >= cb.cooldown() {
			cb.transition(StateHalfOpen)
			slog.Info("Circuit breaker transitioning to HALF_OPEN",
				slog.String("name", cb.name))
			return true
		}
		return false

	default:
		return false
	}
}

// RecordSuccess records a successful lookup.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0

	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.reopens = 0
			cb.transition(StateClosed)
			slog.Info("Circuit breaker CLOSED (recovered)",
				slog.String("name", cb.name))
		}
	}
}

// RecordFailure records a failed lookup.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailure = cb.now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if failures := cb.failureCount; failures >= cb.failureThreshold {
			cb.transition(StateOpen)
			slog.Warn("Circuit breaker OPEN (failures exceeded threshold)",
				slog.String("name", cb.name),
				slog.Int("failures", failures))
		}

	case StateHalfOpen:
		cb.reopens++
		cb.transition(StateOpen)
		slog.Warn("Circuit breaker OPEN (half-open trial failed)",
			slog.String("name", cb.name),
			slog.Duration("cooldown", cb.cooldown()))
	}
}

// GetState returns the current state (for monitoring).
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// reset forces the circuit breaker to closed state.
func (cb *CircuitBreaker) reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.reopens = 0
	cb.transition(StateClosed)
	slog.Info("Circuit breaker RESET", slog.String("name", cb.name))
}

// cooldown doubles with every failed trial, up to maxCooldownFactor x timeout.
// Must be called with mu held.
func (cb *CircuitBreaker) cooldown() time.Duration {
	return CalculateBackoff(cb.timeout, cb.timeout*maxCooldownFactor, cb.reopens)
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(s State) {
	cb.state = s
	cb.failureCount = 0
	cb.successCount = 0
	cb.notify()
}

func (cb *CircuitBreaker) notify() {
	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, cb.state)
	}
}
