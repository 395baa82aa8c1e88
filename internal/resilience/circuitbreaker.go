// Package resilience composes the per-adapter Timeout → CircuitBreaker →
// Retry pipeline (spec.md §4.3). CircuitBreaker is grounded verbatim on
// proxy/circuitbreaker.go's state machine, moved from gateway-wide ownership
// to one instance per adapter (constructed by NewPipeline, which the app
// wiring calls once per adapter at startup).
package resilience

import (
	"sync"
	"time"
)

// State is the operational state of a circuit breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreakerConfig tunes breaker behaviour. Zero values fall back to
// spec.md §4.3 defaults.
type CircuitBreakerConfig struct {
	// FailuresBeforeBreaking is the number of consecutive failures that
	// trips the breaker. Default: 5.
	FailuresBeforeBreaking int
	// CooldownDuration is how long the breaker stays open before probing.
	// Default: 30s.
	CooldownDuration time.Duration
}

func (c CircuitBreakerConfig) threshold() int {
	if c.FailuresBeforeBreaking > 0 {
		return c.FailuresBeforeBreaking
	}
	return 5
}

func (c CircuitBreakerConfig) cooldown() time.Duration {
	if c.CooldownDuration > 0 {
		return c.CooldownDuration
	}
	return 30 * time.Second
}

// CircuitBreaker is a single-adapter breaker: Closed → N consecutive
// failures → Open → after cooldown, next call → HalfOpen → success → Closed
// / failure → Open. Safe for concurrent use.
type CircuitBreaker struct {
	mu  sync.Mutex
	cfg CircuitBreakerConfig

	state         State
	failureCount  int
	openedAt      time.Time
	probeInflight bool
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, state: Closed}
}

// Allow reports whether the next call should be attempted. A cancelled call
// must never reach RecordFailure (per spec.md §5); callers that observe
// context cancellation should simply not call RecordFailure/RecordSuccess.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Closed:
		return true
	case Open:
		if time.Since(cb.openedAt) >= cb.cfg.cooldown() {
			cb.state = HalfOpen
			cb.probeInflight = true
			return true
		}
		return false
	case HalfOpen:
		if cb.probeInflight {
			return false
		}
		cb.probeInflight = true
		return true
	}
	return true
}

// RecordSuccess resets the breaker to Closed.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = Closed
	cb.failureCount = 0
	cb.probeInflight = false
}

// RecordFailure increments the consecutive-failure count and opens the
// breaker once the threshold is reached. A failure observed while HalfOpen
// re-opens immediately regardless of count.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probeInflight = false

	if cb.state == HalfOpen {
		cb.state = Open
		cb.openedAt = time.Now()
		cb.failureCount = 0
		return
	}

	cb.failureCount++
	if cb.failureCount >= cb.cfg.threshold() {
		cb.state = Open
		cb.openedAt = time.Now()
	}
}

// State returns the current state (useful for metrics export and the
// orchestrator's healthCheck, which must never admit a call while Open).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
