package resilience

import (
	"testing"
	"time"
)

func testConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{FailuresBeforeBreaking: 3, CooldownDuration: 50 * time.Millisecond}
}

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())
	if cb.State() != Closed {
		t.Errorf("expected closed, got %v", cb.State())
	}
	if !cb.Allow() {
		t.Error("closed breaker should allow requests")
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != Closed {
		t.Fatal("should remain closed before threshold")
	}

	cb.RecordFailure()
	if cb.State() != Open {
		t.Error("should be open after reaching threshold")
	}
	if cb.Allow() {
		t.Error("open breaker should reject requests")
	}
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	if cb.State() != Closed {
		t.Error("success should reset to closed")
	}

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != Closed {
		t.Error("should still be closed, counter reset by success")
	}
}

func TestCircuitBreaker_HalfOpenAfterCooldown(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != Open {
		t.Fatal("expected open")
	}

	cb.openedAt = time.Now().Add(-cb.cfg.cooldown() - time.Second)

	if !cb.Allow() {
		t.Error("should allow one probe in half-open state")
	}
	if cb.State() != HalfOpen {
		t.Errorf("expected half_open, got %v", cb.State())
	}
	if cb.Allow() {
		t.Error("should reject second request while probe is in flight")
	}
}

func TestCircuitBreaker_HalfOpenSuccessCloses(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordFailure()
	cb.openedAt = time.Now().Add(-cb.cfg.cooldown() - time.Second)

	cb.Allow()
	cb.RecordSuccess()

	if cb.State() != Closed {
		t.Error("success in half-open should close the breaker")
	}
	if !cb.Allow() {
		t.Error("should allow requests after closing from half-open")
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordFailure()
	cb.openedAt = time.Now().Add(-cb.cfg.cooldown() - time.Second)

	cb.Allow()
	cb.RecordFailure()

	if cb.State() != Open {
		t.Error("failure in half-open should reopen the breaker")
	}
}

func TestCircuitBreaker_DefaultsApplied(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	if cb.cfg.threshold() != 5 {
		t.Errorf("expected default threshold 5, got %d", cb.cfg.threshold())
	}
	if cb.cfg.cooldown() != 30*time.Second {
		t.Errorf("expected default cooldown 30s, got %s", cb.cfg.cooldown())
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{Closed: "closed", Open: "open", HalfOpen: "half_open"}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
