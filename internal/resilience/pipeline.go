package resilience

import (
	"context"
	"fmt"
	"time"
)

// ErrCircuitOpen is returned by Pipeline.Run without touching the network
// when the breaker is Open.
var ErrCircuitOpen = fmt.Errorf("resilience: circuit open")

// PipelineConfig bundles the three policy configs applied to one adapter.
type PipelineConfig struct {
	Timeout         time.Duration
	CircuitBreaker  CircuitBreakerConfig
	Retry           RetryConfig
}

// Pipeline composes Timeout(CircuitBreaker(Retry(call))) exactly per
// spec.md §4.3's outer-to-inner ordering, grounded on how proxy/gateway.go
// layers context.WithTimeout around requestWithFailover with the circuit
// breaker checked inside it — generalized here into an explicit per-adapter
// object instead of gateway-global state.
type Pipeline struct {
	cfg PipelineConfig
	cb  *CircuitBreaker
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Pipeline{cfg: cfg, cb: NewCircuitBreaker(cfg.CircuitBreaker)}
}

// Breaker exposes the underlying CircuitBreaker so callers (the orchestrator's
// healthCheck) can inspect its state without going through Run.
func (p *Pipeline) Breaker() *CircuitBreaker { return p.cb }

// Run executes fn under the timeout, gated by the circuit breaker, retried
// with jittered backoff on transient failures. A context cancellation is
// never recorded as a circuit-breaker failure (spec.md §5).
func (p *Pipeline) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if !p.cb.Allow() {
		return ErrCircuitOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	err := Retry(callCtx, p.cfg.Retry, fn)

	if err != nil && callCtx.Err() != nil && ctx.Err() != nil {
		// The *caller's* context was cancelled, not just our timeout —
		// don't count this against the breaker.
		return ctx.Err()
	}

	if err != nil {
		p.cb.RecordFailure()
		if callCtx.Err() != nil {
			return fmt.Errorf("resilience: call timed out after %s: %w", p.cfg.Timeout, context.DeadlineExceeded)
		}
		return err
	}

	p.cb.RecordSuccess()
	return nil
}
