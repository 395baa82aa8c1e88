package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPipeline_Run_Success(t *testing.T) {
	p := NewPipeline(PipelineConfig{Timeout: time.Second})
	err := p.Run(context.Background(), func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Breaker().State() != Closed {
		t.Errorf("expected closed breaker after success, got %v", p.Breaker().State())
	}
}

func TestPipeline_Run_CircuitOpenShortCircuits(t *testing.T) {
	p := NewPipeline(PipelineConfig{
		Timeout:        time.Second,
		CircuitBreaker: CircuitBreakerConfig{FailuresBeforeBreaking: 1},
		Retry:          RetryConfig{MaxRetries: 0},
	})

	calls := 0
	err := p.Run(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected first call to fail")
	}
	if p.Breaker().State() != Open {
		t.Fatalf("expected breaker open after one failure at threshold 1, got %v", p.Breaker().State())
	}

	err = p.Run(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected wire call not attempted while circuit open, got %d calls", calls)
	}
}

func TestPipeline_Run_TimeoutRecordsFailure(t *testing.T) {
	p := NewPipeline(PipelineConfig{
		Timeout:        5 * time.Millisecond,
		CircuitBreaker: CircuitBreakerConfig{FailuresBeforeBreaking: 5},
		Retry:          RetryConfig{MaxRetries: 0},
	})

	err := p.Run(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if p.Breaker().State() != Closed {
		t.Errorf("one timeout below threshold should leave breaker closed, got %v", p.Breaker().State())
	}
}

func TestPipeline_Run_CallerCancellationNotRecordedAsFailure(t *testing.T) {
	p := NewPipeline(PipelineConfig{
		Timeout:        time.Second,
		CircuitBreaker: CircuitBreakerConfig{FailuresBeforeBreaking: 1},
		Retry:          RetryConfig{MaxRetries: 0},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Run(ctx, func(ctx context.Context) error {
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if p.Breaker().State() != Closed {
		t.Errorf("caller cancellation must not count as a circuit-breaker failure, got %v", p.Breaker().State())
	}
}
