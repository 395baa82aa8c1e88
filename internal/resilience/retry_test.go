package resilience

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

type testRetryableError struct {
	retryable bool
}

func (e *testRetryableError) Error() string   { return "test retryable error" }
func (e *testRetryableError) Retryable() bool { return e.retryable }

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{MaxRetries: 2}, func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	wantErr := errors.New("permanent failure")
	err := Retry(context.Background(), RetryConfig{MaxRetries: 2}, func(ctx context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call for non-retryable error, got %d", calls)
	}
}

func TestRetry_RetryableErrorInterfaceRetries(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{MaxRetries: 1}, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &testRetryableError{retryable: true}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

type testStatusError struct {
	status int
}

func (e *testStatusError) Error() string   { return "test status error" }
func (e *testStatusError) StatusCode() int { return e.status }

func TestRetry_ServerErrorStatusRetries(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{MaxRetries: 1}, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &testStatusError{status: 503}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls for a 503 status error, got %d", calls)
	}
}

func TestRetry_TooManyRequestsStatusRetries(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{MaxRetries: 1}, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &testStatusError{status: 429}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls for a 429 status error, got %d", calls)
	}
}

func TestRetry_ClientErrorStatusStopsImmediately(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{MaxRetries: 2}, func(ctx context.Context) error {
		calls++
		return &testStatusError{status: 400}
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call for a non-retryable 400 status error, got %d", calls)
	}
}

func TestRetry_NetErrorRetries(t *testing.T) {
	calls := 0
	netErr := &net.DNSError{Err: "mock failure", IsTimeout: true}
	err := Retry(context.Background(), RetryConfig{MaxRetries: 1}, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return netErr
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls for a net.Error, got %d", calls)
	}
}

func TestRetry_ExhaustsMaxRetries(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{MaxRetries: 1}, func(ctx context.Context) error {
		calls++
		return &testRetryableError{retryable: true}
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 2 {
		t.Errorf("expected 2 calls (1 initial + 1 retry), got %d", calls)
	}
}

func TestRetry_ContextCancelledStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, RetryConfig{MaxRetries: 2}, func(ctx context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Errorf("expected 0 calls on pre-cancelled context, got %d", calls)
	}
}

func TestRetry_ContextCancelledDuringBackoffStops(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	calls := 0
	err := Retry(ctx, RetryConfig{MaxRetries: 2}, func(ctx context.Context) error {
		calls++
		return &testRetryableError{retryable: true}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call before backoff sleep is interrupted, got %d", calls)
	}
}

func TestRetryConfig_DefaultMaxRetries(t *testing.T) {
	cfg := RetryConfig{}
	if cfg.maxRetries() != 2 {
		t.Errorf("expected default max retries 2, got %d", cfg.maxRetries())
	}
}
