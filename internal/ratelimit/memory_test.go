package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryWindowLimiter_AllowsUnderLimit(t *testing.T) {
	l := NewMemoryWindowLimiter()
	for i := 0; i < 3; i++ {
		allowed, _, err := l.Allow(context.Background(), "adapter-a", 3)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !allowed {
			t.Fatalf("request %d should be allowed under limit 3", i)
		}
	}
}

func TestMemoryWindowLimiter_DeniesOverLimit(t *testing.T) {
	l := NewMemoryWindowLimiter()
	for i := 0; i < 2; i++ {
		if allowed, _, _ := l.Allow(context.Background(), "adapter-a", 2); !allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	allowed, retryAfter, err := l.Allow(context.Background(), "adapter-a", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatal("third request should be denied at limit 2")
	}
	if retryAfter <= 0 {
		t.Errorf("expected a positive retry-after, got %s", retryAfter)
	}
}

func TestMemoryWindowLimiter_ZeroLimitAlwaysAllows(t *testing.T) {
	l := NewMemoryWindowLimiter()
	allowed, _, _ := l.Allow(context.Background(), "adapter-a", 0)
	if !allowed {
		t.Fatal("limit<=0 should always allow")
	}
}

func TestMemoryWindowLimiter_IndependentKeys(t *testing.T) {
	l := NewMemoryWindowLimiter()
	l.Allow(context.Background(), "adapter-a", 1)

	allowed, _, _ := l.Allow(context.Background(), "adapter-a", 1)
	if allowed {
		t.Fatal("adapter-a should be exhausted")
	}

	allowed, _, _ = l.Allow(context.Background(), "adapter-b", 1)
	if !allowed {
		t.Fatal("adapter-b has its own independent window")
	}
}

func TestMemoryWindowLimiter_WindowExpiry(t *testing.T) {
	l := NewMemoryWindowLimiter()
	l.period = 20 * time.Millisecond

	l.Allow(context.Background(), "adapter-a", 1)
	if allowed, _, _ := l.Allow(context.Background(), "adapter-a", 1); allowed {
		t.Fatal("should be denied immediately after exhausting limit")
	}

	time.Sleep(30 * time.Millisecond)

	allowed, _, _ := l.Allow(context.Background(), "adapter-a", 1)
	if !allowed {
		t.Fatal("should be allowed again once the window has elapsed")
	}
}
