package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryWindowLimiter is a process-local sliding-window limiter, grounded on
// cache/memory.go's mutex+map pattern applied to timestamp-purge admission
// (spec.md §4.4) instead of TTL-expiry byte storage.
type MemoryWindowLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	period  time.Duration
}

// NewMemoryWindowLimiter creates a limiter with a 60s sliding window, per
// spec.md §4.4.
func NewMemoryWindowLimiter() *MemoryWindowLimiter {
	return &MemoryWindowLimiter{windows: make(map[string][]time.Time), period: 60 * time.Second}
}

// Allow purges timestamps older than the window, admits if the remaining
// count is below limit (appending now), else denies with the computed
// retry-after. Single-critical-section discipline per key.
func (l *MemoryWindowLimiter) Allow(_ context.Context, key string, limit int) (bool, time.Duration, error) {
	if limit <= 0 {
		return true, 0, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.period)

	ts := l.windows[key]
	kept := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= limit {
		oldest := kept[0]
		retryAfter := l.period - now.Sub(oldest)
		l.windows[key] = kept
		return false, retryAfter, nil
	}

	kept = append(kept, now)
	l.windows[key] = kept
	return true, 0, nil
}
