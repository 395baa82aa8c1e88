// Package ratelimit implements per-adapter sliding-window request admission
// (spec.md §4.4), generalized from ratelimit/rpm.go's single gateway-wide
// Redis/Lua limiter into a polymorphic, per-adapter-keyed limiter mirroring
// the cache package's {Redis, InMemory} backend split.
package ratelimit

import (
	"context"
	"time"
)

// Limiter admits or denies the next request for one adapter's sliding
// window. On a denial, retryAfter is useful for surfacing Retry-After to
// callers: the in-memory limiter returns the time until the oldest timestamp
// in the window falls out; the Redis limiter returns the full window length
// and does not compute that time.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int) (allowed bool, retryAfter time.Duration, err error)
}
