package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript is the same atomic sorted-set sliding window as the
// teacher's ratelimit/rpm.go, kept verbatim and reused here per-adapter
// instead of at gateway scope.
//
// KEYS[1] = Redis key
// ARGV[1] = current unix timestamp (nanoseconds as string)
// ARGV[2] = window size in nanoseconds
// ARGV[3] = limit (max requests per window)
// Returns: 1 if allowed, 0 if rate limited.
var slidingWindowScript = redis.NewScript(`
		local key    = KEYS[1]
		local now    = tonumber(ARGV[1])
		local window = tonumber(ARGV[2])
		local limit  = tonumber(ARGV[3])

		redis.call('ZREMRANGEBYSCORE', key, 0, now - window)

		local count = redis.call('ZCARD', key)
		if count >= limit then
			return 0
		end

		local member = tostring(now) .. tostring(math.random(1, 1000000))
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, math.ceil(window / 1000000))
		return 1
`)

// RedisWindowLimiter is the distributed sliding-window limiter, keyed per
// adapter ("ratelimit:adapter:<name>") so every replica shares one window.
type RedisWindowLimiter struct {
	rdb    *redis.Client
	window time.Duration
}

func NewRedisWindowLimiter(rdb *redis.Client) *RedisWindowLimiter {
	return &RedisWindowLimiter{rdb: rdb, window: 60 * time.Second}
}

// Allow degrades gracefully: if Redis is unavailable the request is allowed
// (matching the teacher's RPMLimiter.check fallback). A denial reports the
// full window length as retryAfter, not the time until the oldest entry expires.
func (l *RedisWindowLimiter) Allow(ctx context.Context, key string, limit int) (bool, time.Duration, error) {
	if limit <= 0 {
		return true, 0, nil
	}

	now := time.Now().UnixNano()
	windowNs := l.window.Nanoseconds()

	result, err := slidingWindowScript.Run(ctx, l.rdb,
		[]string{"ratelimit:adapter:" + key},
		now, windowNs, limit,
	).Int()
	if err != nil {
		return true, 0, nil
	}

	if result == 1 {
		return true, 0, nil
	}
	return false, l.window, nil
}
