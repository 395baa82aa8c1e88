package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"time"
)

// RetryConfig tunes the retry policy. Zero values fall back to spec.md §4.3
// defaults: maxRetries=2, delay between attempt k and k+1 is 2^k seconds plus
// 0-100ms uniform jitter.
type RetryConfig struct {
	MaxRetries int
}

func (c RetryConfig) maxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return 2
}

// RetryableError is the narrow classification surface a call result must
// implement for Retry to decide whether to retry it. Callers that return a
// plain error are treated conservatively: transport errors and
// context.DeadlineExceeded are retried, everything else is not.
type RetryableError interface {
	error
	Retryable() bool
}

// backoff returns the delay before attempt k+1, grounded on the jittered
// exponential-backoff shape used for retrying transient AI-provider errors
// in the pack's internal-ai-retry.go reference file: 2^k seconds of base
// delay plus up to 100ms of jitter to avoid thundering-herd retries.
func backoff(k int) time.Duration {
	base := time.Duration(1<<uint(k)) * time.Second
	jitter := time.Duration(rand.IntN(100)) * time.Millisecond
	return base + jitter
}

// Retry runs fn up to cfg.maxRetries+1 times, sleeping with jittered
// exponential backoff between attempts. It stops early when ctx is done or
// when the error is classified non-retryable.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.maxRetries(); attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !shouldRetry(lastErr) {
			return lastErr
		}

		if attempt == cfg.maxRetries() {
			break
		}

		select {
		case <-time.After(backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}

// statusCoder is the narrow interface every adapter's wire-error type
// (providerError in mistral/openai/openaicompat/anthropic/gemini/bedrock/
// azure/ollama/vertexai) already implements via its StatusCode() method, so
// shouldRetry can classify a parsed HTTP error without each provider package
// also implementing RetryableError.
type statusCoder interface {
	StatusCode() int
}

// retryableStatus reports whether an HTTP status code is transient per
// spec.md §4.3: request timeouts, rate limiting, and server errors.
func retryableStatus(code int) bool {
	return code == 408 || code == 429 || code >= 500
}

// shouldRetry retries transport errors, request timeouts, HTTP 5xx/408/429
// responses, and errors that self-classify via RetryableError.
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return retryableStatus(sc.StatusCode())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
