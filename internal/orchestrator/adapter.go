package orchestrator

import (
	"context"

	"github.com/shopspring/decimal"
)

// Adapter is the capability-polymorphic component wrapping one remote
// inference service (spec.md §4.2). Concrete adapters live under
// internal/adapter/<name> and embed adapter.BaseAdapter, which supplies the
// shared pipeline runner this interface's Execute ultimately delegates to —
// composition in place of the source's deep adapter inheritance (§9).
type Adapter interface {
	Name() string
	Priority() int
	Capabilities() ProviderCapabilities
	IsLocal() bool

	// Healthy reports whether the adapter's resilience pipeline is not
	// presently Open (spec.md §4.8's per-provider health signal).
	Healthy() bool

	// CanHandle reports whether the adapter is enabled, the request kind
	// matches its capabilities, requested media modes are supported, and
	// the language is supported.
	CanHandle(req *Request) bool

	// Execute performs the full per-adapter pipeline of spec.md §4.2 steps
	// 1-10 and never panics; all failure modes are reported via the
	// returned Response's IsSuccess/ErrorCode fields.
	Execute(ctx context.Context, req *Request) *Response

	// ShouldFallback reports whether err (surfaced from Execute, or read off
	// a non-success Response's ErrorCode) should advance the orchestrator to
	// the next candidate rather than returning immediately.
	ShouldFallback(err error) bool

	// EstimateCost applies the adapter's tiered pricing table.
	EstimateCost(inputTokens, outputTokens int) decimal.Decimal

	// QuotaStatus reports the adapter's current quota windows, keyed loosely
	// (e.g. "daily_requests", "monthly_tokens") so HealthCheck can surface
	// them without the orchestrator package importing internal/quota.
	QuotaStatus(ctx context.Context) map[string]any
}
