// Package adaptertest also supplies NewBase, a BaseAdapter builder shared by
// every internal/adapter/<provider> package's httptest-server-backed tests.
// Grounded on providers/mistral/mistral_test.go's newTestProvider helper,
// generalized from a one-line provider constructor to the full BaseAdapter
// wiring (quota/audit/cache/rate-limit/keys/pipeline) concrete adapters now
// require, using the Null/in-memory side of each dependency so tests never
// reach Redis or ClickHouse.
package adaptertest

import (
	"context"
	"net/http"
	"time"

	"github.com/nulpointcorp/ai-orchestrator/internal/adapter"
	"github.com/nulpointcorp/ai-orchestrator/internal/apikey"
	"github.com/nulpointcorp/ai-orchestrator/internal/audit"
	"github.com/nulpointcorp/ai-orchestrator/internal/cache"
	"github.com/nulpointcorp/ai-orchestrator/internal/orchestrator"
	"github.com/nulpointcorp/ai-orchestrator/internal/quota"
	"github.com/nulpointcorp/ai-orchestrator/internal/ratelimit"
	"github.com/nulpointcorp/ai-orchestrator/internal/resilience"
)

// NewBase builds a BaseAdapter pointed at baseURL with a generous timeout, a
// permissive in-memory rate limiter, quota/audit disabled, and a single
// static API key. Tests override Config/Caps fields on the returned value as
// needed before constructing the concrete adapter under test.
func NewBase(name, baseURL, apiKey string) adapter.BaseAdapter {
	exclusions, _ := cache.NewExclusionList(nil, nil)
	return adapter.BaseAdapter{
		ProviderName: name,
		Config: orchestrator.ProviderConfiguration{
			Name:                 name,
			Model:                "test-model",
			BaseURL:              baseURL,
			APIKey:               apiKey,
			IsEnabled:            true,
			TimeoutSeconds:       5,
			MaxRetries:           0,
			EnableCaching:        false,
			EnableRateLimiting:   false,
			CacheDurationMinutes: 0,
			RequestsPerMinute:    1_000_000,
		},
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
		Pipeline: resilience.NewPipeline(resilience.PipelineConfig{
			Timeout:        5 * time.Second,
			CircuitBreaker: resilience.CircuitBreakerConfig{FailuresBeforeBreaking: 1000},
			Retry:          resilience.RetryConfig{MaxRetries: 0},
		}),
		RateLimit:                ratelimit.NewMemoryWindowLimiter(),
		Cache:                    cache.NewResponseCache(cache.NewMemoryCache(context.Background()), exclusions),
		Quota:                    quota.NewNullManager(),
		Audit:                    audit.NewNullSink(),
		Keys:                     apikey.NewStaticManager(map[string]string{name: apiKey}),
		CacheEvenWithTemperature: true,
	}
}
