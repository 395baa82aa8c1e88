package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CachedResponse is the envelope stored per fingerprint, per spec.md §3. The
// teacher's cache stores raw response bytes only; this wraps the payload so
// hit counting and expiry bookkeeping survive a Get/Set round-trip through
// either backend.
type CachedResponse struct {
	CacheKey     string         `json:"cache_key"`
	ProviderName string         `json:"provider_name"`
	Model        string         `json:"model"`
	ResponseText string         `json:"response_text"`
	Metadata     map[string]any `json:"metadata"`
	TokensUsed   int            `json:"tokens_used"`
	DurationMs   int64          `json:"duration_ms"`
	CreatedAt    time.Time      `json:"created_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
	HitCount     int            `json:"hit_count"`
}

// FingerprintInput is the subset of a request relevant to cache identity.
type FingerprintInput struct {
	Provider             string
	Model                string
	Prompt               string
	MaxTokens            int
	Temperature          float64
	AdditionalParameters map[string]any
}

// Fingerprint computes the spec's deterministic digest:
// hash(provider ∥ model ∥ sha256(prompt) ∥ maxTokens ∥ temperature(2dp) ∥ sha256(serialize(additionalParameters))).
// Cache key = "<providerLower>_<fingerprint>".
func Fingerprint(in FingerprintInput) string {
	promptSum := sha256.Sum256([]byte(in.Prompt))

	paramsJSON, _ := json.Marshal(sortedParams(in.AdditionalParameters))
	paramsSum := sha256.Sum256(paramsJSON)

	composite := fmt.Sprintf("%s\x00%s\x00%s\x00%d\x00%.2f\x00%s",
		in.Provider, in.Model, hex.EncodeToString(promptSum[:]),
		in.MaxTokens, in.Temperature, hex.EncodeToString(paramsSum[:]))

	h := sha256.Sum256([]byte(composite))
	return strings.ToLower(in.Provider) + "_" + hex.EncodeToString(h[:])
}

// sortedParams produces a stable representation of a map for fingerprinting;
// encoding/json already sorts map keys, so this is a pass-through kept as a
// named step for clarity at the call site above.
func sortedParams(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// ResponseCache wraps a byte-oriented Cache backend (Redis or in-process)
// with the CachedResponse envelope and hit-count/TTL semantics required by
// spec.md §4.6.
type ResponseCache struct {
	backend    Cache
	exclusions *ExclusionList
}

func NewResponseCache(backend Cache, exclusions *ExclusionList) *ResponseCache {
	return &ResponseCache{backend: backend, exclusions: exclusions}
}

// Excluded reports whether model is configured to bypass the cache entirely.
func (rc *ResponseCache) Excluded(model string) bool {
	return rc.exclusions.Matches(model)
}

// Get returns the cached response for key, never returning an entry whose
// ExpiresAt has passed. On a hit, HitCount is incremented and the updated
// envelope is written back best-effort.
func (rc *ResponseCache) Get(ctx context.Context, key string) (CachedResponse, bool) {
	raw, ok := rc.backend.Get(ctx, key)
	if !ok {
		return CachedResponse{}, false
	}
	var cr CachedResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return CachedResponse{}, false
	}
	if !cr.ExpiresAt.IsZero() && !time.Now().Before(cr.ExpiresAt) {
		return CachedResponse{}, false
	}
	cr.HitCount++
	if body, err := json.Marshal(cr); err == nil {
		ttl := time.Until(cr.ExpiresAt)
		if ttl > 0 {
			_ = rc.backend.Set(ctx, key, body, ttl)
		}
	}
	return cr, true
}

// Set stores cr under key with ExpiresAt = now + ttl. Error responses must
// never be passed here — callers gate on Response.IsSuccess before calling.
func (rc *ResponseCache) Set(ctx context.Context, key string, cr CachedResponse, ttl time.Duration) error {
	cr.CacheKey = key
	if cr.CreatedAt.IsZero() {
		cr.CreatedAt = time.Now()
	}
	cr.ExpiresAt = cr.CreatedAt.Add(ttl)
	body, err := json.Marshal(cr)
	if err != nil {
		return fmt.Errorf("cache: encode response: %w", err)
	}
	return rc.backend.Set(ctx, key, body, ttl)
}

// Remove deletes one cache entry.
func (rc *ResponseCache) Remove(ctx context.Context, key string) error {
	return rc.backend.Delete(ctx, key)
}

// RemoveByPrefix deletes every entry whose key starts with prefix. Only
// MemoryCache can enumerate keys directly; for other backends callers should
// track keys externally (e.g. per-provider invalidation lists) — this default
// implementation supports the in-process backend and is a no-op otherwise.
func (rc *ResponseCache) RemoveByPrefix(ctx context.Context, prefix string) error {
	mc, ok := rc.backend.(*MemoryCache)
	if !ok {
		return nil
	}
	mc.DeletePrefix(ctx, prefix)
	return nil
}

// PurgeExpired proactively evicts expired entries where the backend supports
// it (MemoryCache runs this on a timer already; Redis expires keys natively).
func (rc *ResponseCache) PurgeExpired(ctx context.Context) {
	if mc, ok := rc.backend.(*MemoryCache); ok {
		mc.EvictExpired(ctx)
	}
}
