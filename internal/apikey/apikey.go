// Package apikey resolves, rotates, and validates per-provider API keys.
//
// The teacher models one static key per provider (config.ProviderConfig).
// This generalizes that into an explicit Manager interface so adapters stop
// reading keys straight off a config struct — matching the Design Note
// "static/process-global mutable state... move into explicit per-adapter
// components", here applied to key material instead of quota counters.
package apikey

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Manager resolves the current API key for a provider, and supports rotation
// and ad-hoc validation. BaseAdapter consults it before every call; on
// failure to resolve it falls back to the adapter's configured static key.
type Manager interface {
	CurrentKey(ctx context.Context, provider string) (string, error)
	Rotate(ctx context.Context, provider string) error
	Validate(ctx context.Context, provider, key string) bool
}

// StaticManager wraps one fixed key per provider — the teacher's existing
// one-key-per-provider model (config.ProviderConfig.APIKey).
type StaticManager struct {
	mu   sync.RWMutex
	keys map[string]string
}

func NewStaticManager(keys map[string]string) *StaticManager {
	m := make(map[string]string, len(keys))
	for k, v := range keys {
		m[k] = v
	}
	return &StaticManager{keys: m}
}

func (s *StaticManager) CurrentKey(_ context.Context, provider string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[provider]
	if !ok || key == "" {
		return "", fmt.Errorf("apikey: no key configured for provider %q", provider)
	}
	return key, nil
}

// Rotate is a no-op for StaticManager — there is only ever one key.
func (s *StaticManager) Rotate(context.Context, string) error { return nil }

func (s *StaticManager) Validate(_ context.Context, provider, key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys[provider] == key && key != ""
}

// keyRing holds a rotation list for one provider: the key currently in use,
// the remaining candidates, and when the last rotation happened.
type keyRing struct {
	active     string
	candidates []string
	rotatedAt  time.Time
}

// RotatingManager cycles through a list of keys per provider — new component,
// grounded on the same "explicit per-adapter component owns the mutable
// state" principle the teacher applies to its circuit breaker and cache.
type RotatingManager struct {
	mu    sync.Mutex
	rings map[string]*keyRing
}

// NewRotatingManager seeds one key ring per provider. The first key in each
// slice becomes the active key.
func NewRotatingManager(keysByProvider map[string][]string) *RotatingManager {
	rings := make(map[string]*keyRing, len(keysByProvider))
	for provider, keys := range keysByProvider {
		if len(keys) == 0 {
			continue
		}
		rings[provider] = &keyRing{active: keys[0], candidates: append([]string(nil), keys...)}
	}
	return &RotatingManager{rings: rings}
}

func (r *RotatingManager) CurrentKey(_ context.Context, provider string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ring, ok := r.rings[provider]
	if !ok || ring.active == "" {
		return "", fmt.Errorf("apikey: no key configured for provider %q", provider)
	}
	return ring.active, nil
}

// Rotate advances the provider's active key to the next candidate in the
// ring, wrapping around. A provider with only one candidate key rotates to
// itself (no-op).
func (r *RotatingManager) Rotate(_ context.Context, provider string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ring, ok := r.rings[provider]
	if !ok || len(ring.candidates) == 0 {
		return fmt.Errorf("apikey: no key ring configured for provider %q", provider)
	}
	idx := 0
	for i, k := range ring.candidates {
		if k == ring.active {
			idx = i
			break
		}
	}
	next := ring.candidates[(idx+1)%len(ring.candidates)]
	ring.active = next
	ring.rotatedAt = time.Now()
	return nil
}

func (r *RotatingManager) Validate(_ context.Context, provider, key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ring, ok := r.rings[provider]
	if !ok {
		return false
	}
	for _, k := range ring.candidates {
		if k == key {
			return true
		}
	}
	return false
}
