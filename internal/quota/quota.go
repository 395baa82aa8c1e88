// Package quota implements cross-cutting request/token/cost budget checks.
//
// The teacher gateway has no quota concept of its own — it relies on an
// external billing system. This generalizes the nil-safe optional-dependency
// idiom used throughout proxy.Gateway (cache, rpmLimiter, reqLogger are all
// nil-checked) into an explicit Manager interface with a Null implementation
// reproducing "quota disabled".
package quota

import (
	"context"
	"sync"
	"time"
)

// CheckResult is the outcome of a quota admission check.
type CheckResult struct {
	CanProceed        bool
	RemainingRequests int
	RemainingTokens   int
	TimeUntilReset    time.Duration
}

// Status describes the rolling-window usage for one (provider, scope, window).
type Status struct {
	Provider string
	Scope    string // e.g. a user ID, or "" for provider-wide
	Window   string // "daily" | "monthly"
	Limit    int
	Consumed int
	Expires  time.Time
}

// Manager checks and records quota usage. RecordUsage is not idempotent in
// the implementations here: every call counts one more request (plus tokens
// and cost on success), so a repeated call is counted twice. The core invokes
// it exactly once per request attempt.
type Manager interface {
	CheckQuota(ctx context.Context, provider, userID string, estTokens int, estCost float64) (CheckResult, error)
	RecordUsage(ctx context.Context, provider, userID string, tokensUsed int, costUsed float64, success bool) error
	Status(ctx context.Context, provider, userID string) ([]Status, error)
}

// Limits configures the rolling-window caps a Manager enforces for one
// provider. Zero means "unlimited" for that axis.
type Limits struct {
	DailyRequests   int
	DailyTokens     int
	MonthlyRequests int
	MonthlyTokens   int
	MonthlyCost     float64
}

// NullManager always admits and records nothing — the contract the core
// relies on when quota enforcement is disabled (AI.Orchestration.enableQuotaManagement=false).
type NullManager struct{}

func NewNullManager() *NullManager { return &NullManager{} }

func (NullManager) CheckQuota(context.Context, string, string, int, float64) (CheckResult, error) {
	return CheckResult{CanProceed: true, RemainingRequests: -1, RemainingTokens: -1}, nil
}

func (NullManager) RecordUsage(context.Context, string, string, int, float64, bool) error { return nil }

func (NullManager) Status(context.Context, string, string) ([]Status, error) { return nil, nil }

// window tracks one rolling-window counter pair (requests, tokens, cost).
type window struct {
	requests int
	tokens   int
	cost     float64
	resetAt  time.Time
}

// InMemoryManager is a process-local Manager backed by sync-protected maps,
// grounded on cache.MemoryCache's mutex+map+periodic-eviction pattern applied
// to rolling-window counters instead of byte values.
type InMemoryManager struct {
	mu     sync.Mutex
	limits map[string]Limits // by provider
	daily  map[string]*window
	monthly map[string]*window
}

func NewInMemoryManager(limits map[string]Limits) *InMemoryManager {
	return &InMemoryManager{
		limits:  limits,
		daily:   make(map[string]*window),
		monthly: make(map[string]*window),
	}
}

func scopeKey(provider, userID string) string {
	if userID == "" {
		return provider
	}
	return provider + "|" + userID
}

func (m *InMemoryManager) windowFor(store map[string]*window, key string, period time.Duration) *window {
	w, ok := store[key]
	now := time.Now()
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(period)}
		store[key] = w
	}
	return w
}

func (m *InMemoryManager) CheckQuota(_ context.Context, provider, userID string, estTokens int, estCost float64) (CheckResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lim, ok := m.limits[provider]
	if !ok {
		return CheckResult{CanProceed: true, RemainingRequests: -1, RemainingTokens: -1}, nil
	}

	key := scopeKey(provider, userID)
	d := m.windowFor(m.daily, key, 24*time.Hour)
	mo := m.windowFor(m.monthly, key, 30*24*time.Hour)

	remainingReq := -1
	remainingTok := -1

	if lim.DailyRequests > 0 {
		remainingReq = lim.DailyRequests - d.requests
		if remainingReq <= 0 {
			return CheckResult{CanProceed: false, RemainingRequests: 0, TimeUntilReset: time.Until(d.resetAt)}, nil
		}
	}
	if lim.MonthlyRequests > 0 {
		r := lim.MonthlyRequests - mo.requests
		if r <= 0 {
			return CheckResult{CanProceed: false, RemainingRequests: 0, TimeUntilReset: time.Until(mo.resetAt)}, nil
		}
		if remainingReq < 0 || r < remainingReq {
			remainingReq = r
		}
	}
	if lim.DailyTokens > 0 {
		remainingTok = lim.DailyTokens - d.tokens
		if remainingTok < estTokens {
			return CheckResult{CanProceed: false, RemainingTokens: remainingTok, TimeUntilReset: time.Until(d.resetAt)}, nil
		}
	}
	if lim.MonthlyTokens > 0 {
		t := lim.MonthlyTokens - mo.tokens
		if t < estTokens {
			return CheckResult{CanProceed: false, RemainingTokens: t, TimeUntilReset: time.Until(mo.resetAt)}, nil
		}
		if remainingTok < 0 || t < remainingTok {
			remainingTok = t
		}
	}
	if lim.MonthlyCost > 0 && mo.cost+estCost > lim.MonthlyCost {
		return CheckResult{CanProceed: false, TimeUntilReset: time.Until(mo.resetAt)}, nil
	}

	return CheckResult{CanProceed: true, RemainingRequests: remainingReq, RemainingTokens: remainingTok}, nil
}

func (m *InMemoryManager) RecordUsage(_ context.Context, provider, userID string, tokensUsed int, costUsed float64, success bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := scopeKey(provider, userID)
	d := m.windowFor(m.daily, key, 24*time.Hour)
	mo := m.windowFor(m.monthly, key, 30*24*time.Hour)

	// Failed calls still count against request-count limits but never
	// contribute token/cost consumption.
	d.requests++
	mo.requests++
	if success {
		d.tokens += tokensUsed
		mo.tokens += tokensUsed
		mo.cost += costUsed
	}
	return nil
}

func (m *InMemoryManager) Status(_ context.Context, provider, userID string) ([]Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := scopeKey(provider, userID)
	lim := m.limits[provider]
	out := make([]Status, 0, 2)
	if d, ok := m.daily[key]; ok {
		out = append(out, Status{Provider: provider, Scope: userID, Window: "daily", Limit: lim.DailyRequests, Consumed: d.requests, Expires: d.resetAt})
	}
	if mo, ok := m.monthly[key]; ok {
		out = append(out, Status{Provider: provider, Scope: userID, Window: "monthly", Limit: lim.MonthlyRequests, Consumed: mo.requests, Expires: mo.resetAt})
	}
	return out, nil
}
