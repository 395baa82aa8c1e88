// Package adaptertest provides scriptable orchestrator.Adapter doubles for
// the end-to-end scenarios tested against internal/orchestrator (single
// success, fallback on quota, all fail, non-retryable stop, cancellation)
// and internal/httpapi. Grounded on mock/providers' role in the teacher repo —
// canned, deterministic responses standing in for a real wire call — but
// implemented as in-process orchestrator.Adapter values instead of an HTTP
// server, since orchestrator tests exercise Registry/Orchestrator directly
// rather than a provider's wire protocol. The teacher's HTTP-level mock
// server survives as the standalone mock/providers command; the adapter
// package tests use their own httptest servers rather than pointing at it.
package adaptertest

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nulpointcorp/ai-orchestrator/internal/orchestrator"
)

// Stub is a fully scriptable orchestrator.Adapter. Each field supplies
// canned behavior; call Calls() after a test run to inspect how many times
// Execute was invoked.
type Stub struct {
	StubName     string
	StubPriority int
	StubLocal    bool
	StubHealthy  bool
	Caps         orchestrator.ProviderCapabilities

	// Responses is consumed in order, one per Execute call; the last entry
	// repeats once exhausted. A nil slice causes Execute to synthesize a
	// generic success response.
	Responses []*orchestrator.Response

	// Delay, when positive, is slept (respecting ctx cancellation) before
	// Execute returns — used by the cancellation scenario to give the
	// caller time to cancel before the adapter would otherwise answer.
	Delay time.Duration

	// Fallback reports whether ShouldFallback should return true for a
	// non-success response produced by this stub.
	Fallback bool

	mu    sync.Mutex
	calls int
}

var _ orchestrator.Adapter = (*Stub)(nil)

func (s *Stub) Name() string                               { return s.StubName }
func (s *Stub) Priority() int                               { return s.StubPriority }
func (s *Stub) Capabilities() orchestrator.ProviderCapabilities { return s.Caps }
func (s *Stub) IsLocal() bool                               { return s.StubLocal }
func (s *Stub) Healthy() bool                               { return s.StubHealthy }

func (s *Stub) CanHandle(req *orchestrator.Request) bool {
	return s.Caps.Supports(req.Kind)
}

func (s *Stub) ShouldFallback(err error) bool {
	return s.Fallback
}

func (s *Stub) EstimateCost(inputTokens, outputTokens int) decimal.Decimal {
	return decimal.Zero
}

func (s *Stub) QuotaStatus(ctx context.Context) map[string]any {
	return map[string]any{}
}

// Calls returns how many times Execute has been invoked so far.
func (s *Stub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Stub) Execute(ctx context.Context, req *orchestrator.Request) *orchestrator.Response {
	s.mu.Lock()
	idx := s.calls
	s.calls++
	s.mu.Unlock()

	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return &orchestrator.Response{
				Provider:     s.StubName,
				IsSuccess:    false,
				ErrorCode:    orchestrator.ErrCancelled,
				ErrorMessage: ctx.Err().Error(),
			}
		}
	}
	if ctx.Err() != nil {
		return &orchestrator.Response{
			Provider:     s.StubName,
			IsSuccess:    false,
			ErrorCode:    orchestrator.ErrCancelled,
			ErrorMessage: ctx.Err().Error(),
		}
	}

	if len(s.Responses) == 0 {
		return &orchestrator.Response{
			Content:     "ok",
			Provider:    s.StubName,
			Model:       "stub-model",
			TokensUsed:  3,
			IsSuccess:   true,
			Metadata:    map[string]any{},
		}
	}

	if idx >= len(s.Responses) {
		idx = len(s.Responses) - 1
	}
	resp := *s.Responses[idx]
	if resp.Provider == "" {
		resp.Provider = s.StubName
	}
	return &resp
}

// NewCapable builds a stub that supports every request kind, handy when a
// scenario doesn't exercise capability filtering.
func NewCapable(name string, priority int) *Stub {
	caps := orchestrator.ProviderCapabilities{
		TextCompletion:     true,
		ChatCompletion:     true,
		VisionAnalysis:     true,
		AudioTranscription: true,
		ImageGeneration:    true,
		TextToSpeech:       true,
	}
	return &Stub{StubName: name, StubPriority: priority, StubHealthy: true, Caps: caps}
}

// ErrorResponse builds a failed *orchestrator.Response carrying code and msg
// with an empty Metadata map; it adds no failures-list entry of its own.
func ErrorResponse(code orchestrator.ErrorCode, msg string) *orchestrator.Response {
	return &orchestrator.Response{
		IsSuccess:    false,
		ErrorCode:    code,
		ErrorMessage: msg,
		Metadata:     map[string]any{},
	}
}
