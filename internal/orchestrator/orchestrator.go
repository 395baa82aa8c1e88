package orchestrator

import (
	"context"
	"sync"
	"time"
)

// Orchestrator drives candidate selection and cross-adapter failover.
// Grounded on proxy/gateway.go's dispatchChat combined with
// proxy/failover.go's requestWithFailover, generalized from a fixed
// provider-name fallback order to Registry.Candidates and from an
// HTTP-handler-embedded loop to a standalone, transport-agnostic engine
// (spec.md §6 treats the library API as primary, HTTP as optional).
type Orchestrator struct {
	registry *Registry

	mu       sync.Mutex
	failures []time.Time // recent Execute failures across all adapters, for HealthCheck
}

func New(registry *Registry) *Orchestrator {
	return &Orchestrator{registry: registry}
}

// GetCompletion walks Registry.Candidates(req) in order, invoking each
// adapter's Execute until one succeeds. A candidate's non-success response is
// retried on the next candidate only if ShouldFallback reports true for its
// ErrorCode; otherwise that response is returned immediately (spec.md §4.1 —
// not every failure is fallback-eligible, e.g. INVALID_REQUEST never is).
// Caller cancellation short-circuits the loop without advancing further.
func (o *Orchestrator) GetCompletion(ctx context.Context, req *Request) *Response {
	if msg := validateShape(req); msg != "" {
		return &Response{
			IsSuccess:    false,
			ErrorCode:    ErrInvalidRequest,
			ErrorMessage: msg,
		}
	}

	candidates := o.registry.Candidates(req)
	if len(candidates) == 0 {
		return &Response{
			IsSuccess:    false,
			ErrorCode:    ErrUnknown,
			ErrorMessage: "no eligible provider",
		}
	}

	var last *Response
	for _, a := range candidates {
		if ctx.Err() != nil {
			return &Response{
				Provider:     a.Name(),
				IsSuccess:    false,
				ErrorCode:    ErrCancelled,
				ErrorMessage: ctx.Err().Error(),
			}
		}

		resp := a.Execute(ctx, req)
		last = resp

		if resp.IsSuccess {
			return resp
		}

		o.recordFailure()

		if resp.ErrorCode == ErrCancelled {
			return resp
		}

		if !a.ShouldFallback(codeError{resp.ErrorCode, resp.ErrorMessage}) {
			return resp
		}
	}

	// Every eligible candidate failed and was fallback-eligible: surface the
	// last response rather than synthesizing a new one, so callers retain the
	// final provider's diagnostic detail.
	return last
}

// validateShape is spec.md §4.8 step 1: reject a request whose shape could
// never be served by any adapter before Candidates() is even consulted.
// Text-bearing kinds need a non-empty Prompt; media-bearing kinds need their
// media payload, mirroring adapter.BaseAdapter.CanHandle's own per-kind
// media checks so neither layer silently disagrees with the other. Returns
// "" when req is well-formed.
func validateShape(req *Request) string {
	switch req.Kind {
	case VisionAnalysis:
		if len(req.ImageBytes) == 0 && len(req.ImageURLs) == 0 {
			return "vision_analysis request requires image bytes or image URLs"
		}
	case AudioTranscription:
		if len(req.AudioBytes) == 0 {
			return "audio_transcription request requires audio bytes"
		}
	default:
		if req.Prompt == "" {
			return "request requires a non-empty prompt"
		}
	}
	return ""
}

// HealthCheck reports aggregate registry health per spec.md §4.8/§6.
// "Healthy" adapters are those whose resilience pipeline isn't Open and that
// accept a minimal synthetic text-completion request; recent
// failures are counted over the trailing 5 minutes across all adapters.
func (o *Orchestrator) HealthCheck(ctx context.Context) HealthStatus {
	all := o.registry.All()

	status := HealthStatus{
		TotalProviders: len(all),
		ProviderQuotas: make(map[string]any, len(all)),
	}

	for _, a := range all {
		status.ProviderQuotas[a.Name()] = a.QuotaStatus(ctx)
	}

	status.HealthyProviders = o.countHealthy(all)
	status.RecentFailures5Min = o.recentFailureCount()
	status.Healthy = status.HealthyProviders > 0

	return status
}

func (o *Orchestrator) countHealthy(all []Adapter) int {
	healthy := 0
	probe := &Request{Kind: TextCompletion, Prompt: "health"}
	for _, a := range all {
		if a.Healthy() && a.CanHandle(probe) {
			healthy++
		}
	}
	return healthy
}

func (o *Orchestrator) recordFailure() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, time.Now())
	o.pruneFailuresLocked()
}

func (o *Orchestrator) recentFailureCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pruneFailuresLocked()
	return len(o.failures)
}

func (o *Orchestrator) pruneFailuresLocked() {
	cutoff := time.Now().Add(-5 * time.Minute)
	kept := o.failures[:0]
	for _, t := range o.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	o.failures = kept
}

// codeError adapts a Response's ErrorCode/ErrorMessage into an error so it
// can be passed through Adapter.ShouldFallback's error-shaped parameter.
type codeError struct {
	code ErrorCode
	msg  string
}

func (e codeError) Error() string { return string(e.code) + ": " + e.msg }

// Code returns the wrapped ErrorCode, letting adapter ShouldFallback
// implementations type-switch without importing fmt/errors machinery.
func (e codeError) Code() ErrorCode { return e.code }
