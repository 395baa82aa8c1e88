// Package adapter supplies BaseAdapter, the shared pipeline runner every
// concrete provider package (internal/adapter/openai, .../anthropic, ...)
// embeds. Grounded on proxy/gateway.go's dispatchChat ordering
// (parse -> rate-limit -> cache -> provider call -> cache store -> log),
// reordered per spec.md §4.2 to quota -> cache -> rate-limit -> send ->
// parse -> record -> store, and moved from gateway-wide to per-adapter-owned
// state — composition in place of the source's deep adapter inheritance.
package adapter

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nulpointcorp/ai-orchestrator/internal/apikey"
	"github.com/nulpointcorp/ai-orchestrator/internal/audit"
	"github.com/nulpointcorp/ai-orchestrator/internal/cache"
	"github.com/nulpointcorp/ai-orchestrator/internal/orchestrator"
	"github.com/nulpointcorp/ai-orchestrator/internal/quota"
	"github.com/nulpointcorp/ai-orchestrator/internal/ratelimit"
	"github.com/nulpointcorp/ai-orchestrator/internal/resilience"
	"github.com/nulpointcorp/ai-orchestrator/internal/telemetry"
)

// WireResult is what a concrete adapter's wire call reports back to
// RunPipeline once the remote call has been sent and parsed.
type WireResult struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
	Raw          map[string]any
}

// WireCall performs one provider-specific request/response round trip:
// building the payload, sending it through the supplied *http.Client (or an
// SDK client closed over by the adapter), and parsing the result. It is the
// seam between the generic pipeline below and each provider's wire format.
type WireCall func(ctx context.Context, req *orchestrator.Request) (WireResult, error)

// CostEstimator applies a provider's tiered pricing table.
type CostEstimator func(inputTokens, outputTokens int) decimal.Decimal

// BaseAdapter holds every piece of shared plumbing a concrete adapter needs:
// HTTP client, resilience pipeline, cache/quota/audit/rate-limit handles, API
// key retrieval and a cost table — composition, per the Design Note
// replacing deep per-provider inheritance.
type BaseAdapter struct {
	ProviderName string
	Config       orchestrator.ProviderConfiguration
	Caps         orchestrator.ProviderCapabilities
	Local        bool

	// ProviderPriority orders this adapter among remote candidates for the
	// same request (ascending, lower tried first); set by the composition
	// root from AI.Orchestration.fallbackOrder (spec.md §4.7). Zero sorts
	// ahead of every positive priority; equal priorities keep registration order.
	ProviderPriority int

	HTTPClient *http.Client
	Pipeline   *resilience.Pipeline
	RateLimit  ratelimit.Limiter
	Cache      *cache.ResponseCache
	Quota      quota.Manager
	Audit      audit.Sink
	Keys       apikey.Manager
	CostTable  CostEstimator

	// Metrics is optional; nil disables all telemetry (AI.Orchestration.
	// enableMetricsCollection=false).
	Metrics *telemetry.Registry

	// CacheEvenWithTemperature reflects the adapter's opt-in decision for
	// whether temperature>0 responses are still cached (spec.md §4.6 Open
	// Question — default true, surfaced in Response.Metadata["cache_policy"]).
	CacheEvenWithTemperature bool
}

func (b *BaseAdapter) Name() string                                    { return b.ProviderName }
func (b *BaseAdapter) Priority() int                                   { return b.ProviderPriority }
func (b *BaseAdapter) Capabilities() orchestrator.ProviderCapabilities { return b.Caps }
func (b *BaseAdapter) IsLocal() bool                               { return b.Local }

func (b *BaseAdapter) Healthy() bool {
	return b.Pipeline.Breaker().State() != resilience.Open
}

// CanHandle reports enablement, capability and language match per spec.md
// §4.1/§4.2 step-0 gating (the registry calls this before Execute runs).
func (b *BaseAdapter) CanHandle(req *orchestrator.Request) bool {
	if !b.Config.IsEnabled {
		return false
	}
	if !b.Caps.Supports(req.Kind) {
		return false
	}
	if !b.Caps.SupportsLanguage(req.Context.Language) {
		return false
	}
	switch req.Kind {
	case orchestrator.VisionAnalysis:
		if len(req.ImageBytes) == 0 && len(req.ImageURLs) == 0 {
			return false
		}
	case orchestrator.AudioTranscription:
		if len(req.AudioBytes) == 0 {
			return false
		}
	}
	return true
}

// ShouldFallback reports true for transient/rate-limit/quota/5xx/timeout
// errors and false for permanent client errors, per spec.md §4.2.
func (b *BaseAdapter) ShouldFallback(err error) bool {
	if err == nil {
		return false
	}
	type coded interface{ Code() orchestrator.ErrorCode }
	c, ok := err.(coded)
	if !ok {
		return true
	}
	switch c.Code() {
	case orchestrator.ErrQuotaExceeded, orchestrator.ErrRateLimitExceeded,
		orchestrator.ErrTimeout, orchestrator.ErrCircuitOpen:
		return true
	case orchestrator.ErrInvalidRequest, orchestrator.ErrInvalidResponse, orchestrator.ErrCancelled:
		return false
	}
	code := string(c.Code())
	if strings.HasPrefix(code, "HTTP_") {
		status := code[len("HTTP_"):]
		return status == "408" || status == "429" || strings.HasPrefix(status, "5")
	}
	return true
}

func (b *BaseAdapter) EstimateCost(inputTokens, outputTokens int) decimal.Decimal {
	if b.CostTable == nil {
		return decimal.Zero
	}
	return b.CostTable(inputTokens, outputTokens)
}

func (b *BaseAdapter) QuotaStatus(ctx context.Context) map[string]any {
	statuses, err := b.Quota.Status(ctx, b.ProviderName, "")
	if err != nil || len(statuses) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(statuses))
	for _, s := range statuses {
		out[s.Window+"_requests"] = s.Consumed
	}
	return out
}

// EstimateTokens implements spec.md §4.2's text heuristic:
// max(ceil(words*1.3), chars/4). Provider-specific adapters may override
// for audio/image requests.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	byWords := int(math.Ceil(float64(words) * 1.3))
	byChars := len(text) / 4
	if byWords > byChars {
		return byWords
	}
	return byChars
}

// RunPipeline executes the full 10-step sequence of spec.md §4.2 around
// call, the provider-specific WireCall. Concrete adapters' Execute methods
// are typically a one-line call into this.
func (b *BaseAdapter) RunPipeline(ctx context.Context, req *orchestrator.Request, call WireCall) *orchestrator.Response {
	start := time.Now()

	// Step 1: clamp maxTokens, validate media presence.
	clamped := *req
	if b.Caps.MaxTokensLimit > 0 && clamped.MaxTokens > b.Caps.MaxTokensLimit {
		clamped.MaxTokens = b.Caps.MaxTokensLimit
	}
	if err := b.validateMedia(&clamped); err != nil {
		return b.errorResponse(start, &clamped, orchestrator.ErrInvalidRequest, err.Error(), nil)
	}

	estTokens := EstimateTokens(clamped.Prompt)
	estCost, _ := b.EstimateCost(estTokens, 0).Float64()

	// Step 2: quota check.
	qr, err := b.Quota.CheckQuota(ctx, b.ProviderName, clamped.Context.UserID, estTokens, estCost)
	if err != nil || !qr.CanProceed {
		msg := "quota exceeded"
		if err != nil {
			msg = err.Error()
		}
		_ = b.Quota.RecordUsage(ctx, b.ProviderName, clamped.Context.UserID, 0, 0, false)
		if b.Metrics != nil {
			b.Metrics.RecordQuotaRejection(b.ProviderName)
		}
		return b.errorResponse(start, &clamped, orchestrator.ErrQuotaExceeded, msg, nil)
	}

	// Step 3: cache probe.
	cacheKey := ""
	cacheable := b.Config.EnableCaching && !b.Cache.Excluded(b.Config.Model)
	if cacheable {
		cacheKey = cache.Fingerprint(cache.FingerprintInput{
			Provider:             b.ProviderName,
			Model:                b.Config.Model,
			Prompt:               clamped.Prompt,
			MaxTokens:            clamped.MaxTokens,
			Temperature:          clamped.Temperature,
			AdditionalParameters: clamped.AdditionalParameters,
		})
		if cr, hit := b.Cache.Get(ctx, cacheKey); hit {
			if b.Metrics != nil {
				b.Metrics.CacheHit()
				b.Metrics.RecordRequest(b.ProviderName, "success", time.Since(start), string(clamped.Kind), "hit")
			}
			return &orchestrator.Response{
				Content:        cr.ResponseText,
				Provider:       b.ProviderName,
				Model:          cr.Model,
				TokensUsed:     cr.TokensUsed,
				ProcessingTime: time.Since(start),
				IsSuccess:      true,
				Metadata:       mergeMeta(cr.Metadata, map[string]any{"cached": true, "hit_count": cr.HitCount}),
			}
		}
		if b.Metrics != nil {
			b.Metrics.CacheMiss()
		}
	}

	// Step 4: rate-limit admission.
	if b.Config.EnableRateLimiting {
		allowed, retryAfter, _ := b.RateLimit.Allow(ctx, b.ProviderName, b.Config.RequestsPerMinute)
		if !allowed {
			if b.Metrics != nil {
				b.Metrics.RecordRateLimitRejection(b.ProviderName)
			}
			return b.errorResponse(start, &clamped, orchestrator.ErrRateLimitExceeded,
				fmt.Sprintf("rate limit exceeded, retry after %s", retryAfter), nil)
		}
	}

	// Steps 5-6: build payload and send, through the resilience pipeline.
	var result WireResult
	sendErr := b.Pipeline.Run(ctx, func(callCtx context.Context) error {
		r, err := call(callCtx, &clamped)
		if err != nil {
			return err
		}
		result = r
		return nil
	})

	if sendErr != nil {
		code := b.classifyError(ctx, sendErr)
		_ = b.Quota.RecordUsage(ctx, b.ProviderName, clamped.Context.UserID, 0, 0, false)
		b.emitAudit(&clamped, "", 0, 0, time.Since(start), false, code, sendErr.Error())
		if b.Metrics != nil {
			b.Metrics.RecordRequest(b.ProviderName, "error", time.Since(start), string(clamped.Kind), "miss")
			b.Metrics.SetCircuitBreaker(b.ProviderName, int64(b.Pipeline.Breaker().State()))
		}
		return b.errorResponse(start, &clamped, code, sendErr.Error(), nil)
	}

	// Step 7: already parsed by WireCall; estimate tokens if unreported.
	inputTokens := result.InputTokens
	outputTokens := result.OutputTokens
	if inputTokens == 0 {
		inputTokens = estTokens
	}
	if outputTokens == 0 {
		outputTokens = EstimateTokens(result.Content)
	}
	totalTokens := inputTokens + outputTokens
	cost := b.EstimateCost(inputTokens, outputTokens)
	costF, _ := cost.Float64()

	// Step 8: record usage, audit, metrics.
	_ = b.Quota.RecordUsage(ctx, b.ProviderName, clamped.Context.UserID, totalTokens, costF, true)
	b.emitAudit(&clamped, result.Content, totalTokens, 0, time.Since(start), true, "", "")

	meta := map[string]any{"cached": false}
	if b.CacheEvenWithTemperature {
		meta["cache_policy"] = "cache_all_successes"
	} else {
		meta["cache_policy"] = "skip_nonzero_temperature"
	}

	resp := &orchestrator.Response{
		Content:        result.Content,
		Provider:       b.ProviderName,
		Model:          firstNonEmpty(result.Model, b.Config.Model),
		TokensUsed:     totalTokens,
		ProcessingTime: time.Since(start),
		IsSuccess:      true,
		EstimatedCost:  cost,
		Metadata:       meta,
	}

	// Step 9: store in cache when enabled, TTL positive, and policy allows.
	if cacheable && b.Config.CacheDurationMinutes > 0 && (b.CacheEvenWithTemperature || clamped.Temperature == 0) {
		_ = b.Cache.Set(ctx, cacheKey, cache.CachedResponse{
			ProviderName: b.ProviderName,
			Model:        resp.Model,
			ResponseText: resp.Content,
			Metadata:     result.Raw,
			TokensUsed:   totalTokens,
			DurationMs:   resp.ProcessingTime.Milliseconds(),
		}, time.Duration(b.Config.CacheDurationMinutes)*time.Minute)
		if b.Metrics != nil {
			b.Metrics.CacheSet()
		}
	}

	if b.Metrics != nil {
		b.Metrics.RecordRequest(b.ProviderName, "success", resp.ProcessingTime, string(clamped.Kind), "miss")
		b.Metrics.AddTokens(b.ProviderName, inputTokens, outputTokens)
		b.Metrics.AddCost(b.ProviderName, start.UTC().Format("2006-01-02"), costF)
		b.Metrics.SetProviderHealth(b.ProviderName, b.Healthy())
		b.Metrics.SetCircuitBreaker(b.ProviderName, int64(b.Pipeline.Breaker().State()))
	}

	// Step 10: return success response.
	return resp
}

func (b *BaseAdapter) validateMedia(req *orchestrator.Request) error {
	switch req.Kind {
	case orchestrator.VisionAnalysis:
		if len(req.ImageBytes) == 0 && len(req.ImageURLs) == 0 {
			return fmt.Errorf("vision analysis requires imageBytes or imageUrls")
		}
	case orchestrator.AudioTranscription:
		if len(req.AudioBytes) == 0 {
			return fmt.Errorf("audio transcription requires audioBytes")
		}
	case orchestrator.TextCompletion, orchestrator.ChatCompletion:
		if req.Prompt == "" {
			return fmt.Errorf("prompt must not be empty")
		}
	}
	return nil
}

// classifyError maps a pipeline error into the ErrorCode taxonomy.
// Cancellation is checked first per spec.md §5: a caller-cancelled context
// is reported as CANCELLED, never as a circuit-breaker/timeout failure.
func (b *BaseAdapter) classifyError(ctx context.Context, err error) orchestrator.ErrorCode {
	if ctx.Err() != nil {
		return orchestrator.ErrCancelled
	}
	if err == resilience.ErrCircuitOpen {
		return orchestrator.ErrCircuitOpen
	}
	type statusErr interface{ StatusCode() int }
	if se, ok := err.(statusErr); ok {
		return orchestrator.HTTPError(se.StatusCode())
	}
	return orchestrator.ErrUnknown
}

func (b *BaseAdapter) errorResponse(start time.Time, req *orchestrator.Request, code orchestrator.ErrorCode, msg string, meta map[string]any) *orchestrator.Response {
	return &orchestrator.Response{
		Provider:       b.ProviderName,
		Model:          b.Config.Model,
		ProcessingTime: time.Since(start),
		IsSuccess:      false,
		ErrorCode:      code,
		ErrorMessage:   msg,
		Metadata:       meta,
	}
}

func (b *BaseAdapter) emitAudit(req *orchestrator.Request, content string, tokens int, _ int, dur time.Duration, success bool, code orchestrator.ErrorCode, msg string) {
	b.Audit.LogRequest(audit.Entry{
		RequestID:      req.Context.RequestID,
		Provider:       b.ProviderName,
		Model:          b.Config.Model,
		UserID:         req.Context.UserID,
		SessionID:      req.Context.SessionID,
		Kind:           string(req.Kind),
		PromptLength:   len(req.Prompt),
		ResponseLength: len(content),
		TokensUsed:     tokens,
		DurationMs:     dur.Milliseconds(),
		Success:        success,
		ErrorCode:      string(code),
		ErrorMessage:   msg,
		CreatedAt:      time.Now(),
	})
}

func mergeMeta(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
