package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/nulpointcorp/ai-orchestrator/internal/adapter"
	"github.com/nulpointcorp/ai-orchestrator/internal/adapter/anthropic"
	"github.com/nulpointcorp/ai-orchestrator/internal/adapter/azure"
	"github.com/nulpointcorp/ai-orchestrator/internal/adapter/bedrock"
	"github.com/nulpointcorp/ai-orchestrator/internal/adapter/gemini"
	"github.com/nulpointcorp/ai-orchestrator/internal/adapter/mistral"
	"github.com/nulpointcorp/ai-orchestrator/internal/adapter/ollama"
	"github.com/nulpointcorp/ai-orchestrator/internal/adapter/openai"
	"github.com/nulpointcorp/ai-orchestrator/internal/adapter/openaicompat"
	"github.com/nulpointcorp/ai-orchestrator/internal/adapter/vertexai"
	"github.com/nulpointcorp/ai-orchestrator/internal/adapter/whispercpp"
	"github.com/nulpointcorp/ai-orchestrator/internal/orchestrator"
)

// adapterMeta is the per-provider metadata the composition root needs beyond
// what lives in config.Config.Providers: the capability declaration that
// gates registry candidacy, whether it's a local/on-device adapter (sorted
// last per spec.md §4.7), the cost table, and the constructor to call.
type adapterMeta struct {
	caps      orchestrator.ProviderCapabilities
	local     bool
	costTable adapter.CostEstimator
	build     func(ctx context.Context, base adapter.BaseAdapter) (orchestrator.Adapter, error)
}

func usd(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// textCaps is the capability set shared by every adapter offering only
// completion/chat (no vision, image generation, TTS, or transcription).
var textCaps = orchestrator.ProviderCapabilities{TextCompletion: true, ChatCompletion: true}

// compatMeta builds the adapterMeta for one OpenAI-wire-compatible provider,
// differing only in its cost table.
func compatMeta(inputPerM, outputPerM float64) adapterMeta {
	return adapterMeta{
		caps:      textCaps,
		costTable: openaicompat.CostPerMillionTokens(usd(inputPerM), usd(outputPerM)),
		build: func(_ context.Context, base adapter.BaseAdapter) (orchestrator.Adapter, error) {
			return openaicompat.New(base), nil
		},
	}
}

// adapterMetadata is the static registry of every adapter this composition
// root knows how to build, keyed by the same provider name used in
// config.Config.Providers and AI_PROVIDERS_<NAME>_* env vars.
var adapterMetadata = map[string]adapterMeta{
	"openai": {
		caps: orchestrator.ProviderCapabilities{
			TextCompletion: true, ChatCompletion: true, VisionAnalysis: true,
			ImageGeneration: true, TextToSpeech: true, AudioTranscription: true,
		},
		costTable: openai.CostPerMillionTokens(usd(2.50), usd(10.00)),
		build: func(_ context.Context, base adapter.BaseAdapter) (orchestrator.Adapter, error) {
			return openai.New(base), nil
		},
	},
	"anthropic": {
		caps:      orchestrator.ProviderCapabilities{TextCompletion: true, ChatCompletion: true, VisionAnalysis: true},
		costTable: anthropic.CostPerMillionTokens(usd(3.00), usd(15.00)),
		build: func(_ context.Context, base adapter.BaseAdapter) (orchestrator.Adapter, error) {
			return anthropic.New(base), nil
		},
	},
	"gemini": {
		caps: orchestrator.ProviderCapabilities{
			TextCompletion: true, ChatCompletion: true, VisionAnalysis: true, ImageGeneration: true,
		},
		costTable: gemini.CostPerMillionTokens(usd(1.25), usd(5.00)),
		build: func(ctx context.Context, base adapter.BaseAdapter) (orchestrator.Adapter, error) {
			return gemini.New(ctx, base)
		},
	},
	"vertexai": {
		caps:      orchestrator.ProviderCapabilities{TextCompletion: true, ChatCompletion: true, VisionAnalysis: true},
		costTable: vertexai.CostPerMillionTokens(usd(1.25), usd(5.00)),
		build: func(ctx context.Context, base adapter.BaseAdapter) (orchestrator.Adapter, error) {
			return vertexai.New(ctx, base)
		},
	},
	"mistral": {
		caps:      textCaps,
		costTable: mistral.CostPerMillionTokens(usd(2.00), usd(6.00)),
		build: func(_ context.Context, base adapter.BaseAdapter) (orchestrator.Adapter, error) {
			return mistral.New(base), nil
		},
	},
	"bedrock": {
		caps:      textCaps,
		costTable: bedrock.CostPerMillionTokens(usd(3.00), usd(15.00)),
		build: func(ctx context.Context, base adapter.BaseAdapter) (orchestrator.Adapter, error) {
			return bedrock.New(ctx, base)
		},
	},
	"azure": {
		caps:      textCaps,
		costTable: azure.CostPerMillionTokens(usd(2.50), usd(10.00)),
		build: func(_ context.Context, base adapter.BaseAdapter) (orchestrator.Adapter, error) {
			return azure.New(base), nil
		},
	},

	"xai":        compatMeta(2.00, 10.00),
	"deepseek":   compatMeta(0.27, 1.10),
	"groq":       compatMeta(0.59, 0.79),
	"together":   compatMeta(0.88, 0.88),
	"perplexity": compatMeta(1.00, 1.00),
	"cerebras":   compatMeta(0.60, 0.60),
	"moonshot":   compatMeta(0.20, 2.00),
	"minimax":    compatMeta(0.20, 1.10),
	"qwen":       compatMeta(0.50, 2.00),
	"nebius":     compatMeta(0.13, 0.40),
	"novita":     compatMeta(0.34, 0.39),
	"bytedance":  compatMeta(0.60, 1.20),
	"zai":        compatMeta(0.60, 2.20),
	"canopywave": compatMeta(0.50, 1.50),
	"inference":  compatMeta(0.30, 0.90),
	"nanogpt":    compatMeta(0.50, 1.50),

	"ollama": {
		caps:      textCaps,
		local:     true,
		costTable: ollama.CostPerMillionTokens(usd(0), usd(0)),
		build: func(_ context.Context, base adapter.BaseAdapter) (orchestrator.Adapter, error) {
			return ollama.New(base), nil
		},
	},
	"whispercpp": {
		caps:  orchestrator.ProviderCapabilities{AudioTranscription: true},
		local: true,
		build: func(_ context.Context, base adapter.BaseAdapter) (orchestrator.Adapter, error) {
			return whispercpp.New(base)
		},
	},
}
