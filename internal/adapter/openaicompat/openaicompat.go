// Package openaicompat adapts any OpenAI-wire-compatible chat completion
// service (xAI, Groq, DeepSeek, Together, Perplexity, Cerebras, Moonshot,
// MiniMax, Qwen, Nebius, NovitaAI, ByteDance, ZAI, Inference, NanoGPT) into
// an orchestrator.Adapter. Grounded on providers/openaicompat/openaicompat.go,
// rewired from the teacher's providers.ProxyRequest/Response contract onto
// orchestrator.Request/Response and BaseAdapter's shared pipeline.
package openaicompat

import (
	"context"
	"errors"
	"fmt"

	openaiSDK "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/shopspring/decimal"

	"github.com/nulpointcorp/ai-orchestrator/internal/adapter"
	"github.com/nulpointcorp/ai-orchestrator/internal/orchestrator"
)

// Adapter is a configurable OpenAI-wire-compatible orchestrator.Adapter.
type Adapter struct {
	adapter.BaseAdapter
	client openaiSDK.Client
}

// New builds an adapter for one OpenAI-compatible service, wired with the
// shared pipeline components constructed by the composition root.
func New(base adapter.BaseAdapter) *Adapter {
	opts := []option.RequestOption{
		option.WithAPIKey(base.Config.APIKey),
		option.WithHTTPClient(base.HTTPClient),
	}
	if base.Config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(base.Config.BaseURL))
	}

	return &Adapter{
		BaseAdapter: base,
		client:      openaiSDK.NewClient(opts...),
	}
}

func (a *Adapter) Execute(ctx context.Context, req *orchestrator.Request) *orchestrator.Response {
	return a.RunPipeline(ctx, req, a.wireCall)
}

func (a *Adapter) wireCall(ctx context.Context, req *orchestrator.Request) (adapter.WireResult, error) {
	params := a.buildParams(req)

	key, err := a.Keys.CurrentKey(ctx, a.ProviderName)
	if err == nil && key != "" {
		resp, callErr := a.client.Chat.Completions.New(ctx, params, option.WithAPIKey(key))
		if callErr != nil {
			return adapter.WireResult{}, toProviderError(a.ProviderName, callErr)
		}
		return toWireResult(resp), nil
	}

	resp, callErr := a.client.Chat.Completions.New(ctx, params)
	if callErr != nil {
		return adapter.WireResult{}, toProviderError(a.ProviderName, callErr)
	}
	return toWireResult(resp), nil
}

func (a *Adapter) buildParams(req *orchestrator.Request) openaiSDK.ChatCompletionNewParams {
	params := openaiSDK.ChatCompletionNewParams{
		Model: a.Config.Model,
	}
	if req.SystemPrompt != "" {
		params.Messages = append(params.Messages, openaiSDK.SystemMessage(req.SystemPrompt))
	}
	params.Messages = append(params.Messages, openaiSDK.UserMessage(req.Prompt))

	if req.Temperature != 0 {
		params.Temperature = openaiSDK.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openaiSDK.Int(int64(req.MaxTokens))
	}
	return params
}

func toWireResult(resp *openaiSDK.ChatCompletion) adapter.WireResult {
	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	return adapter.WireResult{
		Content:      content,
		Model:        resp.Model,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		Raw:          map[string]any{"id": resp.ID},
	}
}

// providerError carries the remote HTTP status so BaseAdapter can classify
// it into the ErrorCode taxonomy without importing the SDK.
type providerError struct {
	name       string
	statusCode int
	message    string
}

func (e *providerError) Error() string {
	return fmt.Sprintf("%s: %s (status=%d)", e.name, e.message, e.statusCode)
}

func (e *providerError) StatusCode() int { return e.statusCode }

func toProviderError(name string, err error) error {
	var apierr *openaiSDK.Error
	if errors.As(err, &apierr) {
		return &providerError{name: name, statusCode: apierr.StatusCode, message: apierr.Error()}
	}
	return err
}

// CostPerMillionTokens is the simplest tiered-pricing shape: a flat
// dollars-per-million-tokens rate for input and output. Most OpenAI-wire
// services publish pricing this way.
func CostPerMillionTokens(inputRate, outputRate decimal.Decimal) adapter.CostEstimator {
	million := decimal.NewFromInt(1_000_000)
	return func(inputTokens, outputTokens int) decimal.Decimal {
		in := inputRate.Mul(decimal.NewFromInt(int64(inputTokens))).Div(million)
		out := outputRate.Mul(decimal.NewFromInt(int64(outputTokens))).Div(million)
		return in.Add(out)
	}
}
