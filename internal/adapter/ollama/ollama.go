// Package ollama adapts a local Ollama server into an orchestrator.Adapter
// for chat completion. IsLocal reports true: the registry places this
// adapter after every remote candidate capable of the same request kind
// (spec.md §4.7), making it a no-API-key fallback of last resort. Grounded
// on paulwilltell-OFFGRIDFLOW/internal/ai/local_offline_provider.go's
// hand-rolled JSON-over-net/http client for a local inference engine, and on
// MrWong99-glyphoxa/pkg/provider/embeddings/ollama's use of Ollama's native
// REST API — no official Go SDK for Ollama chat appears in the example
// pack, so this keeps the same approach, talking to /api/chat instead of
// /api/generate or /api/embed.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/nulpointcorp/ai-orchestrator/internal/adapter"
	"github.com/nulpointcorp/ai-orchestrator/internal/orchestrator"
)

const defaultBaseURL = "http://localhost:11434"

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *chatOptions  `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatResponse struct {
	Model           string      `json:"model"`
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

type Adapter struct {
	adapter.BaseAdapter
	baseURL string
}

// New builds an Ollama adapter. base.Config.BaseURL, when set, overrides
// the default localhost:11434 endpoint.
func New(base adapter.BaseAdapter) *Adapter {
	baseURL := base.Config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{BaseAdapter: base, baseURL: baseURL}
}

func (a *Adapter) Execute(ctx context.Context, req *orchestrator.Request) *orchestrator.Response {
	return a.RunPipeline(ctx, req, a.wireCall)
}

func (a *Adapter) wireCall(ctx context.Context, req *orchestrator.Request) (adapter.WireResult, error) {
	msgs := []chatMessage{}
	if req.SystemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.Prompt})

	var opts *chatOptions
	if req.Temperature > 0 || req.MaxTokens > 0 {
		opts = &chatOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens}
	}

	body, err := json.Marshal(chatRequest{Model: a.Config.Model, Messages: msgs, Stream: false, Options: opts})
	if err != nil {
		return adapter.WireResult{}, fmt.Errorf("ollama: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return adapter.WireResult{}, fmt.Errorf("ollama: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.HTTPClient.Do(httpReq)
	if err != nil {
		return adapter.WireResult{}, fmt.Errorf("ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return adapter.WireResult{}, parseError(resp)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return adapter.WireResult{}, fmt.Errorf("ollama: decode response: %w", err)
	}
	if !cr.Done {
		return adapter.WireResult{}, fmt.Errorf("ollama: incomplete response")
	}

	return adapter.WireResult{
		Content:      cr.Message.Content,
		Model:        cr.Model,
		InputTokens:  cr.PromptEvalCount,
		OutputTokens: cr.EvalCount,
	}, nil
}

type providerError struct {
	statusCode int
	message    string
}

func (e *providerError) Error() string {
	return fmt.Sprintf("ollama: %s (status=%d)", e.message, e.statusCode)
}

func (e *providerError) StatusCode() int { return e.statusCode }

func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var er struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &er) == nil && er.Error != "" {
		return &providerError{statusCode: resp.StatusCode, message: er.Error}
	}
	return &providerError{statusCode: resp.StatusCode, message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
}

// CostPerMillionTokens mirrors the cost-estimation helper used by every
// remote adapter, even though local inference is free: callers that leave
// CostTable nil get a zero estimate, but a configured operator may still
// want to attribute infrastructure cost via a synthetic rate.
func CostPerMillionTokens(inputRate, outputRate decimal.Decimal) adapter.CostEstimator {
	million := decimal.NewFromInt(1_000_000)
	return func(inputTokens, outputTokens int) decimal.Decimal {
		in := inputRate.Mul(decimal.NewFromInt(int64(inputTokens))).Div(million)
		out := outputRate.Mul(decimal.NewFromInt(int64(outputTokens))).Div(million)
		return in.Add(out)
	}
}
