// Package mistral adapts the Mistral chat completions API into an
// orchestrator.Adapter. Mistral has no official Go SDK in the example pack,
// so this keeps the teacher's hand-rolled JSON-over-net/http approach from
// providers/mistral/mistral.go, now driven by BaseAdapter.HTTPClient.
package mistral

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

const defaultBaseURL = "https://api.mistral.ai/v1"

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   usage    `json:"usage"`
	Error   *apiErr  `json:"error,omitempty"`
}

type choice struct {
	Message *chatMessage `json:"message,omitempty"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type apiErr struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type Adapter struct {
	adapter.BaseAdapter
	baseURL string
}

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

	body, err := json.Marshal(chatRequest{
		Model:       a.Config.Model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return adapter.WireResult{}, fmt.Errorf("mistral: marshal request: %w", err)
	}

	key, err := a.Keys.CurrentKey(ctx, a.ProviderName)
	if err != nil || key == "" {
		key = a.Config.APIKey
	}
	if key == "" {
		return adapter.WireResult{}, fmt.Errorf("mistral: no API key configured")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return adapter.WireResult{}, fmt.Errorf("mistral: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.HTTPClient.Do(httpReq)
	if err != nil {
		return adapter.WireResult{}, fmt.Errorf("mistral: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return adapter.WireResult{}, parseError(resp)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return adapter.WireResult{}, fmt.Errorf("mistral: decode response: %w", err)
	}

	content := ""
	if len(cr.Choices) > 0 && cr.Choices[0].Message != nil {
		content = cr.Choices[0].Message.Content
	}

	return adapter.WireResult{
		Content:      content,
		Model:        cr.Model,
		InputTokens:  cr.Usage.PromptTokens,
		OutputTokens: cr.Usage.CompletionTokens,
		Raw:          map[string]any{"id": cr.ID},
	}, nil
}

type providerError struct {
	statusCode int
	message    string
}

func (e *providerError) Error() string {
	return fmt.Sprintf("mistral: %s (status=%d)", e.message, e.statusCode)
}

func (e *providerError) StatusCode() int { return e.statusCode }

func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var cr chatResponse
	if json.Unmarshal(body, &cr) == nil && cr.Error != nil {
		return &providerError{statusCode: resp.StatusCode, message: cr.Error.Message}
	}
	return &providerError{statusCode: resp.StatusCode, message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
}

func CostPerMillionTokens(inputRate, outputRate decimal.Decimal) adapter.CostEstimator {
	million := decimal.NewFromInt(1_000_000)
	return func(inputTokens, outputTokens int) decimal.Decimal {
		in := inputRate.Mul(decimal.NewFromInt(int64(inputTokens))).Div(million)
		out := outputRate.Mul(decimal.NewFromInt(int64(outputTokens))).Div(million)
		return in.Add(out)
	}
}
