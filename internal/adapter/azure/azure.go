// Package azure adapts Azure OpenAI (deployment-based URLs, "api-key"
// header) into an orchestrator.Adapter. Grounded on
// providers/azure/azure.go.
package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nulpointcorp/ai-orchestrator/internal/adapter"
	"github.com/nulpointcorp/ai-orchestrator/internal/orchestrator"
)

type chatRequest struct {
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
	endpoint   string
	apiVersion string
}

// New builds an Azure OpenAI adapter. base.Config.BaseURL carries the
// resource endpoint (e.g. "https://myresource.openai.azure.com") and
// base.Config.AdditionalSettings["apiVersion"] the API version.
func New(base adapter.BaseAdapter) *Adapter {
	apiVersion, _ := base.Config.AdditionalSettings["apiVersion"].(string)
	if apiVersion == "" {
		apiVersion = "2024-12-01-preview"
	}
	return &Adapter{
		BaseAdapter: base,
		endpoint:    strings.TrimRight(base.Config.BaseURL, "/"),
		apiVersion:  apiVersion,
	}
}

func (a *Adapter) Execute(ctx context.Context, req *orchestrator.Request) *orchestrator.Response {
	return a.RunPipeline(ctx, req, a.wireCall)
}

// deploymentName strips the "azure-" prefix from the configured model if
// present, yielding the deployment name used in the URL.
func (a *Adapter) deploymentName() string {
	return strings.TrimPrefix(a.Config.Model, "azure-")
}

func (a *Adapter) wireCall(ctx context.Context, req *orchestrator.Request) (adapter.WireResult, error) {
	msgs := []chatMessage{}
	if req.SystemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatRequest{Messages: msgs, Temperature: req.Temperature, MaxTokens: req.MaxTokens})
	if err != nil {
		return adapter.WireResult{}, fmt.Errorf("azure: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s", a.endpoint, a.deploymentName(), a.apiVersion)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return adapter.WireResult{}, fmt.Errorf("azure: %w", err)
	}

	key, err := a.Keys.CurrentKey(ctx, a.ProviderName)
	if err != nil || key == "" {
		key = a.Config.APIKey
	}
	httpReq.Header.Set("api-key", key)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.HTTPClient.Do(httpReq)
	if err != nil {
		return adapter.WireResult{}, fmt.Errorf("azure: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return adapter.WireResult{}, parseError(resp)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return adapter.WireResult{}, fmt.Errorf("azure: decode response: %w", err)
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
	return fmt.Sprintf("azure: %s (status=%d)", e.message, e.statusCode)
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
