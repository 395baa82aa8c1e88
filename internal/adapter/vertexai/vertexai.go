// Package vertexai adapts Google Vertex AI into an orchestrator.Adapter,
// authenticating via Application Default Credentials instead of an API key.
// Grounded on providers/vertexai/vertexai.go.
package vertexai

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/shopspring/decimal"

	"github.com/nulpointcorp/ai-orchestrator/internal/adapter"
	"github.com/nulpointcorp/ai-orchestrator/internal/orchestrator"
)

const defaultLocation = "us-central1"

type Adapter struct {
	adapter.BaseAdapter
	client *genai.Client
}

// New builds a Vertex AI adapter. base.Config.AdditionalSettings must carry
// "project" (required) and may carry "location" (defaults to us-central1).
func New(ctx context.Context, base adapter.BaseAdapter) (*Adapter, error) {
	project, _ := base.Config.AdditionalSettings["project"].(string)
	if project == "" {
		return nil, fmt.Errorf("vertexai: additionalSettings.project is required")
	}
	location, _ := base.Config.AdditionalSettings["location"].(string)
	if location == "" {
		location = defaultLocation
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  project,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("vertexai: create client: %w", err)
	}
	return &Adapter{BaseAdapter: base, client: client}, nil
}

func (a *Adapter) Execute(ctx context.Context, req *orchestrator.Request) *orchestrator.Response {
	return a.RunPipeline(ctx, req, a.wireCall)
}

func (a *Adapter) wireCall(ctx context.Context, req *orchestrator.Request) (adapter.WireResult, error) {
	parts := []*genai.Part{{Text: req.Prompt}}
	if req.Kind == orchestrator.VisionAnalysis && len(req.ImageBytes) > 0 {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: "image/" + req.ImageFormat, Data: req.ImageBytes},
		})
	}
	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}

	cfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	resp, err := a.client.Models.GenerateContent(ctx, a.Config.Model, contents, cfg)
	if err != nil {
		return adapter.WireResult{}, toProviderError(err)
	}

	var inTok, outTok int
	if resp != nil && resp.UsageMetadata != nil {
		inTok = int(resp.UsageMetadata.PromptTokenCount)
		outTok = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	text := ""
	if resp != nil {
		text = resp.Text()
	}

	return adapter.WireResult{Content: text, Model: a.Config.Model, InputTokens: inTok, OutputTokens: outTok}, nil
}

type providerError struct {
	statusCode int
	message    string
}

func (e *providerError) Error() string {
	return fmt.Sprintf("vertexai: %s (status=%d)", e.message, e.statusCode)
}

func (e *providerError) StatusCode() int { return e.statusCode }

func toProviderError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &providerError{statusCode: apiErr.Code, message: apiErr.Message}
	}
	return err
}

func CostPerMillionTokens(inputRate, outputRate decimal.Decimal) adapter.CostEstimator {
	million := decimal.NewFromInt(1_000_000)
	return func(inputTokens, outputTokens int) decimal.Decimal {
		in := inputRate.Mul(decimal.NewFromInt(int64(inputTokens))).Div(million)
		out := outputRate.Mul(decimal.NewFromInt(int64(outputTokens))).Div(million)
		return in.Add(out)
	}
}
