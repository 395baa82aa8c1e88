// Package gemini adapts Google's Generative Language API into an
// orchestrator.Adapter, covering chat/text, vision (inline image parts) and
// image generation (Imagen). Grounded on providers/gemini/gemini.go.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"google.golang.org/genai"

	"github.com/shopspring/decimal"

	"github.com/nulpointcorp/ai-orchestrator/internal/adapter"
	"github.com/nulpointcorp/ai-orchestrator/internal/orchestrator"
)

type Adapter struct {
	adapter.BaseAdapter
	client *genai.Client
}

// New constructs a Gemini adapter. ctx is used only for client setup, per the
// upstream SDK's constructor requirement. A configured BaseURL (tests, or a
// compatible proxy) is split into HTTPOptions.BaseURL/APIVersion the same way
// providers/gemini/gemini.go does, since genai.ClientConfig has no single
// "base URL including version" field.
func New(ctx context.Context, base adapter.BaseAdapter) (*Adapter, error) {
	cfg := &genai.ClientConfig{
		APIKey:     base.Config.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: base.HTTPClient,
	}
	if base.Config.BaseURL != "" {
		baseURL, apiVersion := splitBaseURLAndVersion(base.Config.BaseURL)
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL, APIVersion: apiVersion}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: client init: %w", err)
	}
	return &Adapter{BaseAdapter: base, client: client}, nil
}

// splitBaseURLAndVersion pulls a trailing "/v1beta"-shaped path segment off
// baseURL into an API version, since genai.HTTPOptions wants them separate.
func splitBaseURLAndVersion(raw string) (baseURL string, apiVersion string) {
	u, err := url.Parse(raw)
	if err != nil {
		return raw, ""
	}

	path := strings.Trim(u.Path, "/")
	if path == "" {
		base := u.String()
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		return base, ""
	}

	parts := strings.Split(path, "/")
	last := parts[len(parts)-1]
	if looksLikeAPIVersion(last) {
		apiVersion = last
		parts = parts[:len(parts)-1]
	}

	u.Path = "/" + strings.Join(parts, "/")
	if u.Path == "/" {
		u.Path = ""
	}

	baseURL = u.String()
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return baseURL, apiVersion
}

func looksLikeAPIVersion(s string) bool {
	if !strings.HasPrefix(s, "v") || len(s) < 2 {
		return false
	}
	return s[1] >= '0' && s[1] <= '9'
}

func (a *Adapter) Execute(ctx context.Context, req *orchestrator.Request) *orchestrator.Response {
	return a.RunPipeline(ctx, req, a.wireCall)
}

func (a *Adapter) wireCall(ctx context.Context, req *orchestrator.Request) (adapter.WireResult, error) {
	if req.Kind == orchestrator.ImageGeneration {
		return a.generateImage(ctx, req)
	}
	return a.generateContent(ctx, req)
}

func (a *Adapter) generateContent(ctx context.Context, req *orchestrator.Request) (adapter.WireResult, error) {
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

	return adapter.WireResult{
		Content:      textOf(resp),
		Model:        a.Config.Model,
		InputTokens:  inTok,
		OutputTokens: outTok,
	}, nil
}

func (a *Adapter) generateImage(ctx context.Context, req *orchestrator.Request) (adapter.WireResult, error) {
	resp, err := a.client.Models.GenerateImages(ctx, a.Config.Model, req.Prompt, &genai.GenerateImagesConfig{NumberOfImages: 1})
	if err != nil {
		return adapter.WireResult{}, toProviderError(err)
	}
	if resp == nil || len(resp.GeneratedImages) == 0 {
		return adapter.WireResult{}, errors.New("gemini: image generation returned no images")
	}
	return adapter.WireResult{
		Model: a.Config.Model,
		Raw:   map[string]any{"image_bytes": len(resp.GeneratedImages[0].Image.ImageBytes)},
	}, nil
}

func textOf(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	return resp.Text()
}

type providerError struct {
	statusCode int
	message    string
}

func (e *providerError) Error() string {
	return fmt.Sprintf("gemini: %s (status=%d)", e.message, e.statusCode)
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
