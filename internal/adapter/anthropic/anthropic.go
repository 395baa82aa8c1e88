// Package anthropic adapts api.anthropic.com's Messages API into an
// orchestrator.Adapter. Grounded on providers/anthropic/anthropic.go,
// extended with image content blocks for vision analysis per SPEC_FULL's
// capability declaration for this provider.
package anthropic

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/shopspring/decimal"

	"github.com/nulpointcorp/ai-orchestrator/internal/adapter"
	"github.com/nulpointcorp/ai-orchestrator/internal/orchestrator"
)

const defaultMaxTokens = 4096

type Adapter struct {
	adapter.BaseAdapter
	client anthropic.Client
}

func New(base adapter.BaseAdapter) *Adapter {
	baseURL := base.Config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}
	return &Adapter{
		BaseAdapter: base,
		client: anthropic.NewClient(
			option.WithAPIKey(base.Config.APIKey),
			option.WithBaseURL(baseURL),
			option.WithHTTPClient(base.HTTPClient),
		),
	}
}

func (a *Adapter) Execute(ctx context.Context, req *orchestrator.Request) *orchestrator.Response {
	return a.RunPipeline(ctx, req, a.wireCall)
}

func (a *Adapter) wireCall(ctx context.Context, req *orchestrator.Request) (adapter.WireResult, error) {
	params := a.buildParams(req)

	opts, err := a.requestOptions(ctx)
	if err != nil {
		return adapter.WireResult{}, err
	}

	msg, err := a.client.Messages.New(ctx, params, opts...)
	if err != nil {
		return adapter.WireResult{}, toProviderError(err)
	}

	var sb strings.Builder
	for _, b := range msg.Content {
		if tb, ok := b.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}

	return adapter.WireResult{
		Content:      sb.String(),
		Model:        string(msg.Model),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		Raw:          map[string]any{"id": msg.ID},
	}, nil
}

func (a *Adapter) buildParams(req *orchestrator.Request) anthropic.MessageNewParams {
	content := []anthropic.ContentBlockParamUnion{{OfText: &anthropic.TextBlockParam{Text: req.Prompt}}}

	if req.Kind == orchestrator.VisionAnalysis {
		for _, url := range req.ImageURLs {
			content = append(content, anthropic.ContentBlockParamUnion{
				OfImage: &anthropic.ImageBlockParam{
					Source: anthropic.ImageBlockParamSourceUnion{
						OfURL: &anthropic.URLImageSourceParam{URL: url},
					},
				},
			})
		}
		if len(req.ImageBytes) > 0 {
			content = append(content, anthropic.ContentBlockParamUnion{
				OfImage: &anthropic.ImageBlockParam{
					Source: anthropic.ImageBlockParamSourceUnion{
						OfBase64: &anthropic.Base64ImageSourceParam{
							MediaType: anthropic.Base64ImageSourceMediaType("image/" + req.ImageFormat),
							Data:      base64.StdEncoding.EncodeToString(req.ImageBytes),
						},
					},
				},
			})
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.Config.Model),
		MaxTokens: int64(maxTokens),
		Messages:  []anthropic.MessageParam{{Role: anthropic.MessageParamRoleUser, Content: content}},
	}

	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	return params
}

func (a *Adapter) requestOptions(ctx context.Context) ([]option.RequestOption, error) {
	key, err := a.Keys.CurrentKey(ctx, a.ProviderName)
	if err != nil || key == "" {
		if a.Config.APIKey == "" {
			return nil, fmt.Errorf("anthropic: no API key configured")
		}
		return nil, nil
	}
	return []option.RequestOption{option.WithAPIKey(key)}, nil
}

type providerError struct {
	statusCode int
	message    string
}

func (e *providerError) Error() string {
	return fmt.Sprintf("anthropic: %s (status=%d)", e.message, e.statusCode)
}

func (e *providerError) StatusCode() int { return e.statusCode }

func toProviderError(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return &providerError{statusCode: apierr.StatusCode, message: apierr.Error()}
	}
	return err
}

// CostPerMillionTokens mirrors openaicompat's flat per-million-token rate,
// Anthropic publishes pricing the same way.
func CostPerMillionTokens(inputRate, outputRate decimal.Decimal) adapter.CostEstimator {
	million := decimal.NewFromInt(1_000_000)
	return func(inputTokens, outputTokens int) decimal.Decimal {
		in := inputRate.Mul(decimal.NewFromInt(int64(inputTokens))).Div(million)
		out := outputRate.Mul(decimal.NewFromInt(int64(outputTokens))).Div(million)
		return in.Add(out)
	}
}
