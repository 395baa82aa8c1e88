// Package openai adapts the OpenAI API into an orchestrator.Adapter,
// covering chat/text completion, vision analysis (image_url content parts),
// image generation, text-to-speech, and audio transcription. Grounded on
// providers/openai/openai.go for the chat path, extended per SPEC_FULL's
// capability declaration for the other four request kinds.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	openaiSDK "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/shopspring/decimal"

	"github.com/nulpointcorp/ai-orchestrator/internal/adapter"
	"github.com/nulpointcorp/ai-orchestrator/internal/orchestrator"
)

type Adapter struct {
	adapter.BaseAdapter
	client openaiSDK.Client
}

func New(base adapter.BaseAdapter) *Adapter {
	opts := []option.RequestOption{
		option.WithAPIKey(base.Config.APIKey),
		option.WithHTTPClient(base.HTTPClient),
	}
	if base.Config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(base.Config.BaseURL))
	}
	return &Adapter{BaseAdapter: base, client: openaiSDK.NewClient(opts...)}
}

func (a *Adapter) Execute(ctx context.Context, req *orchestrator.Request) *orchestrator.Response {
	return a.RunPipeline(ctx, req, a.wireCall)
}

func (a *Adapter) wireCall(ctx context.Context, req *orchestrator.Request) (adapter.WireResult, error) {
	switch req.Kind {
	case orchestrator.VisionAnalysis:
		return a.chat(ctx, req, true)
	case orchestrator.ImageGeneration:
		return a.generateImage(ctx, req)
	case orchestrator.TextToSpeech:
		return a.textToSpeech(ctx, req)
	case orchestrator.AudioTranscription:
		return a.transcribe(ctx, req)
	default:
		return a.chat(ctx, req, false)
	}
}

func (a *Adapter) chat(ctx context.Context, req *orchestrator.Request, vision bool) (adapter.WireResult, error) {
	parts := []openaiSDK.ChatCompletionContentPartUnionParam{
		{OfText: &openaiSDK.ChatCompletionContentPartTextParam{Text: req.Prompt}},
	}

	if vision {
		for _, url := range req.ImageURLs {
			parts = append(parts, openaiSDK.ChatCompletionContentPartUnionParam{
				OfImageURL: &openaiSDK.ChatCompletionContentPartImageParam{
					ImageURL: openaiSDK.ChatCompletionContentPartImageImageURLParam{URL: url},
				},
			})
		}
	}

	msgs := []openaiSDK.ChatCompletionMessageParamUnion{}
	if req.SystemPrompt != "" {
		msgs = append(msgs, openaiSDK.SystemMessage(req.SystemPrompt))
	}
	if vision {
		msgs = append(msgs, openaiSDK.UserMessage(parts))
	} else {
		msgs = append(msgs, openaiSDK.UserMessage(req.Prompt))
	}

	params := openaiSDK.ChatCompletionNewParams{Messages: msgs, Model: a.Config.Model}
	if req.Temperature != 0 {
		params.Temperature = openaiSDK.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openaiSDK.Int(int64(req.MaxTokens))
	}

	resp, err := a.client.Chat.Completions.New(ctx, params, a.keyOpts(ctx)...)
	if err != nil {
		return adapter.WireResult{}, toProviderError(err)
	}

	text := ""
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}
	return adapter.WireResult{
		Content:      text,
		Model:        resp.Model,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		Raw:          map[string]any{"id": resp.ID},
	}, nil
}

func (a *Adapter) generateImage(ctx context.Context, req *orchestrator.Request) (adapter.WireResult, error) {
	params := openaiSDK.ImageGenerateParams{
		Prompt: req.Prompt,
		Model:  openaiSDK.ImageModel(a.Config.Model),
		N:      openaiSDK.Int(1),
	}
	resp, err := a.client.Images.Generate(ctx, params, a.keyOpts(ctx)...)
	if err != nil {
		return adapter.WireResult{}, toProviderError(err)
	}
	if len(resp.Data) == 0 {
		return adapter.WireResult{}, errors.New("openai: image generation returned no data")
	}
	return adapter.WireResult{
		Content: resp.Data[0].URL,
		Model:   a.Config.Model,
		Raw:     map[string]any{"b64_json_present": resp.Data[0].B64JSON != ""},
	}, nil
}

func (a *Adapter) textToSpeech(ctx context.Context, req *orchestrator.Request) (adapter.WireResult, error) {
	params := openaiSDK.AudioSpeechNewParams{
		Input: req.Prompt,
		Model: openaiSDK.SpeechModel(a.Config.Model),
		Voice: openaiSDK.AudioSpeechNewParamsVoiceAlloy,
	}
	resp, err := a.client.Audio.Speech.New(ctx, params, a.keyOpts(ctx)...)
	if err != nil {
		return adapter.WireResult{}, toProviderError(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return adapter.WireResult{}, fmt.Errorf("openai: read speech audio: %w", err)
	}
	return adapter.WireResult{
		Content: "",
		Model:   a.Config.Model,
		Raw:     map[string]any{"audio_bytes": len(body)},
	}, nil
}

func (a *Adapter) transcribe(ctx context.Context, req *orchestrator.Request) (adapter.WireResult, error) {
	params := openaiSDK.AudioTranscriptionNewParams{
		Model: openaiSDK.AudioModel(a.Config.Model),
		File:  bytes.NewReader(req.AudioBytes),
	}
	resp, err := a.client.Audio.Transcriptions.New(ctx, params, a.keyOpts(ctx)...)
	if err != nil {
		return adapter.WireResult{}, toProviderError(err)
	}
	return adapter.WireResult{Content: resp.Text, Model: a.Config.Model}, nil
}

func (a *Adapter) keyOpts(ctx context.Context) []option.RequestOption {
	key, err := a.Keys.CurrentKey(ctx, a.ProviderName)
	if err != nil || key == "" {
		return nil
	}
	return []option.RequestOption{option.WithAPIKey(key)}
}

type providerError struct {
	statusCode int
	message    string
}

func (e *providerError) Error() string {
	return fmt.Sprintf("openai: %s (status=%d)", e.message, e.statusCode)
}

func (e *providerError) StatusCode() int { return e.statusCode }

func toProviderError(err error) error {
	var apierr *openaiSDK.Error
	if errors.As(err, &apierr) {
		return &providerError{statusCode: apierr.StatusCode, message: apierr.Error()}
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
