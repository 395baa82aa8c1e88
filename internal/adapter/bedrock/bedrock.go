// Package bedrock adapts the AWS Bedrock Converse API into an
// orchestrator.Adapter. Grounded on providers/bedrock/bedrock.go's Converse
// JSON shape, with the teacher's hand-rolled SigV4 signer replaced by
// github.com/aws/aws-sdk-go-v2's credential chain and request signer — the
// ecosystem SDK is preferred over a hand-rolled implementation once it is
// wired into the module.
package bedrock

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsv4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/shopspring/decimal"

	"github.com/nulpointcorp/ai-orchestrator/internal/adapter"
	"github.com/nulpointcorp/ai-orchestrator/internal/orchestrator"
)

const service = "bedrock"

type Adapter struct {
	adapter.BaseAdapter
	region      string
	endpointURL string
	creds       aws.CredentialsProvider
	signer      *awsv4.Signer
}

// New resolves AWS credentials via the default chain (env vars, shared
// config, IMDS/IAM role) per aws-sdk-go-v2's config.LoadDefaultConfig, the
// same credential story the teacher's AWS_ACCESS_KEY_ID/SECRET_ACCESS_KEY
// env vars implemented by hand.
func New(ctx context.Context, base adapter.BaseAdapter) (*Adapter, error) {
	region, _ := base.Config.AdditionalSettings["region"].(string)
	if region == "" {
		return nil, fmt.Errorf("bedrock: additionalSettings.region is required")
	}
	endpointURL, _ := base.Config.AdditionalSettings["endpointUrl"].(string)

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: load aws config: %w", err)
	}

	return &Adapter{
		BaseAdapter: base,
		region:      region,
		endpointURL: endpointURL,
		creds:       cfg.Credentials,
		signer:      awsv4.NewSigner(),
	}, nil
}

func (a *Adapter) Execute(ctx context.Context, req *orchestrator.Request) *orchestrator.Response {
	return a.RunPipeline(ctx, req, a.wireCall)
}

type converseRequest struct {
	Messages        []converseMessage `json:"messages"`
	System          []systemContent   `json:"system,omitempty"`
	InferenceConfig *inferenceConfig  `json:"inferenceConfig,omitempty"`
}

type converseMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Text string `json:"text"`
}

type systemContent struct {
	Text string `json:"text"`
}

type inferenceConfig struct {
	MaxTokens   int     `json:"maxTokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type converseResponse struct {
	Output converseOutput `json:"output"`
	Usage  converseUsage  `json:"usage"`
}

type converseOutput struct {
	Message converseMessage `json:"message"`
}

type converseUsage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

func (a *Adapter) wireCall(ctx context.Context, req *orchestrator.Request) (adapter.WireResult, error) {
	cr := converseRequest{
		Messages: []converseMessage{{Role: "user", Content: []contentBlock{{Text: req.Prompt}}}},
	}
	if req.SystemPrompt != "" {
		cr.System = []systemContent{{Text: req.SystemPrompt}}
	}
	if req.MaxTokens > 0 || req.Temperature > 0 {
		cr.InferenceConfig = &inferenceConfig{MaxTokens: req.MaxTokens, Temperature: req.Temperature}
	}

	payload, err := json.Marshal(cr)
	if err != nil {
		return adapter.WireResult{}, fmt.Errorf("bedrock: marshal: %w", err)
	}

	endpoint := a.converseEndpoint()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return adapter.WireResult{}, fmt.Errorf("bedrock: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if err := a.sign(ctx, httpReq, payload); err != nil {
		return adapter.WireResult{}, fmt.Errorf("bedrock: sign: %w", err)
	}

	resp, err := a.HTTPClient.Do(httpReq)
	if err != nil {
		return adapter.WireResult{}, fmt.Errorf("bedrock: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return adapter.WireResult{}, parseError(resp)
	}

	var out converseResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return adapter.WireResult{}, fmt.Errorf("bedrock: decode response: %w", err)
	}

	content := ""
	if len(out.Output.Message.Content) > 0 {
		content = out.Output.Message.Content[0].Text
	}

	return adapter.WireResult{
		Content:      content,
		Model:        a.Config.Model,
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
	}, nil
}

func (a *Adapter) sign(ctx context.Context, req *http.Request, payload []byte) error {
	creds, err := a.creds.Retrieve(ctx)
	if err != nil {
		return err
	}
	hash := sha256.Sum256(payload)
	return a.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(hash[:]), service, a.region, time.Now())
}

func (a *Adapter) converseEndpoint() string {
	if a.endpointURL != "" {
		return fmt.Sprintf("%s/model/%s/converse", strings.TrimRight(a.endpointURL, "/"), a.Config.Model)
	}
	return fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com/model/%s/converse", a.region, a.Config.Model)
}

type bedrockError struct {
	Message string `json:"message"`
}

type providerError struct {
	statusCode int
	message    string
}

func (e *providerError) Error() string {
	return fmt.Sprintf("bedrock: %s (status=%d)", e.message, e.statusCode)
}

func (e *providerError) StatusCode() int { return e.statusCode }

func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var be bedrockError
	if json.Unmarshal(body, &be) == nil && be.Message != "" {
		return &providerError{statusCode: resp.StatusCode, message: be.Message}
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
