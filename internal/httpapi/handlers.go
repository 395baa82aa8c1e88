package httpapi

import (
	"encoding/json"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/ai-orchestrator/internal/orchestrator"
	"github.com/nulpointcorp/ai-orchestrator/pkg/apierr"
)

// inboundRequest is the JSON wire shape accepted by POST /v1/completions.
type inboundRequest struct {
	Kind                 string         `json:"kind"`
	Prompt               string         `json:"prompt"`
	SystemPrompt         string         `json:"systemPrompt,omitempty"`
	MaxTokens            int            `json:"maxTokens,omitempty"`
	Temperature          float64        `json:"temperature,omitempty"`
	ImageURLs            []string       `json:"imageUrls,omitempty"`
	ImageFormat          string         `json:"imageFormat,omitempty"`
	AudioFormat          string         `json:"audioFormat,omitempty"`
	Language             string         `json:"language,omitempty"`
	AdditionalParameters map[string]any `json:"additionalParameters,omitempty"`
}

type outboundResponse struct {
	Content       string         `json:"content,omitempty"`
	Provider      string         `json:"provider,omitempty"`
	Model         string         `json:"model,omitempty"`
	TokensUsed    int            `json:"tokensUsed,omitempty"`
	IsSuccess     bool           `json:"isSuccess"`
	EstimatedCost string         `json:"estimatedCost,omitempty"`
	ErrorCode     string         `json:"errorCode,omitempty"`
	ErrorMessage  string         `json:"errorMessage,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func (s *Server) handleCompletion(ctx *fasthttp.RequestCtx) {
	var in inboundRequest
	if err := json.Unmarshal(ctx.PostBody(), &in); err != nil {
		apierr.Write(ctx, fasthttp.StatusBadRequest, "invalid JSON: "+err.Error(), apierr.TypeInvalidRequest, apierr.CodeInvalidRequest)
		return
	}

	kind := orchestrator.RequestKind(in.Kind)
	if kind == "" {
		kind = orchestrator.TextCompletion
	}

	reqID, _ := ctx.UserValue("request_id").(string)
	req := &orchestrator.Request{
		Kind:                 kind,
		Prompt:               in.Prompt,
		SystemPrompt:         in.SystemPrompt,
		MaxTokens:            in.MaxTokens,
		Temperature:          in.Temperature,
		ImageURLs:            in.ImageURLs,
		ImageFormat:          in.ImageFormat,
		AudioFormat:          in.AudioFormat,
		AdditionalParameters: in.AdditionalParameters,
		Context: orchestrator.RequestContext{
			RequestID: reqID,
			Language:  in.Language,
		},
	}

	resp := s.orch.GetCompletion(ctx, req)

	out := outboundResponse{
		Content:      resp.Content,
		Provider:     resp.Provider,
		Model:        resp.Model,
		TokensUsed:   resp.TokensUsed,
		IsSuccess:    resp.IsSuccess,
		ErrorMessage: resp.ErrorMessage,
		Metadata:     resp.Metadata,
	}
	if !resp.EstimatedCost.IsZero() {
		out.EstimatedCost = resp.EstimatedCost.String()
	}
	if resp.ErrorCode != "" {
		out.ErrorCode = string(resp.ErrorCode)
	}

	status := fasthttp.StatusOK
	if !resp.IsSuccess {
		status = httpStatusForErrorCode(resp.ErrorCode)
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(out)
	ctx.SetBody(body)
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	status := s.orch.HealthCheck(ctx)
	ctx.SetContentType("application/json")
	if !status.Healthy {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	}
	body, _ := json.Marshal(status)
	ctx.SetBody(body)
}

// httpStatusForErrorCode maps the §7 error taxonomy onto HTTP status codes
// for the optional REST surface.
func httpStatusForErrorCode(code orchestrator.ErrorCode) int {
	switch code {
	case orchestrator.ErrInvalidRequest, orchestrator.ErrInvalidResponse:
		return fasthttp.StatusBadRequest
	case orchestrator.ErrRateLimitExceeded:
		return fasthttp.StatusTooManyRequests
	case orchestrator.ErrQuotaExceeded:
		return fasthttp.StatusPaymentRequired
	case orchestrator.ErrTimeout:
		return fasthttp.StatusGatewayTimeout
	case orchestrator.ErrCircuitOpen:
		return fasthttp.StatusServiceUnavailable
	case orchestrator.ErrCancelled:
		return 499 // client closed request, matching nginx's non-standard convention
	}
	if strings.HasPrefix(string(code), "HTTP_") {
		return fasthttp.StatusBadGateway
	}
	return fasthttp.StatusInternalServerError
}
