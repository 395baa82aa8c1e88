package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nulpointcorp/ai-orchestrator/internal/adapter/adaptertest"
	"github.com/nulpointcorp/ai-orchestrator/internal/orchestrator"
)

// newTestAdapter points the client at srv with an explicit API-version
// segment, as splitBaseURLAndVersion expects.
func newTestAdapter(t *testing.T, srv *httptest.Server) *Adapter {
	t.Helper()
	base := adaptertest.NewBase("gemini", srv.URL+"/v1beta", "mock-api-key")
	a, err := New(context.Background(), base)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func chatRequest() *orchestrator.Request {
	return &orchestrator.Request{
		Kind:   orchestrator.ChatCompletion,
		Prompt: "Hello",
		Context: orchestrator.RequestContext{
			RequestID: "req-mock-1",
		},
	}
}

type generateResponse struct {
	Candidates    []candidate   `json:"candidates"`
	UsageMetadata usageMetadata `json:"usageMetadata"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

func successResponse(text string) generateResponse {
	return generateResponse{
		Candidates: []candidate{
			{Content: content{Role: "model", Parts: []part{{Text: text}}}, FinishReason: "STOP"},
		},
		UsageMetadata: usageMetadata{PromptTokenCount: 10, CandidatesTokenCount: 5},
	}
}

func TestAdapter_Execute_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if !strings.Contains(r.URL.Path, "generateContent") {
			t.Errorf("expected generateContent in path, got %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(successResponse("Hello, world!"))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv)
	resp := a.Execute(context.Background(), chatRequest())
	if !resp.IsSuccess {
		t.Fatalf("unexpected failure: %s %s", resp.ErrorCode, resp.ErrorMessage)
	}
	if resp.Content != "Hello, world!" {
		t.Errorf("expected content 'Hello, world!', got %q", resp.Content)
	}
	if resp.TokensUsed != 15 {
		t.Errorf("expected 15 total tokens, got %d", resp.TokensUsed)
	}
}

func TestAdapter_Execute_VisionRequiresImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("server should not be called when media validation fails")
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv)
	req := chatRequest()
	req.Kind = orchestrator.VisionAnalysis
	resp := a.Execute(context.Background(), req)
	if resp.IsSuccess {
		t.Fatal("expected failure for vision request with no image")
	}
}
