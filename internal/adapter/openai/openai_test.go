package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nulpointcorp/ai-orchestrator/internal/adapter/adaptertest"
	"github.com/nulpointcorp/ai-orchestrator/internal/orchestrator"
)

func newTestAdapter(srv *httptest.Server) *Adapter {
	return New(adaptertest.NewBase("openai", srv.URL, "mock-api-key"))
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

func TestAdapter_Name(t *testing.T) {
	a := New(adaptertest.NewBase("openai", "", "key"))
	if a.Name() != "openai" {
		t.Fatalf("expected 'openai', got %q", a.Name())
	}
}

func TestAdapter_Execute_ChatSuccess(t *testing.T) {
	responseBody := map[string]any{
		"id":      "chatcmpl-123",
		"object":  "chat.completion",
		"created": 0,
		"model":   "gpt-4o",
		"choices": []any{
			map[string]any{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": "Hello, world!"},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     10,
			"completion_tokens": 5,
			"total_tokens":      15,
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected path /chat/completions, got %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer mock-api-key" {
			t.Errorf("missing or wrong Authorization header: %s", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(responseBody)
	}))
	defer srv.Close()

	a := newTestAdapter(srv)
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

func TestAdapter_Execute_RateLimit(t *testing.T) {
	errBody := map[string]any{
		"error": map[string]any{
			"message": "Rate limit exceeded",
			"type":    "rate_limit_error",
			"code":    "rate_limit_exceeded",
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(errBody)
	}))
	defer srv.Close()

	a := newTestAdapter(srv)
	resp := a.Execute(context.Background(), chatRequest())
	if resp.IsSuccess {
		t.Fatal("expected failure for 429")
	}
	if resp.ErrorCode != orchestrator.HTTPError(http.StatusTooManyRequests) {
		t.Errorf("expected HTTP_429 error code, got %q", resp.ErrorCode)
	}
}

func TestAdapter_Execute_VisionRequiresImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("server should not be called when media validation fails")
	}))
	defer srv.Close()

	a := newTestAdapter(srv)
	req := chatRequest()
	req.Kind = orchestrator.VisionAnalysis
	resp := a.Execute(context.Background(), req)
	if resp.IsSuccess {
		t.Fatal("expected failure for vision request with no image")
	}
	if resp.ErrorCode != orchestrator.ErrInvalidRequest {
		t.Errorf("expected INVALID_REQUEST, got %q", resp.ErrorCode)
	}
}

func TestAdapter_Execute_Vision(t *testing.T) {
	responseBody := map[string]any{
		"id":      "chatcmpl-456",
		"object":  "chat.completion",
		"created": 0,
		"model":   "gpt-4o",
		"choices": []any{
			map[string]any{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": "a cat"},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{"prompt_tokens": 20, "completion_tokens": 2, "total_tokens": 22},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(responseBody)
	}))
	defer srv.Close()

	a := newTestAdapter(srv)
	req := chatRequest()
	req.Kind = orchestrator.VisionAnalysis
	req.ImageURLs = []string{"https://example.com/cat.png"}
	resp := a.Execute(context.Background(), req)
	if !resp.IsSuccess {
		t.Fatalf("unexpected failure: %s %s", resp.ErrorCode, resp.ErrorMessage)
	}
	if resp.Content != "a cat" {
		t.Errorf("expected 'a cat', got %q", resp.Content)
	}
}
