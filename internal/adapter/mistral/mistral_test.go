package mistral

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
	return New(adaptertest.NewBase("mistral", srv.URL, "mock-api-key"))
}

func baseRequest() *orchestrator.Request {
	return &orchestrator.Request{
		Kind:   orchestrator.ChatCompletion,
		Prompt: "Hello",
		Context: orchestrator.RequestContext{
			RequestID: "req-mock-1",
		},
	}
}

func TestAdapter_Name(t *testing.T) {
	a := New(adaptertest.NewBase("mistral", "", "key"))
	if a.Name() != "mistral" {
		t.Fatalf("expected 'mistral', got %q", a.Name())
	}
}

func TestAdapter_Execute_Success(t *testing.T) {
	responseBody := chatResponse{
		ID:    "cmpl-mistral-123",
		Model: "mistral-large-latest",
		Choices: []choice{
			{Message: &chatMessage{Role: "assistant", Content: "Bonjour le monde!"}},
		},
		Usage: usage{PromptTokens: 8, CompletionTokens: 4},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer mock-api-key" {
			t.Errorf("missing or wrong Authorization header: %s", r.Header.Get("Authorization"))
		}

		var body chatRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		if len(body.Messages) != 1 || body.Messages[0].Content != "Hello" {
			t.Errorf("unexpected messages: %v", body.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(responseBody)
	}))
	defer srv.Close()

	a := newTestAdapter(srv)
	resp := a.Execute(context.Background(), baseRequest())
	if !resp.IsSuccess {
		t.Fatalf("unexpected failure: %s %s", resp.ErrorCode, resp.ErrorMessage)
	}
	if resp.Content != "Bonjour le monde!" {
		t.Errorf("expected content 'Bonjour le monde!', got %q", resp.Content)
	}
	if resp.TokensUsed != 12 {
		t.Errorf("expected 12 total tokens, got %d", resp.TokensUsed)
	}
}

func TestAdapter_Execute_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(chatResponse{
			Error: &apiErr{Message: "Rate limit exceeded", Type: "rate_limit_error"},
		})
	}))
	defer srv.Close()

	a := newTestAdapter(srv)
	resp := a.Execute(context.Background(), baseRequest())
	if resp.IsSuccess {
		t.Fatal("expected failure for 429")
	}
	if resp.ErrorCode != orchestrator.HTTPError(http.StatusTooManyRequests) {
		t.Errorf("expected HTTP_429 error code, got %q", resp.ErrorCode)
	}
}

func TestAdapter_Execute_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(chatResponse{
			Error: &apiErr{Message: "Internal server error", Type: "server_error"},
		})
	}))
	defer srv.Close()

	a := newTestAdapter(srv)
	resp := a.Execute(context.Background(), baseRequest())
	if resp.IsSuccess {
		t.Fatal("expected failure for 500")
	}
	if resp.ErrorCode != orchestrator.HTTPError(http.StatusInternalServerError) {
		t.Errorf("expected HTTP_500 error code, got %q", resp.ErrorCode)
	}
}

func TestAdapter_Execute_NoAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("server should not be called without an API key")
	}))
	defer srv.Close()

	a := New(adaptertest.NewBase("mistral", srv.URL, ""))
	resp := a.Execute(context.Background(), baseRequest())
	if resp.IsSuccess {
		t.Fatal("expected failure with no API key configured")
	}
}
