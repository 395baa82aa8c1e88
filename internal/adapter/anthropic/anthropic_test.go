package anthropic

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
	return New(adaptertest.NewBase("anthropic", srv.URL, "mock-api-key"))
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

func isMessagesPath(p string) bool {
	return p == "/messages" || p == "/v1/messages"
}

func respondMessageJSON(w http.ResponseWriter, id, model, text string, inTok, outTok int) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":    id,
		"type":  "message",
		"role":  "assistant",
		"model": model,
		"content": []map[string]any{
			{"type": "text", "text": text},
		},
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"usage": map[string]any{
			"input_tokens":  inTok,
			"output_tokens": outTok,
		},
	})
}

func TestAdapter_Name(t *testing.T) {
	a := New(adaptertest.NewBase("anthropic", "", "key"))
	if a.Name() != "anthropic" {
		t.Fatalf("expected 'anthropic', got %q", a.Name())
	}
}

func TestAdapter_Execute_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if !isMessagesPath(r.URL.Path) {
			t.Errorf("expected path ending with /messages, got %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "mock-api-key" {
			t.Errorf("missing or wrong x-api-key header: %q", got)
		}
		respondMessageJSON(w, "msg-123", "test-model", "Hello, world!", 10, 5)
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

func TestAdapter_Execute_DefaultMaxTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if got, ok := body["max_tokens"].(float64); !ok || int(got) != defaultMaxTokens {
			t.Errorf("expected max_tokens=%d, got %#v", defaultMaxTokens, body["max_tokens"])
		}
		respondMessageJSON(w, "msg-1", "test-model", "ok", 1, 1)
	}))
	defer srv.Close()

	a := newTestAdapter(srv)
	resp := a.Execute(context.Background(), chatRequest())
	if !resp.IsSuccess {
		t.Fatalf("unexpected failure: %s %s", resp.ErrorCode, resp.ErrorMessage)
	}
}

func TestAdapter_Execute_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"type":  "error",
			"error": map[string]any{"type": "rate_limit_error", "message": "slow down"},
		})
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
}
