package bedrock

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nulpointcorp/ai-orchestrator/internal/adapter/adaptertest"
	"github.com/nulpointcorp/ai-orchestrator/internal/orchestrator"
)

// newTestAdapter configures a static env credential (standard aws-sdk-go-v2
// test idiom — resolves synchronously, no IMDS/network round trip) and
// points the adapter at srv via additionalSettings.endpointUrl.
func newTestAdapter(t *testing.T, srv *httptest.Server) *Adapter {
	t.Helper()
	t.Setenv("AWS_ACCESS_KEY_ID", "mock-access-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "mock-secret-key")
	t.Setenv("AWS_REGION", "us-east-1")

	base := adaptertest.NewBase("bedrock", "", "")
	base.Config.AdditionalSettings = map[string]any{
		"region":      "us-east-1",
		"endpointUrl": srv.URL,
	}
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

func TestNew_RequiresRegion(t *testing.T) {
	base := adaptertest.NewBase("bedrock", "", "")
	if _, err := New(context.Background(), base); err == nil {
		t.Fatal("expected error when additionalSettings.region is missing")
	}
}

func TestAdapter_Execute_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Authorization") == "" {
			t.Errorf("expected a SigV4 Authorization header")
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(converseResponse{
			Output: converseOutput{Message: converseMessage{Role: "assistant", Content: []contentBlock{{Text: "hi there"}}}},
			Usage:  converseUsage{InputTokens: 6, OutputTokens: 3},
		})
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv)
	resp := a.Execute(context.Background(), chatRequest())
	if !resp.IsSuccess {
		t.Fatalf("unexpected failure: %s %s", resp.ErrorCode, resp.ErrorMessage)
	}
	if resp.Content != "hi there" {
		t.Errorf("expected 'hi there', got %q", resp.Content)
	}
	if resp.TokensUsed != 9 {
		t.Errorf("expected 9 total tokens, got %d", resp.TokensUsed)
	}
}

func TestAdapter_Execute_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(bedrockError{Message: "internal failure"})
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv)
	resp := a.Execute(context.Background(), chatRequest())
	if resp.IsSuccess {
		t.Fatal("expected failure for 500")
	}
	if resp.ErrorCode != orchestrator.HTTPError(http.StatusInternalServerError) {
		t.Errorf("expected HTTP_500 error code, got %q", resp.ErrorCode)
	}
}
