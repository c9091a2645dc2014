package generator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, Generator) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	gen := NewOpenAI(Config{APIKey: "test-key", BaseURL: srv.URL})
	return srv, gen
}

func TestGenerate_Success(t *testing.T) {
	var gotAuth string
	var gotReq oaiRequest
	_, gen := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(oaiResponse{
			Choices: []oaiChoice{{Message: oaiMessage{Role: "assistant", Content: "  woof!  "}}},
		})
	})

	out, err := gen.Generate(context.Background(), "be a dog", "say hi")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "woof!" {
		t.Errorf("completion: got %q, want trimmed %q", out, "woof!")
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization: got %q", gotAuth)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Content != "say hi" {
		t.Errorf("request messages: got %+v", gotReq.Messages)
	}
}

func TestGenerate_RateLimited(t *testing.T) {
	_, gen := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := gen.Generate(context.Background(), "s", "u")
	if !errors.Is(err, ErrRateLimit) {
		t.Fatalf("expected ErrRateLimit, got %v", err)
	}
}

func TestGenerate_EmptyCompletion(t *testing.T) {
	_, gen := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(oaiResponse{
			Choices: []oaiChoice{{Message: oaiMessage{Content: "   "}}},
		})
	})

	_, err := gen.Generate(context.Background(), "s", "u")
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestGenerate_APIError(t *testing.T) {
	_, gen := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "bad model", "type": "invalid_request_error"},
		})
	})

	_, err := gen.Generate(context.Background(), "s", "u")
	if err == nil {
		t.Fatal("expected API error, got nil")
	}
}

func TestGenerate_NoChoices(t *testing.T) {
	_, gen := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(oaiResponse{})
	})

	_, err := gen.Generate(context.Background(), "s", "u")
	if err == nil {
		t.Fatal("expected error for empty choices, got nil")
	}
}

func TestNoop_AlwaysUnconfigured(t *testing.T) {
	gen := NewNoop()

	_, err := gen.Generate(context.Background(), "s", "u")
	if !errors.Is(err, ErrUnconfigured) {
		t.Fatalf("expected ErrUnconfigured, got %v", err)
	}
}

func TestConfig_Defaults(t *testing.T) {
	g := NewOpenAI(Config{APIKey: "k"}).(*openAIGenerator)

	if g.cfg.BaseURL != defaultBaseURL {
		t.Errorf("BaseURL: got %q", g.cfg.BaseURL)
	}
	if g.cfg.Model != defaultModel {
		t.Errorf("Model: got %q", g.cfg.Model)
	}
	if g.cfg.Timeout != defaultTimeout {
		t.Errorf("Timeout: got %v", g.cfg.Timeout)
	}
	if g.cfg.MaxTokens != defaultMaxTokens {
		t.Errorf("MaxTokens: got %d", g.cfg.MaxTokens)
	}
}
