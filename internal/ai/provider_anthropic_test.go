package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func anthropicServer(t *testing.T, handle func(body map[string]any)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("anthropic-version") != anthropicVersion {
			t.Errorf("unexpected anthropic-version: %s", r.Header.Get("anthropic-version"))
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if handle != nil {
			handle(body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": "Neural networks "},
				{"type": "text", "text": "learn from examples."},
			},
			"model": "claude-sonnet-4-6",
			"usage": map[string]int{"input_tokens": 12, "output_tokens": 8},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewAnthropicProvider_EmptyKey(t *testing.T) {
	if _, err := NewAnthropicProvider(""); err == nil {
		t.Fatal("NewAnthropicProvider() should return error for empty key")
	}
}

func TestAnthropicProvider_Complete(t *testing.T) {
	var got map[string]any
	server := anthropicServer(t, func(body map[string]any) { got = body })

	provider, err := NewAnthropicProvider("test-key", WithAnthropicBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewAnthropicProvider() error = %v", err)
	}

	resp, err := provider.Complete(context.Background(), CompletionRequest{
		Messages: []Message{
			{Role: "system", Content: "You teach AI literacy."},
			{Role: "system", Content: "Student is in grade 7."},
			{Role: "user", Content: "What is a neural network?"},
		},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if resp.Content != "Neural networks learn from examples." {
		t.Errorf("content = %q, want joined text blocks", resp.Content)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 8 {
		t.Errorf("tokens = %d/%d, want 12/8", resp.InputTokens, resp.OutputTokens)
	}
	if got["model"] != "claude-sonnet-4-6" {
		t.Errorf("model = %v, want default claude-sonnet-4-6", got["model"])
	}
	if got["system"] != "You teach AI literacy.\n\nStudent is in grade 7." {
		t.Errorf("system = %q, want both system messages joined", got["system"])
	}
	if msgs, _ := got["messages"].([]any); len(msgs) != 1 {
		t.Errorf("got %d messages, want 1 (system messages are extracted)", len(msgs))
	}
	if got["max_tokens"] != float64(4096) {
		t.Errorf("max_tokens = %v, want default 4096", got["max_tokens"])
	}
}

func TestAnthropicProvider_Complete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "invalid api key"}}`))
	}))
	defer server.Close()

	provider, _ := NewAnthropicProvider("bad-key", WithAnthropicBaseURL(server.URL))

	_, err := provider.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hello"}},
	})

	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Complete() error = %v, want *apiError", err)
	}
	if apiErr.Status != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", apiErr.Status)
	}
}

func TestAnthropicProvider_Complete_NoContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"content": []any{}, "model": "claude-sonnet-4-6"})
	}))
	defer server.Close()

	provider, _ := NewAnthropicProvider("test-key", WithAnthropicBaseURL(server.URL))
	if _, err := provider.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hello"}},
	}); err == nil {
		t.Fatal("Complete() should fail when no text comes back")
	}
}

func TestAnthropicProvider_HealthCheck(t *testing.T) {
	server := anthropicServer(t, nil)
	provider, _ := NewAnthropicProvider("test-key", WithAnthropicBaseURL(server.URL))
	if err := provider.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestAnthropicProvider_Models(t *testing.T) {
	provider, _ := NewAnthropicProvider("test-key")
	for _, m := range provider.Models() {
		if m.Name == "" {
			t.Errorf("model %q has empty name", m.ID)
		}
	}
}
