package claude

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/triagent/triagent/internal/llm"
)

func TestComplete(t *testing.T) {
	var gotReq apiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "key-1" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("anthropic-version header missing")
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(`{
			"id":"msg_1","model":"claude-sonnet-4-20250514",
			"content":[{"type":"text","text":"Two services "},{"type":"text","text":"restarted."}],
			"stop_reason":"end_turn",
			"usage":{"input_tokens":120,"output_tokens":40}}`))
	}))
	defer srv.Close()

	c := New("key-1", "claude-sonnet-4-20250514", 1024, WithBaseURL(srv.URL))
	res, err := c.Complete(context.Background(), llm.Request{
		System: "You are an incident analyst.",
		Prompt: "Summarize INC-42.",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.Text != "Two services restarted." {
		t.Errorf("text = %q", res.Text)
	}
	if res.Usage.InputTokens != 120 || res.Usage.OutputTokens != 40 {
		t.Errorf("usage = %+v", res.Usage)
	}
	if gotReq.Model != "claude-sonnet-4-20250514" {
		t.Errorf("model = %q", gotReq.Model)
	}
	if gotReq.MaxTokens != 1024 {
		t.Errorf("max_tokens = %d, want client default", gotReq.MaxTokens)
	}
	if gotReq.System != "You are an incident analyst." {
		t.Errorf("system = %q", gotReq.System)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" {
		t.Errorf("messages = %+v", gotReq.Messages)
	}
}

func TestCompleteMaxTokensOverride(t *testing.T) {
	var gotReq apiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(`{"content":[{"type":"text","text":"ok"}],"usage":{}}`))
	}))
	defer srv.Close()

	c := New("k", "m", 1024, WithBaseURL(srv.URL))
	if _, err := c.Complete(context.Background(), llm.Request{Prompt: "hi", MaxTokens: 64}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if gotReq.MaxTokens != 64 {
		t.Errorf("max_tokens = %d, want 64", gotReq.MaxTokens)
	}
}

func TestCompleteAPIError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"overloaded", 529, true},
		{"bad request", http.StatusBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":{"type":"x"}}`))
			}))
			defer srv.Close()

			c := New("k", "m", 16, WithBaseURL(srv.URL))
			_, err := c.Complete(context.Background(), llm.Request{Prompt: "hi"})
			var apiErr *llm.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want APIError", err)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", apiErr.StatusCode, tt.status)
			}
			if apiErr.Retryable() != tt.retryable {
				t.Errorf("retryable = %v, want %v", apiErr.Retryable(), tt.retryable)
			}
		})
	}
}
