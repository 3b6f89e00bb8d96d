// Package llm defines the model-provider boundary. Task bodies hand the
// provider a prompt and get back text; they never see provider wire types.
package llm

import (
	"context"
	"fmt"
)

// Request is one completion call.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Usage is the token accounting returned by the provider.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Result is the provider's answer.
type Result struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

// Provider generates completions.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Result, error)
}

// APIError is a non-2xx provider response. Retryable reports whether the
// failure is worth re-attempting: rate limits and server errors are, other
// client errors are not.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm api error %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
