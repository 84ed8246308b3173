// Package llm provides the text-generation client layer: provider clients,
// classified errors, and tolerant JSON extraction from model replies.
package llm

import (
	"context"
)

// Client defines the interface for text-generation operations.
// Use this interface for dependency injection to enable mocking in tests.
type Client interface {
	// GenerateResponse generates a completion for the prompt. The returned
	// string is raw model text and is not guaranteed to be valid JSON.
	GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error)

	// Model returns the configured model name.
	Model() string
}

// Ensure the provider clients implement Client at compile time.
var (
	_ Client = (*OpenAIClient)(nil)
	_ Client = (*AnthropicClient)(nil)
	_ Client = (*MockClient)(nil)
)
