package llm

import (
	"fmt"

	"go.uber.org/zap"
)

// Provider names accepted by New.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds configuration for creating a text-generation client.
type Config struct {
	Provider string // "openai" (any OpenAI-compatible endpoint) or "anthropic"
	Endpoint string // Base URL; empty selects the provider default
	Model    string // Model name
	APIKey   string // Optional for local OpenAI-compatible endpoints
}

// New creates a Client for the configured provider.
func New(cfg *Config, logger *zap.Logger) (Client, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIClient(cfg, logger)
	case ProviderAnthropic:
		return NewAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
