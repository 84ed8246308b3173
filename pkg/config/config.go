package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the fault-intake engine.
// Configuration can come from YAML file (config.yaml) or environment
// variables. Environment variables always override YAML values. Secrets
// (API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8090"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Text-generation service configuration
	LLM LLMConfig `yaml:"llm"`

	// Knowledge base configuration
	KB KBConfig `yaml:"kb"`

	// Lexical matching configuration
	Matching MatchingConfig `yaml:"matching"`

	// Conversation session configuration
	Conversation ConversationConfig `yaml:"conversation"`
}

// LLMConfig holds text-generation provider settings.
type LLMConfig struct {
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	Endpoint string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:""`
	Model    string `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o-mini"`
	// APIKey is a secret - environment only.
	APIKey string `yaml:"-" env:"LLM_API_KEY"`
	// TimeoutSeconds is the hard deadline for one generative call.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"LLM_TIMEOUT_SECONDS" env-default:"12"`
	// MaxRetries bounds retries of transient failures within the deadline.
	MaxRetries int `yaml:"max_retries" env:"LLM_MAX_RETRIES" env-default:"1"`
	// Temperature for diagnosis generation.
	Temperature float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.2"`
}

// Timeout returns the call deadline as a duration.
func (c *LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// KBConfig selects the knowledge base documents. Empty paths select the
// embedded defaults.
type KBConfig struct {
	SafetyPath   string `yaml:"safety_path" env:"KB_SAFETY_PATH" env-default:""`
	LightsPath   string `yaml:"lights_path" env:"KB_LIGHTS_PATH" env-default:""`
	SymptomsPath string `yaml:"symptoms_path" env:"KB_SYMPTOMS_PATH" env-default:""`
}

// MatchingConfig holds lexical matcher settings.
type MatchingConfig struct {
	// NegationWindow is how many tokens before a keyword hit are scanned for
	// a negation word. The value is a heuristic, not load-bearing.
	NegationWindow int `yaml:"negation_window" env:"NEGATION_WINDOW" env-default:"3"`
}

// ConversationConfig holds in-memory session settings.
type ConversationConfig struct {
	// SessionTTLMinutes is how long an inactive conversation is retained
	// before the registry sweeps it.
	SessionTTLMinutes int `yaml:"session_ttl_minutes" env:"SESSION_TTL_MINUTES" env-default:"60"`
}

// SessionTTL returns the session retention as a duration.
func (c *ConversationConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.LLM.TimeoutSeconds <= 0 {
		return fmt.Errorf("llm timeout_seconds must be positive")
	}
	if c.Matching.NegationWindow <= 0 {
		return fmt.Errorf("matching negation_window must be positive")
	}
	return nil
}
