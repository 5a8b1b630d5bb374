package llm

import (
	"fmt"
	"time"
)

// FactoryConfig holds the parameters needed to create a Generator. Defined in
// the llm package to avoid importing the config package.
type FactoryConfig struct {
	// Provider is the provider name ("openai" or "anthropic").
	Provider string
	// Timeout is the timeout for generation API calls.
	Timeout time.Duration
	// MaxRetries is the maximum number of retries for transient failures.
	MaxRetries int
	// OpenAI contains OpenAI-specific settings.
	OpenAI OpenAIConfig
	// Anthropic contains Anthropic-specific settings.
	Anthropic AnthropicConfig
}

// NewGenerator creates a Generator based on the configuration. Returns an
// error for unsupported or empty provider values.
func NewGenerator(cfg FactoryConfig) (Generator, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg.OpenAI, cfg.Timeout, cfg.MaxRetries), nil
	case "anthropic":
		return NewAnthropicProvider(cfg.Anthropic, cfg.Timeout, cfg.MaxRetries), nil
	default:
		return nil, fmt.Errorf("unsupported generation provider: %q", cfg.Provider)
	}
}
