package providers

import (
	"context"
	"fmt"
	"strings"
)

// Config selects and configures a provider.
type Config struct {
	Kind    string // "gemini" (default), "openai", "openrouter"
	APIKey  string
	APIBase string
	Model   string
}

// New builds the provider named by cfg.Kind.
func New(ctx context.Context, cfg Config) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", "gemini", "google":
		return NewGeminiProvider(ctx, cfg.APIKey, cfg.APIBase, cfg.Model)
	case "openai":
		if cfg.APIKey == "" && cfg.APIBase == "" {
			return nil, fmt.Errorf("openai API key is required")
		}
		return NewOpenAIProvider("openai", cfg.APIKey, cfg.APIBase, cfg.Model), nil
	case "openrouter":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openrouter API key is required")
		}
		return NewOpenRouterProvider(cfg.APIKey, cfg.APIBase, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (want gemini, openai or openrouter)", cfg.Kind)
	}
}
