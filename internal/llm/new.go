package llm

import (
	"context"
	"fmt"
)

type Config struct {
	Provider        string // openai | gemini
	BaseURL         string
	APIKey          string
	Model           string
	MaxTokens       int
	Temperature     float64
	AzureAPIVersion string
}

const (
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultGeminiModel = "gemini-1.5-flash"
)

// New builds the Generator selected by cfg.Provider. An empty model picks
// the provider default. The returned close function releases provider
// clients and is always non-nil.
func New(ctx context.Context, cfg Config) (Generator, func() error, error) {
	switch cfg.Provider {
	case "", "openai":
		if cfg.Model == "" {
			cfg.Model = DefaultOpenAIModel
		}
		return NewOpenAI(OpenAIConfig{
			BaseURL:         cfg.BaseURL,
			APIKey:          cfg.APIKey,
			Model:           cfg.Model,
			MaxTokens:       cfg.MaxTokens,
			Temperature:     cfg.Temperature,
			AzureAPIVersion: cfg.AzureAPIVersion,
		}), func() error { return nil }, nil
	case "gemini":
		if cfg.Model == "" {
			cfg.Model = DefaultGeminiModel
		}
		g, err := NewGemini(ctx, GeminiConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			return nil, func() error { return nil }, err
		}
		return g, g.Close, nil
	default:
		return nil, func() error { return nil }, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
