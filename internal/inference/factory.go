package inference

import (
	"context"
	"fmt"

	"lynxbot/internal/config"
	"lynxbot/internal/usage"
)

// NewFromConfig builds the configured provider client wrapped with the
// default chat model, usage tracking (when tracker is non-nil) and the
// per-call timeout.
func NewFromConfig(ctx context.Context, cfg *config.Config, tracker *usage.Tracker) (Client, error) {
	var base Client
	switch cfg.LLM.Provider {
	case "gemini":
		c, err := NewGenAIClient(ctx, GenAIConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Models.Chat,
		})
		if err != nil {
			return nil, err
		}
		base = c
	case "openai":
		base = NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Models.Chat,
			Timeout: cfg.GetLLMTimeout(),
		})
	case "echo":
		base = NewEcho()
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLM.Provider)
	}

	client := WithDefaultModel(base, cfg.LLM.Models.Chat)
	if tracker != nil {
		client = WithUsage(client, tracker, cfg.LLM.Provider)
	}
	return WithTimeout(client, cfg.GetLLMTimeout()), nil
}
