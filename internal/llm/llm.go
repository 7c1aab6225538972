// Package llm is the narrow seam between SQL generation and a hosted
// language model: one prompt in, one completion out.
package llm

import (
	"context"
	"fmt"

	"github.com/sqlagent/sqlagent/internal/config"
	"github.com/sqlagent/sqlagent/internal/llm/bedrock"
	"github.com/sqlagent/sqlagent/internal/llm/gpt"
)

type Model interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, prompt string) (string, error)

func (f ModelFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// New builds the Model for the configured provider.
func New(ctx context.Context, cfg config.AIConfig) (Model, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return gpt.NewClient(gpt.Config{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			MaxRetries:  cfg.MaxRetries,
			Timeout:     cfg.Timeout,
		})
	case config.ProviderBedrock:
		return bedrock.New(ctx, bedrock.Config{
			Region:      cfg.Region,
			ModelID:     cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported ai provider %q", cfg.Provider)
	}
}
