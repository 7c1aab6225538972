// Package gpt talks to any OpenAI compatible chat-completions endpoint, such
// as OpenRouter or the OpenAI API itself.
package gpt

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	MaxRetries  int
	Timeout     time.Duration
	HTTPClient  *http.Client
}

type Client struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("ai api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("ai model is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(max(cfg.MaxRetries, 0)),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(base, "/")+"/"))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &Client{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model:       openai.ChatModel(c.model),
		Temperature: openai.Float(c.temperature),
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.maxTokens))
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion request: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}
