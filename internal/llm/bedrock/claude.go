// Package bedrock invokes Anthropic Claude models hosted on AWS Bedrock.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const anthropicVersion = "bedrock-2023-05-31"

const defaultMaxTokens = 1024

type Config struct {
	Region      string
	ModelID     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type invoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type Client struct {
	api     invoker
	modelID string
	temp    float64
	tokens  int
	timeout time.Duration
}

type claudeRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	Temperature      float64         `json:"temperature"`
	Messages         []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// New resolves AWS credentials from the default chain.
func New(ctx context.Context, cfg Config) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewWithClient(bedrockruntime.NewFromConfig(awsCfg), cfg)
}

func NewWithClient(api invoker, cfg Config) (*Client, error) {
	if api == nil {
		return nil, fmt.Errorf("bedrock client is required")
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		return nil, fmt.Errorf("bedrock model id is required")
	}
	tokens := cfg.MaxTokens
	if tokens <= 0 {
		tokens = defaultMaxTokens
	}
	return &Client{api: api, modelID: cfg.ModelID, temp: cfg.Temperature, tokens: tokens, timeout: cfg.Timeout}, nil
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(claudeRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        c.tokens,
		Temperature:      c.temp,
		Messages:         []claudeMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("encode claude request: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	output, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		Body:        body,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("invoke claude model: %w", err)
	}

	var response claudeResponse
	if err := json.Unmarshal(output.Body, &response); err != nil {
		return "", fmt.Errorf("decode claude response: %w", err)
	}
	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}
