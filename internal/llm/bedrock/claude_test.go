package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

type fakeInvoker struct {
	input    *bedrockruntime.InvokeModelInput
	response string
	err      error
}

func (f *fakeInvoker) InvokeModel(_ context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.response)}, nil
}

func TestCompleteBuildsClaudePayload(t *testing.T) {
	fake := &fakeInvoker{response: `{"content":[{"type":"text","text":"SELECT COUNT(*) "},{"type":"text","text":"FROM NETFLIX_MOVIES"}],"stop_reason":"end_turn"}`}
	client, err := NewWithClient(fake, Config{ModelID: "anthropic.claude-3-haiku-20240307-v1:0"})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	got, err := client.Complete(context.Background(), "how many titles")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "SELECT COUNT(*) FROM NETFLIX_MOVIES" {
		t.Fatalf("Complete() = %q", got)
	}
	if *fake.input.ModelId != "anthropic.claude-3-haiku-20240307-v1:0" {
		t.Fatalf("ModelId = %q", *fake.input.ModelId)
	}

	var payload claudeRequest
	if err := json.Unmarshal(fake.input.Body, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.AnthropicVersion != anthropicVersion || payload.MaxTokens != defaultMaxTokens {
		t.Fatalf("payload = %#v", payload)
	}
	if len(payload.Messages) != 1 || payload.Messages[0].Content != "how many titles" {
		t.Fatalf("messages = %#v", payload.Messages)
	}
}

func TestCompletePropagatesInvokeError(t *testing.T) {
	client, _ := NewWithClient(&fakeInvoker{err: errors.New("ThrottlingException")}, Config{ModelID: "m"})
	if _, err := client.Complete(context.Background(), "x"); err == nil {
		t.Fatal("Complete() expected error")
	}
}

func TestNewWithClientValidates(t *testing.T) {
	if _, err := NewWithClient(nil, Config{ModelID: "m"}); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := NewWithClient(&fakeInvoker{}, Config{}); err == nil {
		t.Fatal("expected error for empty model id")
	}
}
