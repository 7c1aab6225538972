package gpt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCompleteSendsPromptAndReturnsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/chat/completions" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Fatalf("Authorization = %q", got)
		}
		var body struct {
			Model       string  `json:"model"`
			Temperature float64 `json:"temperature"`
			Messages    []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Model != "openrouter/auto" {
			t.Fatalf("model = %q", body.Model)
		}
		if len(body.Messages) != 1 || body.Messages[0].Role != "user" || !strings.Contains(body.Messages[0].Content, "User question: dramas from 2021") {
			t.Fatalf("messages = %#v", body.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "gen-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "openrouter/auto",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"logprobs": null,
				"message": {"role": "assistant", "content": "SELECT title FROM NETFLIX_MOVIES WHERE release_year = 2021", "refusal": null}
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 12, "total_tokens": 22}
		}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		BaseURL: srv.URL + "/api/v1",
		APIKey:  "sk-test",
		Model:   "openrouter/auto",
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	got, err := client.Complete(context.Background(), "User question: dramas from 2021")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "SELECT title FROM NETFLIX_MOVIES WHERE release_year = 2021" {
		t.Fatalf("Complete() = %q", got)
	}
}

func TestCompleteReturnsErrorOnUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"model not found","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, APIKey: "sk-test", Model: "missing"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if _, err := client.Complete(context.Background(), "x"); err == nil {
		t.Fatal("Complete() expected error")
	}
}

func TestCompleteRejectsEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	}))
	defer srv.Close()

	client, _ := NewClient(Config{BaseURL: srv.URL, APIKey: "sk-test", Model: "m"})
	if _, err := client.Complete(context.Background(), "x"); err == nil {
		t.Fatal("Complete() expected error for empty choices")
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	if _, err := NewClient(Config{Model: "m"}); err == nil {
		t.Fatal("NewClient() expected error without api key")
	}
	if _, err := NewClient(Config{APIKey: "k"}); err == nil {
		t.Fatal("NewClient() expected error without model")
	}
}
