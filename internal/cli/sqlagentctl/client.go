package sqlagentctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// apiError is a non-2xx reply from the agent API.
type apiError struct {
	Status    int
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func (e *apiError) Error() string {
	if e.ErrorCode == "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("http %d: %s: %s", e.Status, e.ErrorCode, e.Message)
}

type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func (c *client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.baseURL, "/")+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := strings.TrimSpace(c.apiKey); key != "" {
		req.Header.Set("X-API-Key", key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		apiErr := &apiError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(raw, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return nil, apiErr
	}
	return raw, nil
}

func (c *client) decode(ctx context.Context, method, path string, payload, dst any) ([]byte, error) {
	raw, err := c.do(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}
	if dst != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, dst); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return raw, nil
}

type turn struct {
	SessionID      string   `json:"session_id"`
	Utterance      string   `json:"utterance"`
	SQL            string   `json:"sql"`
	Columns        []string `json:"columns"`
	Rows           [][]any  `json:"rows"`
	RowCount       int      `json:"row_count"`
	Error          string   `json:"error"`
	ErrorKind      string   `json:"error_kind"`
	State          string   `json:"state"`
	RetryAvailable bool     `json:"retry_available"`
}

type sessionStatus struct {
	SessionID string `json:"session_id"`
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}
