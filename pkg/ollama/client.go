// Package ollama provides the shared HTTP client for a local Ollama server,
// used by both the chat and embedding providers.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openresponses/openresponses/pkg/httpclient"
)

const DefaultBaseURL = "http://localhost:11434"

// Client wraps the retrying HTTP client with Ollama request plumbing.
type Client struct {
	baseURL    string
	httpClient *httpclient.Client
}

// NewClient creates a client with a 60 second request timeout.
func NewClient(baseURL string) *Client {
	return NewClientWithTimeout(baseURL, 60*time.Second)
}

// NewClientWithTimeout creates a client with a custom request timeout.
func NewClientWithTimeout(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		baseURL: baseURL,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(3),
			httpclient.WithBaseDelay(2*time.Second),
		),
	}
}

// Post sends a JSON POST to an Ollama endpoint and returns the raw response.
// The caller owns the response body.
func (c *Client) Post(ctx context.Context, endpoint string, payload interface{}) (*http.Response, error) {
	return c.post(ctx, endpoint, payload, false)
}

// PostStreaming sends a JSON POST expecting a streaming (NDJSON) response.
func (c *Client) PostStreaming(ctx context.Context, endpoint string, payload interface{}) (*http.Response, error) {
	return c.post(ctx, endpoint, payload, true)
}

func (c *Client) post(ctx context.Context, endpoint string, payload interface{}, streaming bool) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request payload: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if streaming {
		req.Header.Set("Accept", "application/x-ndjson")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	return resp, nil
}

// PostJSON sends a JSON POST and decodes a JSON response body into out,
// treating non-2xx statuses as errors.
func (c *Client) PostJSON(ctx context.Context, endpoint string, payload, out interface{}) error {
	resp, err := c.Post(ctx, endpoint, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ollama returned status %d for %s: %s", resp.StatusCode, endpoint, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
	}
	return nil
}

// BaseURL returns the configured server URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}
