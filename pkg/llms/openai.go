package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openresponses/openresponses/pkg/api"
	"github.com/openresponses/openresponses/pkg/config"
	"github.com/openresponses/openresponses/pkg/httpclient"
	"github.com/openresponses/openresponses/pkg/observability"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"

	ssePrefix = "data: "
	sseDone   = "[DONE]"
)

// OpenAIClient speaks the chat completions API. It also serves any
// OpenAI-compatible endpoint via base_url.
type OpenAIClient struct {
	apiKey  string
	baseURL string
	model   string
	retry   *httpclient.Client
	stream  *http.Client
	tracer  trace.Tracer
}

// NewOpenAIClient builds a client from the provider config.
func NewOpenAIClient(cfg *config.LLMProviderConfig) *OpenAIClient {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return &OpenAIClient{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   cfg.Model,
		retry: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIRateLimitHeaders),
		),
		// Streams outlive any fixed timeout; cancellation comes from the
		// request context.
		stream: &http.Client{},
		tracer: observability.GetTracer("llms"),
	}
}

func (c *OpenAIClient) Model() string { return c.model }
func (c *OpenAIClient) Close() error  { return nil }

type openAIRequest struct {
	api.CompletionParams
	MaxCompletionTokens *int                 `json:"max_completion_tokens,omitempty"`
	StreamOptions       *openAIStreamOptions `json:"stream_options,omitempty"`
}

type openAIStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openAIErrorBody struct {
	Error struct {
		Message string      `json:"message"`
		Type    string      `json:"type"`
		Code    interface{} `json:"code"`
	} `json:"error"`
}

// isReasoningModel reports whether the model rejects temperature and wants
// max_completion_tokens instead of max_tokens.
func isReasoningModel(model string) bool {
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

func (c *OpenAIClient) buildRequest(params api.CompletionParams, stream bool) openAIRequest {
	if params.Model == "" {
		params.Model = c.model
	}
	params.Stream = stream

	req := openAIRequest{CompletionParams: params}
	if isReasoningModel(params.Model) {
		req.MaxCompletionTokens = params.MaxTokens
		req.CompletionParams.MaxTokens = nil
		req.CompletionParams.Temperature = nil
	}
	if stream {
		req.StreamOptions = &openAIStreamOptions{IncludeUsage: true}
	}
	return req
}

func (c *OpenAIClient) newHTTPRequest(ctx context.Context, body interface{}) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func upstreamError(status int, body []byte) error {
	var parsed openAIErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return api.NewError(api.KindUpstream, fmt.Sprintf("upstream HTTP %d: %s", status, parsed.Error.Message))
	}
	return api.NewError(api.KindUpstream, fmt.Sprintf("upstream HTTP %d", status))
}

// Complete runs one blocking turn.
func (c *OpenAIClient) Complete(ctx context.Context, params api.CompletionParams) (*api.ModelCompletion, error) {
	body := c.buildRequest(params, false)

	ctx, span := c.tracer.Start(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(attribute.String(observability.AttrModel, body.CompletionParams.Model)))
	defer span.End()

	start := time.Now()
	completion, err := c.complete(ctx, body)

	inTokens, outTokens := 0, 0
	if completion != nil && completion.Usage != nil {
		inTokens = completion.Usage.PromptTokens
		outTokens = completion.Usage.CompletionTokens
	}
	observability.GetGlobalMetrics().RecordLLMCall(ctx, body.CompletionParams.Model, time.Since(start), inTokens, outTokens, err)
	if err != nil {
		span.RecordError(err)
	}
	return completion, err
}

func (c *OpenAIClient) complete(ctx context.Context, body openAIRequest) (*api.ModelCompletion, error) {
	req, err := c.newHTTPRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.retry.Do(req)
	if resp == nil {
		return nil, api.WrapError(api.KindUpstream, "chat completion request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, api.WrapError(api.KindUpstream, "reading chat completion response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, upstreamError(resp.StatusCode, raw)
	}

	var completion api.ModelCompletion
	if err := json.Unmarshal(raw, &completion); err != nil {
		return nil, api.WrapError(api.KindUpstream, "decoding chat completion response", err)
	}
	return &completion, nil
}

// Stream runs one streaming turn, forwarding upstream chunks as they arrive.
func (c *OpenAIClient) Stream(ctx context.Context, params api.CompletionParams) (<-chan api.CompletionChunk, <-chan error) {
	body := c.buildRequest(params, true)

	req, err := c.newHTTPRequest(ctx, body)
	if err != nil {
		return streamError(err)
	}
	resp, err := c.stream.Do(req)
	if err != nil {
		return streamError(api.WrapError(api.KindUpstream, "chat completion stream failed", err))
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return streamError(upstreamError(resp.StatusCode, raw))
	}

	chunks := make(chan api.CompletionChunk)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)
		defer resp.Body.Close()

		ctx, span := c.tracer.Start(ctx, observability.SpanLLMRequest,
			trace.WithAttributes(attribute.String(observability.AttrModel, body.CompletionParams.Model)))
		defer span.End()

		start := time.Now()
		usage, err := forwardSSE(ctx, resp.Body, chunks)
		inTokens, outTokens := 0, 0
		if usage != nil {
			inTokens = usage.PromptTokens
			outTokens = usage.CompletionTokens
		}
		observability.GetGlobalMetrics().RecordLLMCall(ctx, body.CompletionParams.Model, time.Since(start), inTokens, outTokens, err)
		if err != nil {
			span.RecordError(err)
			errs <- err
		}
	}()
	return chunks, errs
}

// forwardSSE reads "data:" frames off the body, decodes each into a chunk,
// and forwards it. Returns the last usage block seen.
func forwardSSE(ctx context.Context, body io.Reader, chunks chan<- api.CompletionChunk) (*api.Usage, error) {
	var usage *api.Usage

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, ssePrefix) {
			continue
		}
		data := strings.TrimPrefix(line, ssePrefix)
		if data == sseDone {
			return usage, nil
		}

		var chunk api.CompletionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return usage, api.WrapError(api.KindUpstream, "decoding stream chunk", err)
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}

		select {
		case chunks <- chunk:
		case <-ctx.Done():
			return usage, ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return usage, api.WrapError(api.KindUpstream, "reading stream", err)
	}
	return usage, nil
}

var _ Client = (*OpenAIClient)(nil)
