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
	"github.com/openresponses/openresponses/pkg/ident"
	"github.com/openresponses/openresponses/pkg/observability"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaClient speaks the native Ollama chat API, which streams NDJSON
// instead of SSE.
type OllamaClient struct {
	baseURL string
	model   string
	retry   *httpclient.Client
	stream  *http.Client
	tracer  trace.Tracer
}

// NewOllamaClient builds a client from the provider config.
func NewOllamaClient(cfg *config.LLMProviderConfig) *OllamaClient {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return &OllamaClient{
		baseURL: baseURL,
		model:   cfg.Model,
		retry: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
		),
		stream: &http.Client{},
		tracer: observability.GetTracer("llms"),
	}
}

func (c *OllamaClient) Model() string { return c.model }
func (c *OllamaClient) Close() error  { return nil }

type ollamaRequest struct {
	Model    string                 `json:"model"`
	Messages []ollamaMessage        `json:"messages"`
	Stream   bool                   `json:"stream"`
	Tools    []api.FunctionTool     `json:"tools,omitempty"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function ollamaFunctionCall `json:"function"`
}

type ollamaFunctionCall struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type ollamaResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

func (c *OllamaClient) buildOllamaRequest(params api.CompletionParams, stream bool) (ollamaRequest, error) {
	model := params.Model
	if model == "" {
		model = c.model
	}
	req := ollamaRequest{
		Model:  model,
		Stream: stream,
		Tools:  params.Tools,
	}

	options := map[string]interface{}{}
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}
	if len(options) > 0 {
		req.Options = options
	}

	for _, m := range params.Messages {
		msg := ollamaMessage{Role: m.Role, Content: api.ContentText(m.Content)}
		for _, tc := range m.ToolCalls {
			args := map[string]interface{}{}
			if tc.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
					return req, fmt.Errorf("tool call %s has malformed arguments: %w", tc.ID, err)
				}
			}
			msg.ToolCalls = append(msg.ToolCalls, ollamaToolCall{
				Function: ollamaFunctionCall{Name: tc.Function.Name, Arguments: args},
			})
		}
		req.Messages = append(req.Messages, msg)
	}
	return req, nil
}

func (c *OllamaClient) newHTTPRequest(ctx context.Context, body ollamaRequest) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func ollamaFinishReason(resp ollamaResponse) string {
	if len(resp.Message.ToolCalls) > 0 {
		return api.FinishReasonToolCalls
	}
	if resp.DoneReason == "length" {
		return api.FinishReasonLength
	}
	return api.FinishReasonStop
}

func ollamaToolCalls(calls []ollamaToolCall, streaming bool) []api.ToolCall {
	out := make([]api.ToolCall, 0, len(calls))
	for i, tc := range calls {
		args, _ := json.Marshal(tc.Function.Arguments)
		call := api.ToolCall{
			ID:   "call_" + ident.NewUUID(),
			Type: "function",
			Function: api.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: string(args),
			},
		}
		if streaming {
			idx := i
			call.Index = &idx
		}
		out = append(out, call)
	}
	return out
}

// Complete runs one blocking turn.
func (c *OllamaClient) Complete(ctx context.Context, params api.CompletionParams) (*api.ModelCompletion, error) {
	body, err := c.buildOllamaRequest(params, false)
	if err != nil {
		return nil, api.WrapError(api.KindInvalidArgument, "building upstream request", err)
	}

	ctx, span := c.tracer.Start(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(attribute.String(observability.AttrModel, body.Model)))
	defer span.End()

	start := time.Now()
	completion, err := c.complete(ctx, body)
	inTokens, outTokens := 0, 0
	if completion != nil && completion.Usage != nil {
		inTokens = completion.Usage.PromptTokens
		outTokens = completion.Usage.CompletionTokens
	}
	observability.GetGlobalMetrics().RecordLLMCall(ctx, body.Model, time.Since(start), inTokens, outTokens, err)
	if err != nil {
		span.RecordError(err)
	}
	return completion, err
}

func (c *OllamaClient) complete(ctx context.Context, body ollamaRequest) (*api.ModelCompletion, error) {
	req, err := c.newHTTPRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.retry.Do(req)
	if resp == nil {
		return nil, api.WrapError(api.KindUpstream, "chat request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, api.WrapError(api.KindUpstream, "reading chat response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, api.NewError(api.KindUpstream, fmt.Sprintf("upstream HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, api.WrapError(api.KindUpstream, "decoding chat response", err)
	}

	return &api.ModelCompletion{
		ID:      "chatcmpl-" + ident.NewUUID(),
		Object:  api.ObjectCompletion,
		Created: time.Now().Unix(),
		Model:   parsed.Model,
		Choices: []api.Choice{{
			Message: api.Message{
				Role:      api.RoleAssistant,
				Content:   parsed.Message.Content,
				ToolCalls: ollamaToolCalls(parsed.Message.ToolCalls, false),
			},
			FinishReason: ollamaFinishReason(parsed),
		}},
		Usage: &api.Usage{
			PromptTokens:     parsed.PromptEvalCount,
			CompletionTokens: parsed.EvalCount,
			TotalTokens:      parsed.PromptEvalCount + parsed.EvalCount,
		},
	}, nil
}

// Stream runs one streaming turn over the NDJSON response.
func (c *OllamaClient) Stream(ctx context.Context, params api.CompletionParams) (<-chan api.CompletionChunk, <-chan error) {
	body, err := c.buildOllamaRequest(params, true)
	if err != nil {
		return streamError(api.WrapError(api.KindInvalidArgument, "building upstream request", err))
	}

	req, err := c.newHTTPRequest(ctx, body)
	if err != nil {
		return streamError(err)
	}
	resp, err := c.stream.Do(req)
	if err != nil {
		return streamError(api.WrapError(api.KindUpstream, "chat stream failed", err))
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return streamError(api.NewError(api.KindUpstream, fmt.Sprintf("upstream HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))))
	}

	chunks := make(chan api.CompletionChunk)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)
		defer resp.Body.Close()

		ctx, span := c.tracer.Start(ctx, observability.SpanLLMRequest,
			trace.WithAttributes(attribute.String(observability.AttrModel, body.Model)))
		defer span.End()

		start := time.Now()
		id := "chatcmpl-" + ident.NewUUID()
		created := time.Now().Unix()

		var streamErr error
		inTokens, outTokens := 0, 0

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var parsed ollamaResponse
			if err := json.Unmarshal([]byte(line), &parsed); err != nil {
				streamErr = api.WrapError(api.KindUpstream, "decoding stream line", err)
				break
			}

			choice := api.StreamChoice{Delta: api.Delta{
				Content:   parsed.Message.Content,
				ToolCalls: ollamaToolCalls(parsed.Message.ToolCalls, true),
			}}
			if parsed.Done {
				choice.FinishReason = ollamaFinishReason(parsed)
				inTokens = parsed.PromptEvalCount
				outTokens = parsed.EvalCount
			}

			chunk := api.CompletionChunk{
				ID:      id,
				Object:  api.ObjectCompletionChunk,
				Created: created,
				Model:   parsed.Model,
				Choices: []api.StreamChoice{choice},
			}
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				streamErr = ctx.Err()
			}
			if streamErr != nil || parsed.Done {
				break
			}
		}
		if streamErr == nil {
			if err := scanner.Err(); err != nil {
				streamErr = api.WrapError(api.KindUpstream, "reading stream", err)
			}
		}

		observability.GetGlobalMetrics().RecordLLMCall(ctx, body.Model, time.Since(start), inTokens, outTokens, streamErr)
		if streamErr != nil {
			span.RecordError(streamErr)
			errs <- streamErr
		}
	}()
	return chunks, errs
}

var _ Client = (*OllamaClient)(nil)
