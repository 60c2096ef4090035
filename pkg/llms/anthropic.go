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
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"

	// The messages API requires max_tokens; used when the caller sets none.
	anthropicDefaultMaxTokens = 4096
)

// AnthropicClient speaks the Anthropic messages API, translated to and from
// the chat-completions shape the orchestrators use.
type AnthropicClient struct {
	apiKey  string
	baseURL string
	model   string
	retry   *httpclient.Client
	stream  *http.Client
	tracer  trace.Tracer
}

// NewAnthropicClient builds a client from the provider config.
func NewAnthropicClient(cfg *config.LLMProviderConfig) *AnthropicClient {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return &AnthropicClient{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   cfg.Model,
		retry: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithHeaderParser(httpclient.ParseAnthropicRateLimitHeaders),
		),
		stream: &http.Client{},
		tracer: observability.GetTracer("llms"),
	}
}

func (c *AnthropicClient) Model() string { return c.model }
func (c *AnthropicClient) Close() error  { return nil }

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string                 `json:"id,omitempty"`
	Name  string                 `json:"name,omitempty"`
	Input map[string]interface{} `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type anthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type anthropicResponse struct {
	ID         string           `json:"id"`
	Model      string           `json:"model"`
	Content    []anthropicBlock `json:"content"`
	StopReason string           `json:"stop_reason"`
	Usage      anthropicUsage   `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// buildAnthropicRequest translates chat-completion params. System messages
// fold into the system string; tool calls and tool results become tool_use
// and tool_result blocks.
func (c *AnthropicClient) buildAnthropicRequest(params api.CompletionParams, stream bool) (anthropicRequest, error) {
	model := params.Model
	if model == "" {
		model = c.model
	}
	maxTokens := anthropicDefaultMaxTokens
	if params.MaxTokens != nil {
		maxTokens = *params.MaxTokens
	}
	req := anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		Stream:      stream,
	}

	var system []string
	for _, m := range params.Messages {
		switch m.Role {
		case api.RoleSystem:
			system = append(system, api.ContentText(m.Content))
		case api.RoleUser:
			req.Messages = append(req.Messages, anthropicMessage{
				Role:    "user",
				Content: []anthropicBlock{{Type: "text", Text: api.ContentText(m.Content)}},
			})
		case api.RoleAssistant:
			blocks := []anthropicBlock{}
			if text := api.ContentText(m.Content); text != "" {
				blocks = append(blocks, anthropicBlock{Type: "text", Text: text})
			}
			for _, tc := range m.ToolCalls {
				input := map[string]interface{}{}
				if tc.Function.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
						return req, fmt.Errorf("tool call %s has malformed arguments: %w", tc.ID, err)
					}
				}
				blocks = append(blocks, anthropicBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Function.Name,
					Input: input,
				})
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropicBlock{Type: "text", Text: ""})
			}
			req.Messages = append(req.Messages, anthropicMessage{Role: "assistant", Content: blocks})
		case api.RoleTool:
			req.Messages = append(req.Messages, anthropicMessage{
				Role: "user",
				Content: []anthropicBlock{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   api.ContentText(m.Content),
				}},
			})
		}
	}
	req.System = strings.Join(system, "\n\n")

	for _, t := range params.Tools {
		schema := t.Function.Parameters
		if schema == nil {
			schema = map[string]interface{}{"type": "object"}
		}
		req.Tools = append(req.Tools, anthropicTool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: schema,
		})
	}
	return req, nil
}

func anthropicStopReason(reason string) string {
	switch reason {
	case "tool_use":
		return api.FinishReasonToolCalls
	case "max_tokens":
		return api.FinishReasonLength
	default:
		return api.FinishReasonStop
	}
}

func (c *AnthropicClient) newHTTPRequest(ctx context.Context, body anthropicRequest) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	return req, nil
}

func anthropicError(status int, body []byte) error {
	var parsed anthropicErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return api.NewError(api.KindUpstream, fmt.Sprintf("upstream HTTP %d: %s", status, parsed.Error.Message))
	}
	return api.NewError(api.KindUpstream, fmt.Sprintf("upstream HTTP %d", status))
}

// Complete runs one blocking turn.
func (c *AnthropicClient) Complete(ctx context.Context, params api.CompletionParams) (*api.ModelCompletion, error) {
	body, err := c.buildAnthropicRequest(params, false)
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

func (c *AnthropicClient) complete(ctx context.Context, body anthropicRequest) (*api.ModelCompletion, error) {
	req, err := c.newHTTPRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.retry.Do(req)
	if resp == nil {
		return nil, api.WrapError(api.KindUpstream, "messages request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, api.WrapError(api.KindUpstream, "reading messages response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, anthropicError(resp.StatusCode, raw)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, api.WrapError(api.KindUpstream, "decoding messages response", err)
	}
	return anthropicToCompletion(parsed)
}

func anthropicToCompletion(parsed anthropicResponse) (*api.ModelCompletion, error) {
	message := api.Message{Role: api.RoleAssistant}
	var text strings.Builder
	for _, block := range parsed.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args, err := json.Marshal(block.Input)
			if err != nil {
				return nil, api.WrapError(api.KindUpstream, "encoding tool input", err)
			}
			message.ToolCalls = append(message.ToolCalls, api.ToolCall{
				ID:   block.ID,
				Type: "function",
				Function: api.FunctionCall{
					Name:      block.Name,
					Arguments: string(args),
				},
			})
		}
	}
	message.Content = text.String()

	return &api.ModelCompletion{
		ID:      parsed.ID,
		Object:  api.ObjectCompletion,
		Created: time.Now().Unix(),
		Model:   parsed.Model,
		Choices: []api.Choice{{
			Message:      message,
			FinishReason: anthropicStopReason(parsed.StopReason),
		}},
		Usage: &api.Usage{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
			TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
	}, nil
}

// anthropicEvent is the union of the stream event payloads we consume.
type anthropicEvent struct {
	Type    string `json:"type"`
	Index   int    `json:"index"`
	Message struct {
		ID    string         `json:"id"`
		Model string         `json:"model"`
		Usage anthropicUsage `json:"usage"`
	} `json:"message"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	Usage anthropicUsage `json:"usage"`
}

// Stream runs one streaming turn. Anthropic's block-oriented events are
// re-expressed as chat-completion chunks; tool-use blocks map to tool-call
// deltas indexed by their order of appearance.
func (c *AnthropicClient) Stream(ctx context.Context, params api.CompletionParams) (<-chan api.CompletionChunk, <-chan error) {
	body, err := c.buildAnthropicRequest(params, true)
	if err != nil {
		return streamError(api.WrapError(api.KindInvalidArgument, "building upstream request", err))
	}

	req, err := c.newHTTPRequest(ctx, body)
	if err != nil {
		return streamError(err)
	}
	resp, err := c.stream.Do(req)
	if err != nil {
		return streamError(api.WrapError(api.KindUpstream, "messages stream failed", err))
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return streamError(anthropicError(resp.StatusCode, raw))
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
		usage, err := c.forwardAnthropicSSE(ctx, resp.Body, body.Model, chunks)
		observability.GetGlobalMetrics().RecordLLMCall(ctx, body.Model, time.Since(start), usage.InputTokens, usage.OutputTokens, err)
		if err != nil {
			span.RecordError(err)
			errs <- err
		}
	}()
	return chunks, errs
}

func (c *AnthropicClient) forwardAnthropicSSE(ctx context.Context, body io.Reader, model string, chunks chan<- api.CompletionChunk) (anthropicUsage, error) {
	var (
		usage     anthropicUsage
		messageID string
		created   = time.Now().Unix()
		// Anthropic block index -> chat tool-call delta index.
		toolIndex = map[int]int{}
	)

	send := func(choice api.StreamChoice) error {
		chunk := api.CompletionChunk{
			ID:      messageID,
			Object:  api.ObjectCompletionChunk,
			Created: created,
			Model:   model,
			Choices: []api.StreamChoice{choice},
		}
		select {
		case chunks <- chunk:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, ssePrefix) {
			continue
		}

		var event anthropicEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, ssePrefix)), &event); err != nil {
			return usage, api.WrapError(api.KindUpstream, "decoding stream event", err)
		}

		switch event.Type {
		case "message_start":
			messageID = event.Message.ID
			usage.InputTokens = event.Message.Usage.InputTokens
			if err := send(api.StreamChoice{Delta: api.Delta{Role: api.RoleAssistant}}); err != nil {
				return usage, err
			}
		case "content_block_start":
			if event.ContentBlock.Type == "tool_use" {
				idx := len(toolIndex)
				toolIndex[event.Index] = idx
				if err := send(api.StreamChoice{Delta: api.Delta{ToolCalls: []api.ToolCall{{
					Index:    &idx,
					ID:       event.ContentBlock.ID,
					Type:     "function",
					Function: api.FunctionCall{Name: event.ContentBlock.Name},
				}}}}); err != nil {
					return usage, err
				}
			}
		case "content_block_delta":
			switch event.Delta.Type {
			case "text_delta":
				if err := send(api.StreamChoice{Delta: api.Delta{Content: event.Delta.Text}}); err != nil {
					return usage, err
				}
			case "input_json_delta":
				idx, ok := toolIndex[event.Index]
				if !ok {
					continue
				}
				if err := send(api.StreamChoice{Delta: api.Delta{ToolCalls: []api.ToolCall{{
					Index:    &idx,
					Function: api.FunctionCall{Arguments: event.Delta.PartialJSON},
				}}}}); err != nil {
					return usage, err
				}
			}
		case "message_delta":
			usage.OutputTokens = event.Usage.OutputTokens
			if event.Delta.StopReason != "" {
				if err := send(api.StreamChoice{FinishReason: anthropicStopReason(event.Delta.StopReason)}); err != nil {
					return usage, err
				}
			}
		case "message_stop":
			return usage, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return usage, api.WrapError(api.KindUpstream, "reading stream", err)
	}
	return usage, nil
}

var _ Client = (*AnthropicClient)(nil)
