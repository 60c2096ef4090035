package llms

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/openresponses/openresponses/pkg/api"
	"github.com/openresponses/openresponses/pkg/config"
	"github.com/openresponses/openresponses/pkg/ident"
	"github.com/openresponses/openresponses/pkg/observability"
)

// GeminiClient wraps the Gemini API SDK behind the chat-completion shape.
type GeminiClient struct {
	client *genai.Client
	model  string
	tracer trace.Tracer
}

// NewGeminiClient builds a client from the provider config.
func NewGeminiClient(ctx context.Context, cfg *config.LLMProviderConfig) (*GeminiClient, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiClient{
		client: client,
		model:  cfg.Model,
		tracer: observability.GetTracer("llms"),
	}, nil
}

func (c *GeminiClient) Model() string { return c.model }
func (c *GeminiClient) Close() error  { return nil }

// buildGeminiRequest translates params to SDK contents and config. System
// messages become the system instruction; tool results become function
// response parts.
func (c *GeminiClient) buildGeminiRequest(params api.CompletionParams) (string, []*genai.Content, *genai.GenerateContentConfig, error) {
	model := params.Model
	if model == "" {
		model = c.model
	}

	cfg := &genai.GenerateContentConfig{}
	if params.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*params.Temperature))
	}
	if params.TopP != nil {
		cfg.TopP = genai.Ptr(float32(*params.TopP))
	}
	if params.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*params.MaxTokens)
	}

	// Gemini keys function responses by name, so remember each call id's
	// function name.
	callNames := map[string]string{}

	var contents []*genai.Content
	var system []*genai.Part
	for _, m := range params.Messages {
		switch m.Role {
		case api.RoleSystem:
			system = append(system, genai.NewPartFromText(api.ContentText(m.Content)))
		case api.RoleUser:
			contents = append(contents, genai.NewContentFromText(api.ContentText(m.Content), genai.RoleUser))
		case api.RoleAssistant:
			var parts []*genai.Part
			if text := api.ContentText(m.Content); text != "" {
				parts = append(parts, genai.NewPartFromText(text))
			}
			for _, tc := range m.ToolCalls {
				args := map[string]interface{}{}
				if tc.Function.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
						return "", nil, nil, fmt.Errorf("tool call %s has malformed arguments: %w", tc.ID, err)
					}
				}
				callNames[tc.ID] = tc.Function.Name
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					Name: tc.Function.Name,
					Args: args,
				}})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
			}
		case api.RoleTool:
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{
				FunctionResponse: &genai.FunctionResponse{
					Name:     callNames[m.ToolCallID],
					Response: map[string]interface{}{"output": api.ContentText(m.Content)},
				},
			}}})
		}
	}
	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: system}
	}

	if len(params.Tools) > 0 {
		var decls []*genai.FunctionDeclaration
		for _, t := range params.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Function.Name,
				Description:          t.Function.Description,
				ParametersJsonSchema: t.Function.Parameters,
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return model, contents, cfg, nil
}

func geminiFinishReason(reason genai.FinishReason, hasToolCalls bool) string {
	if hasToolCalls {
		return api.FinishReasonToolCalls
	}
	switch reason {
	case genai.FinishReasonMaxTokens:
		return api.FinishReasonLength
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist:
		return api.FinishReasonContentFilter
	default:
		return api.FinishReasonStop
	}
}

func geminiUsage(meta *genai.GenerateContentResponseUsageMetadata) *api.Usage {
	if meta == nil {
		return nil
	}
	return &api.Usage{
		PromptTokens:     int(meta.PromptTokenCount),
		CompletionTokens: int(meta.CandidatesTokenCount),
		TotalTokens:      int(meta.TotalTokenCount),
	}
}

// Complete runs one blocking turn.
func (c *GeminiClient) Complete(ctx context.Context, params api.CompletionParams) (*api.ModelCompletion, error) {
	model, contents, cfg, err := c.buildGeminiRequest(params)
	if err != nil {
		return nil, api.WrapError(api.KindInvalidArgument, "building upstream request", err)
	}

	ctx, span := c.tracer.Start(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(attribute.String(observability.AttrModel, model)))
	defer span.End()

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		observability.GetGlobalMetrics().RecordLLMCall(ctx, model, time.Since(start), 0, 0, err)
		span.RecordError(err)
		return nil, api.WrapError(api.KindUpstream, "gemini request failed", err)
	}

	completion := geminiToCompletion(resp, model)
	inTokens, outTokens := 0, 0
	if completion.Usage != nil {
		inTokens = completion.Usage.PromptTokens
		outTokens = completion.Usage.CompletionTokens
	}
	observability.GetGlobalMetrics().RecordLLMCall(ctx, model, time.Since(start), inTokens, outTokens, nil)
	return completion, nil
}

func geminiToCompletion(resp *genai.GenerateContentResponse, model string) *api.ModelCompletion {
	message := api.Message{Role: api.RoleAssistant}
	finish := api.FinishReasonStop

	if len(resp.Candidates) > 0 {
		candidate := resp.Candidates[0]
		var text string
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					text += part.Text
				}
				if part.FunctionCall != nil {
					args, _ := json.Marshal(part.FunctionCall.Args)
					message.ToolCalls = append(message.ToolCalls, api.ToolCall{
						ID:   "call_" + ident.NewUUID(),
						Type: "function",
						Function: api.FunctionCall{
							Name:      part.FunctionCall.Name,
							Arguments: string(args),
						},
					})
				}
			}
		}
		message.Content = text
		finish = geminiFinishReason(candidate.FinishReason, len(message.ToolCalls) > 0)
	}

	return &api.ModelCompletion{
		ID:      "chatcmpl-" + ident.NewUUID(),
		Object:  api.ObjectCompletion,
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []api.Choice{{Message: message, FinishReason: finish}},
		Usage:   geminiUsage(resp.UsageMetadata),
	}
}

// Stream runs one streaming turn, re-expressing SDK responses as
// chat-completion chunks.
func (c *GeminiClient) Stream(ctx context.Context, params api.CompletionParams) (<-chan api.CompletionChunk, <-chan error) {
	model, contents, cfg, err := c.buildGeminiRequest(params)
	if err != nil {
		return streamError(api.WrapError(api.KindInvalidArgument, "building upstream request", err))
	}

	chunks := make(chan api.CompletionChunk)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		ctx, span := c.tracer.Start(ctx, observability.SpanLLMRequest,
			trace.WithAttributes(attribute.String(observability.AttrModel, model)))
		defer span.End()

		var (
			start     = time.Now()
			id        = "chatcmpl-" + ident.NewUUID()
			created   = time.Now().Unix()
			usage     *api.Usage
			toolCalls int
			sendErr   error
		)

		send := func(choice api.StreamChoice) bool {
			chunk := api.CompletionChunk{
				ID:      id,
				Object:  api.ObjectCompletionChunk,
				Created: created,
				Model:   model,
				Choices: []api.StreamChoice{choice},
			}
			select {
			case chunks <- chunk:
				return true
			case <-ctx.Done():
				sendErr = ctx.Err()
				return false
			}
		}

	stream:
		for resp, iterErr := range c.client.Models.GenerateContentStream(ctx, model, contents, cfg) {
			if iterErr != nil {
				sendErr = api.WrapError(api.KindUpstream, "gemini stream failed", iterErr)
				break
			}
			if resp.UsageMetadata != nil {
				usage = geminiUsage(resp.UsageMetadata)
			}
			if len(resp.Candidates) == 0 {
				continue
			}
			candidate := resp.Candidates[0]
			if candidate.Content != nil {
				for _, part := range candidate.Content.Parts {
					if part.Text != "" {
						if !send(api.StreamChoice{Delta: api.Delta{Content: part.Text}}) {
							break stream
						}
					}
					if part.FunctionCall != nil {
						idx := toolCalls
						toolCalls++
						args, _ := json.Marshal(part.FunctionCall.Args)
						if !send(api.StreamChoice{Delta: api.Delta{ToolCalls: []api.ToolCall{{
							Index: &idx,
							ID:    "call_" + ident.NewUUID(),
							Type:  "function",
							Function: api.FunctionCall{
								Name:      part.FunctionCall.Name,
								Arguments: string(args),
							},
						}}}}) {
							break stream
						}
					}
				}
			}
			if candidate.FinishReason != "" {
				if !send(api.StreamChoice{FinishReason: geminiFinishReason(candidate.FinishReason, toolCalls > 0)}) {
					break stream
				}
			}
		}

		inTokens, outTokens := 0, 0
		if usage != nil {
			inTokens = usage.PromptTokens
			outTokens = usage.CompletionTokens
		}
		observability.GetGlobalMetrics().RecordLLMCall(ctx, model, time.Since(start), inTokens, outTokens, sendErr)
		if sendErr != nil {
			span.RecordError(sendErr)
			errs <- sendErr
		}
	}()
	return chunks, errs
}

var _ Client = (*GeminiClient)(nil)
