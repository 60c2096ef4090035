package responses

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openresponses/openresponses/pkg/api"
	"github.com/openresponses/openresponses/pkg/llms"
	"github.com/openresponses/openresponses/pkg/observability"
	"github.com/openresponses/openresponses/pkg/search"
	"github.com/openresponses/openresponses/pkg/tools"
)

// Outcome is the result of handling one round of tool calls. The two
// variants are Continue and Terminate.
type Outcome interface{ outcome() }

// Continue carries the transcript extended with tool results. When the
// round included a tool only the caller can run, HasUnresolvedClientTools is
// set and the loop must stop so the caller can dispatch it.
type Continue struct {
	UpdatedMessages          []api.Message
	HasUnresolvedClientTools bool
}

// Terminate ends the loop with a synthesized final completion.
type Terminate struct {
	FinalCompletion    *api.ModelCompletion
	MessagesForStorage []api.Message
}

func (Continue) outcome()  {}
func (Terminate) outcome() {}

// Executor runs the tool calls of one request. Handler failures become tool
// message content so the model can react to them; they are never raised.
type Executor struct {
	tools   *tools.RequestTools
	req     *api.ResponseCreateRequest
	client  llms.Client
	emitter search.Emitter
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewExecutor builds the executor for one request. emitter may be nil.
func NewExecutor(rt *tools.RequestTools, req *api.ResponseCreateRequest, client llms.Client, emitter search.Emitter) *Executor {
	return &Executor{
		tools:   rt,
		req:     req,
		client:  client,
		emitter: emitter,
		tracer:  observability.GetTracer("responses"),
		logger:  slog.Default().With("component", "tool_executor"),
	}
}

// HandleToolCall dispatches every tool call of the completion's first
// choice. Native handlers append tool messages; a terminal tool short
// circuits into a final completion; unknown and remote tools flag the round
// as unresolved so the loop hands control back to the caller.
func (e *Executor) HandleToolCall(ctx context.Context, completion *api.ModelCompletion, params api.CompletionParams) (Outcome, error) {
	choice := completion.FirstChoice()
	if choice == nil {
		return Continue{UpdatedMessages: params.Messages}, nil
	}

	messages := make([]api.Message, 0, len(params.Messages)+len(choice.Message.ToolCalls)+1)
	messages = append(messages, params.Messages...)
	messages = append(messages, choice.Message)

	unresolved := false
	for _, tc := range choice.Message.ToolCalls {
		name := tc.Function.Name
		tool := e.tools.Lookup(name)
		if tool == nil || tool.Variant == tools.VariantRemote {
			unresolved = true
			continue
		}

		output := e.run(ctx, tool, name, tc.Function.Arguments)
		if tool.Variant == tools.VariantTerminal {
			return e.terminate(completion, messages, output), nil
		}
		messages = append(messages, api.Message{
			Role:       api.RoleTool,
			ToolCallID: tc.ID,
			Content:    output,
		})
	}

	return Continue{UpdatedMessages: messages, HasUnresolvedClientTools: unresolved}, nil
}

func (e *Executor) run(ctx context.Context, tool *tools.Tool, name, arguments string) string {
	args, err := decodeCallArgs(arguments)
	if err != nil {
		return fmt.Sprintf("invalid tool arguments: %v", err)
	}

	ctx, span := e.tracer.Start(ctx, observability.SpanToolExecution,
		trace.WithAttributes(attribute.String(observability.AttrToolName, name)))
	defer span.End()

	start := time.Now()
	output, err := tool.Handler(ctx, tools.Invocation{
		Args:     args,
		Request:  e.req,
		Client:   e.client,
		Emitter:  e.emitter,
		Metadata: e.req.Metadata,
	})
	observability.GetGlobalMetrics().RecordToolExecution(ctx, name, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		e.logger.Warn("tool execution failed", "tool", name, "error", err)
		return err.Error()
	}
	return output
}

func (e *Executor) terminate(completion *api.ModelCompletion, messages []api.Message, output string) Terminate {
	final := api.Message{Role: api.RoleAssistant}
	if isImageOutput(output) {
		final.Content = []api.MessagePart{{
			Type:     "image_url",
			ImageURL: &api.ImageURL{URL: output},
		}}
	} else {
		final.Content = output
	}
	messages = append(messages, final)

	return Terminate{
		FinalCompletion: &api.ModelCompletion{
			ID:      completion.ID,
			Object:  api.ObjectCompletion,
			Created: completion.Created,
			Model:   completion.Model,
			Choices: []api.Choice{{Message: final, FinishReason: api.FinishReasonStop}},
			Usage:   completion.Usage,
		},
		MessagesForStorage: messages,
	}
}

func isImageOutput(output string) bool {
	return strings.HasPrefix(output, "data:image/") ||
		strings.HasPrefix(output, "http://") ||
		strings.HasPrefix(output, "https://")
}

func decodeCallArgs(arguments string) (map[string]interface{}, error) {
	if strings.TrimSpace(arguments) == "" {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return nil, err
	}
	return args, nil
}
