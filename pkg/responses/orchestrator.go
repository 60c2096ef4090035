// Package responses implements the response engine: the blocking and
// streaming tool-call loops, the per-round tool executor, chunk reassembly,
// and the conversation replay rewriter.
package responses

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openresponses/openresponses/pkg/api"
	"github.com/openresponses/openresponses/pkg/config"
	"github.com/openresponses/openresponses/pkg/ident"
	"github.com/openresponses/openresponses/pkg/llms"
	"github.com/openresponses/openresponses/pkg/observability"
	"github.com/openresponses/openresponses/pkg/search"
	"github.com/openresponses/openresponses/pkg/store"
	"github.com/openresponses/openresponses/pkg/tools"
)

// Orchestrator drives the tool-call loop for incoming requests. One
// instance serves all requests; per-request state lives in the turn.
type Orchestrator struct {
	models       *llms.Registry
	registry     *tools.Registry
	store        store.Store
	maxToolCalls int
	tracer       trace.Tracer
	logger       *slog.Logger
}

// New builds the orchestrator. st may be nil when persistence is disabled.
func New(models *llms.Registry, registry *tools.Registry, st store.Store, cfg config.ResponsesConfig) *Orchestrator {
	return &Orchestrator{
		models:       models,
		registry:     registry,
		store:        st,
		maxToolCalls: cfg.EffectiveMaxToolCalls(),
		tracer:       observability.GetTracer("responses"),
		logger:       slog.Default().With("component", "orchestrator"),
	}
}

// SetMaxToolCalls overrides the per-request tool-call limit.
func (o *Orchestrator) SetMaxToolCalls(n int) {
	if n > 0 {
		o.maxToolCalls = n
	}
}

// turn is the per-request state shared by the blocking and streaming loops.
type turn struct {
	req    *api.ResponseCreateRequest
	client llms.Client
	params api.CompletionParams
	exec   *Executor
	store  bool
}

// Respond runs the blocking loop and returns the final completion.
func (o *Orchestrator) Respond(ctx context.Context, req *api.ResponseCreateRequest) (*api.ModelCompletion, error) {
	t, err := o.prepare(ctx, req, nil)
	if err != nil {
		return nil, err
	}

	ctx, span := o.tracer.Start(ctx, observability.SpanResponse,
		trace.WithAttributes(attribute.String(observability.AttrModel, t.params.Model)))
	defer span.End()

	start := time.Now()
	completion, err := o.create(ctx, t, t.params)
	observability.GetGlobalMetrics().RecordResponse(ctx, t.params.Model, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String(observability.AttrResponseID, completion.ID))
	return completion, nil
}

// prepare resolves the client, replays the previous conversation if
// requested, and assembles the first turn's params.
func (o *Orchestrator) prepare(ctx context.Context, req *api.ResponseCreateRequest, emitter search.Emitter) (*turn, error) {
	client, model, err := o.models.Resolve(req.Model)
	if err != nil {
		return nil, err
	}

	items, err := o.mergedInput(ctx, req)
	if err != nil {
		return nil, err
	}

	messages := make([]api.Message, 0, len(items)+1)
	if req.Instructions != "" {
		messages = append(messages, api.Message{Role: api.RoleSystem, Content: req.Instructions})
	}
	messages = append(messages, MessagesFromItems(items)...)
	if len(messages) == 0 {
		return nil, api.InvalidArgumentf("input must not be empty")
	}

	rt := tools.RequestAliases(o.registry, req.Tools)
	params := api.CompletionParams{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxOutputTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Tools:       rt.Declared(),
		ToolChoice:  req.ToolChoice,
		Metadata:    req.Metadata,
	}
	if req.Reasoning != nil {
		params.ReasoningEffort = req.Reasoning.Effort
	}

	return &turn{
		req:    req,
		client: client,
		params: params,
		exec:   NewExecutor(rt, req, client, emitter),
		store:  req.Store != nil && *req.Store,
	}, nil
}

// create is one iteration of the blocking loop: upstream call, tool
// dispatch, then recursion on updated messages.
func (o *Orchestrator) create(ctx context.Context, t *turn, params api.CompletionParams) (*api.ModelCompletion, error) {
	completion, err := o.complete(ctx, t.client, params)
	if err != nil {
		return nil, err
	}
	if completion.ID == "" {
		completion.ID = ident.NewResponseID()
	}

	if completion.HasToolCalls() {
		outcome, err := t.exec.HandleToolCall(ctx, completion, params)
		if err != nil {
			return nil, err
		}
		switch out := outcome.(type) {
		case Terminate:
			o.maybeStore(ctx, t, out.FinalCompletion, out.MessagesForStorage)
			return out.FinalCompletion, nil
		case Continue:
			if out.HasUnresolvedClientTools {
				o.maybeStore(ctx, t, completion, params.Messages)
				return completion, nil
			}
			if o.exceedsMaxToolCalls(out.UpdatedMessages) {
				return nil, o.maxToolCallsError()
			}
			return o.create(ctx, t, params.WithMessages(out.UpdatedMessages))
		}
	}

	o.maybeStore(ctx, t, completion, params.Messages)
	return completion, nil
}

// complete runs one upstream call, traced here and metered by the client.
func (o *Orchestrator) complete(ctx context.Context, client llms.Client, params api.CompletionParams) (*api.ModelCompletion, error) {
	ctx, span := o.tracer.Start(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(attribute.String(observability.AttrModel, params.Model)))
	defer span.End()

	completion, err := client.Complete(ctx, params)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return completion, nil
}

// exceedsMaxToolCalls counts assistant turns that issued tool calls. The
// limit bounds the per-request loop, not a global rate.
func (o *Orchestrator) exceedsMaxToolCalls(messages []api.Message) bool {
	count := 0
	for _, m := range messages {
		if m.Role == api.RoleAssistant && len(m.ToolCalls) > 0 {
			count++
		}
	}
	return count > o.maxToolCalls
}

func (o *Orchestrator) maxToolCallsError() error {
	return api.NewError(api.KindMaxToolCallsExceeded,
		fmt.Sprintf("request exceeded the limit of %d tool calls", o.maxToolCalls))
}

// maybeStore persists the response when the request asked for it. Storage is
// best-effort: the response has already been produced, so failures are
// logged instead of raised.
func (o *Orchestrator) maybeStore(ctx context.Context, t *turn, completion *api.ModelCompletion, messages []api.Message) {
	if !t.store || o.store == nil || completion == nil {
		return
	}
	if err := o.store.StoreResponse(ctx, completion, ItemsFromMessages(messages)); err != nil {
		o.logger.Warn("storing response failed", "response_id", completion.ID, "error", err)
	}
}
