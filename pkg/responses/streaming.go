package responses

import (
	"context"
	"time"

	"github.com/openresponses/openresponses/pkg/api"
	"github.com/openresponses/openresponses/pkg/ident"
	"github.com/openresponses/openresponses/pkg/observability"
	"github.com/openresponses/openresponses/pkg/search"
)

// SSE event names emitted by the streaming loop.
const (
	EventChunk          = "chunk"
	EventError          = "error"
	EventSearchProgress = "response.agentic_search.progress"
)

// Sink receives the server-sent events of one streaming response.
// Implementations must flush after every event; strict FIFO within the
// response is assumed.
type Sink interface {
	// Event writes one named event with a JSON payload.
	Event(name string, payload interface{}) error

	// Done writes the terminal [DONE] marker.
	Done() error
}

// errorEvent is the payload of an error event.
type errorEvent struct {
	Message string `json:"message"`
}

// Stream runs the streaming loop, forwarding upstream chunks to the sink
// and folding tool rounds in between. Failures before the first event are
// returned so the transport can answer with a proper status; anything after
// that becomes one error event followed by [DONE].
func (o *Orchestrator) Stream(ctx context.Context, req *api.ResponseCreateRequest, sink Sink) error {
	emitter := search.EmitterFunc(func(event search.Event) {
		_ = sink.Event(EventSearchProgress, event)
	})
	t, err := o.prepare(ctx, req, emitter)
	if err != nil {
		return err
	}

	observability.GetGlobalMetrics().StreamStarted(ctx)
	defer observability.GetGlobalMetrics().StreamEnded(ctx)

	start := time.Now()
	err = o.streamLoop(ctx, t, sink)
	observability.GetGlobalMetrics().RecordResponse(ctx, t.params.Model, time.Since(start), err)
	return err
}

func (o *Orchestrator) streamLoop(ctx context.Context, t *turn, sink Sink) error {
	params := t.params
	for {
		completion, err := o.streamTurn(ctx, t, params, sink)
		if err != nil {
			return o.streamFail(sink, err)
		}
		if completion == nil {
			// Nothing usable came back; close with an explicit terminal
			// chunk so the client still sees a finished response.
			synthetic := &api.ModelCompletion{
				ID:      ident.NewResponseID(),
				Object:  api.ObjectCompletion,
				Created: time.Now().Unix(),
				Model:   params.Model,
				Choices: []api.Choice{{
					Message:      api.Message{Role: api.RoleAssistant, Content: ""},
					FinishReason: api.FinishReasonStop,
				}},
			}
			if err := sink.Event(EventChunk, terminalChunk(synthetic)); err != nil {
				return err
			}
			return sink.Done()
		}
		if completion.ID == "" {
			completion.ID = ident.NewResponseID()
		}

		if !completion.HasToolCalls() {
			o.maybeStore(ctx, t, completion, params.Messages)
			return sink.Done()
		}

		outcome, err := t.exec.HandleToolCall(ctx, completion, params)
		if err != nil {
			return o.streamFail(sink, err)
		}
		switch out := outcome.(type) {
		case Terminate:
			if err := sink.Event(EventChunk, terminalChunk(out.FinalCompletion)); err != nil {
				return err
			}
			o.maybeStore(ctx, t, out.FinalCompletion, out.MessagesForStorage)
			return sink.Done()
		case Continue:
			if out.HasUnresolvedClientTools {
				o.maybeStore(ctx, t, completion, params.Messages)
				return sink.Done()
			}
			if o.exceedsMaxToolCalls(out.UpdatedMessages) {
				return o.streamFail(sink, o.maxToolCallsError())
			}
			params = params.WithMessages(out.UpdatedMessages)
		}
	}
}

// streamTurn opens one upstream stream, forwards every chunk, and
// reassembles the collected chunks when the stream closes.
func (o *Orchestrator) streamTurn(ctx context.Context, t *turn, params api.CompletionParams, sink Sink) (*api.ModelCompletion, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks, errs := t.client.Stream(ctx, params)

	var collected []api.CompletionChunk
	for chunk := range chunks {
		collected = append(collected, chunk)
		if err := sink.Event(EventChunk, chunk); err != nil {
			// Downstream is gone; cancel upstream and stop quietly.
			cancel()
			for range chunks {
			}
			<-errs
			return nil, err
		}
	}
	if err := <-errs; err != nil {
		return nil, err
	}
	return Reassemble(collected), nil
}

// streamFail reports an in-stream failure: one error event, then [DONE].
// Sink write failures win over the original error since nothing more can be
// delivered anyway.
func (o *Orchestrator) streamFail(sink Sink, cause error) error {
	o.logger.Warn("streaming response failed", "error", cause)
	if err := sink.Event(EventError, errorEvent{Message: api.AsError(cause, api.KindUpstream).Message}); err != nil {
		return err
	}
	return sink.Done()
}

// terminalChunk renders a terminal tool's completion as the closing chunk.
func terminalChunk(completion *api.ModelCompletion) api.CompletionChunk {
	content := ""
	if choice := completion.FirstChoice(); choice != nil {
		content = api.ContentText(choice.Message.Content)
		if content == "" {
			if parts, ok := choice.Message.Content.([]api.MessagePart); ok {
				for _, p := range parts {
					if p.ImageURL != nil {
						content = p.ImageURL.URL
						break
					}
				}
			}
		}
	}
	return api.CompletionChunk{
		ID:      completion.ID,
		Object:  api.ObjectCompletionChunk,
		Created: completion.Created,
		Model:   completion.Model,
		Choices: []api.StreamChoice{{
			Delta:        api.Delta{Role: api.RoleAssistant, Content: content},
			FinishReason: api.FinishReasonStop,
		}},
		Usage: completion.Usage,
	}
}
