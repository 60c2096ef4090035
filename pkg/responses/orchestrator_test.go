package responses

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openresponses/openresponses/pkg/api"
	"github.com/openresponses/openresponses/pkg/observability"
	"github.com/openresponses/openresponses/pkg/store"
	"github.com/openresponses/openresponses/pkg/tools"
)

func TestRespondSimpleCompletion(t *testing.T) {
	client := &scriptClient{completions: []*api.ModelCompletion{
		assistantCompletion("resp-1", "Paris"),
	}}
	o := newTestOrchestrator(client, nil, nil)

	completion, err := o.Respond(context.Background(), &api.ResponseCreateRequest{
		Input: api.Input{Text: "what is the capital of France?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "resp-1", completion.ID)
	assert.Equal(t, "Paris", api.ContentText(completion.FirstChoice().Message.Content))
	assert.Equal(t, 1, client.calls)
}

func TestRespondMintsMissingID(t *testing.T) {
	client := &scriptClient{completions: []*api.ModelCompletion{
		assistantCompletion("", "hello"),
	}}
	o := newTestOrchestrator(client, nil, nil)

	completion, err := o.Respond(context.Background(), &api.ResponseCreateRequest{
		Input: api.Input{Text: "hi"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, completion.ID)
}

func TestRespondToolCallLoop(t *testing.T) {
	client := &scriptClient{completions: []*api.ModelCompletion{
		toolCallCompletion("resp-1", "echo", `{"text": "hello"}`),
		assistantCompletion("resp-2", "the tool said: echo: hello"),
	}}
	reg := tools.NewRegistry()
	require.NoError(t, reg.RegisterTool(echoTool()))
	o := newTestOrchestrator(client, reg, nil)

	completion, err := o.Respond(context.Background(), &api.ResponseCreateRequest{
		Input: api.Input{Text: "run echo"},
		Tools: []api.ToolSpec{{Type: "function", Name: "echo"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "resp-2", completion.ID)
	assert.Equal(t, 2, client.calls)
}

func TestRespondToolLoopBound(t *testing.T) {
	// The model never stops asking for the tool; the loop must fail once
	// the assistant tool-call turns exceed the limit.
	client := &scriptClient{completions: []*api.ModelCompletion{
		toolCallCompletion("resp-1", "echo", `{"text": "again"}`),
	}}
	reg := tools.NewRegistry()
	require.NoError(t, reg.RegisterTool(echoTool()))
	o := newTestOrchestrator(client, reg, nil)
	o.SetMaxToolCalls(3)

	_, err := o.Respond(context.Background(), &api.ResponseCreateRequest{
		Input: api.Input{Text: "loop"},
		Tools: []api.ToolSpec{{Type: "function", Name: "echo"}},
	})
	require.Error(t, err)
	assert.True(t, api.IsKind(err, api.KindMaxToolCallsExceeded))
	assert.Equal(t, 4, client.calls)
}

func TestRespondUnresolvedClientTool(t *testing.T) {
	client := &scriptClient{completions: []*api.ModelCompletion{
		toolCallCompletion("resp-1", "get_weather", `{"city": "Oslo"}`),
	}}
	o := newTestOrchestrator(client, nil, nil)

	completion, err := o.Respond(context.Background(), &api.ResponseCreateRequest{
		Input: api.Input{Text: "weather?"},
		Tools: []api.ToolSpec{{Type: "function", Name: "get_weather"}},
	})
	require.NoError(t, err)
	// The completion with the unhandled tool call goes back to the caller.
	assert.Equal(t, "resp-1", completion.ID)
	assert.Len(t, completion.FirstChoice().Message.ToolCalls, 1)
	assert.Equal(t, 1, client.calls)
}

func TestRespondStoresWhenRequested(t *testing.T) {
	client := &scriptClient{completions: []*api.ModelCompletion{
		assistantCompletion("resp-1", "Paris"),
	}}
	st := store.NewMemory()
	o := newTestOrchestrator(client, nil, st)

	_, err := o.Respond(context.Background(), &api.ResponseCreateRequest{
		Input: api.Input{Text: "capital of France?"},
		Store: boolPtr(true),
	})
	require.NoError(t, err)

	stored, err := st.GetResponse(context.Background(), "resp-1")
	require.NoError(t, err)
	assert.Equal(t, "resp-1", stored.ID)

	inputs, err := st.GetInputItems(context.Background(), "resp-1")
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.Equal(t, "capital of France?", inputs[0].Content)

	outputs, err := st.GetOutputItems(context.Background(), "resp-1")
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, api.RoleAssistant, outputs[0].Role)
}

func TestRespondDoesNotStoreByDefault(t *testing.T) {
	client := &scriptClient{completions: []*api.ModelCompletion{
		assistantCompletion("resp-1", "Paris"),
	}}
	st := store.NewMemory()
	o := newTestOrchestrator(client, nil, st)

	_, err := o.Respond(context.Background(), &api.ResponseCreateRequest{
		Input: api.Input{Text: "capital of France?"},
	})
	require.NoError(t, err)

	_, err = st.GetResponse(context.Background(), "resp-1")
	assert.True(t, api.IsKind(err, api.KindPreviousResponseNotFound))
}

func TestRespondUnknownProvider(t *testing.T) {
	o := newTestOrchestrator(&scriptClient{}, nil, nil)

	_, err := o.Respond(context.Background(), &api.ResponseCreateRequest{
		Input: api.Input{Text: "hi"},
		Model: "mistral@mistral-large",
	})
	require.Error(t, err)
	assert.True(t, api.IsKind(err, api.KindInvalidArgument))
}

func TestRespondEmptyInput(t *testing.T) {
	o := newTestOrchestrator(&scriptClient{}, nil, nil)

	_, err := o.Respond(context.Background(), &api.ResponseCreateRequest{})
	require.Error(t, err)
	assert.True(t, api.IsKind(err, api.KindInvalidArgument))
}

func TestRespondInstructionsBecomeSystemMessage(t *testing.T) {
	client := &scriptClient{completions: []*api.ModelCompletion{
		assistantCompletion("resp-1", "ok"),
	}}
	o := newTestOrchestrator(client, nil, nil)

	turn, err := o.prepare(context.Background(), &api.ResponseCreateRequest{
		Input:        api.Input{Text: "hi"},
		Instructions: "answer in French",
	}, nil)
	require.NoError(t, err)
	require.Len(t, turn.params.Messages, 2)
	assert.Equal(t, api.RoleSystem, turn.params.Messages[0].Role)
	assert.Equal(t, "answer in French", turn.params.Messages[0].Content)
	assert.Equal(t, api.RoleUser, turn.params.Messages[1].Role)
}

func TestRespondPreviousResponseNotFound(t *testing.T) {
	o := newTestOrchestrator(&scriptClient{}, nil, store.NewMemory())

	_, err := o.Respond(context.Background(), &api.ResponseCreateRequest{
		Input:              api.Input{Text: "and then?"},
		PreviousResponseID: "resp-missing",
	})
	require.Error(t, err)
	assert.True(t, api.IsKind(err, api.KindPreviousResponseNotFound))
}

func TestRespondReplaysPreviousConversation(t *testing.T) {
	st := store.NewMemory()
	first := assistantCompletion("resp-1", "Paris")
	require.NoError(t, st.StoreResponse(context.Background(), first, []api.InputItem{
		{Type: api.ItemTypeMessage, Role: api.RoleUser, Content: "capital of France?"},
	}))

	client := &scriptClient{completions: []*api.ModelCompletion{
		assistantCompletion("resp-2", "about 2.1 million people"),
	}}
	o := newTestOrchestrator(client, nil, st)

	turn, err := o.prepare(context.Background(), &api.ResponseCreateRequest{
		Input:              api.Input{Text: "and its population?"},
		PreviousResponseID: "resp-1",
	}, nil)
	require.NoError(t, err)

	// previous input, previous output, current input
	require.Len(t, turn.params.Messages, 3)
	assert.Equal(t, api.RoleUser, turn.params.Messages[0].Role)
	assert.Equal(t, api.RoleAssistant, turn.params.Messages[1].Role)
	assert.Equal(t, "and its population?", api.ContentText(turn.params.Messages[2].Content))
}

func TestExceedsMaxToolCallsCountsAssistantTurns(t *testing.T) {
	o := newTestOrchestrator(&scriptClient{}, nil, nil)
	o.SetMaxToolCalls(2)

	withCalls := api.Message{Role: api.RoleAssistant, ToolCalls: []api.ToolCall{{ID: "c"}}}
	plain := api.Message{Role: api.RoleAssistant, Content: "text"}

	assert.False(t, o.exceedsMaxToolCalls([]api.Message{withCalls, plain, withCalls}))
	assert.True(t, o.exceedsMaxToolCalls([]api.Message{withCalls, withCalls, withCalls}))
}

func TestRespondUpstreamErrorPropagates(t *testing.T) {
	client := &scriptClient{}
	o := newTestOrchestrator(client, nil, nil)

	_, err := o.Respond(context.Background(), &api.ResponseCreateRequest{
		Input: api.Input{Text: "hi"},
	})
	require.Error(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
}

// countingMetrics tallies LLM-call recordings. The loops must leave that
// counter to the upstream clients, which time the actual requests.
type countingMetrics struct {
	observability.NoopMetrics
	llmCalls int
}

func (m *countingMetrics) RecordLLMCall(context.Context, string, time.Duration, int, int, error) {
	m.llmCalls++
}

func TestLoopsDoNotRecordLLMCallMetrics(t *testing.T) {
	metrics := &countingMetrics{}
	observability.SetGlobalMetrics(metrics)
	defer observability.SetGlobalMetrics(observability.NoopMetrics{})

	client := &scriptClient{
		completions: []*api.ModelCompletion{assistantCompletion("resp-1", "Paris")},
		streams:     [][]api.CompletionChunk{{contentChunk("chat-1", "Paris", "stop")}},
	}
	o := newTestOrchestrator(client, nil, nil)

	_, err := o.Respond(context.Background(), &api.ResponseCreateRequest{
		Input: api.Input{Text: "capital of France?"},
	})
	require.NoError(t, err)

	sink := &recordingSink{}
	err = o.Stream(context.Background(), &api.ResponseCreateRequest{
		Input:  api.Input{Text: "capital of France?"},
		Stream: true,
	}, sink)
	require.NoError(t, err)

	assert.Zero(t, metrics.llmCalls)
}
