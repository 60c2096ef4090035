package responses

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openresponses/openresponses/pkg/api"
)

func contentChunk(id, content, finish string) api.CompletionChunk {
	return api.CompletionChunk{
		ID: id,
		Choices: []api.StreamChoice{{
			Delta:        api.Delta{Content: content},
			FinishReason: finish,
		}},
	}
}

func TestReassembleContentConcatenation(t *testing.T) {
	chunks := []api.CompletionChunk{
		{ID: "chat-1", Model: "gpt-4o", Created: 1700000000, Choices: []api.StreamChoice{{
			Delta: api.Delta{Role: api.RoleAssistant, Content: "Par"},
		}}},
		contentChunk("chat-1", "is", ""),
		contentChunk("chat-1", "", "stop"),
	}

	completion := Reassemble(chunks)
	require.NotNil(t, completion)
	assert.Equal(t, "chat-1", completion.ID)
	assert.Equal(t, "gpt-4o", completion.Model)
	assert.Equal(t, int64(1700000000), completion.Created)

	choice := completion.FirstChoice()
	require.NotNil(t, choice)
	assert.Equal(t, "Paris", choice.Message.Content)
	assert.Equal(t, "stop", choice.FinishReason)
	assert.Equal(t, api.RoleAssistant, choice.Message.Role)
}

func TestReassembleToolCallFold(t *testing.T) {
	chunks := []api.CompletionChunk{
		{ID: "chat-1", Choices: []api.StreamChoice{{
			Delta: api.Delta{ToolCalls: []api.ToolCall{{
				Index:    intPtr(0),
				ID:       "call_1",
				Type:     "function",
				Function: api.FunctionCall{Name: "file_search", Arguments: `{"que`},
			}}},
		}}},
		{ID: "chat-1", Choices: []api.StreamChoice{{
			Delta: api.Delta{ToolCalls: []api.ToolCall{{
				Index:    intPtr(0),
				Function: api.FunctionCall{Arguments: `ry": "x"}`},
			}}},
		}}},
		{ID: "chat-1", Choices: []api.StreamChoice{{FinishReason: "tool_calls"}}},
	}

	completion := Reassemble(chunks)
	require.NotNil(t, completion)
	require.True(t, completion.HasToolCalls())

	tc := completion.FirstChoice().Message.ToolCalls[0]
	assert.Equal(t, "call_1", tc.ID)
	assert.Equal(t, "file_search", tc.Function.Name)
	assert.Equal(t, `{"query": "x"}`, tc.Function.Arguments)
	assert.Equal(t, "tool_calls", completion.FirstChoice().FinishReason)
}

func TestReassembleParallelToolCalls(t *testing.T) {
	chunks := []api.CompletionChunk{
		{ID: "chat-1", Choices: []api.StreamChoice{{
			Delta: api.Delta{ToolCalls: []api.ToolCall{
				{Index: intPtr(0), ID: "call_a", Function: api.FunctionCall{Name: "echo", Arguments: `{"text": "a"}`}},
				{Index: intPtr(1), ID: "call_b", Function: api.FunctionCall{Name: "echo", Arguments: `{"text": "b"}`}},
			}},
		}}},
	}

	completion := Reassemble(chunks)
	require.NotNil(t, completion)
	calls := completion.FirstChoice().Message.ToolCalls
	require.Len(t, calls, 2)
	assert.Equal(t, "call_a", calls[0].ID)
	assert.Equal(t, "call_b", calls[1].ID)
}

func TestReassembleMultipleChoices(t *testing.T) {
	chunks := []api.CompletionChunk{
		{ID: "chat-1", Choices: []api.StreamChoice{
			{Index: 1, Delta: api.Delta{Content: "second"}},
			{Index: 0, Delta: api.Delta{Content: "first"}},
		}},
	}

	completion := Reassemble(chunks)
	require.NotNil(t, completion)
	require.Len(t, completion.Choices, 2)
	assert.Equal(t, 0, completion.Choices[0].Index)
	assert.Equal(t, "first", completion.Choices[0].Message.Content)
	assert.Equal(t, "second", completion.Choices[1].Message.Content)
}

func TestReassembleFirstIdentityWins(t *testing.T) {
	chunks := []api.CompletionChunk{
		{Choices: []api.StreamChoice{{Delta: api.Delta{Content: "a"}}}},
		{ID: "chat-1", Model: "gpt-4o", Choices: []api.StreamChoice{{Delta: api.Delta{Content: "b"}}}},
		{ID: "chat-other", Model: "other", Choices: []api.StreamChoice{{Delta: api.Delta{Content: "c"}}}},
	}

	completion := Reassemble(chunks)
	require.NotNil(t, completion)
	assert.Equal(t, "chat-1", completion.ID)
	assert.Equal(t, "gpt-4o", completion.Model)
	assert.Equal(t, "abc", completion.FirstChoice().Message.Content)
}

func TestReassembleUsage(t *testing.T) {
	chunks := []api.CompletionChunk{
		contentChunk("chat-1", "hi", ""),
		{ID: "chat-1", Usage: &api.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15}},
	}

	completion := Reassemble(chunks)
	require.NotNil(t, completion)
	require.NotNil(t, completion.Usage)
	assert.Equal(t, 15, completion.Usage.TotalTokens)
}

func TestReassembleUnusable(t *testing.T) {
	assert.Nil(t, Reassemble(nil))
	assert.Nil(t, Reassemble([]api.CompletionChunk{{ID: "chat-1"}}))
}
