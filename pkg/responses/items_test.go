package responses

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openresponses/openresponses/pkg/api"
)

func TestMessagesFromItemsBasic(t *testing.T) {
	items := []api.InputItem{
		{Type: api.ItemTypeMessage, Role: api.RoleUser, Content: "hello"},
		{Type: api.ItemTypeMessage, Role: api.RoleAssistant, Content: "hi there"},
	}

	messages := MessagesFromItems(items)
	require.Len(t, messages, 2)
	assert.Equal(t, api.RoleUser, messages[0].Role)
	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, api.RoleAssistant, messages[1].Role)
}

func TestMessagesFromItemsDefaultsRole(t *testing.T) {
	messages := MessagesFromItems([]api.InputItem{{Type: api.ItemTypeMessage, Content: "hi"}})
	require.Len(t, messages, 1)
	assert.Equal(t, api.RoleUser, messages[0].Role)
}

func TestMessagesFromItemsGroupsFunctionCalls(t *testing.T) {
	items := []api.InputItem{
		{Type: api.ItemTypeMessage, Role: api.RoleUser, Content: "look both up"},
		{Type: api.ItemTypeFunctionCall, CallID: "call_1", Name: "echo", Arguments: `{"text": "a"}`},
		{Type: api.ItemTypeFunctionCall, CallID: "call_2", Name: "echo", Arguments: `{"text": "b"}`},
		{Type: api.ItemTypeFunctionCallOutput, CallID: "call_1", Output: "echo: a"},
		{Type: api.ItemTypeFunctionCallOutput, CallID: "call_2", Output: "echo: b"},
	}

	messages := MessagesFromItems(items)
	require.Len(t, messages, 4)

	assistant := messages[1]
	assert.Equal(t, api.RoleAssistant, assistant.Role)
	require.Len(t, assistant.ToolCalls, 2)
	assert.Equal(t, "call_1", assistant.ToolCalls[0].ID)
	assert.Equal(t, "call_2", assistant.ToolCalls[1].ID)

	assert.Equal(t, api.RoleTool, messages[2].Role)
	assert.Equal(t, "call_1", messages[2].ToolCallID)
	assert.Equal(t, "echo: a", messages[2].Content)
}

func TestMessagesFromItemsImageParts(t *testing.T) {
	items := []api.InputItem{
		{Type: api.ItemTypeMessage, Role: api.RoleUser, Content: []api.ContentPart{
			{Type: api.PartTypeInputText, Text: "what is in this picture?"},
			{Type: api.PartTypeInputImage, ImageURL: "https://example.com/cat.png", Detail: "low"},
		}},
	}

	messages := MessagesFromItems(items)
	require.Len(t, messages, 1)
	parts, ok := messages[0].Content.([]api.MessagePart)
	require.True(t, ok)
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].Type)
	assert.Equal(t, "image_url", parts[1].Type)
	require.NotNil(t, parts[1].ImageURL)
	assert.Equal(t, "https://example.com/cat.png", parts[1].ImageURL.URL)
	assert.Equal(t, "low", parts[1].ImageURL.Detail)
}

func TestMessagesFromItemsSkipsReasoning(t *testing.T) {
	items := []api.InputItem{
		{Type: api.ItemTypeReasoning},
		{Type: api.ItemTypeMessage, Role: api.RoleUser, Content: "hi"},
	}
	assert.Len(t, MessagesFromItems(items), 1)
}

func TestItemsFromMessagesRoundTrip(t *testing.T) {
	messages := []api.Message{
		{Role: api.RoleUser, Content: "run echo"},
		{Role: api.RoleAssistant, Content: "", ToolCalls: []api.ToolCall{{
			ID:       "call_1",
			Type:     "function",
			Function: api.FunctionCall{Name: "echo", Arguments: `{"text": "a"}`},
		}}},
		{Role: api.RoleTool, ToolCallID: "call_1", Content: "echo: a"},
		{Role: api.RoleAssistant, Content: "done"},
	}

	items := ItemsFromMessages(messages)
	require.Len(t, items, 4)
	assert.Equal(t, api.ItemTypeMessage, items[0].Type)
	assert.Equal(t, api.ItemTypeFunctionCall, items[1].Type)
	assert.Equal(t, "call_1", items[1].CallID)
	assert.Equal(t, api.ItemTypeFunctionCallOutput, items[2].Type)
	assert.Equal(t, "echo: a", items[2].Output)
	assert.Equal(t, api.ItemTypeMessage, items[3].Type)

	back := MessagesFromItems(items)
	require.Len(t, back, 4)
	assert.Equal(t, "call_1", back[1].ToolCalls[0].ID)
	assert.Equal(t, "echo: a", back[2].Content)
}

func TestItemsFromMessagesImageParts(t *testing.T) {
	messages := []api.Message{
		{Role: api.RoleAssistant, Content: []api.MessagePart{
			{Type: "image_url", ImageURL: &api.ImageURL{URL: "data:image/png;base64,AAAA"}},
		}},
	}

	items := ItemsFromMessages(messages)
	require.Len(t, items, 1)
	parts, ok := items[0].Content.([]api.ContentPart)
	require.True(t, ok)
	require.Len(t, parts, 1)
	assert.Equal(t, api.PartTypeOutputImage, parts[0].Type)
	assert.Equal(t, "data:image/png;base64,AAAA", parts[0].ImageURL)
}

func TestItemsFromMessagesSkipsEmptyContent(t *testing.T) {
	messages := []api.Message{
		{Role: api.RoleAssistant, Content: "", ToolCalls: []api.ToolCall{{
			ID:       "call_1",
			Function: api.FunctionCall{Name: "echo", Arguments: `{}`},
		}}},
	}

	items := ItemsFromMessages(messages)
	require.Len(t, items, 1)
	assert.Equal(t, api.ItemTypeFunctionCall, items[0].Type)
}
