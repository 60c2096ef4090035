package responses

import (
	"github.com/openresponses/openresponses/pkg/api"
)

// MessagesFromItems converts an ordered item list into chat messages.
// Consecutive function_call items fold into one assistant turn so tool
// results still follow the assistant message that requested them.
// Reasoning items have no chat-completion slot and are dropped.
func MessagesFromItems(items []api.InputItem) []api.Message {
	out := make([]api.Message, 0, len(items))
	for i := 0; i < len(items); i++ {
		it := items[i]
		switch it.Type {
		case "", api.ItemTypeMessage:
			role := it.Role
			if role == "" {
				role = api.RoleUser
			}
			out = append(out, api.Message{Role: role, Content: messageContent(it)})
		case api.ItemTypeFunctionCall:
			calls := []api.ToolCall{toolCallFromItem(it)}
			for i+1 < len(items) && items[i+1].Type == api.ItemTypeFunctionCall {
				i++
				calls = append(calls, toolCallFromItem(items[i]))
			}
			out = append(out, api.Message{Role: api.RoleAssistant, Content: "", ToolCalls: calls})
		case api.ItemTypeFunctionCallOutput:
			out = append(out, api.Message{Role: api.RoleTool, ToolCallID: it.CallID, Content: it.Output})
		}
	}
	return out
}

func toolCallFromItem(it api.InputItem) api.ToolCall {
	id := it.CallID
	if id == "" {
		id = it.ID
	}
	return api.ToolCall{
		ID:       id,
		Type:     "function",
		Function: api.FunctionCall{Name: it.Name, Arguments: it.Arguments},
	}
}

func messageContent(it api.InputItem) interface{} {
	if s, ok := it.Content.(string); ok {
		return s
	}
	parts := it.ContentParts()
	if len(parts) == 0 {
		return api.ContentText(it.Content)
	}
	mp := make([]api.MessagePart, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case api.PartTypeInputImage, api.PartTypeOutputImage:
			mp = append(mp, api.MessagePart{
				Type:     "image_url",
				ImageURL: &api.ImageURL{URL: p.ImageURL, Detail: p.Detail},
			})
		default:
			mp = append(mp, api.MessagePart{Type: "text", Text: p.Text})
		}
	}
	return mp
}

// ItemsFromMessages converts a chat transcript into items for storage. The
// inverse of MessagesFromItems up to message grouping.
func ItemsFromMessages(messages []api.Message) []api.InputItem {
	var items []api.InputItem
	for _, m := range messages {
		if m.Role == api.RoleTool {
			items = append(items, api.InputItem{
				Type:   api.ItemTypeFunctionCallOutput,
				CallID: m.ToolCallID,
				Output: api.ContentText(m.Content),
			})
			continue
		}
		if content := itemContent(m); content != nil {
			items = append(items, api.InputItem{
				Type:    api.ItemTypeMessage,
				Role:    m.Role,
				Content: content,
			})
		}
		for _, tc := range m.ToolCalls {
			items = append(items, api.InputItem{
				Type:      api.ItemTypeFunctionCall,
				CallID:    tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}
	return items
}

func itemContent(m api.Message) interface{} {
	switch v := m.Content.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return v
	case []api.MessagePart:
		parts := make([]api.ContentPart, 0, len(v))
		for _, p := range v {
			if p.Type == "image_url" && p.ImageURL != nil {
				t := api.PartTypeInputImage
				if m.Role == api.RoleAssistant {
					t = api.PartTypeOutputImage
				}
				parts = append(parts, api.ContentPart{Type: t, ImageURL: p.ImageURL.URL, Detail: p.ImageURL.Detail})
				continue
			}
			if p.Text != "" {
				t := api.PartTypeInputText
				if m.Role == api.RoleAssistant {
					t = api.PartTypeOutputText
				}
				parts = append(parts, api.ContentPart{Type: t, Text: p.Text})
			}
		}
		if len(parts) == 0 {
			return nil
		}
		return parts
	default:
		if text := api.ContentText(m.Content); text != "" {
			return text
		}
		return nil
	}
}
