package responses

import (
	"sort"

	"github.com/openresponses/openresponses/pkg/api"
)

// Reassemble folds a stream of chunks back into one logical completion.
// Identity fields keep the first non-empty value, content deltas concatenate
// per choice, tool-call deltas concatenate per (choice index, tool-call
// index), finish_reason keeps the last non-empty value, and usage comes from
// whichever chunk carries it. Returns nil when no choice can be recovered.
func Reassemble(chunks []api.CompletionChunk) *api.ModelCompletion {
	if len(chunks) == 0 {
		return nil
	}

	completion := &api.ModelCompletion{Object: api.ObjectCompletion}
	choices := make(map[int]*choiceState)

	for _, chunk := range chunks {
		if completion.ID == "" {
			completion.ID = chunk.ID
		}
		if completion.Model == "" {
			completion.Model = chunk.Model
		}
		if completion.Created == 0 {
			completion.Created = chunk.Created
		}
		if chunk.Usage != nil {
			completion.Usage = chunk.Usage
		}

		for _, sc := range chunk.Choices {
			state := choices[sc.Index]
			if state == nil {
				state = &choiceState{index: sc.Index, toolCalls: make(map[int]*api.ToolCall)}
				choices[sc.Index] = state
			}
			state.fold(sc)
		}
	}

	if len(choices) == 0 {
		return nil
	}

	indexes := make([]int, 0, len(choices))
	for idx := range choices {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	for _, idx := range indexes {
		completion.Choices = append(completion.Choices, choices[idx].choice())
	}
	return completion
}

type choiceState struct {
	index        int
	role         string
	content      string
	finishReason string
	toolCalls    map[int]*api.ToolCall
	toolOrder    []int
}

func (s *choiceState) fold(sc api.StreamChoice) {
	if s.role == "" {
		s.role = sc.Delta.Role
	}
	s.content += sc.Delta.Content
	if sc.FinishReason != "" {
		s.finishReason = sc.FinishReason
	}

	for _, tc := range sc.Delta.ToolCalls {
		key := 0
		if tc.Index != nil {
			key = *tc.Index
		}
		acc := s.toolCalls[key]
		if acc == nil {
			acc = &api.ToolCall{}
			s.toolCalls[key] = acc
			s.toolOrder = append(s.toolOrder, key)
		}
		if acc.ID == "" {
			acc.ID = tc.ID
		}
		if acc.Type == "" {
			acc.Type = tc.Type
		}
		if acc.Function.Name == "" {
			acc.Function.Name = tc.Function.Name
		}
		acc.Function.Arguments += tc.Function.Arguments
	}
}

func (s *choiceState) choice() api.Choice {
	role := s.role
	if role == "" {
		role = api.RoleAssistant
	}
	msg := api.Message{Role: role, Content: s.content}

	sort.Ints(s.toolOrder)
	for _, key := range s.toolOrder {
		msg.ToolCalls = append(msg.ToolCalls, *s.toolCalls[key])
	}

	return api.Choice{Index: s.index, Message: msg, FinishReason: s.finishReason}
}
