package api

import (
	"encoding/json"
	"fmt"
)

const (
	ItemTypeMessage            = "message"
	ItemTypeFunctionCall       = "function_call"
	ItemTypeFunctionCallOutput = "function_call_output"
	ItemTypeReasoning          = "reasoning"
)

const (
	PartTypeInputText   = "input_text"
	PartTypeInputImage  = "input_image"
	PartTypeOutputText  = "output_text"
	PartTypeOutputImage = "output_image"
)

const (
	ToolTypeFunction   = "function"
	ToolTypeFileSearch = "file_search"
)

// ResponseCreateRequest is the body of POST /v1/responses.
type ResponseCreateRequest struct {
	Input              Input             `json:"input"`
	Model              string            `json:"model"`
	Instructions       string            `json:"instructions,omitempty"`
	Temperature        *float64          `json:"temperature,omitempty"`
	TopP               *float64          `json:"top_p,omitempty"`
	MaxOutputTokens    *int              `json:"max_output_tokens,omitempty"`
	Reasoning          *ReasoningOptions `json:"reasoning,omitempty"`
	Truncation         string            `json:"truncation,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	Store              *bool             `json:"store,omitempty"`
	PreviousResponseID string            `json:"previous_response_id,omitempty"`
	Stream             bool              `json:"stream,omitempty"`
	Tools              []ToolSpec        `json:"tools,omitempty"`
	ToolChoice         interface{}       `json:"tool_choice,omitempty"`
	Include            []string          `json:"include,omitempty"`
}

type ReasoningOptions struct {
	Effort string `json:"effort,omitempty"`
}

// Input is either a plain text string or an ordered list of typed items.
type Input struct {
	Text  string
	Items []InputItem
}

func (in Input) IsText() bool { return in.Items == nil }

func (in *Input) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		in.Text = s
		in.Items = nil
		return nil
	}
	var items []InputItem
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("input must be a string or an array of items: %w", err)
	}
	in.Text = ""
	in.Items = items
	return nil
}

func (in Input) MarshalJSON() ([]byte, error) {
	if in.IsText() {
		return json.Marshal(in.Text)
	}
	return json.Marshal(in.Items)
}

// InputItem is the tagged item variant: message, function_call,
// function_call_output, or reasoning.
type InputItem struct {
	Type string `json:"type"`

	// message
	Role    string      `json:"role,omitempty"`
	Content interface{} `json:"content,omitempty"` // string or []ContentPart

	// function_call
	ID        string `json:"id,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// function_call_output
	Output string `json:"output,omitempty"`

	// reasoning
	Summary json.RawMessage `json:"summary,omitempty"`

	Status string `json:"status,omitempty"`
}

// ContentParts normalizes the item's content union into typed parts. A plain
// string becomes a single part whose type depends on the role.
func (it InputItem) ContentParts() []ContentPart {
	switch v := it.Content.(type) {
	case nil:
		return nil
	case string:
		t := PartTypeInputText
		if it.Role == RoleAssistant {
			t = PartTypeOutputText
		}
		return []ContentPart{{Type: t, Text: v}}
	case []ContentPart:
		return v
	case []interface{}:
		parts := make([]ContentPart, 0, len(v))
		for _, e := range v {
			raw, err := json.Marshal(e)
			if err != nil {
				continue
			}
			var p ContentPart
			if err := json.Unmarshal(raw, &p); err != nil {
				continue
			}
			parts = append(parts, p)
		}
		return parts
	default:
		return nil
	}
}

type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// ToolSpec is a tool entry in the request parameters. Function tools carry
// the flat responses-API shape; file_search entries carry their retrieval
// scope and ranking knobs.
type ToolSpec struct {
	Type string `json:"type"`

	// function
	Name        string                 `json:"name,omitempty"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
	Strict      *bool                  `json:"strict,omitempty"`

	// file_search
	VectorStoreIDs []string        `json:"vector_store_ids,omitempty"`
	MaxNumResults  *int            `json:"max_num_results,omitempty"`
	Filters        json.RawMessage `json:"filters,omitempty"`
	RankingOptions *RankingOptions `json:"ranking_options,omitempty"`
	MaxIterations  *int            `json:"max_iterations,omitempty"`
}

type RankingOptions struct {
	Ranker         string   `json:"ranker,omitempty"`
	ScoreThreshold *float64 `json:"score_threshold,omitempty"`
}

// FileSearchSpec returns the request's file_search tool entry, or nil.
func (r *ResponseCreateRequest) FileSearchSpec() *ToolSpec {
	for i := range r.Tools {
		if r.Tools[i].Type == ToolTypeFileSearch {
			return &r.Tools[i]
		}
	}
	return nil
}

// InputItems returns the request input as items, wrapping plain text in a
// single user message item.
func (r *ResponseCreateRequest) InputItems() []InputItem {
	if r.Input.IsText() {
		if r.Input.Text == "" {
			return nil
		}
		return []InputItem{{Type: ItemTypeMessage, Role: RoleUser, Content: r.Input.Text}}
	}
	return r.Input.Items
}
