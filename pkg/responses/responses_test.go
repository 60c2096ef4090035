package responses

import (
	"context"
	"fmt"

	"github.com/openresponses/openresponses/pkg/api"
	"github.com/openresponses/openresponses/pkg/config"
	"github.com/openresponses/openresponses/pkg/llms"
	"github.com/openresponses/openresponses/pkg/store"
	"github.com/openresponses/openresponses/pkg/tools"
)

// scriptClient plays back a scripted sequence of completions or chunk
// streams, one per upstream call. The last entry repeats.
type scriptClient struct {
	completions []*api.ModelCompletion
	streams     [][]api.CompletionChunk
	streamErr   error
	calls       int
}

func (c *scriptClient) Complete(_ context.Context, _ api.CompletionParams) (*api.ModelCompletion, error) {
	if len(c.completions) == 0 {
		return nil, fmt.Errorf("no scripted completion")
	}
	i := c.calls
	if i >= len(c.completions) {
		i = len(c.completions) - 1
	}
	c.calls++
	return c.completions[i], nil
}

func (c *scriptClient) Stream(_ context.Context, _ api.CompletionParams) (<-chan api.CompletionChunk, <-chan error) {
	chunks := make(chan api.CompletionChunk, 16)
	errs := make(chan error, 1)

	var script []api.CompletionChunk
	if len(c.streams) > 0 {
		i := c.calls
		if i >= len(c.streams) {
			i = len(c.streams) - 1
		}
		script = c.streams[i]
	}
	c.calls++

	for _, chunk := range script {
		chunks <- chunk
	}
	close(chunks)
	if c.streamErr != nil {
		errs <- c.streamErr
	}
	close(errs)
	return chunks, errs
}

func (c *scriptClient) Model() string { return "stub-model" }
func (c *scriptClient) Close() error  { return nil }

// recordingSink collects every event written to it.
type recordingSink struct {
	events []sinkEvent
	done   bool
}

type sinkEvent struct {
	name    string
	payload interface{}
}

func (s *recordingSink) Event(name string, payload interface{}) error {
	s.events = append(s.events, sinkEvent{name: name, payload: payload})
	return nil
}

func (s *recordingSink) Done() error {
	s.done = true
	return nil
}

func (s *recordingSink) named(name string) []sinkEvent {
	var out []sinkEvent
	for _, e := range s.events {
		if e.name == name {
			out = append(out, e)
		}
	}
	return out
}

func newTestOrchestrator(client llms.Client, reg *tools.Registry, st store.Store) *Orchestrator {
	models := llms.NewRegistry("stub")
	if err := models.Register("stub", client); err != nil {
		panic(err)
	}
	if reg == nil {
		reg = tools.NewRegistry()
	}
	return New(models, reg, st, config.ResponsesConfig{MaxToolCalls: 10})
}

func assistantCompletion(id, content string) *api.ModelCompletion {
	return &api.ModelCompletion{
		ID:      id,
		Model:   "stub-model",
		Created: 1700000000,
		Choices: []api.Choice{{
			Message:      api.Message{Role: api.RoleAssistant, Content: content},
			FinishReason: api.FinishReasonStop,
		}},
	}
}

func toolCallCompletion(id, tool, arguments string) *api.ModelCompletion {
	return &api.ModelCompletion{
		ID:    id,
		Model: "stub-model",
		Choices: []api.Choice{{
			Message: api.Message{
				Role:    api.RoleAssistant,
				Content: "",
				ToolCalls: []api.ToolCall{{
					ID:       "call_" + tool,
					Type:     "function",
					Function: api.FunctionCall{Name: tool, Arguments: arguments},
				}},
			},
			FinishReason: api.FinishReasonToolCalls,
		}},
	}
}

func echoTool() *tools.Tool {
	return &tools.Tool{
		Name:        "echo",
		Description: "repeats its input",
		Variant:     tools.VariantNative,
		Parameters:  map[string]interface{}{"type": "object"},
		Handler: func(_ context.Context, inv tools.Invocation) (string, error) {
			text, _ := inv.Args["text"].(string)
			return "echo: " + text, nil
		},
	}
}

func boolPtr(b bool) *bool { return &b }
func intPtr(n int) *int    { return &n }
