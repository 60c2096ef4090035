// Package tools holds the tool registry the response orchestrators route
// through. Tools are registered once at startup; requests get a scoped view
// built from their own tool list so that aliases resolve per request.
package tools

import (
	"context"
	"encoding/json"

	"github.com/go-viper/mapstructure/v2"
	"github.com/invopop/jsonschema"

	"github.com/openresponses/openresponses/pkg/api"
	"github.com/openresponses/openresponses/pkg/llms"
	"github.com/openresponses/openresponses/pkg/search"
)

// Variant classifies how a tool call is handled.
type Variant string

const (
	// VariantNative tools run in-process; their handler output becomes a
	// tool message and the loop continues.
	VariantNative Variant = "native"

	// VariantRemote tools are executed by the caller; the loop stops and
	// reports the unresolved call.
	VariantRemote Variant = "remote"

	// VariantTerminal tools end the loop; their output becomes the final
	// assistant message.
	VariantTerminal Variant = "terminal"
)

// Invocation carries everything a handler may need for one tool call.
type Invocation struct {
	// Args are the decoded tool-call arguments.
	Args map[string]interface{}

	// Request is the originating response request.
	Request *api.ResponseCreateRequest

	// Client is the upstream client serving the request.
	Client llms.Client

	// Emitter receives progress events. May be nil.
	Emitter search.Emitter

	// Metadata is the request metadata, if any.
	Metadata map[string]string
}

// Handler executes one tool call. The returned string becomes the tool
// message content; errors are reported to the model the same way.
type Handler func(ctx context.Context, inv Invocation) (string, error)

// Tool is one registered tool. Remote tools carry no handler.
type Tool struct {
	Name        string
	Description string
	Variant     Variant
	Aliases     []string
	Parameters  map[string]interface{}
	Handler     Handler
}

// FunctionTool renders the tool in the chat-completions tool shape.
func (t *Tool) FunctionTool() api.FunctionTool {
	return api.FunctionTool{
		Type: api.ToolTypeFunction,
		Function: api.FunctionSpec{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		},
	}
}

// SchemaFor reflects a JSON schema from an args struct. Struct fields use
// json tags for names and jsonschema tags for required/description.
func SchemaFor(v interface{}) map[string]interface{} {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(v)

	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]interface{}{"type": "object"}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]interface{}{"type": "object"}
	}
	delete(m, "$schema")
	delete(m, "$id")
	return m
}

// DecodeArgs maps raw tool-call arguments onto a typed args struct.
func DecodeArgs(args map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(args)
}
