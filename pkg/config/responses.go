package config

import (
	"fmt"
	"os"
	"strconv"
)

// EnvMaxToolCalls overrides the tool-call limit when set to a positive
// integer.
const EnvMaxToolCalls = "OPEN_RESPONSES_MAX_TOOL_CALLS"

// ResponsesConfig configures the tool-call loop.
type ResponsesConfig struct {
	// MaxToolCalls caps assistant tool-call turns within one request.
	// The OPEN_RESPONSES_MAX_TOOL_CALLS environment variable wins over
	// this value.
	// Default: 10
	MaxToolCalls int `yaml:"max_tool_calls,omitempty" json:"max_tool_calls,omitempty" jsonschema:"title=Max Tool Calls,description=Tool-call turns allowed per request,minimum=1,default=10"`
}

// SetDefaults applies default values.
func (c *ResponsesConfig) SetDefaults() {
	if c.MaxToolCalls == 0 {
		c.MaxToolCalls = 10
	}
}

// Validate checks the responses configuration.
func (c *ResponsesConfig) Validate() error {
	if c.MaxToolCalls < 1 {
		return fmt.Errorf("max_tool_calls must be positive")
	}
	return nil
}

// EffectiveMaxToolCalls resolves the limit, letting the environment win.
// Non-numeric or non-positive environment values are ignored.
func (c *ResponsesConfig) EffectiveMaxToolCalls() int {
	if raw := os.Getenv(EnvMaxToolCalls); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	if c.MaxToolCalls > 0 {
		return c.MaxToolCalls
	}
	return 10
}
