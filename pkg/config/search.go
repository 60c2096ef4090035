package config

import (
	"fmt"
	"strings"
)

// SearchConfig configures hybrid ranking and the agentic retrieval loop.
type SearchConfig struct {
	// Alpha weighs vector against lexical scores in hybrid fusion:
	// fused = alpha*vector + (1-alpha)*lexical.
	// Default: 0.7
	Alpha float64 `yaml:"alpha,omitempty" json:"alpha,omitempty" jsonschema:"title=Alpha,description=Vector weight in hybrid fusion,minimum=0,maximum=1,default=0.7"`

	// ScoreThreshold drops vector results at or below this similarity.
	// Default: 0.07
	ScoreThreshold float64 `yaml:"score_threshold,omitempty" json:"score_threshold,omitempty" jsonschema:"title=Score Threshold,description=Minimum similarity score (strictly greater retained),default=0.07"`

	// MaxResults is the default result cap for search requests that do
	// not specify one.
	// Default: 10
	MaxResults int `yaml:"max_results,omitempty" json:"max_results,omitempty" jsonschema:"title=Max Results,description=Default result cap,minimum=1,default=10"`

	// MaxIterations bounds the agentic search loop.
	// Default: 5
	MaxIterations int `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty" jsonschema:"title=Max Iterations,description=Agentic loop iteration cap,minimum=1,default=5"`

	// AgenticModel selects the model driving the agentic loop, in
	// "provider@model" form or a bare model on the default provider.
	// Empty uses the default provider's default model.
	AgenticModel string `yaml:"agentic_model,omitempty" json:"agentic_model,omitempty" jsonschema:"title=Agentic Model,description=Model for the agentic loop (provider@model)"`
}

// SetDefaults applies default values.
func (c *SearchConfig) SetDefaults() {
	if c.Alpha == 0 {
		c.Alpha = 0.7
	}
	if c.ScoreThreshold == 0 {
		c.ScoreThreshold = 0.07
	}
	if c.MaxResults == 0 {
		c.MaxResults = 10
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = 5
	}
}

// Validate checks the search configuration.
func (c *SearchConfig) Validate() error {
	if c.Alpha < 0 || c.Alpha > 1 {
		return fmt.Errorf("alpha must be between 0 and 1, got %v", c.Alpha)
	}
	if c.ScoreThreshold < 0 {
		return fmt.Errorf("score_threshold must be non-negative")
	}
	if c.MaxResults < 1 {
		return fmt.Errorf("max_results must be positive")
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be positive")
	}
	if strings.HasPrefix(c.AgenticModel, "@") || strings.HasSuffix(c.AgenticModel, "@") {
		return fmt.Errorf("agentic_model %q is malformed (want provider@model)", c.AgenticModel)
	}
	return nil
}
