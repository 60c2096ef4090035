// Package config defines the configuration tree for the response server and
// the loaders that populate it from files, stdin, or remote key-value stores.
//
// Every section follows the same contract: SetDefaults fills in zero values,
// Validate rejects inconsistent settings. ProcessConfigPipeline runs both over
// the whole tree and then checks cross-section references, so a *Config that
// came out of the pipeline is safe to hand to constructors.
package config

import (
	"fmt"
	"strings"

	"github.com/openresponses/openresponses/pkg/observability"
)

// Config is the root of the configuration tree.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server,omitempty"`

	// Logging configures the process-wide logger.
	Logging LoggingConfig `yaml:"logging,omitempty"`

	// LLM configures upstream chat-completion providers.
	LLM LLMConfig `yaml:"llm,omitempty"`

	// Embedder configures the embedding provider used for indexing and search.
	Embedder EmbedderConfig `yaml:"embedder,omitempty"`

	// Vector configures the vector store backend.
	Vector VectorConfig `yaml:"vector,omitempty"`

	// Lexical configures the BM25 keyword index.
	Lexical LexicalConfig `yaml:"lexical,omitempty"`

	// Search configures hybrid ranking and the agentic search loop.
	Search SearchConfig `yaml:"search,omitempty"`

	// Tools configures external tool sources (MCP servers).
	Tools ToolsConfig `yaml:"tools,omitempty"`

	// Store configures response and conversation persistence.
	Store StoreConfig `yaml:"store,omitempty"`

	// Responses configures the tool-call loop.
	Responses ResponsesConfig `yaml:"responses,omitempty"`

	// Observability configures tracing and metrics.
	Observability *observability.Config `yaml:"observability,omitempty"`
}

// SetDefaults applies default values to the whole tree.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Logging.SetDefaults()
	c.LLM.SetDefaults()
	c.Embedder.SetDefaults()
	c.Vector.SetDefaults()
	c.Lexical.SetDefaults()
	c.Search.SetDefaults()
	c.Tools.SetDefaults()
	c.Store.SetDefaults()
	c.Responses.SetDefaults()
	if c.Observability != nil {
		c.Observability.SetDefaults()
	}
}

// Validate checks every section of the tree.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Embedder.Validate(); err != nil {
		return fmt.Errorf("embedder: %w", err)
	}
	if err := c.Vector.Validate(); err != nil {
		return fmt.Errorf("vector: %w", err)
	}
	if err := c.Lexical.Validate(); err != nil {
		return fmt.Errorf("lexical: %w", err)
	}
	if err := c.Search.Validate(); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if err := c.Tools.Validate(); err != nil {
		return fmt.Errorf("tools: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Responses.Validate(); err != nil {
		return fmt.Errorf("responses: %w", err)
	}
	if c.Observability != nil {
		if err := c.Observability.Validate(); err != nil {
			return fmt.Errorf("observability: %w", err)
		}
	}
	return nil
}

// validateReferences checks that names used in one section are declared in
// another. Runs after SetDefaults so implicit declarations are visible.
func (c *Config) validateReferences() error {
	if _, ok := c.LLM.Providers[c.LLM.DefaultProvider]; !ok {
		return fmt.Errorf("llm: default_provider %q is not declared in llm.providers (declared: %s)",
			c.LLM.DefaultProvider, strings.Join(mapKeys(c.LLM.Providers), ", "))
	}

	// "provider@model" pins the agentic loop to a declared provider.
	if model := c.Search.AgenticModel; model != "" {
		if provider, _, ok := strings.Cut(model, "@"); ok {
			if _, declared := c.LLM.Providers[provider]; !declared {
				return fmt.Errorf("search: agentic_model references undeclared provider %q", provider)
			}
		}
	}

	return nil
}

// ProcessConfigPipeline applies defaults, validates every section, and then
// validates cross-section references. The returned config is ready for use.
func ProcessConfigPipeline(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if err := cfg.validateReferences(); err != nil {
		return nil, fmt.Errorf("reference validation failed: %w", err)
	}

	return cfg, nil
}

// Default returns a ready-to-run configuration: embedded vector store,
// on-disk SQLite persistence, OpenAI provider keyed from the environment.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

func mapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
