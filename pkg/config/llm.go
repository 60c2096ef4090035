package config

import (
	"fmt"
	"os"
)

// LLMProvider identifies the upstream chat-completion provider type.
type LLMProvider string

const (
	LLMProviderOpenAI    LLMProvider = "openai"
	LLMProviderAnthropic LLMProvider = "anthropic"
	LLMProviderGemini    LLMProvider = "gemini"
	LLMProviderOllama    LLMProvider = "ollama"
)

// LLMConfig configures the set of upstream providers.
type LLMConfig struct {
	// DefaultProvider names the provider used when a request's model does
	// not carry a "provider@" prefix.
	// Default: "openai"
	DefaultProvider string `yaml:"default_provider,omitempty" json:"default_provider,omitempty" jsonschema:"title=Default Provider,description=Provider used when the model has no provider prefix"`

	// Providers maps provider names to their configuration.
	Providers map[string]*LLMProviderConfig `yaml:"providers,omitempty" json:"providers,omitempty" jsonschema:"title=Providers,description=Named upstream providers"`
}

// LLMProviderConfig configures one upstream provider.
type LLMProviderConfig struct {
	// Type of the provider (openai, anthropic, gemini, ollama).
	// Defaults to the provider's name when the name is a known type.
	Type LLMProvider `yaml:"type,omitempty" json:"type,omitempty" jsonschema:"title=Type,description=Provider type,enum=openai,enum=anthropic,enum=gemini,enum=ollama,default=openai"`

	// Model is the default model for this provider (e.g. "gpt-4o").
	Model string `yaml:"model,omitempty" json:"model,omitempty" jsonschema:"title=Model,description=Default model identifier"`

	// APIKey for authentication. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty" jsonschema:"title=API Key,description=API key for authentication (use ${ENV_VAR})"`

	// BaseURL overrides the default API endpoint.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty" jsonschema:"title=Base URL,description=Custom base URL for the API endpoint"`

	// Temperature for generation.
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty" jsonschema:"title=Temperature,description=Sampling temperature,minimum=0,maximum=2,default=0.7"`

	// MaxTokens limits response length.
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty" jsonschema:"title=Max Tokens,description=Maximum tokens to generate,minimum=1,default=4096"`

	// TimeoutSeconds bounds a single upstream request.
	// Default: 120
	TimeoutSeconds int `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"title=Timeout,description=Request timeout in seconds,minimum=1,default=120"`

	// MaxRetries caps retry attempts for retryable upstream failures.
	// Default: 2
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty" jsonschema:"title=Max Retries,description=Maximum retry attempts,minimum=0,default=2"`
}

// SetDefaults applies default values. A missing providers map gets a single
// entry for the default provider, keyed from the environment.
func (c *LLMConfig) SetDefaults() {
	if c.DefaultProvider == "" {
		c.DefaultProvider = string(LLMProviderOpenAI)
	}
	if len(c.Providers) == 0 {
		c.Providers = map[string]*LLMProviderConfig{
			c.DefaultProvider: {},
		}
	}
	for name, provider := range c.Providers {
		if provider == nil {
			provider = &LLMProviderConfig{}
			c.Providers[name] = provider
		}
		if provider.Type == "" {
			if knownProviderType(name) {
				provider.Type = LLMProvider(name)
			} else {
				provider.Type = LLMProviderOpenAI
			}
		}
		provider.SetDefaults()
	}
}

// Validate checks every declared provider.
func (c *LLMConfig) Validate() error {
	for name, provider := range c.Providers {
		if provider == nil {
			return fmt.Errorf("provider %q is empty", name)
		}
		if err := provider.Validate(); err != nil {
			return fmt.Errorf("provider %q: %w", name, err)
		}
	}
	return nil
}

// SetDefaults applies default values for one provider.
func (c *LLMProviderConfig) SetDefaults() {
	if c.Model == "" {
		switch c.Type {
		case LLMProviderOpenAI:
			c.Model = "gpt-4o"
		case LLMProviderAnthropic:
			c.Model = "claude-sonnet-4-20250514"
		case LLMProviderGemini:
			c.Model = "gemini-2.0-flash"
		case LLMProviderOllama:
			c.Model = "llama3.2"
		}
	}
	if c.APIKey == "" {
		c.APIKey = apiKeyFromEnv(c.Type)
	}
	if c.BaseURL == "" && c.Type == LLMProviderOllama {
		c.BaseURL = "http://localhost:11434"
	}
	if c.Temperature == nil {
		temp := 0.7
		c.Temperature = &temp
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 120
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
}

// Validate checks one provider's configuration.
func (c *LLMProviderConfig) Validate() error {
	validTypes := map[LLMProvider]bool{
		LLMProviderOpenAI:    true,
		LLMProviderAnthropic: true,
		LLMProviderGemini:    true,
		LLMProviderOllama:    true,
	}
	if !validTypes[c.Type] {
		return fmt.Errorf("invalid type %q (valid: openai, anthropic, gemini, ollama)", c.Type)
	}

	// Ollama doesn't require an API key.
	if c.Type != LLMProviderOllama && c.APIKey == "" {
		return fmt.Errorf("api_key is required for type %q", c.Type)
	}

	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative")
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	return nil
}

func knownProviderType(name string) bool {
	switch LLMProvider(name) {
	case LLMProviderOpenAI, LLMProviderAnthropic, LLMProviderGemini, LLMProviderOllama:
		return true
	}
	return false
}

// apiKeyFromEnv returns the conventional environment key for a provider.
func apiKeyFromEnv(provider LLMProvider) string {
	switch provider {
	case LLMProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case LLMProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case LLMProviderGemini:
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	default:
		return ""
	}
}
