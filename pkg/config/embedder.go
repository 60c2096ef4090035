package config

import "fmt"

// EmbedderConfig configures the embedding provider shared by indexing and
// search.
type EmbedderConfig struct {
	// Type of the provider: "openai" or "ollama".
	// Default: "openai"
	Type string `yaml:"type,omitempty" json:"type,omitempty" jsonschema:"title=Type,description=Embedder provider,enum=openai,enum=ollama,default=openai"`

	// Model name.
	// Default: "text-embedding-3-small" (openai), "nomic-embed-text" (ollama)
	Model string `yaml:"model,omitempty" json:"model,omitempty" jsonschema:"title=Model,description=Embedding model identifier"`

	// BaseURL overrides the default API endpoint.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty" jsonschema:"title=Base URL,description=Custom base URL for the API endpoint"`

	// APIKey for authentication. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty" jsonschema:"title=API Key,description=API key for authentication (use ${ENV_VAR})"`

	// Dimension of the produced vectors.
	// Default: 1536 (openai), 768 (ollama)
	Dimension int `yaml:"dimension,omitempty" json:"dimension,omitempty" jsonschema:"title=Dimension,description=Embedding vector dimension,minimum=1"`

	// TimeoutSeconds bounds one embedding request.
	// Default: 60
	TimeoutSeconds int `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"title=Timeout,description=Request timeout in seconds,minimum=1,default=60"`

	// MaxRetries caps retry attempts.
	// Default: 3
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty" jsonschema:"title=Max Retries,description=Maximum retry attempts,minimum=0,default=3"`

	// CacheSize is the number of embeddings kept in the in-process LRU
	// cache. Negative disables caching.
	// Default: 2048
	CacheSize int `yaml:"cache_size,omitempty" json:"cache_size,omitempty" jsonschema:"title=Cache Size,description=LRU embedding cache entries (negative disables),default=2048"`
}

// SetDefaults applies default values.
func (c *EmbedderConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "openai"
	}
	if c.Model == "" {
		switch c.Type {
		case "ollama":
			c.Model = "nomic-embed-text"
		default:
			c.Model = "text-embedding-3-small"
		}
	}
	if c.BaseURL == "" && c.Type == "ollama" {
		c.BaseURL = "http://localhost:11434"
	}
	if c.APIKey == "" && c.Type == "openai" {
		c.APIKey = GetProviderAPIKey("openai")
	}
	if c.Dimension == 0 {
		switch c.Type {
		case "ollama":
			c.Dimension = 768
		default:
			c.Dimension = 1536
		}
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 60
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.CacheSize == 0 {
		c.CacheSize = 2048
	}
}

// Validate checks the embedder configuration.
func (c *EmbedderConfig) Validate() error {
	validTypes := map[string]bool{
		"openai": true,
		"ollama": true,
	}
	if !validTypes[c.Type] {
		return fmt.Errorf("invalid type %q (valid: openai, ollama)", c.Type)
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Type == "openai" && c.APIKey == "" {
		return fmt.Errorf("api_key is required for type %q", c.Type)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("dimension must be positive")
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	return nil
}
