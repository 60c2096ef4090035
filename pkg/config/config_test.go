package config

import (
	"strings"
	"testing"
)

// validConfig returns a config that passes the pipeline without relying on
// environment variables.
func validConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			DefaultProvider: "openai",
			Providers: map[string]*LLMProviderConfig{
				"openai": {Type: LLMProviderOpenAI, APIKey: "test-key"},
			},
		},
		Embedder: EmbedderConfig{Type: "ollama"},
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	if cfg.Server.Address() != "0.0.0.0:8080" {
		t.Errorf("expected default address 0.0.0.0:8080, got %s", cfg.Server.Address())
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Logging.Level)
	}
	if cfg.LLM.DefaultProvider != "openai" {
		t.Errorf("expected default provider openai, got %s", cfg.LLM.DefaultProvider)
	}
	if _, ok := cfg.LLM.Providers["openai"]; !ok {
		t.Error("expected an implicit openai provider entry")
	}
	if cfg.Embedder.Model != "text-embedding-3-small" {
		t.Errorf("expected default embedding model, got %s", cfg.Embedder.Model)
	}
	if cfg.Embedder.Dimension != 1536 {
		t.Errorf("expected default dimension 1536, got %d", cfg.Embedder.Dimension)
	}
	if cfg.Vector.Provider != VectorProviderChromem {
		t.Errorf("expected default vector provider chromem, got %s", cfg.Vector.Provider)
	}
	if cfg.Vector.Chromem == nil || cfg.Vector.Chromem.Path == "" {
		t.Error("expected chromem section with a default path")
	}
	if !cfg.Lexical.IsEnabled() {
		t.Error("expected lexical search enabled by default")
	}
	if cfg.Search.Alpha != 0.7 {
		t.Errorf("expected default alpha 0.7, got %f", cfg.Search.Alpha)
	}
	if cfg.Search.ScoreThreshold != 0.07 {
		t.Errorf("expected default score threshold 0.07, got %f", cfg.Search.ScoreThreshold)
	}
	if cfg.Search.MaxIterations != 5 {
		t.Errorf("expected default max iterations 5, got %d", cfg.Search.MaxIterations)
	}
	if cfg.Store.Backend != StoreBackendSQLite {
		t.Errorf("expected default store backend sqlite, got %s", cfg.Store.Backend)
	}
	if cfg.Responses.MaxToolCalls != 10 {
		t.Errorf("expected default max tool calls 10, got %d", cfg.Responses.MaxToolCalls)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg == nil {
		t.Fatal("expected a config")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
}

func TestProcessConfigPipeline_Nil(t *testing.T) {
	if _, err := ProcessConfigPipeline(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestProcessConfigPipeline_Valid(t *testing.T) {
	cfg, err := ProcessConfigPipeline(validConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Defaults must have been applied along the way.
	if cfg.LLM.Providers["openai"].Model != "gpt-4o" {
		t.Errorf("expected default model gpt-4o, got %s", cfg.LLM.Providers["openai"].Model)
	}
	if cfg.Embedder.Dimension != 768 {
		t.Errorf("expected ollama dimension 768, got %d", cfg.Embedder.Dimension)
	}
}

func TestProcessConfigPipeline_UndeclaredDefaultProvider(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.DefaultProvider = "missing"

	_, err := ProcessConfigPipeline(cfg)
	if err == nil {
		t.Fatal("expected error for undeclared default provider")
	}
	if !strings.Contains(err.Error(), "default_provider") {
		t.Errorf("expected default_provider in error, got: %v", err)
	}
}

func TestProcessConfigPipeline_AgenticModelProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Search.AgenticModel = "openai@gpt-4o-mini"
	if _, err := ProcessConfigPipeline(cfg); err != nil {
		t.Fatalf("declared provider prefix should pass: %v", err)
	}

	cfg = validConfig()
	cfg.Search.AgenticModel = "anthropic@claude-sonnet-4-20250514"
	_, err := ProcessConfigPipeline(cfg)
	if err == nil {
		t.Fatal("expected error for undeclared agentic_model provider")
	}
	if !strings.Contains(err.Error(), "agentic_model") {
		t.Errorf("expected agentic_model in error, got: %v", err)
	}
}

func TestConfig_Validate_SectionErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Server.Port = -1 },
			wantErr: "server:",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "logging:",
		},
		{
			name:    "invalid provider type",
			mutate:  func(c *Config) { c.LLM.Providers["openai"].Type = "cohere" },
			wantErr: "llm:",
		},
		{
			name:    "negative embedding dimension",
			mutate:  func(c *Config) { c.Embedder.Dimension = -5 },
			wantErr: "embedder:",
		},
		{
			name:    "unknown vector provider",
			mutate:  func(c *Config) { c.Vector.Provider = "weaviate" },
			wantErr: "vector:",
		},
		{
			name:    "alpha out of range",
			mutate:  func(c *Config) { c.Search.Alpha = 1.5 },
			wantErr: "search:",
		},
		{
			name:    "unknown store backend",
			mutate:  func(c *Config) { c.Store.Backend = "cassandra" },
			wantErr: "store:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.SetDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected %q in error, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestEffectiveMaxToolCalls(t *testing.T) {
	tests := []struct {
		name     string
		env      string
		config   int
		expected int
	}{
		{"config value", "", 25, 25},
		{"fallback when unset", "", 0, 10},
		{"env override wins", "7", 25, 7},
		{"non-numeric env ignored", "abc", 25, 25},
		{"non-positive env ignored", "0", 25, 25},
		{"negative env ignored", "-3", 25, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvMaxToolCalls, tt.env)

			cfg := ResponsesConfig{MaxToolCalls: tt.config}
			if got := cfg.EffectiveMaxToolCalls(); got != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}
