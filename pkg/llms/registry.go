package llms

import (
	"context"
	"fmt"
	"strings"

	"github.com/openresponses/openresponses/pkg/api"
	"github.com/openresponses/openresponses/pkg/config"
	"github.com/openresponses/openresponses/pkg/registry"
)

// Registry holds the configured provider clients and resolves the
// "provider@model" references requests use.
type Registry struct {
	*registry.BaseRegistry[Client]
	defaultProvider string
}

// NewRegistry creates an empty registry with the given default provider.
func NewRegistry(defaultProvider string) *Registry {
	return &Registry{
		BaseRegistry:    registry.NewBaseRegistry[Client](),
		defaultProvider: defaultProvider,
	}
}

// NewRegistryFromConfig builds one client per configured provider.
func NewRegistryFromConfig(ctx context.Context, cfg *config.LLMConfig) (*Registry, error) {
	r := NewRegistry(cfg.DefaultProvider)
	for name, provider := range cfg.Providers {
		client, err := NewClient(ctx, provider)
		if err != nil {
			return nil, fmt.Errorf("creating provider %q: %w", name, err)
		}
		if err := r.Register(name, client); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewClient creates a client for one provider config.
func NewClient(ctx context.Context, cfg *config.LLMProviderConfig) (Client, error) {
	switch cfg.Type {
	case config.LLMProviderOpenAI:
		return NewOpenAIClient(cfg), nil
	case config.LLMProviderAnthropic:
		return NewAnthropicClient(cfg), nil
	case config.LLMProviderGemini:
		return NewGeminiClient(ctx, cfg)
	case config.LLMProviderOllama:
		return NewOllamaClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q (supported: openai, anthropic, gemini, ollama)", cfg.Type)
	}
}

// Resolve maps a model reference to its provider client and the bare model
// name. "anthropic@claude-sonnet-4-5" selects the anthropic provider; a
// reference without "@" uses the default provider. An empty bare model
// falls back to the client's configured default.
func (r *Registry) Resolve(modelRef string) (Client, string, error) {
	provider := r.defaultProvider
	model := modelRef
	if at := strings.Index(modelRef, "@"); at >= 0 {
		provider = modelRef[:at]
		model = modelRef[at+1:]
	}

	client, ok := r.Get(provider)
	if !ok {
		return nil, "", api.InvalidArgumentf("unknown model provider %q", provider)
	}
	if model == "" {
		model = client.Model()
	}
	return client, model, nil
}

// Close closes every registered client.
func (r *Registry) Close() error {
	var firstErr error
	for _, client := range r.List() {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
