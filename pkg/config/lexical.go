package config

import "fmt"

// LexicalConfig configures the BM25 keyword index that backs the lexical
// half of hybrid search.
type LexicalConfig struct {
	// Enabled turns the keyword index on. When disabled, search runs
	// vector-only.
	// Default: true
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// Path is the index directory.
	// Default: ".openresponses/lexical.bleve"
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// SetDefaults applies default values.
func (c *LexicalConfig) SetDefaults() {
	if c.Enabled == nil {
		enabled := true
		c.Enabled = &enabled
	}
	if c.Path == "" {
		c.Path = ".openresponses/lexical.bleve"
	}
}

// Validate checks the lexical index configuration.
func (c *LexicalConfig) Validate() error {
	if c.IsEnabled() && c.Path == "" {
		return fmt.Errorf("path is required when the lexical index is enabled")
	}
	return nil
}

// IsEnabled returns whether the keyword index is on.
func (c *LexicalConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}
