package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openresponses/openresponses/pkg/config"
)

// ValidateCmd loads a config source and reports whether it passes the full
// processing pipeline: defaults, per-section validation, and cross-section
// reference checks.
type ValidateCmd struct {
	Print bool `short:"p" help:"Print the effective configuration (defaults applied) as YAML."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	if cli.Config == "" {
		return fmt.Errorf("--config is required for validate")
	}

	cfg, err := config.LoadFromPath(cli.Config)
	if err != nil {
		return err
	}

	if c.Print {
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		if err := encoder.Encode(cfg); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		return encoder.Close()
	}

	providers := make([]string, 0, len(cfg.LLM.Providers))
	for name := range cfg.LLM.Providers {
		providers = append(providers, name)
	}
	sort.Strings(providers)

	fmt.Println("Configuration is valid.")
	fmt.Printf("  server:    %s\n", cfg.Server.Address())
	fmt.Printf("  providers: %s (default: %s)\n", strings.Join(providers, ", "), cfg.LLM.DefaultProvider)
	fmt.Printf("  embedder:  %s/%s\n", cfg.Embedder.Type, cfg.Embedder.Model)
	fmt.Printf("  vector:    %s\n", cfg.Vector.Provider)
	fmt.Printf("  lexical:   %v\n", cfg.Lexical.IsEnabled())
	fmt.Printf("  store:     %s\n", cfg.Store.Backend)
	if len(cfg.Tools.MCPServers) > 0 {
		fmt.Printf("  mcp:       %d server(s)\n", len(cfg.Tools.MCPServers))
	}
	return nil
}
