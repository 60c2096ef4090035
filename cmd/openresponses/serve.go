package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/openresponses/openresponses/pkg/config"
	"github.com/openresponses/openresponses/pkg/embedders"
	"github.com/openresponses/openresponses/pkg/lexical"
	"github.com/openresponses/openresponses/pkg/llms"
	"github.com/openresponses/openresponses/pkg/logger"
	"github.com/openresponses/openresponses/pkg/observability"
	"github.com/openresponses/openresponses/pkg/rag"
	"github.com/openresponses/openresponses/pkg/responses"
	"github.com/openresponses/openresponses/pkg/search"
	"github.com/openresponses/openresponses/pkg/server"
	"github.com/openresponses/openresponses/pkg/store"
	"github.com/openresponses/openresponses/pkg/tools"
	"github.com/openresponses/openresponses/pkg/vector"
)

// ServeCmd starts the response server.
type ServeCmd struct {
	Port  int  `help:"Override the configured listen port."`
	Watch bool `help:"Watch the config source for changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, loader, err := c.loadConfig(cli)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Stop()
	}

	applyConfigLogging(cli, cfg)

	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	var obs *observability.Manager
	if cfg.Observability != nil {
		obs = observability.NewManager(*cfg.Observability)
		if err := obs.Initialize(ctx); err != nil {
			return fmt.Errorf("initializing observability: %w", err)
		}
		defer func() {
			if err := obs.Shutdown(context.Background()); err != nil {
				slog.Warn("observability shutdown failed", "error", err)
			}
		}()
	}

	models, err := llms.NewRegistryFromConfig(ctx, &cfg.LLM)
	if err != nil {
		return fmt.Errorf("creating llm providers: %w", err)
	}
	defer models.Close()

	embedder, err := embedders.NewEmbedder(&cfg.Embedder)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	defer embedder.Close()

	provider, err := vector.NewProvider(&cfg.Vector)
	if err != nil {
		return fmt.Errorf("creating vector provider: %w", err)
	}

	var keyword vector.Keyword
	var lexLeg search.LexicalSearcher
	if cfg.Lexical.IsEnabled() {
		idx, err := lexical.Open(cfg.Lexical.Path)
		if err != nil {
			return fmt.Errorf("opening lexical index: %w", err)
		}
		defer idx.Close()
		keyword = idx
		lexLeg = idx
	}

	chunker, err := rag.NewChunker(rag.DefaultChunkingStrategy(), embedder.GetModelName())
	if err != nil {
		return fmt.Errorf("creating chunker: %w", err)
	}

	indexer := vector.NewIndexer(provider, keyword, embedder, chunker, cfg.Search.ScoreThreshold)
	hybrid := search.NewHybrid(indexer, lexLeg, cfg.Search.Alpha)

	registry := tools.NewRegistry()
	if err := registry.RegisterTool(tools.NewFileSearch(hybrid, models, cfg.Search)); err != nil {
		return err
	}
	if imgCfg := cfg.LLM.Providers[cfg.LLM.DefaultProvider]; imgCfg != nil && imgCfg.Type == config.LLMProviderOpenAI {
		if err := registry.RegisterTool(tools.NewImageGeneration(imgCfg, "")); err != nil {
			return err
		}
	}
	for _, serverCfg := range cfg.Tools.MCPServers {
		src, err := tools.ConnectMCP(ctx, serverCfg)
		if err != nil {
			slog.Warn("connecting mcp server failed", "name", serverCfg.Name, "error", err)
			continue
		}
		defer src.Close()
		if err := src.RegisterTools(ctx, registry); err != nil {
			slog.Warn("registering mcp tools failed", "name", serverCfg.Name, "error", err)
		}
	}

	st, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	defer st.Close()

	orchestrator := responses.New(models, registry, st, cfg.Responses)

	srv, err := server.New(server.Options{
		Config:        cfg.Server,
		SearchConfig:  cfg.Search,
		Orchestrator:  orchestrator,
		Store:         st,
		Indexer:       indexer,
		Hybrid:        hybrid,
		Observability: obs,
	})
	if err != nil {
		return err
	}

	slog.Info("server ready",
		"addr", cfg.Server.Address(),
		"provider", cfg.LLM.DefaultProvider,
		"vector", cfg.Vector.Provider,
		"store", cfg.Store.Backend,
	)
	fmt.Printf("\nListening on http://%s\n", cfg.Server.Address())
	fmt.Printf("  POST /v1/responses\n")
	fmt.Printf("  POST /v1/vector_stores\n")
	fmt.Printf("  GET  /healthz\n")
	fmt.Println("\nPress Ctrl+C to stop")

	return srv.Run(ctx)
}

// loadConfig loads the configured source, or falls back to the built-in
// defaults when none is given.
func (c *ServeCmd) loadConfig(cli *CLI) (*config.Config, *config.Loader, error) {
	if cli.Config == "" {
		slog.Info("no config source given, using defaults")
		return config.Default(), nil, nil
	}

	opts := config.ResolveSource(cli.Config)
	opts.Watch = c.Watch
	if c.Watch {
		opts.OnChange = func(*config.Config) error {
			slog.Info("configuration changed; restart to apply")
			return nil
		}
	}

	cfg, loader, err := config.LoadConfigWithLoader(opts)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("configuration loaded", "source", cli.Config)
	return cfg, loader, nil
}

// applyConfigLogging re-initializes the logger from the config file's
// logging section when every CLI logging flag was left at its default.
func applyConfigLogging(cli *CLI, cfg *config.Config) {
	if cli.LogLevel != "info" || cli.LogFormat != "simple" || cli.LogFile != "" {
		return
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return
	}

	output := os.Stderr
	if cfg.Logging.File != "" {
		file, _, err := logger.OpenLogFile(cfg.Logging.File)
		if err != nil {
			slog.Warn("opening configured log file failed", "path", cfg.Logging.File, "error", err)
		} else {
			output = file
		}
	}
	logger.Init(level, output, cfg.Logging.Format)
}
