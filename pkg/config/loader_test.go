package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testConfigYAML = `
server:
  host: 127.0.0.1
  port: 9191
logging:
  level: debug
  format: json
llm:
  default_provider: openai
  providers:
    openai:
      type: openai
      model: gpt-4o-mini
      api_key: test-key
embedder:
  type: ollama
search:
  alpha: 0.5
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoader_File_Load(t *testing.T) {
	configFile := writeConfigFile(t, testConfigYAML)

	loader, err := NewLoader(LoaderOptions{
		Type: ConfigTypeFile,
		Path: configFile,
	})
	if err != nil {
		t.Fatalf("failed to create loader: %v", err)
	}
	defer loader.Stop()

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Port != 9191 {
		t.Errorf("expected port 9191, got %d", cfg.Server.Port)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected json log format, got %s", cfg.Logging.Format)
	}
	if cfg.LLM.Providers["openai"].Model != "gpt-4o-mini" {
		t.Errorf("expected model gpt-4o-mini, got %s", cfg.LLM.Providers["openai"].Model)
	}
	if cfg.Embedder.Dimension != 768 {
		t.Errorf("expected ollama default dimension 768, got %d", cfg.Embedder.Dimension)
	}
	if cfg.Search.Alpha != 0.5 {
		t.Errorf("expected alpha 0.5, got %f", cfg.Search.Alpha)
	}
}

func TestLoader_File_NotFound(t *testing.T) {
	loader, err := NewLoader(LoaderOptions{
		Type: ConfigTypeFile,
		Path: "/nonexistent/config.yaml",
	})
	if err != nil {
		t.Fatalf("failed to create loader: %v", err)
	}
	defer loader.Stop()

	if _, err := loader.Load(); err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestLoader_File_InvalidYAML(t *testing.T) {
	configFile := writeConfigFile(t, "server:\n  port: [unclosed\n")

	loader, err := NewLoader(LoaderOptions{Type: ConfigTypeFile, Path: configFile})
	if err != nil {
		t.Fatalf("failed to create loader: %v", err)
	}
	defer loader.Stop()

	if _, err := loader.Load(); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoader_File_UnknownField(t *testing.T) {
	configFile := writeConfigFile(t, `
server:
  port: 8080
max_tool_calls: 5
`)

	loader, err := NewLoader(LoaderOptions{Type: ConfigTypeFile, Path: configFile})
	if err != nil {
		t.Fatalf("failed to create loader: %v", err)
	}
	defer loader.Stop()

	_, err = loader.Load()
	if err == nil {
		t.Fatal("expected error for unknown top-level key")
	}
}

func TestLoader_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_API_KEY", "secret-key-123")
	t.Setenv("TEST_PORT_VAR", "9292")

	configFile := writeConfigFile(t, `
server:
  port: ${TEST_PORT_VAR}
llm:
  providers:
    openai:
      api_key: ${TEST_API_KEY}
embedder:
  type: ollama
`)

	cfg, err := LoadConfig(LoaderOptions{Type: ConfigTypeFile, Path: configFile})
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.LLM.Providers["openai"].APIKey != "secret-key-123" {
		t.Errorf("expected expanded API key, got %s", cfg.LLM.Providers["openai"].APIKey)
	}
	if cfg.Server.Port != 9292 {
		t.Errorf("expected port coerced to 9292, got %d", cfg.Server.Port)
	}
}

func TestLoader_EnvVarDefault(t *testing.T) {
	os.Unsetenv("TEST_UNSET_KEY_VAR")

	configFile := writeConfigFile(t, `
llm:
  providers:
    openai:
      api_key: ${TEST_UNSET_KEY_VAR:-fallback-key}
embedder:
  type: ollama
`)

	cfg, err := LoadConfig(LoaderOptions{Type: ConfigTypeFile, Path: configFile})
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.LLM.Providers["openai"].APIKey != "fallback-key" {
		t.Errorf("expected fallback key, got %s", cfg.LLM.Providers["openai"].APIKey)
	}
}

func TestLoader_File_Watch(t *testing.T) {
	configFile := writeConfigFile(t, testConfigYAML)

	reloaded := make(chan *Config, 1)
	loader, err := NewLoader(LoaderOptions{
		Type:  ConfigTypeFile,
		Path:  configFile,
		Watch: true,
		OnChange: func(cfg *Config) error {
			select {
			case reloaded <- cfg:
			default:
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("failed to create loader: %v", err)
	}
	defer loader.Stop()

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("expected port 9191, got %d", cfg.Server.Port)
	}

	// Give the watcher time to start before touching the file.
	time.Sleep(200 * time.Millisecond)

	updated := `
server:
  port: 9999
llm:
  providers:
    openai:
      api_key: test-key
embedder:
  type: ollama
`
	if err := os.WriteFile(configFile, []byte(updated), 0644); err != nil {
		t.Fatalf("failed to update config: %v", err)
	}

	select {
	case newCfg := <-reloaded:
		if newCfg.Server.Port != 9999 {
			t.Errorf("expected reloaded port 9999, got %d", newCfg.Server.Port)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("reload was not triggered")
	}
}

func TestLoader_Stdin(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	origStdin := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = origStdin }()

	go func() {
		w.Write([]byte(testConfigYAML))
		w.Close()
	}()

	cfg, err := LoadConfig(LoaderOptions{Type: ConfigTypeStdin})
	if err != nil {
		t.Fatalf("failed to load config from stdin: %v", err)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("expected port 9191, got %d", cfg.Server.Port)
	}
}

func TestLoader_NewLoader_Defaults(t *testing.T) {
	loader, err := NewLoader(LoaderOptions{Path: "config.yaml"})
	if err != nil {
		t.Fatalf("failed to create loader: %v", err)
	}
	if loader.options.Type != ConfigTypeFile {
		t.Errorf("expected default type file, got %s", loader.options.Type)
	}

	loader, err = NewLoader(LoaderOptions{Type: ConfigTypeConsul, Path: "app/config"})
	if err != nil {
		t.Fatalf("failed to create loader: %v", err)
	}
	if len(loader.options.Endpoints) != 1 || loader.options.Endpoints[0] != "localhost:8500" {
		t.Errorf("expected default consul endpoint, got %v", loader.options.Endpoints)
	}
}

func TestLoader_NewLoader_MissingPath(t *testing.T) {
	if _, err := NewLoader(LoaderOptions{Type: ConfigTypeFile}); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestResolveSource(t *testing.T) {
	tests := []struct {
		input     string
		wantType  ConfigType
		wantPath  string
		endpoints []string
	}{
		{"config.yaml", ConfigTypeFile, "config.yaml", nil},
		{"/etc/openresponses/config.yaml", ConfigTypeFile, "/etc/openresponses/config.yaml", nil},
		{"-", ConfigTypeStdin, "", nil},
		{"consul://consul.internal:8500/app/config", ConfigTypeConsul, "app/config", []string{"consul.internal:8500"}},
		{"etcd://etcd1:2379/app/config", ConfigTypeEtcd, "app/config", []string{"etcd1:2379"}},
		{"zk://zk1:2181/app/config", ConfigTypeZookeeper, "/app/config", []string{"zk1:2181"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			opts := ResolveSource(tt.input)
			if opts.Type != tt.wantType {
				t.Errorf("expected type %s, got %s", tt.wantType, opts.Type)
			}
			if opts.Path != tt.wantPath {
				t.Errorf("expected path %q, got %q", tt.wantPath, opts.Path)
			}
			if len(tt.endpoints) > 0 {
				if len(opts.Endpoints) != 1 || opts.Endpoints[0] != tt.endpoints[0] {
					t.Errorf("expected endpoints %v, got %v", tt.endpoints, opts.Endpoints)
				}
			}
		})
	}
}

func TestLoader_Stop(t *testing.T) {
	configFile := writeConfigFile(t, testConfigYAML)

	loader, err := NewLoader(LoaderOptions{Type: ConfigTypeFile, Path: configFile, Watch: true})
	if err != nil {
		t.Fatalf("failed to create loader: %v", err)
	}

	loader.Stop()
	loader.Stop()
}

func TestLoadConfigWithLoader(t *testing.T) {
	configFile := writeConfigFile(t, testConfigYAML)

	cfg, loader, err := LoadConfigWithLoader(LoaderOptions{Type: ConfigTypeFile, Path: configFile})
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	defer loader.Stop()

	if cfg.Server.Port != 9191 {
		t.Errorf("expected port 9191, got %d", cfg.Server.Port)
	}
}

func TestLoadFromPath(t *testing.T) {
	configFile := writeConfigFile(t, testConfigYAML)

	cfg, err := LoadFromPath(configFile)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected host 127.0.0.1, got %s", cfg.Server.Host)
	}
}

func TestParseConfigType(t *testing.T) {
	tests := []struct {
		input    string
		expected ConfigType
		err      bool
	}{
		{"file", ConfigTypeFile, false},
		{"FILE", ConfigTypeFile, false},
		{"  stdin  ", ConfigTypeStdin, false},
		{"consul", ConfigTypeConsul, false},
		{"etcd", ConfigTypeEtcd, false},
		{"zookeeper", ConfigTypeZookeeper, false},
		{"zk", ConfigTypeZookeeper, false},
		{"invalid", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseConfigType(tt.input)
			if tt.err {
				if err == nil {
					t.Errorf("expected error for input %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error for input %q: %v", tt.input, err)
			}
			if result != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, result)
			}
		})
	}
}
