package config

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/consul"
	"github.com/knadh/koanf/providers/etcd"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// ConfigType identifies a configuration source.
type ConfigType string

const (
	ConfigTypeFile      ConfigType = "file"
	ConfigTypeStdin     ConfigType = "stdin"
	ConfigTypeConsul    ConfigType = "consul"
	ConfigTypeEtcd      ConfigType = "etcd"
	ConfigTypeZookeeper ConfigType = "zookeeper"
)

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	// Type of the source. Inferred by ResolveSource when loading by path.
	Type ConfigType

	// Path is the file path, or the key/node path for remote sources.
	Path string

	// Endpoints of the remote store. Defaults per type.
	Endpoints []string

	// Watch enables reactive reload on source changes.
	Watch bool

	// OnChange is called with the reloaded config after it passed the
	// processing pipeline. A reload that fails validation never reaches
	// this callback; the previous config stays in effect.
	OnChange func(*Config) error
}

// Loader loads and optionally watches one configuration source.
type Loader struct {
	options  LoaderOptions
	parser   *yaml.YAML
	stopChan chan struct{}
	stopOnce sync.Once

	mu    sync.Mutex
	koanf *koanf.Koanf
}

// ResolveSource infers loader options from a path argument: "-" reads
// stdin, "consul://host:8500/key", "etcd://host:2379/key" and
// "zk://host:2181/path" select remote stores, anything else is a file.
func ResolveSource(path string) LoaderOptions {
	if path == "-" {
		return LoaderOptions{Type: ConfigTypeStdin}
	}

	if u, err := url.Parse(path); err == nil && u.Host != "" {
		switch u.Scheme {
		case "consul":
			return LoaderOptions{
				Type:      ConfigTypeConsul,
				Path:      strings.TrimPrefix(u.Path, "/"),
				Endpoints: []string{u.Host},
			}
		case "etcd":
			return LoaderOptions{
				Type:      ConfigTypeEtcd,
				Path:      strings.TrimPrefix(u.Path, "/"),
				Endpoints: []string{u.Host},
			}
		case "zk", "zookeeper":
			return LoaderOptions{
				Type:      ConfigTypeZookeeper,
				Path:      u.Path,
				Endpoints: []string{u.Host},
			}
		}
	}

	return LoaderOptions{Type: ConfigTypeFile, Path: path}
}

// NewLoader creates a loader for the given options.
func NewLoader(opts LoaderOptions) (*Loader, error) {
	if opts.Type == "" {
		opts.Type = ConfigTypeFile
	}

	if opts.Path == "" && opts.Type != ConfigTypeStdin {
		return nil, fmt.Errorf("config path is required")
	}

	if len(opts.Endpoints) == 0 {
		switch opts.Type {
		case ConfigTypeConsul:
			opts.Endpoints = []string{"localhost:8500"}
		case ConfigTypeEtcd:
			opts.Endpoints = []string{"localhost:2379"}
		case ConfigTypeZookeeper:
			opts.Endpoints = []string{"localhost:2181"}
		}
	}

	return &Loader{
		options:  opts,
		parser:   yaml.Parser(),
		stopChan: make(chan struct{}),
	}, nil
}

// Load reads the source, expands environment references, strictly validates
// the structure, and runs the processing pipeline. With Watch enabled it
// also starts the background watcher.
func (l *Loader) Load() (*Config, error) {
	provider, err := l.buildProvider()
	if err != nil {
		return nil, err
	}

	cfg, err := l.loadFrom(provider)
	if err != nil {
		return nil, err
	}

	if l.options.Watch && l.options.Type != ConfigTypeStdin {
		go l.watch(provider)
	}

	return cfg, nil
}

func (l *Loader) buildProvider() (koanf.Provider, error) {
	switch l.options.Type {
	case ConfigTypeFile:
		return file.Provider(l.options.Path), nil

	case ConfigTypeStdin:
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read config from stdin: %w", err)
		}
		return rawbytes.Provider(data), nil

	case ConfigTypeConsul:
		consulConfig := api.DefaultConfig()
		consulConfig.Address = l.options.Endpoints[0]
		return consul.Provider(consul.Config{
			Cfg: consulConfig,
			Key: l.options.Path,
		}), nil

	case ConfigTypeEtcd:
		return etcd.Provider(etcd.Config{
			Endpoints:   l.options.Endpoints,
			DialTimeout: 5 * time.Second,
			Key:         l.options.Path,
		}), nil

	case ConfigTypeZookeeper:
		zkProvider, err := NewZookeeperProvider(l.options.Endpoints, l.options.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create zookeeper provider: %w", err)
		}
		return zkProvider, nil

	default:
		return nil, fmt.Errorf("unsupported config type: %s", l.options.Type)
	}
}

// loadFrom loads a provider into a fresh koanf instance so keys removed
// from the source do not survive a reload.
func (l *Loader) loadFrom(provider koanf.Provider) (*Config, error) {
	k := koanf.New(".")

	switch l.options.Type {
	case ConfigTypeConsul, ConfigTypeEtcd:
		// These providers expose the key's value as a flat map entry.
		// Extract the document and parse it as YAML.
		doc, err := l.fetchRemoteDocument(provider)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(doc), l.parser); err != nil {
			return nil, fmt.Errorf("failed to parse config from %s: %w", l.options.Type, err)
		}
	default:
		if err := k.Load(provider, l.parser); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", l.options.Type, err)
		}
	}

	expanded, err := expandKoanf(k)
	if err != nil {
		return nil, fmt.Errorf("failed to expand environment variables: %w", err)
	}

	cfg, err := unmarshalAndProcess(expanded)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.koanf = expanded
	l.mu.Unlock()

	return cfg, nil
}

func (l *Loader) fetchRemoteDocument(provider koanf.Provider) ([]byte, error) {
	scratch := koanf.New(".")
	if err := scratch.Load(provider, nil); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", l.options.Type, err)
	}

	doc := scratch.String(l.options.Path)
	if doc == "" {
		return nil, fmt.Errorf("key %q not found in %s", l.options.Path, l.options.Type)
	}
	return []byte(doc), nil
}

// Watcher is the reactive-watch surface koanf providers optionally expose.
type Watcher interface {
	Watch(cb func(event interface{}, err error)) error
}

func (l *Loader) watch(provider koanf.Provider) {
	watcher, ok := provider.(Watcher)
	if !ok {
		slog.Warn("Config provider does not support watching", "type", l.options.Type)
		return
	}

	slog.Info("Config watcher started", "type", l.options.Type, "path", l.options.Path)

	err := watcher.Watch(func(event interface{}, err error) {
		select {
		case <-l.stopChan:
			slog.Info("Config watcher stopped", "type", l.options.Type)
			return
		default:
		}

		if err != nil {
			slog.Warn("Config watch error", "error", err)
			return
		}

		newCfg, err := l.loadFrom(provider)
		if err != nil {
			// Keep serving the previous config.
			slog.Warn("Reloaded config rejected", "error", err)
			return
		}

		if l.options.OnChange == nil {
			slog.Warn("Config change detected but no OnChange callback is set")
			return
		}
		if err := l.options.OnChange(newCfg); err != nil {
			slog.Warn("Config change callback failed", "error", err)
			return
		}
		slog.Info("Configuration reloaded", "type", l.options.Type)
	})

	if err != nil {
		slog.Warn("Config watch stopped", "error", err)
	}
}

// Stop terminates the watcher. Safe to call multiple times.
func (l *Loader) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopChan)
	})
}

// SetOnChange installs the reload callback.
func (l *Loader) SetOnChange(callback func(*Config) error) {
	l.options.OnChange = callback
}

// unmarshalAndProcess strictly validates structure, unmarshals, and runs
// the processing pipeline.
func unmarshalAndProcess(k *koanf.Koanf) (*Config, error) {
	strictResult, err := ValidateConfigStructure(k)
	if err != nil {
		return nil, fmt.Errorf("strict validation check failed: %w", err)
	}
	if !strictResult.Valid() {
		return nil, fmt.Errorf("configuration has structural errors:\n%s", strictResult.FormatErrors())
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	processedCfg, err := ProcessConfigPipeline(cfg)
	if err != nil {
		return nil, fmt.Errorf("config processing failed: %w", err)
	}
	return processedCfg, nil
}

// expandKoanf rebuilds a koanf instance with environment references
// expanded in every string value.
func expandKoanf(k *koanf.Koanf) (*koanf.Koanf, error) {
	expanded, ok := ExpandEnvVarsInData(k.Raw()).(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected type after env var expansion")
	}

	fresh := koanf.New(".")
	if err := fresh.Load(confmap.Provider(expanded, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load expanded config: %w", err)
	}
	return fresh, nil
}

// LoadConfig loads a config without keeping the loader around.
func LoadConfig(opts LoaderOptions) (*Config, error) {
	cfg, _, err := LoadConfigWithLoader(opts)
	return cfg, err
}

// LoadConfigWithLoader loads a config and returns the loader for watching.
func LoadConfigWithLoader(opts LoaderOptions) (*Config, *Loader, error) {
	loader, err := NewLoader(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create loader: %w", err)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, loader, nil
}

// LoadFromPath loads a config from a path argument using scheme inference.
func LoadFromPath(path string) (*Config, error) {
	return LoadConfig(ResolveSource(path))
}

// ParseConfigType parses a config type flag value.
func ParseConfigType(s string) (ConfigType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file":
		return ConfigTypeFile, nil
	case "stdin":
		return ConfigTypeStdin, nil
	case "consul":
		return ConfigTypeConsul, nil
	case "etcd":
		return ConfigTypeEtcd, nil
	case "zookeeper", "zk":
		return ConfigTypeZookeeper, nil
	default:
		return "", fmt.Errorf("invalid config type: %s (valid types: file, stdin, consul, etcd, zookeeper)", s)
	}
}
