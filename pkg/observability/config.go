package observability

import (
	"fmt"
	"time"
)

// Config configures tracing and metrics for the server.
type Config struct {
	// Enabled turns on distributed tracing.
	// Default: false
	Enabled bool `yaml:"enabled,omitempty"`

	// ServiceName identifies this service in traces and metrics.
	// Default: "openresponses"
	ServiceName string `yaml:"service_name,omitempty"`

	// ServiceVersion is the version reported in the trace resource.
	ServiceVersion string `yaml:"service_version,omitempty"`

	// Exporter specifies the span exporter.
	// Values: "otlp-grpc" (default), "otlp-http", "stdout"
	Exporter string `yaml:"exporter,omitempty"`

	// Endpoint is the OTLP collector endpoint.
	// For gRPC: "localhost:4317", for HTTP: "localhost:4318".
	// Ignored by the stdout exporter.
	Endpoint string `yaml:"endpoint,omitempty"`

	// SampleRate controls what fraction of traces are sampled.
	// Range: 0.0 (none) to 1.0 (all)
	// Default: 1.0
	SampleRate float64 `yaml:"sample_rate,omitempty"`

	// Insecure disables TLS for the exporter connection.
	// Default: true (for local development)
	Insecure *bool `yaml:"insecure,omitempty"`

	// Headers are additional headers sent with export requests.
	Headers map[string]string `yaml:"headers,omitempty"`

	// MetricsEnabled turns on the Prometheus metrics endpoint.
	// Default: false
	MetricsEnabled bool `yaml:"metrics_enabled,omitempty"`

	// MetricsPath is the path the metrics handler is mounted on.
	// Default: "/metrics"
	MetricsPath string `yaml:"metrics_path,omitempty"`

	// Timeout for exporter operations.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// SetDefaults applies default values to Config.
func (c *Config) SetDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.Exporter == "" {
		c.Exporter = ExporterOTLPGRPC
	}
	if c.Endpoint == "" {
		switch c.Exporter {
		case ExporterOTLPHTTP:
			c.Endpoint = "localhost:4318"
		default:
			c.Endpoint = DefaultOTLPEndpoint
		}
	}
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Insecure == nil {
		insecure := true
		c.Insecure = &insecure
	}
	if c.MetricsPath == "" {
		c.MetricsPath = DefaultMetricsPath
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

// Validate checks the Config for errors.
func (c *Config) Validate() error {
	if !c.Enabled && !c.MetricsEnabled {
		return nil
	}

	if c.Enabled {
		validExporters := map[string]bool{
			ExporterOTLPGRPC: true,
			ExporterOTLPHTTP: true,
			ExporterStdout:   true,
		}
		if !validExporters[c.Exporter] {
			return fmt.Errorf("invalid exporter %q (valid: otlp-grpc, otlp-http, stdout)", c.Exporter)
		}
		if c.Exporter != ExporterStdout && c.Endpoint == "" {
			return fmt.Errorf("endpoint is required for exporter %q", c.Exporter)
		}
		if c.SampleRate < 0 || c.SampleRate > 1 {
			return fmt.Errorf("sample_rate must be between 0 and 1, got %f", c.SampleRate)
		}
	}

	return nil
}

// IsInsecure returns whether to use a plaintext exporter connection.
func (c *Config) IsInsecure() bool {
	if c.Insecure == nil {
		return true
	}
	return *c.Insecure
}
