package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestConfig_SetDefaults(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()

	if cfg.ServiceName != DefaultServiceName {
		t.Errorf("expected service name %q, got %q", DefaultServiceName, cfg.ServiceName)
	}
	if cfg.Exporter != ExporterOTLPGRPC {
		t.Errorf("expected exporter %q, got %q", ExporterOTLPGRPC, cfg.Exporter)
	}
	if cfg.Endpoint != DefaultOTLPEndpoint {
		t.Errorf("expected endpoint %q, got %q", DefaultOTLPEndpoint, cfg.Endpoint)
	}
	if cfg.SampleRate != DefaultSampleRate {
		t.Errorf("expected sample rate %v, got %v", DefaultSampleRate, cfg.SampleRate)
	}
	if !cfg.IsInsecure() {
		t.Error("expected insecure by default")
	}
	if cfg.MetricsPath != DefaultMetricsPath {
		t.Errorf("expected metrics path %q, got %q", DefaultMetricsPath, cfg.MetricsPath)
	}
}

func TestConfig_SetDefaults_HTTPEndpoint(t *testing.T) {
	cfg := Config{Exporter: ExporterOTLPHTTP}
	cfg.SetDefaults()

	if cfg.Endpoint != "localhost:4318" {
		t.Errorf("expected HTTP endpoint default, got %q", cfg.Endpoint)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "disabled passes",
			cfg:     Config{},
			wantErr: false,
		},
		{
			name:    "valid grpc",
			cfg:     Config{Enabled: true, Exporter: ExporterOTLPGRPC, Endpoint: "localhost:4317", SampleRate: 0.5},
			wantErr: false,
		},
		{
			name:    "invalid exporter",
			cfg:     Config{Enabled: true, Exporter: "jaeger", Endpoint: "x", SampleRate: 1},
			wantErr: true,
		},
		{
			name:    "missing endpoint",
			cfg:     Config{Enabled: true, Exporter: ExporterOTLPGRPC, SampleRate: 1},
			wantErr: true,
		},
		{
			name:    "sample rate out of range",
			cfg:     Config{Enabled: true, Exporter: ExporterStdout, SampleRate: 1.5},
			wantErr: true,
		},
		{
			name:    "stdout needs no endpoint",
			cfg:     Config{Enabled: true, Exporter: ExporterStdout, SampleRate: 1},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestManager_DisabledLifecycle(t *testing.T) {
	m := NewManager(Config{})

	ctx := context.Background()
	if err := m.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if m.Tracer("test") == nil {
		t.Error("expected a tracer even when disabled")
	}
	if m.Metrics() == nil {
		t.Error("expected noop metrics when disabled")
	}
	if m.MetricsHandler() != nil {
		t.Error("expected nil metrics handler when metrics disabled")
	}

	if err := m.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestManager_MetricsEnabled(t *testing.T) {
	m := NewManager(Config{MetricsEnabled: true})

	ctx := context.Background()
	if err := m.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer m.Shutdown(ctx)

	handler := m.MetricsHandler()
	if handler == nil {
		t.Fatal("expected a metrics handler")
	}

	// Record through every path, then scrape.
	mm := m.Metrics()
	mm.RecordHTTPRequest(ctx, "POST", "/v1/responses", 200, 50*time.Millisecond, 1024)
	mm.RecordResponse(ctx, "gpt-4o", time.Second, nil)
	mm.RecordLLMCall(ctx, "gpt-4o", 800*time.Millisecond, 120, 64, nil)
	mm.RecordToolExecution(ctx, "file_search", 10*time.Millisecond, nil)
	mm.RecordSearch(ctx, 3, 250*time.Millisecond, nil)
	mm.StreamStarted(ctx)
	mm.StreamEnded(ctx)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics scrape returned %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("expected non-empty metrics output")
	}
}

func TestNoopMetrics_DoesNotPanic(t *testing.T) {
	ctx := context.Background()
	var m Metrics = NoopMetrics{}

	m.RecordHTTPRequest(ctx, "GET", "/", 200, time.Millisecond, 0)
	m.RecordResponse(ctx, "m", time.Millisecond, nil)
	m.RecordLLMCall(ctx, "m", time.Millisecond, 1, 1, nil)
	m.RecordToolExecution(ctx, "t", time.Millisecond, nil)
	m.RecordSearch(ctx, 0, time.Millisecond, nil)
	m.StreamStarted(ctx)
	m.StreamEnded(ctx)
}

func TestHTTPMiddleware_CapturesStatus(t *testing.T) {
	recorder := &captureMetrics{}

	handler := HTTPMiddleware(nil, recorder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/teapot", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("expected status %d, got %d", http.StatusTeapot, rec.Code)
	}
	if recorder.status != http.StatusTeapot {
		t.Errorf("middleware recorded status %d", recorder.status)
	}
	if recorder.size != int64(len("short and stout")) {
		t.Errorf("middleware recorded size %d", recorder.size)
	}
}

func TestResponseWriter_PreservesFlusher(t *testing.T) {
	handler := HTTPMiddleware(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Flusher); !ok {
			t.Error("wrapped writer lost http.Flusher")
		}
		w.(http.Flusher).Flush()
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))
	if !rec.Flushed {
		t.Error("expected flush to reach the underlying writer")
	}
}

type captureMetrics struct {
	NoopMetrics
	status int
	size   int64
}

func (c *captureMetrics) RecordHTTPRequest(_ context.Context, _, _ string, status int, _ time.Duration, size int64) {
	c.status = status
	c.size = size
}
