package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	globalMetrics Metrics = NoopMetrics{}
	metricsMu     sync.RWMutex
)

// Metrics records operational counters for the response engine.
// Implementations must be safe for concurrent use.
type Metrics interface {
	RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration, responseSize int64)
	RecordResponse(ctx context.Context, model string, duration time.Duration, err error)
	RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error)
	RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error)
	RecordSearch(ctx context.Context, iterations int, duration time.Duration, err error)
	StreamStarted(ctx context.Context)
	StreamEnded(ctx context.Context)
}

// SetGlobalMetrics installs the process-wide metrics recorder.
func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if m == nil {
		m = NoopMetrics{}
	}
	globalMetrics = m
}

// GetGlobalMetrics returns the process-wide metrics recorder (never nil).
func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}

// NoopMetrics discards all recordings.
type NoopMetrics struct{}

func (NoopMetrics) RecordHTTPRequest(context.Context, string, string, int, time.Duration, int64) {}
func (NoopMetrics) RecordResponse(context.Context, string, time.Duration, error)                {}
func (NoopMetrics) RecordLLMCall(context.Context, string, time.Duration, int, int, error)       {}
func (NoopMetrics) RecordToolExecution(context.Context, string, time.Duration, error)           {}
func (NoopMetrics) RecordSearch(context.Context, int, time.Duration, error)                     {}
func (NoopMetrics) StreamStarted(context.Context)                                               {}
func (NoopMetrics) StreamEnded(context.Context)                                                 {}

type otelMetrics struct {
	httpDuration metric.Float64Histogram
	httpRequests metric.Int64Counter

	responseDuration metric.Float64Histogram
	responsesTotal   metric.Int64Counter
	responseErrors   metric.Int64Counter

	llmDuration     metric.Float64Histogram
	llmInputTokens  metric.Int64Counter
	llmOutputTokens metric.Int64Counter
	llmErrors       metric.Int64Counter

	toolDuration metric.Float64Histogram
	toolCalls    metric.Int64Counter
	toolErrors   metric.Int64Counter

	searchDuration   metric.Float64Histogram
	searchIterations metric.Int64Histogram
	searchErrors     metric.Int64Counter

	streamsActive metric.Int64UpDownCounter
}

func newOTelMetrics(meter metric.Meter) (*otelMetrics, error) {
	m := &otelMetrics{}
	var err error

	if m.httpDuration, err = meter.Float64Histogram(
		"openresponses_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	); err != nil {
		return nil, err
	}
	if m.httpRequests, err = meter.Int64Counter(
		"openresponses_http_requests_total",
		metric.WithDescription("Total HTTP requests"),
	); err != nil {
		return nil, err
	}
	if m.responseDuration, err = meter.Float64Histogram(
		"openresponses_response_duration_seconds",
		metric.WithDescription("End-to-end response generation duration in seconds"),
	); err != nil {
		return nil, err
	}
	if m.responsesTotal, err = meter.Int64Counter(
		"openresponses_responses_total",
		metric.WithDescription("Total responses generated"),
	); err != nil {
		return nil, err
	}
	if m.responseErrors, err = meter.Int64Counter(
		"openresponses_response_errors_total",
		metric.WithDescription("Total failed responses"),
	); err != nil {
		return nil, err
	}
	if m.llmDuration, err = meter.Float64Histogram(
		"openresponses_llm_request_duration_seconds",
		metric.WithDescription("Upstream LLM request duration in seconds"),
	); err != nil {
		return nil, err
	}
	if m.llmInputTokens, err = meter.Int64Counter(
		"openresponses_llm_tokens_input_total",
		metric.WithDescription("Total input tokens sent upstream"),
	); err != nil {
		return nil, err
	}
	if m.llmOutputTokens, err = meter.Int64Counter(
		"openresponses_llm_tokens_output_total",
		metric.WithDescription("Total output tokens received"),
	); err != nil {
		return nil, err
	}
	if m.llmErrors, err = meter.Int64Counter(
		"openresponses_llm_errors_total",
		metric.WithDescription("Total upstream LLM errors"),
	); err != nil {
		return nil, err
	}
	if m.toolDuration, err = meter.Float64Histogram(
		"openresponses_tool_execution_duration_seconds",
		metric.WithDescription("Tool execution duration in seconds"),
	); err != nil {
		return nil, err
	}
	if m.toolCalls, err = meter.Int64Counter(
		"openresponses_tool_calls_total",
		metric.WithDescription("Total tool calls executed"),
	); err != nil {
		return nil, err
	}
	if m.toolErrors, err = meter.Int64Counter(
		"openresponses_tool_errors_total",
		metric.WithDescription("Total tool execution errors"),
	); err != nil {
		return nil, err
	}
	if m.searchDuration, err = meter.Float64Histogram(
		"openresponses_search_duration_seconds",
		metric.WithDescription("Retrieval search duration in seconds"),
	); err != nil {
		return nil, err
	}
	if m.searchIterations, err = meter.Int64Histogram(
		"openresponses_search_iterations",
		metric.WithDescription("Iterations used per agentic search"),
	); err != nil {
		return nil, err
	}
	if m.searchErrors, err = meter.Int64Counter(
		"openresponses_search_errors_total",
		metric.WithDescription("Total failed searches"),
	); err != nil {
		return nil, err
	}
	if m.streamsActive, err = meter.Int64UpDownCounter(
		"openresponses_sse_streams_active",
		metric.WithDescription("Currently open SSE streams"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *otelMetrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration, responseSize int64) {
	if m == nil || m.httpRequests == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	}
	m.httpDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.httpRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *otelMetrics) RecordResponse(ctx context.Context, model string, duration time.Duration, err error) {
	if m == nil || m.responsesTotal == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("model", model)}
	m.responseDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.responsesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	if err != nil {
		m.responseErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *otelMetrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil || m.llmDuration == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("model", model)}
	m.llmDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.llmInputTokens.Add(ctx, int64(inputTokens), metric.WithAttributes(attrs...))
	m.llmOutputTokens.Add(ctx, int64(outputTokens), metric.WithAttributes(attrs...))
	if err != nil {
		m.llmErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *otelMetrics) RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error) {
	if m == nil || m.toolCalls == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("tool", tool)}
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.toolCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
	if err != nil {
		m.toolErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *otelMetrics) RecordSearch(ctx context.Context, iterations int, duration time.Duration, err error) {
	if m == nil || m.searchDuration == nil {
		return
	}
	m.searchDuration.Record(ctx, duration.Seconds())
	if iterations > 0 {
		m.searchIterations.Record(ctx, int64(iterations))
	}
	if err != nil {
		m.searchErrors.Add(ctx, 1)
	}
}

func (m *otelMetrics) StreamStarted(ctx context.Context) {
	if m == nil || m.streamsActive == nil {
		return
	}
	m.streamsActive.Add(ctx, 1)
}

func (m *otelMetrics) StreamEnded(ctx context.Context) {
	if m == nil || m.streamsActive == nil {
		return
	}
	m.streamsActive.Add(ctx, -1)
}
