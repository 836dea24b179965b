// Package metrics exposes the Prometheus instrumentation for a running
// Agent: provider call latency and cost, tool execution latency, retry
// counts, and compaction events.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every counter and histogram an Agent reports against.
// A nil *Metrics is valid everywhere it's consumed — every method returns
// early on a nil receiver, so callers record unconditionally and
// instrumentation is opt-in.
type Metrics struct {
	// ProviderRequests counts completed Provider calls.
	// Labels: provider, model, status (success|error)
	ProviderRequests *prometheus.CounterVec

	// ProviderRequestDuration measures Provider call latency in seconds.
	// Labels: provider, model
	ProviderRequestDuration *prometheus.HistogramVec

	// ProviderTokens tracks token consumption.
	// Labels: provider, model, type (input|output|cache_creation|cache_read)
	ProviderTokens *prometheus.CounterVec

	// ProviderCostUSD tracks estimated spend.
	// Labels: provider, model
	ProviderCostUSD *prometheus.CounterVec

	// ToolExecutions counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutions *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// RetryAttempts counts Provider retries.
	// Labels: error_kind
	RetryAttempts *prometheus.CounterVec

	// CompactionEvents counts compaction passes.
	// Labels: phase (truncate|summarize)
	CompactionEvents *prometheus.CounterVec

	// ContextWindowTokens tracks reported usage against the context window.
	// Labels: provider, model
	ContextWindowTokens *prometheus.HistogramVec
}

// New creates and registers every metric against Prometheus's default
// registry. Call once per process.
func New() *Metrics {
	return &Metrics{
		ProviderRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_provider_requests_total",
				Help: "Total number of Provider calls by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),
		ProviderRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_provider_request_duration_seconds",
				Help:    "Duration of Provider calls in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		ProviderTokens: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_provider_tokens_total",
				Help: "Total tokens consumed by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),
		ProviderCostUSD: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_provider_cost_usd_total",
				Help: "Estimated Provider spend in USD",
			},
			[]string{"provider", "model"},
		),
		ToolExecutions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_tool_executions_total",
				Help: "Total tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),
		RetryAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_provider_retries_total",
				Help: "Total Provider retries by error kind",
			},
			[]string{"error_kind"},
		),
		CompactionEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_compaction_events_total",
				Help: "Total compaction passes by phase",
			},
			[]string{"phase"},
		),
		ContextWindowTokens: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_context_window_tokens",
				Help:    "Context window tokens in use at each Provider call",
				Buckets: []float64{1000, 4000, 8000, 16000, 32000, 64000, 128000, 200000},
			},
			[]string{"provider", "model"},
		),
	}
}

// RecordProviderRequest records one completed Provider call.
func (m *Metrics) RecordProviderRequest(provider, model, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(provider, model, status).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
}

// RecordTokens records token usage by kind (input, output, cache_creation,
// cache_read).
func (m *Metrics) RecordTokens(provider, model, kind string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.ProviderTokens.WithLabelValues(provider, model, kind).Add(float64(count))
}

// RecordCost adds to the running estimated spend.
func (m *Metrics) RecordCost(provider, model string, usd float64) {
	if m == nil {
		return
	}
	m.ProviderCostUSD.WithLabelValues(provider, model).Add(usd)
}

// RecordToolExecution records one tool call's outcome and latency.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ToolExecutions.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordRetry records one Provider retry attempt.
func (m *Metrics) RecordRetry(errorKind string) {
	if m == nil {
		return
	}
	m.RetryAttempts.WithLabelValues(errorKind).Inc()
}

// RecordCompaction records one compaction pass.
func (m *Metrics) RecordCompaction(phase string) {
	if m == nil {
		return
	}
	m.CompactionEvents.WithLabelValues(phase).Inc()
}

// RecordContextWindowUsage records the context tokens in use at a Provider
// call.
func (m *Metrics) RecordContextWindowUsage(provider, model string, tokens int) {
	if m == nil {
		return
	}
	m.ContextWindowTokens.WithLabelValues(provider, model).Observe(float64(tokens))
}
