package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Turn lifecycle and provider request performance
//   - Tool execution patterns and latencies
//   - Permission verdicts and hook blocks
//   - Causal outcomes and compaction events
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.RecordPermissionVerdict("bash_command", "ask")
//	defer metrics.RecordProviderRequest("anthropic", "claude-3-opus", "success", time.Since(start).Seconds())
type Metrics struct {
	// TurnCounter tracks completed turns by agent and terminal state.
	// Labels: agent, state (done|failed|aborted)
	TurnCounter *prometheus.CounterVec

	// TurnDuration measures end-to-end turn latency in seconds.
	// Labels: agent
	// Buckets: 0.5s, 1s, 2s, 5s, 10s, 30s, 60s, 120s, 300s
	TurnDuration *prometheus.HistogramVec

	// ProviderRequestDuration measures LLM API call latency in seconds.
	// Labels: provider, model
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s
	ProviderRequestDuration *prometheus.HistogramVec

	// ProviderRequestCounter counts provider requests by outcome.
	// Labels: provider, model, status (success|retry|error)
	ProviderRequestCounter *prometheus.CounterVec

	// ProviderTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	ProviderTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error|denied|blocked)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s, 10s, 30s, 60s
	ToolExecutionDuration *prometheus.HistogramVec

	// PermissionVerdicts counts Permission Engine decisions.
	// Labels: kind, action (allow|ask|deny)
	PermissionVerdicts *prometheus.CounterVec

	// PermissionPending is a gauge of currently pending ask requests.
	PermissionPending prometheus.Gauge

	// HookBlocks counts tool calls blocked by the hook pipeline.
	// Labels: event (PreToolUse|PostToolUse), hook_name
	HookBlocks *prometheus.CounterVec

	// CausalOutcomes counts recorded action outcomes.
	// Labels: agent, status (success|failure|partial)
	CausalOutcomes *prometheus.CounterVec

	// CompactionCounter counts compaction cycles triggered.
	// Labels: trigger (auto|manual)
	CompactionCounter *prometheus.CounterVec

	// CompactionTokensPruned measures tokens removed per compaction cycle.
	CompactionTokensPruned prometheus.Histogram

	// ErrorCounter tracks errors by component and error type.
	// Labels: component, error_type
	ErrorCounter *prometheus.CounterVec

	// ActiveSessions is a gauge tracking current active sessions.
	ActiveSessions prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup.
//
// All metrics are automatically registered with Prometheus's default registry
// and will be available at the /metrics endpoint when using prometheus HTTP handler.
func NewMetrics() *Metrics {
	return &Metrics{
		TurnCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codecoder_turns_total",
				Help: "Total number of turns by agent and terminal state",
			},
			[]string{"agent", "state"},
		),

		TurnDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "codecoder_turn_duration_seconds",
				Help:    "Duration of a turn end-to-end in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"agent"},
		),

		ProviderRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "codecoder_provider_request_duration_seconds",
				Help:    "Duration of provider requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		ProviderRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codecoder_provider_requests_total",
				Help: "Total number of provider requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		ProviderTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codecoder_provider_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codecoder_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "codecoder_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		PermissionVerdicts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codecoder_permission_verdicts_total",
				Help: "Total number of permission decisions by kind and action",
			},
			[]string{"kind", "action"},
		),

		PermissionPending: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "codecoder_permission_pending",
				Help: "Current number of pending permission ask requests",
			},
		),

		HookBlocks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codecoder_hook_blocks_total",
				Help: "Total number of tool calls blocked by the hook pipeline",
			},
			[]string{"event", "hook_name"},
		),

		CausalOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codecoder_causal_outcomes_total",
				Help: "Total number of recorded action outcomes by agent and status",
			},
			[]string{"agent", "status"},
		),

		CompactionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codecoder_compactions_total",
				Help: "Total number of compaction cycles by trigger",
			},
			[]string{"trigger"},
		),

		CompactionTokensPruned: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "codecoder_compaction_tokens_pruned",
				Help:    "Tokens pruned per compaction cycle",
				Buckets: []float64{1000, 5000, 10000, 20000, 50000, 100000},
			},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codecoder_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "codecoder_active_sessions",
				Help: "Current number of active sessions",
			},
		),
	}
}

// RecordTurn records a completed turn's terminal state and duration.
//
// Example:
//
//	metrics.RecordTurn("build", "done", time.Since(start).Seconds())
func (m *Metrics) RecordTurn(agent, state string, durationSeconds float64) {
	m.TurnCounter.WithLabelValues(agent, state).Inc()
	m.TurnDuration.WithLabelValues(agent).Observe(durationSeconds)
}

// RecordProviderRequest records metrics for a provider request.
//
// Example:
//
//	start := time.Now()
//	// ... make provider request ...
//	metrics.RecordProviderRequest("anthropic", "claude-3-opus", "success", time.Since(start).Seconds())
func (m *Metrics) RecordProviderRequest(provider, model, status string, durationSeconds float64) {
	m.ProviderRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
}

// RecordProviderTokens records prompt/completion token usage for a request.
//
// Example:
//
//	metrics.RecordProviderTokens("anthropic", "claude-3-opus", "prompt", 1200)
func (m *Metrics) RecordProviderTokens(provider, model, tokenType string, count int) {
	if count > 0 {
		m.ProviderTokensUsed.WithLabelValues(provider, model, tokenType).Add(float64(count))
	}
}

// RecordToolExecution records metrics for a tool execution.
//
// Example:
//
//	start := time.Now()
//	// ... execute tool ...
//	metrics.RecordToolExecution("edit_file", "success", time.Since(start).Seconds())
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordPermissionVerdict records a Permission Engine decision.
//
// Example:
//
//	metrics.RecordPermissionVerdict("bash_command", "deny")
func (m *Metrics) RecordPermissionVerdict(kind, action string) {
	m.PermissionVerdicts.WithLabelValues(kind, action).Inc()
}

// SetPermissionPending sets the current count of pending ask requests.
func (m *Metrics) SetPermissionPending(count int) {
	m.PermissionPending.Set(float64(count))
}

// RecordHookBlock records a tool call blocked by the hook pipeline.
//
// Example:
//
//	metrics.RecordHookBlock("PreToolUse", "protect-secrets")
func (m *Metrics) RecordHookBlock(event, hookName string) {
	m.HookBlocks.WithLabelValues(event, hookName).Inc()
}

// RecordCausalOutcome records an action outcome in the causal graph.
//
// Example:
//
//	metrics.RecordCausalOutcome("build", "success")
func (m *Metrics) RecordCausalOutcome(agent, status string) {
	m.CausalOutcomes.WithLabelValues(agent, status).Inc()
}

// RecordCompaction records a compaction cycle and the tokens it pruned.
//
// Example:
//
//	metrics.RecordCompaction("auto", 24000)
func (m *Metrics) RecordCompaction(trigger string, tokensPruned int) {
	m.CompactionCounter.WithLabelValues(trigger).Inc()
	m.CompactionTokensPruned.Observe(float64(tokensPruned))
}

// RecordError increments the error counter for a given component and error type.
//
// Example:
//
//	metrics.RecordError("agent", "provider_timeout")
//	metrics.RecordError("permission", "invalid_rule")
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// SetActiveSessions sets the current active session gauge.
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}
