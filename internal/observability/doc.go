// Package observability provides comprehensive monitoring and debugging capabilities
// for the CodeCoder runtime through metrics, structured logging, and distributed tracing.
//
// # Overview
//
// The observability package implements the three pillars of observability:
//
//  1. Metrics - Quantitative measurements using Prometheus
//  2. Logging - Structured logs with sensitive data redaction
//  3. Tracing - Distributed request tracing with OpenTelemetry
//
// # Architecture
//
// The package is designed to be:
//   - Low-overhead: Minimal performance impact on production systems
//   - Type-safe: Strongly-typed APIs reduce configuration errors
//   - Production-ready: Built-in security (redaction) and reliability features
//   - Standards-based: Uses Prometheus, OpenTelemetry, and slog
//
// # Metrics
//
// Metrics are implemented using Prometheus client libraries and track:
//   - Turn lifecycle state and duration
//   - Provider request latency, status, and token usage
//   - Tool execution performance
//   - Permission Engine verdicts
//   - Hook pipeline blocks
//   - Causal graph outcomes
//   - Compaction cycles and tokens pruned
//   - Error rates by component and type
//   - Active session counts
//
// Example usage:
//
//	metrics := observability.NewMetrics()
//
//	// Track a completed turn
//	metrics.RecordTurn("build", "done", time.Since(start).Seconds())
//
//	// Track provider requests
//	start := time.Now()
//	// ... make provider request ...
//	metrics.RecordProviderRequest("anthropic", "claude-3-opus", "success", time.Since(start).Seconds())
//	metrics.RecordProviderTokens("anthropic", "claude-3-opus", "prompt", promptTokens)
//
//	// Track tool execution
//	start = time.Now()
//	// ... execute tool ...
//	metrics.RecordToolExecution("edit_file", "success", time.Since(start).Seconds())
//
//	// Track a permission verdict
//	metrics.RecordPermissionVerdict("bash_command", "ask")
//
// # Logging
//
// Logging is built on Go's slog package with enhancements for:
//   - Automatic request ID correlation from context
//   - Sensitive data redaction (API keys, passwords, tokens)
//   - JSON output for production, text for development
//   - Configurable log levels
//
// Example usage:
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    AddSource: true,
//	})
//
//	// Add context IDs for correlation
//	ctx := observability.AddRequestID(ctx, requestID)
//	ctx = observability.AddSessionID(ctx, sessionID)
//
//	// Structured logging with automatic context correlation
//	logger.Info(ctx, "dispatching tool call",
//	    "agent", "build",
//	    "tool", "edit_file",
//	    "session_id", sessionID,
//	)
//
//	// Error logging with automatic redaction
//	logger.Error(ctx, "provider request failed",
//	    "error", err,
//	    "provider", "anthropic",
//	    "api_key", apiKey, // Automatically redacted
//	)
//
// # Tracing
//
// Distributed tracing uses OpenTelemetry to track requests across components:
//   - End-to-end turn visualization
//   - Performance bottleneck identification
//   - Tool dispatch dependency mapping
//   - Error correlation across components
//
// Example usage:
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName:    "codecoder",
//	    ServiceVersion: "1.0.0",
//	    Environment:    "production",
//	    Endpoint:       "localhost:4317", // OTLP collector
//	    SamplingRate:   0.1,              // Sample 10% of traces
//	})
//	defer shutdown(context.Background())
//
//	// Trace a turn
//	ctx, span := tracer.TraceTurn(ctx, "build", sessionID)
//	defer span.End()
//
//	// Trace provider requests
//	ctx, provSpan := tracer.TraceProviderRequest(ctx, "anthropic", "claude-3-opus")
//	defer provSpan.End()
//	tracer.SetAttributes(provSpan, "prompt_tokens", 100, "completion_tokens", 500)
//
//	// Trace tool execution
//	ctx, toolSpan := tracer.TraceToolExecution(ctx, "edit_file")
//	defer toolSpan.End()
//	if err != nil {
//	    tracer.RecordError(toolSpan, err)
//	}
//
// # Context Propagation
//
// All three components integrate with Go's context for automatic correlation:
//
//	// Add IDs to context
//	ctx = observability.AddRequestID(ctx, "req-123")
//	ctx = observability.AddSessionID(ctx, "sess-456")
//	ctx = observability.AddUserID(ctx, "user-789")
//
//	// IDs automatically appear in logs
//	logger.Info(ctx, "processing turn") // Includes request_id, session_id, etc.
//
//	// Spans inherit context
//	ctx, span := tracer.Start(ctx, "operation")
//	// Trace context propagates to child spans
//
// # Integration Example
//
// Complete example integrating all three components around a single turn:
//
//	func RunTurn(ctx context.Context, sess *models.Session, agent string) error {
//	    ctx = observability.AddRequestID(ctx, generateID())
//	    ctx = observability.AddSessionID(ctx, sess.ID)
//
//	    ctx, span := tracer.TraceTurn(ctx, agent, sess.ID)
//	    defer span.End()
//
//	    start := time.Now()
//	    logger.Info(ctx, "turn started", "agent", agent)
//
//	    provStart := time.Now()
//	    ctx, provSpan := tracer.TraceProviderRequest(ctx, "anthropic", "claude-3-opus")
//	    defer provSpan.End()
//
//	    resp, err := provider.Complete(ctx, sess)
//	    provDuration := time.Since(provStart).Seconds()
//
//	    if err != nil {
//	        metrics.RecordError("agent", "provider_request_failed")
//	        tracer.RecordError(provSpan, err)
//	        logger.Error(ctx, "provider request failed", "error", err)
//	        metrics.RecordProviderRequest("anthropic", "claude-3-opus", "error", provDuration)
//	        metrics.RecordTurn(agent, "failed", time.Since(start).Seconds())
//	        return err
//	    }
//
//	    metrics.RecordProviderRequest("anthropic", "claude-3-opus", "success", provDuration)
//	    metrics.RecordProviderTokens("anthropic", "claude-3-opus", "prompt", resp.PromptTokens)
//	    metrics.RecordProviderTokens("anthropic", "claude-3-opus", "completion", resp.CompletionTokens)
//	    metrics.RecordTurn(agent, "done", time.Since(start).Seconds())
//
//	    return nil
//	}
//
// # Security Considerations
//
// The logging component automatically redacts:
//   - API keys (Anthropic, OpenAI, generic)
//   - Passwords and secrets
//   - JWT tokens
//   - Bearer tokens
//   - Custom patterns via configuration
//
// Sensitive fields in maps are also redacted:
//   - password, passwd, pwd
//   - secret, api_key, apikey
//   - token, auth, authorization
//   - private_key, privatekey
//
// # Performance
//
// The observability system is designed for minimal overhead:
//   - Metrics use lock-free counters where possible
//   - Logging with slog is highly efficient
//   - Tracing supports sampling to reduce overhead
//   - Context propagation is zero-allocation in most cases
//
// Typical overhead:
//   - Metrics: <1% CPU, ~10KB memory per metric
//   - Logging: ~1-5μs per log call
//   - Tracing: ~2-10μs per span (when sampled)
//
// # Configuration
//
// All components support configuration via structs, and observability as a
// whole is gated by experimental.openTelemetry in codecoder.json:
//
//	// Metrics - no configuration needed, auto-registered
//	metrics := observability.NewMetrics()
//
//	// Logging - configurable output, level, format
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:          os.Getenv("LOG_LEVEL"),
//	    Format:         "json",
//	    AddSource:      true,
//	    RedactPatterns: []string{`custom-secret-\d+`},
//	})
//
//	// Tracing - configurable sampling, endpoint, attributes
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName:    "codecoder",
//	    ServiceVersion: version,
//	    Environment:    env,
//	    Endpoint:       os.Getenv("OTEL_ENDPOINT"),
//	    SamplingRate:   0.1,
//	})
//	defer shutdown(context.Background())
//
// # Testing
//
// All components provide testable interfaces:
//   - Metrics can be verified using prometheus/testutil
//   - Logging can write to bytes.Buffer for assertions
//   - Tracing works with no-op exporters in tests
//
// # Best Practices
//
//  1. Always propagate context to enable correlation
//  2. Use defer for span.End() to ensure spans are closed
//  3. Record errors on both metrics and traces
//  4. Use structured logging with key-value pairs
//  5. Set appropriate sampling rates for high-traffic systems
//  6. Use typed metric labels (avoid high-cardinality values)
//  7. Call shutdown() on tracer during graceful shutdown
//
// # Monitoring Dashboard
//
// The metrics exposed can be used to build dashboards:
//
//	# Turn throughput by terminal state
//	rate(codecoder_turns_total[5m])
//
//	# Provider request latency (95th percentile)
//	histogram_quantile(0.95, rate(codecoder_provider_request_duration_seconds_bucket[5m]))
//
//	# Permission deny rate
//	rate(codecoder_permission_verdicts_total{action="deny"}[5m])
//
//	# Hook blocks by hook name
//	rate(codecoder_hook_blocks_total[5m])
//
//	# Error rate
//	rate(codecoder_errors_total[5m])
//
//	# Active sessions
//	codecoder_active_sessions
//
// # Alerting
//
// Recommended alerts based on metrics:
//   - High error rate: codecoder_errors_total > threshold
//   - High provider latency: p95 latency > 10s
//   - Elevated permission denials: rate(codecoder_permission_verdicts_total{action="deny"}) > threshold
//   - Session accumulation: codecoder_active_sessions growing unbounded
//
// # Further Reading
//
//   - Prometheus best practices: https://prometheus.io/docs/practices/naming/
//   - OpenTelemetry specification: https://opentelemetry.io/docs/specs/otel/
//   - slog documentation: https://pkg.go.dev/log/slog
package observability
