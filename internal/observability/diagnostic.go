// Package observability provides diagnostic event types and emission.
package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// DiagnosticTurnState mirrors the turn state machine for diagnostic purposes.
type DiagnosticTurnState string

const (
	TurnStateIdle              DiagnosticTurnState = "idle"
	TurnStateComposing         DiagnosticTurnState = "composing"
	TurnStateStreaming         DiagnosticTurnState = "streaming"
	TurnStateAwaitingTool      DiagnosticTurnState = "awaiting_tool"
	TurnStateAwaitingPermission DiagnosticTurnState = "awaiting_permission"
	TurnStateRetrying          DiagnosticTurnState = "retrying"
	TurnStateCompacting        DiagnosticTurnState = "compacting"
	TurnStateFinalizing        DiagnosticTurnState = "finalizing"
)

// DiagnosticEventType identifies the type of diagnostic event.
type DiagnosticEventType string

const (
	EventTypeProviderUsage       DiagnosticEventType = "provider.usage"
	EventTypeToolDispatched      DiagnosticEventType = "tool.dispatched"
	EventTypeToolCompleted       DiagnosticEventType = "tool.completed"
	EventTypeToolError           DiagnosticEventType = "tool.error"
	EventTypePermissionRequested DiagnosticEventType = "permission.requested"
	EventTypePermissionResolved  DiagnosticEventType = "permission.resolved"
	EventTypeHookBlocked         DiagnosticEventType = "hook.blocked"
	EventTypeTurnState           DiagnosticEventType = "turn.state"
	EventTypeTurnStuck           DiagnosticEventType = "turn.stuck"
	EventTypeCompactionCycle     DiagnosticEventType = "compaction.cycle"
	EventTypeRunAttempt          DiagnosticEventType = "run.attempt"
	EventTypeDiagnosticHeartbeat DiagnosticEventType = "diagnostic.heartbeat"
)

// DiagnosticEvent is the base event structure.
type DiagnosticEvent struct {
	Type DiagnosticEventType `json:"type"`
	Seq  int64               `json:"seq"`
	Ts   int64               `json:"ts"`
}

// ProviderUsageEvent tracks token usage for a provider request.
type ProviderUsageEvent struct {
	DiagnosticEvent
	SessionID  string          `json:"session_id,omitempty"`
	Agent      string          `json:"agent,omitempty"`
	Provider   string          `json:"provider,omitempty"`
	Model      string          `json:"model,omitempty"`
	Usage      UsageDetails    `json:"usage"`
	Context    *ContextDetails `json:"context,omitempty"`
	CostUSD    float64         `json:"cost_usd,omitempty"`
	DurationMs int64           `json:"duration_ms,omitempty"`
}

// UsageDetails contains token usage breakdown.
type UsageDetails struct {
	Input        int64 `json:"input,omitempty"`
	Output       int64 `json:"output,omitempty"`
	CacheRead    int64 `json:"cache_read,omitempty"`
	CacheWrite   int64 `json:"cache_write,omitempty"`
	PromptTokens int64 `json:"prompt_tokens,omitempty"`
	Total        int64 `json:"total,omitempty"`
}

// ContextDetails contains context window information.
type ContextDetails struct {
	Limit int64 `json:"limit,omitempty"`
	Used  int64 `json:"used,omitempty"`
}

// ToolDispatchedEvent tracks a tool call handed to the executor.
type ToolDispatchedEvent struct {
	DiagnosticEvent
	SessionID string `json:"session_id,omitempty"`
	Agent     string `json:"agent,omitempty"`
	ToolName  string `json:"tool_name"`
	CallID    string `json:"call_id,omitempty"`
}

// ToolCompletedEvent tracks a tool call that finished without error.
type ToolCompletedEvent struct {
	DiagnosticEvent
	SessionID  string `json:"session_id,omitempty"`
	ToolName   string `json:"tool_name"`
	CallID     string `json:"call_id,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// ToolErrorEvent tracks a tool call that failed.
type ToolErrorEvent struct {
	DiagnosticEvent
	SessionID string `json:"session_id,omitempty"`
	ToolName  string `json:"tool_name"`
	CallID    string `json:"call_id,omitempty"`
	Error     string `json:"error"`
}

// PermissionRequestedEvent tracks a new ask-lifecycle permission request.
type PermissionRequestedEvent struct {
	DiagnosticEvent
	SessionID string `json:"session_id,omitempty"`
	RequestID string `json:"request_id"`
	Kind      string `json:"kind"`
	Pattern   string `json:"pattern,omitempty"`
}

// PermissionResolvedEvent tracks an ask-lifecycle permission request reaching
// a terminal reply (allow_once, allow_always, deny).
type PermissionResolvedEvent struct {
	DiagnosticEvent
	SessionID string `json:"session_id,omitempty"`
	RequestID string `json:"request_id"`
	Kind      string `json:"kind"`
	Reply     string `json:"reply"`
}

// HookBlockedEvent tracks a tool call blocked by the hook pipeline.
type HookBlockedEvent struct {
	DiagnosticEvent
	SessionID string    `json:"session_id,omitempty"`
	Event     string    `json:"event"`
	HookName  string    `json:"hook_name"`
	ToolName  string    `json:"tool_name,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// TurnStateEvent tracks turn state transitions.
type TurnStateEvent struct {
	DiagnosticEvent
	SessionID string              `json:"session_id,omitempty"`
	Agent     string              `json:"agent,omitempty"`
	PrevState DiagnosticTurnState `json:"prev_state,omitempty"`
	State     DiagnosticTurnState `json:"state"`
	Reason    string              `json:"reason,omitempty"`
}

// TurnStuckEvent tracks turns that exceed the writer supervisor's stall
// thresholds without progress.
type TurnStuckEvent struct {
	DiagnosticEvent
	SessionID string              `json:"session_id,omitempty"`
	State     DiagnosticTurnState `json:"state"`
	AgeMs     int64               `json:"age_ms"`
	Critical  bool                `json:"critical"`
}

// CompactionCycleEvent tracks a single compaction cycle.
type CompactionCycleEvent struct {
	DiagnosticEvent
	SessionID     string `json:"session_id,omitempty"`
	Trigger       string `json:"trigger"`
	TokensPruned  int    `json:"tokens_pruned"`
	MessagesPruned int   `json:"messages_pruned"`
}

// RunAttemptEvent tracks run attempts (for retry/backoff tracking).
type RunAttemptEvent struct {
	DiagnosticEvent
	SessionID string `json:"session_id,omitempty"`
	RunID     string `json:"run_id"`
	Attempt   int    `json:"attempt"`
}

// DiagnosticHeartbeatEvent tracks diagnostic heartbeats.
type DiagnosticHeartbeatEvent struct {
	DiagnosticEvent
	ActiveTurns int `json:"active_turns"`
	Pending     int `json:"pending"`
}

// DiagnosticEventPayload is a union type for all diagnostic events.
type DiagnosticEventPayload interface {
	EventType() DiagnosticEventType
	Sequence() int64
	Timestamp() int64
}

// Implement DiagnosticEventPayload for all event types
func (e *DiagnosticEvent) EventType() DiagnosticEventType { return e.Type }
func (e *DiagnosticEvent) Sequence() int64                { return e.Seq }
func (e *DiagnosticEvent) Timestamp() int64               { return e.Ts }

// DiagnosticListener receives diagnostic events.
type DiagnosticListener func(event DiagnosticEventPayload)

// DiagnosticEmitter manages diagnostic event emission.
type DiagnosticEmitter struct {
	mu        sync.RWMutex
	seq       int64
	enabled   bool
	listeners []DiagnosticListener
}

var globalEmitter = &DiagnosticEmitter{}

// SetDiagnosticsEnabled enables or disables diagnostic events.
func SetDiagnosticsEnabled(enabled bool) {
	globalEmitter.mu.Lock()
	defer globalEmitter.mu.Unlock()
	globalEmitter.enabled = enabled
}

// IsDiagnosticsEnabled returns whether diagnostics are enabled.
func IsDiagnosticsEnabled() bool {
	globalEmitter.mu.RLock()
	defer globalEmitter.mu.RUnlock()
	return globalEmitter.enabled
}

// OnDiagnosticEvent registers a listener for diagnostic events.
func OnDiagnosticEvent(listener DiagnosticListener) func() {
	globalEmitter.mu.Lock()
	defer globalEmitter.mu.Unlock()
	globalEmitter.listeners = append(globalEmitter.listeners, listener)

	// Return unsubscribe function
	return func() {
		globalEmitter.mu.Lock()
		defer globalEmitter.mu.Unlock()
		for i, l := range globalEmitter.listeners {
			// Compare function pointers (this is a simplification)
			if &l == &listener {
				globalEmitter.listeners = append(globalEmitter.listeners[:i], globalEmitter.listeners[i+1:]...)
				break
			}
		}
	}
}

// nextSeq returns the next sequence number.
func nextSeq() int64 {
	return atomic.AddInt64(&globalEmitter.seq, 1)
}

// emit sends an event to all listeners.
func emit(event DiagnosticEventPayload) {
	globalEmitter.mu.RLock()
	if !globalEmitter.enabled {
		globalEmitter.mu.RUnlock()
		return
	}
	listeners := make([]DiagnosticListener, len(globalEmitter.listeners))
	copy(listeners, globalEmitter.listeners)
	globalEmitter.mu.RUnlock()

	for _, listener := range listeners {
		func() {
			defer func() {
				if recovered := recover(); recovered != nil {
					_ = recovered
				}
			}() // Ignore listener panics
			listener(event)
		}()
	}
}

// EmitProviderUsage emits a provider usage event.
func EmitProviderUsage(e *ProviderUsageEvent) {
	e.Type = EventTypeProviderUsage
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitToolDispatched emits a tool dispatched event.
func EmitToolDispatched(e *ToolDispatchedEvent) {
	e.Type = EventTypeToolDispatched
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitToolCompleted emits a tool completed event.
func EmitToolCompleted(e *ToolCompletedEvent) {
	e.Type = EventTypeToolCompleted
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitToolError emits a tool error event.
func EmitToolError(e *ToolErrorEvent) {
	e.Type = EventTypeToolError
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitPermissionRequested emits a permission requested event.
func EmitPermissionRequested(e *PermissionRequestedEvent) {
	e.Type = EventTypePermissionRequested
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitPermissionResolved emits a permission resolved event.
func EmitPermissionResolved(e *PermissionResolvedEvent) {
	e.Type = EventTypePermissionResolved
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitHookBlocked emits a hook blocked event.
func EmitHookBlocked(e *HookBlockedEvent) {
	e.Type = EventTypeHookBlocked
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitTurnState emits a turn state transition event.
func EmitTurnState(e *TurnStateEvent) {
	e.Type = EventTypeTurnState
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitTurnStuck emits a turn stuck event.
func EmitTurnStuck(e *TurnStuckEvent) {
	e.Type = EventTypeTurnStuck
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitCompactionCycle emits a compaction cycle event.
func EmitCompactionCycle(e *CompactionCycleEvent) {
	e.Type = EventTypeCompactionCycle
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitRunAttempt emits a run attempt event.
func EmitRunAttempt(e *RunAttemptEvent) {
	e.Type = EventTypeRunAttempt
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitDiagnosticHeartbeat emits a diagnostic heartbeat event.
func EmitDiagnosticHeartbeat(e *DiagnosticHeartbeatEvent) {
	e.Type = EventTypeDiagnosticHeartbeat
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// ResetDiagnosticsForTest resets diagnostic state for testing.
func ResetDiagnosticsForTest() {
	globalEmitter.mu.Lock()
	defer globalEmitter.mu.Unlock()
	atomic.StoreInt64(&globalEmitter.seq, 0)
	globalEmitter.listeners = nil
}
