package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codecoder/core/internal/audit"
	"github.com/codecoder/core/internal/causal"
	"github.com/codecoder/core/internal/hooks"
	"github.com/codecoder/core/internal/observability"
	"github.com/codecoder/core/internal/permission"
	"github.com/codecoder/core/pkg/models"
)

// EditRecorder persists the FileChange ledger produced by edit-class tool
// calls. Runtime appends one record per successful edit tool result; a nil
// recorder is a valid no-op for callers that don't need the ledger.
type EditRecorder interface {
	Append(ctx context.Context, rec *models.EditRecord) error
}

// Runtime drives the agentic tool loop for a single session's turn: it
// streams a completion from the configured LLMProvider, dispatches any
// requested tool calls through the hook/permission/execution/causal
// pipeline, and persists the resulting transcript.
type Runtime struct {
	provider LLMProvider
	registry *ToolRegistry
	history  HistoryStore

	permissions *permission.Engine
	hooksDisp   *hooks.Dispatcher
	causal      *causal.Recorder
	edits       EditRecorder
	metrics     *observability.Metrics

	compaction *CompactionManager
	plugins    *PluginRegistry
	audit      *audit.Logger

	defaultModel string
	systemPrompt string
	baseOpts     RuntimeOptions
	toolExecCfg  ToolExecConfig

	sessionLocksMu sync.Mutex
	sessionLocks   map[string]*sessionLock
}

// NewRuntime creates a Runtime around a provider and tool registry. A nil
// registry gets an empty one; history defaults to an in-memory store, and
// permission/hook/causal/edit/metrics collaborators start unwired (safe
// no-ops) until a setter is called.
func NewRuntime(provider LLMProvider, registry *ToolRegistry) *Runtime {
	if registry == nil {
		registry = NewToolRegistry()
	}
	return &Runtime{
		provider:     provider,
		registry:     registry,
		history:      NewHistoryStore(nil),
		compaction:   NewCompactionManager(nil),
		plugins:      NewPluginRegistry(),
		baseOpts:     DefaultRuntimeOptions(),
		toolExecCfg:  DefaultToolExecConfig(),
		sessionLocks: make(map[string]*sessionLock),
	}
}

// SetHistoryStore overrides the transcript store.
func (r *Runtime) SetHistoryStore(store HistoryStore) {
	if store != nil {
		r.history = store
	}
}

// SetPermissionEngine wires the Permission Engine used by tool dispatch.
func (r *Runtime) SetPermissionEngine(e *permission.Engine) { r.permissions = e }

// SetHookDispatcher wires the Hook Dispatch Pipeline used by tool dispatch.
func (r *Runtime) SetHookDispatcher(d *hooks.Dispatcher) { r.hooksDisp = d }

// SetCausalRecorder wires the causal graph recorder.
func (r *Runtime) SetCausalRecorder(c *causal.Recorder) { r.causal = c }

// SetEditRecorder wires the edit ledger sink.
func (r *Runtime) SetEditRecorder(e EditRecorder) { r.edits = e }

// SetMetrics wires the observability metrics sink.
func (r *Runtime) SetMetrics(m *observability.Metrics) { r.metrics = m }

// SetAuditLogger wires a structured audit trail for tool invocations,
// completions, denials, and permission decisions. Unwired, dispatch runs
// with no audit side effects.
func (r *Runtime) SetAuditLogger(l *audit.Logger) { r.audit = l }

func (r *Runtime) logAudit(fn func(l *audit.Logger)) {
	if r.audit == nil {
		return
	}
	fn(r.audit)
}

// SetCompactionManager overrides the compaction manager.
func (r *Runtime) SetCompactionManager(m *CompactionManager) {
	if m != nil {
		r.compaction = m
	}
}

// SetDefaultModel sets the model used when a request doesn't override one.
func (r *Runtime) SetDefaultModel(model string) { r.defaultModel = strings.TrimSpace(model) }

// SetSystemPrompt sets the default system prompt for new turns.
func (r *Runtime) SetSystemPrompt(prompt string) { r.systemPrompt = prompt }

// SetOptions overrides the baseline RuntimeOptions merged with any
// per-request context override.
func (r *Runtime) SetOptions(opts RuntimeOptions) { r.baseOpts = opts }

// SetToolExecConfig overrides the tool executor's concurrency/retry config.
func (r *Runtime) SetToolExecConfig(cfg ToolExecConfig) { r.toolExecCfg = cfg }

// Use registers a plugin observing the runtime event stream.
func (r *Runtime) Use(p Plugin) { r.plugins.Use(p) }

// RegisterTool adds a tool to the runtime's registry.
func (r *Runtime) RegisterTool(t Tool) { r.registry.Register(t) }

// Process runs one turn for sessionID given the incoming user text, and
// streams ResponseChunks until the turn completes (no further tool calls),
// errors, or the context is cancelled.
func (r *Runtime) Process(ctx context.Context, sessionID string, userText string) (<-chan *ResponseChunk, error) {
	if r.provider == nil {
		return nil, ErrNoProvider
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	opts := r.baseOpts
	if override, ok := runtimeOptionsFromContext(ctx); ok {
		opts = mergeRuntimeOptions(opts, override)
	}

	session, err := r.history.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		session = &models.Session{ID: sessionID}
		session.Touch(time.Now())
	}
	if s := SessionFromContext(ctx); s != nil {
		session = s
	}

	userMsg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      models.RoleUser,
		Mode:      models.ModeNormal,
		Parts:     []models.MessagePart{{Type: models.PartText, Text: userText}},
		CreatedAt: time.Now(),
	}

	chunks := make(chan *ResponseChunk, 16)
	go func() {
		defer close(chunks)
		if err := r.run(ctx, session, userMsg, opts, chunks); err != nil {
			chunks <- &ResponseChunk{Error: err}
			r.emit(ctx, RuntimeEvent{Type: EventRunError, SessionID: sessionID, Err: err, At: time.Now()})
		}
	}()
	return chunks, nil
}

// emit forwards a lifecycle event to the plugin registry.
func (r *Runtime) emit(ctx context.Context, e RuntimeEvent) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	r.plugins.Emit(ctx, e)
}

func (r *Runtime) run(ctx context.Context, session *models.Session, userMsg *models.Message, opts RuntimeOptions, chunks chan<- *ResponseChunk) error {
	sessionID := session.ID
	r.emit(ctx, RuntimeEvent{Type: EventRunStarted, SessionID: sessionID})

	if err := r.history.PutSession(ctx, session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	history, err := r.history.History(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	if r.compaction != nil {
		if _, err := r.compaction.Check(ctx, sessionID, history, userMsg, nil); err != nil {
			r.logWarn(ctx, "compaction check failed", "error", err)
		}
	}

	if err := r.history.AppendMessage(ctx, userMsg); err != nil {
		return fmt.Errorf("persist user message: %w", err)
	}
	history = append(history, userMsg)

	model := r.defaultModel
	if override, ok := modelFromContext(ctx); ok {
		model = override
	}

	systemPrompt := r.systemPrompt
	if override, ok := systemPromptFromContext(ctx); ok {
		systemPrompt = override
	}

	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 1
	}
	totalToolCalls := 0

	for iteration := 0; iteration < maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			r.emit(ctx, RuntimeEvent{Type: EventRunAborted, SessionID: sessionID})
			return ErrContextCancelled
		}

		req := &CompletionRequest{
			Model:    model,
			System:   systemPrompt,
			Messages: buildCompletionMessages(history),
			Tools:    r.registry.AsLLMTools(),
		}

		stream, err := r.provider.Complete(ctx, req)
		if err != nil {
			return fmt.Errorf("provider completion: %w", err)
		}

		var textBuilder strings.Builder
		var thinkingBuilder strings.Builder
		var toolCalls []ToolCall
		var streamErr error

		for chunk := range stream {
			if chunk.Error != nil {
				streamErr = chunk.Error
				continue
			}
			if chunk.Text != "" {
				textBuilder.WriteString(chunk.Text)
				if textBuilder.Len() > MaxResponseTextSize {
					return fmt.Errorf("response text exceeded %d bytes", MaxResponseTextSize)
				}
				chunks <- &ResponseChunk{Text: chunk.Text}
			}
			if chunk.Thinking != "" {
				thinkingBuilder.WriteString(chunk.Thinking)
				chunks <- &ResponseChunk{Thinking: chunk.Thinking, ThinkingStart: chunk.ThinkingStart, ThinkingEnd: chunk.ThinkingEnd}
			}
			if chunk.ToolCall != nil {
				toolCalls = append(toolCalls, *chunk.ToolCall)
			}
		}
		if streamErr != nil {
			return fmt.Errorf("provider stream: %w", streamErr)
		}

		assistantMsg := &models.Message{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Role:      models.RoleAssistant,
			Mode:      models.ModeNormal,
			CreatedAt: time.Now(),
		}
		if text := textBuilder.String(); text != "" {
			assistantMsg.Parts = append(assistantMsg.Parts, models.MessagePart{Type: models.PartText, Text: text})
		}
		if thinking := thinkingBuilder.String(); thinking != "" {
			assistantMsg.Parts = append(assistantMsg.Parts, models.MessagePart{Type: models.PartReasoning, Text: thinking})
		}

		if len(toolCalls) == 0 {
			if err := r.history.AppendMessage(ctx, assistantMsg); err != nil {
				return fmt.Errorf("persist assistant message: %w", err)
			}
			r.emit(ctx, RuntimeEvent{Type: EventRunFinished, SessionID: sessionID})
			return nil
		}

		if len(toolCalls) > MaxToolCallsPerIteration {
			toolCalls = toolCalls[:MaxToolCallsPerIteration]
		}
		totalToolCalls += len(toolCalls)
		if opts.MaxToolCalls > 0 && totalToolCalls > opts.MaxToolCalls {
			return fmt.Errorf("turn exceeded max tool calls (%d)", opts.MaxToolCalls)
		}

		for _, tc := range toolCalls {
			assistantMsg.Parts = append(assistantMsg.Parts, models.MessagePart{
				Type:      models.PartToolCall,
				CallID:    tc.ID,
				ToolName:  tc.Name,
				ToolInput: tc.Input,
			})
		}

		decisionID := ""
		if r.causal != nil {
			decision := r.causal.RecordDecision(sessionID, "", userMsg.Text(), thinkingBuilder.String(), 1.0)
			decisionID = decision.ID
		}

		results := r.dispatchTools(ctx, session, assistantMsg.ID, toolCalls, opts, decisionID)
		results = guardToolResults(opts.ToolResultGuard, toolCalls, results)

		for _, res := range results {
			assistantMsg.Parts = append(assistantMsg.Parts, models.MessagePart{
				Type:        models.PartToolResult,
				CallID:      res.ToolCallID,
				ToolOutput:  res.Content,
				ToolIsError: res.IsError,
			})
		}

		if err := r.history.AppendMessage(ctx, assistantMsg); err != nil {
			return fmt.Errorf("persist assistant message: %w", err)
		}
		history = append(history, assistantMsg)

		for _, res := range results {
			rec := res
			chunks <- &ResponseChunk{ToolResult: &rec}
		}

		if iteration == maxIterations-1 {
			return ErrMaxIterations
		}
	}

	return ErrMaxIterations
}

// buildCompletionMessages projects stored Messages to the provider wire
// format; tool-call/tool-result parts on the same Message round-trip onto
// the same CompletionMessage, matching how they were recorded.
func buildCompletionMessages(history []*models.Message) []CompletionMessage {
	out := make([]CompletionMessage, 0, len(history))
	for _, msg := range history {
		cm := CompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Text(),
		}
		for _, p := range msg.Parts {
			switch p.Type {
			case models.PartToolCall:
				cm.ToolCalls = append(cm.ToolCalls, ToolCall{ID: p.CallID, Name: p.ToolName, Input: p.ToolInput})
			case models.PartToolResult:
				cm.ToolResults = append(cm.ToolResults, ToolResult{ToolCallID: p.CallID, Content: p.ToolOutput, IsError: p.ToolIsError})
			}
		}
		out = append(out, cm)
	}
	return out
}

// dispatchTools runs the tool dispatch sequence for one iteration's tool
// calls: PreToolUse hook, Permission Engine verdict, execution, PostToolUse
// hook, causal action/outcome recording, and edit-ledger appends.
// Dispatch for a session is serialized by lockSession so a turn's
// file-mutating calls land in the order the model issued them.
func (r *Runtime) dispatchTools(ctx context.Context, session *models.Session, messageID string, calls []ToolCall, opts RuntimeOptions, decisionID string) []ToolResult {
	unlock := r.lockSession(session.ID)
	defer unlock()

	results := make([]ToolResult, len(calls))
	runnable := make([]ToolCall, 0, len(calls))
	runnableIdx := make([]int, 0, len(calls))

	for i, call := range calls {
		scope := toolScope(call)
		kind := toolKind(call.Name)

		if !opts.DisableToolEvents {
			r.emit(ctx, RuntimeEvent{Type: EventToolStarted, SessionID: session.ID, ToolCallID: call.ID, ToolName: call.Name})
		}
		r.logAudit(func(l *audit.Logger) {
			l.LogToolInvocation(ctx, call.Name, call.ID, call.Input, session.ID)
		})

		if r.hooksDisp != nil {
			pre := r.hooksDisp.PreToolUse(ctx, call.Name, scope, string(call.Input))
			if pre.Blocked {
				results[i] = ToolResult{ToolCallID: call.ID, Content: "blocked by hook " + pre.HookName + ": " + pre.Message, IsError: true}
				r.emit(ctx, RuntimeEvent{Type: EventToolBlockedByHook, SessionID: session.ID, ToolCallID: call.ID, ToolName: call.Name, Message: pre.Message})
				if r.metrics != nil {
					r.metrics.RecordHookBlock("pre_tool_use", pre.HookName)
				}
				r.recordCausal(decisionID, call, results[i], 0)
				continue
			}
		}

		action := models.PermissionAllow
		if r.permissions != nil {
			planMode := ElevatedFromContext(ctx) == ElevatedFull
			action, _ = r.permissions.Check("", session.ID, kind, scope, planMode)
			if r.metrics != nil {
				r.metrics.RecordPermissionVerdict(string(kind), string(action))
			}
		}

		switch action {
		case models.PermissionDeny:
			results[i] = ToolResult{ToolCallID: call.ID, Content: "denied by permission policy: " + string(kind), IsError: true}
			r.emit(ctx, RuntimeEvent{Type: EventToolDenied, SessionID: session.ID, ToolCallID: call.ID, ToolName: call.Name})
			r.logAudit(func(l *audit.Logger) {
				l.LogPermissionDecision(ctx, false, string(kind), scope, "check", "policy_deny", session.ID)
			})
			r.recordCausal(decisionID, call, results[i], 0)
		case models.PermissionAsk:
			if r.permissions != nil {
				var inputMap map[string]any
				_ = json.Unmarshal(call.Input, &inputMap)
				if _, err := r.permissions.Ask(ctx, session.ID, messageID, kind, call.Name, inputMap); err != nil {
					results[i] = ToolResult{ToolCallID: call.ID, Content: "permission ask failed: " + err.Error(), IsError: true}
				} else {
					results[i] = ToolResult{ToolCallID: call.ID, Content: "awaiting permission for " + call.Name, IsError: true}
					if r.metrics != nil {
						r.metrics.SetPermissionPending(1)
					}
				}
			} else {
				results[i] = ToolResult{ToolCallID: call.ID, Content: "awaiting permission for " + call.Name, IsError: true}
			}
			r.emit(ctx, RuntimeEvent{Type: EventPermissionAsk, SessionID: session.ID, ToolCallID: call.ID, ToolName: call.Name})
			r.recordCausal(decisionID, call, results[i], 0)
		default: // PermissionAllow
			runnable = append(runnable, call)
			runnableIdx = append(runnableIdx, i)
		}
	}

	if len(runnable) > 0 {
		toolExec := NewToolExecutor(r.registry, r.toolExecCfg)
		execResults := toolExec.ExecuteConcurrently(ctx, runnable, func(e *RuntimeEvent) {
			if e != nil && !opts.DisableToolEvents {
				r.emit(ctx, *e)
			}
		})
		for j, execResult := range execResults {
			i := runnableIdx[j]
			call := calls[i]
			res := execResult.Result
			res.ToolCallID = call.ID

			if r.hooksDisp != nil {
				post := r.hooksDisp.PostToolUse(ctx, call.Name, toolScope(call), res.Content)
				if post.Blocked {
					res = ToolResult{ToolCallID: call.ID, Content: "blocked by hook " + post.HookName + ": " + post.Message, IsError: true}
					if r.metrics != nil {
						r.metrics.RecordHookBlock("post_tool_use", post.HookName)
					}
				}
			}

			if r.metrics != nil {
				status := "ok"
				if res.IsError {
					status = "error"
				}
				r.metrics.RecordToolExecution(call.Name, status, execResult.EndTime.Sub(execResult.StartTime).Seconds())
			}
			duration := execResult.EndTime.Sub(execResult.StartTime)
			r.logAudit(func(l *audit.Logger) {
				l.LogToolCompletion(ctx, call.Name, call.ID, !res.IsError, res.Content, duration, session.ID)
			})

			results[i] = res
			r.recordCausal(decisionID, call, res, duration)
			r.recordEdit(ctx, session, call, res)
		}
	}

	return results
}

// recordCausal records the action/outcome pair for one dispatched tool call
// onto the causal graph, when a Recorder is wired.
func (r *Runtime) recordCausal(decisionID string, call ToolCall, res ToolResult, duration time.Duration) {
	if r.causal == nil || decisionID == "" {
		return
	}
	action := r.causal.RecordAction(decisionID, models.ActionToolExecution, call.Name, string(call.Input), res.Content, duration)
	status := models.OutcomeSuccess
	if res.IsError {
		status = models.OutcomeFailure
	}
	r.causal.RecordOutcome(action.ID, status, res.Content, nil, "")
	if r.metrics != nil {
		r.metrics.RecordCausalOutcome(call.Name, string(status))
	}
}

// recordEdit appends a FileChange ledger entry for a successful edit-class
// tool call, when an EditRecorder is wired.
func (r *Runtime) recordEdit(ctx context.Context, session *models.Session, call ToolCall, res ToolResult) {
	if r.edits == nil || res.IsError || toolKind(call.Name) != models.KindEdit {
		return
	}
	rec := &models.EditRecord{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Timestamp: time.Now(),
		Changes:   []models.FileChange{{Path: scopeFromInput(call.Input), Op: models.EditUpdate}},
		Model:     r.defaultModel,
	}
	if err := r.edits.Append(ctx, rec); err != nil {
		r.logWarn(ctx, "edit record append failed", "error", err)
	}
}

func (r *Runtime) logWarn(ctx context.Context, msg string, args ...any) {
	logger := r.baseOpts.Logger
	if logger == nil {
		return
	}
	logger.WarnContext(ctx, msg, args...)
}

// toolKind classifies a tool name into the Permission Engine's kind
// vocabulary by name convention; unrecognized names fall back to KindBash,
// the conservative ask-by-default verdict (internal/permission.BuiltinDefaults).
func toolKind(name string) models.PermissionKind {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "todo") && strings.Contains(n, "read"):
		return models.KindTodoRead
	case strings.Contains(n, "todo") && strings.Contains(n, "write"):
		return models.KindTodoWrite
	case strings.Contains(n, "write") || strings.Contains(n, "edit") || strings.Contains(n, "patch"):
		return models.KindEdit
	case strings.Contains(n, "read") || strings.Contains(n, "cat") || strings.Contains(n, "view"):
		return models.KindRead
	case strings.Contains(n, "bash") || strings.Contains(n, "shell") || strings.Contains(n, "exec") || strings.Contains(n, "run"):
		return models.KindBash
	case strings.Contains(n, "websearch") || strings.Contains(n, "web_search"):
		return models.KindWebSearch
	case strings.Contains(n, "fetch") || strings.Contains(n, "http") || strings.Contains(n, "url"):
		return models.KindWebFetch
	case strings.Contains(n, "codesearch") || strings.Contains(n, "code_search"):
		return models.KindCodeSearch
	case strings.Contains(n, "grep") || strings.Contains(n, "search"):
		return models.KindGrep
	case strings.Contains(n, "glob") || strings.Contains(n, "find"):
		return models.KindGlob
	case strings.Contains(n, "list") || strings.Contains(n, "ls"):
		return models.KindList
	case strings.Contains(n, "question") || strings.Contains(n, "ask"):
		return models.KindQuestion
	default:
		return models.KindBash
	}
}

// toolScope extracts the path/command/url/query the Permission Engine
// matches its rule pattern against, from whatever field a tool's input
// commonly carries it under.
func toolScope(call ToolCall) string {
	return scopeFromInput(call.Input)
}

func scopeFromInput(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ""
	}
	for _, key := range []string{"path", "file_path", "command", "url", "query"} {
		if v, ok := fields[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

