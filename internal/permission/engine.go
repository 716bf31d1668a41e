package permission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codecoder/core/internal/bus"
	"github.com/codecoder/core/pkg/models"
)

// Engine resolves tool invocations to allow/ask/deny verdicts and manages
// the ask/reply lifecycle for pending requests. One Engine instance is
// shared process-wide; readers take the read lock, and the one mutation a
// running turn can make — appending an allow_always rule — takes the
// write lock and otherwise behaves as copy-on-write: Check always reads a
// fresh snapshot of the compiled rules.
type Engine struct {
	mu sync.RWMutex

	defaults     RawRuleSet
	agentRules   map[string]RawRuleSet
	project      RawRuleSet
	sessionAllow map[string][]models.PermissionRule // per-session allow_always appends
	requestKinds map[string]models.PermissionKind   // request ID -> kind, for allow_always

	requests RequestStore
	bus      *bus.Bus
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithProjectRules sets the project-config layer.
func WithProjectRules(rules RawRuleSet) Option {
	return func(e *Engine) { e.project = rules }
}

// WithRequestStore sets the backing store for pending ask requests.
func WithRequestStore(store RequestStore) Option {
	return func(e *Engine) { e.requests = store }
}

// WithBus wires the Engine to publish permission.updated events.
func WithBus(b *bus.Bus) Option {
	return func(e *Engine) { e.bus = b }
}

// New creates an Engine seeded with the built-in defaults.
func New(opts ...Option) *Engine {
	e := &Engine{
		defaults:     BuiltinDefaults(),
		agentRules:   make(map[string]RawRuleSet),
		sessionAllow: make(map[string][]models.PermissionRule),
		requestKinds: make(map[string]models.PermissionKind),
		requests:     NewMemoryRequestStore(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetAgentRules sets the override layer for a specific agent.
func (e *Engine) SetAgentRules(agentID string, rules RawRuleSet) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.agentRules[agentID] = rules
}

// Errors returned by the ask/reply lifecycle.
var (
	ErrUnknownRequestID = fmt.Errorf("permission: unknown request id")
	ErrAlreadyAnswered  = fmt.Errorf("permission: request already answered")
)

// compiled returns the current decision list for agentID in planMode,
// including any session-scoped allow_always rules appended so far.
func (e *Engine) compiled(agentID, sessionID string, planMode bool) []models.PermissionRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	layers := []RawRuleSet{e.defaults}
	if agent, ok := e.agentRules[agentID]; ok {
		layers = append(layers, agent)
	}
	if e.project != nil {
		layers = append(layers, e.project)
	}

	rules := Compile(planMode, layers...)
	if extra := e.sessionAllow[sessionID]; len(extra) > 0 {
		rules = append(rules, extra...)
		sortRules(rules)
	}
	return rules
}

// Check resolves kind/scope to a verdict for the given agent and session.
// planMode narrows edit to the plan-markdown allowlist. scope is the
// tool-input-derived value the rule's pattern is matched against (a path
// for read/edit/external_directory, empty for unscoped kinds).
func (e *Engine) Check(agentID, sessionID string, kind models.PermissionKind, scope string, planMode bool) (models.PermissionAction, *models.PermissionRule) {
	for _, rule := range e.compiled(agentID, sessionID, planMode) {
		if rule.Kind != kind {
			continue
		}
		if MatchPattern(rule.Pattern, scope) {
			r := rule
			return rule.Action, &r
		}
	}
	return models.PermissionAsk, nil
}

// Ask persists a pending PermissionRequest and publishes it on the bus,
// for the Runtime to suspend the turn on. kind is remembered so a later
// allow_always reply knows which permission kind to append a rule for.
func (e *Engine) Ask(ctx context.Context, sessionID, messageID string, kind models.PermissionKind, tool string, input map[string]any) (*models.PermissionRequest, error) {
	req := &models.PermissionRequest{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		MessageID:       messageID,
		Tool:            tool,
		Input:           input,
		DerivedPatterns: derivePatterns(input),
		Status:          models.RequestPending,
		CreatedAt:       time.Now(),
	}
	if err := e.requests.Create(ctx, req); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.requestKinds[req.ID] = kind
	e.mu.Unlock()

	if e.bus != nil {
		e.bus.Publish(ctx, bus.NewEvent(bus.KindPermissionUpdated, sessionID, req))
	}
	return req, nil
}

// Reply resolves a pending request. allow_always appends a new allow rule
// to the session's ruleset for the rest of the session; deny's message
// becomes the tool result body the Runtime surfaces.
func (e *Engine) Reply(ctx context.Context, requestID string, reply models.PermissionReplyKind, message string) (*models.PermissionRequest, error) {
	req, err := e.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrUnknownRequestID
	}
	if req.Status == models.RequestAnswered {
		return nil, ErrAlreadyAnswered
	}

	req.Reply = reply
	req.ReplyBody = message
	req.Status = models.RequestAnswered
	req.AnsweredAt = time.Now()

	if reply == models.ReplyAllowAlways {
		e.appendSessionAllow(req)
	}

	if err := e.requests.Update(ctx, req); err != nil {
		return nil, err
	}
	if e.bus != nil {
		e.bus.Publish(ctx, bus.NewEvent(bus.KindPermissionUpdated, req.SessionID, req))
	}
	return req, nil
}

func (e *Engine) appendSessionAllow(req *models.PermissionRequest) {
	patterns := req.DerivedPatterns
	if len(patterns) == 0 {
		patterns = []string{"*"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	kind, ok := e.requestKinds[req.ID]
	if !ok {
		kind = models.KindBash
	}
	for _, pattern := range patterns {
		e.sessionAllow[req.SessionID] = append(e.sessionAllow[req.SessionID], models.PermissionRule{
			Kind:        kind,
			Pattern:     pattern,
			Action:      models.PermissionAllow,
			Specificity: specificity(pattern) + planModeSpecificityBoost, // outranks defaults/project for this session
		})
	}
}

// derivePatterns extracts candidate glob patterns from tool input for an
// "always allow this path" reply — currently the "path" and "command"
// fields tool inputs commonly carry.
func derivePatterns(input map[string]any) []string {
	patterns := make([]string, 0, 1)
	for _, key := range []string{"path", "file_path", "command"} {
		if v, ok := input[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				patterns = append(patterns, s)
			}
		}
	}
	return patterns
}
