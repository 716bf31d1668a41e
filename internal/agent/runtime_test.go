package agent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/codecoder/core/internal/hooks"
	"github.com/codecoder/core/internal/permission"
	"github.com/codecoder/core/pkg/models"
)

// scriptedProvider replays a fixed sequence of completion chunk batches, one
// batch per call to Complete, so tests can drive the turn loop through a
// known number of iterations.
type scriptedProvider struct {
	batches [][]*CompletionChunk
	calls   int
	seen    []*CompletionRequest
}

func (p *scriptedProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	p.seen = append(p.seen, req)
	idx := p.calls
	p.calls++
	ch := make(chan *CompletionChunk, len(p.batches[idx])+1)
	for _, c := range p.batches[idx] {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) Name() string          { return "scripted" }
func (p *scriptedProvider) Models() []Model       { return nil }
func (p *scriptedProvider) SupportsTools() bool    { return true }

func textOnlyProvider(text string) *scriptedProvider {
	return &scriptedProvider{batches: [][]*CompletionChunk{{{Text: text, Done: true}}}}
}

func newTestRuntime(provider LLMProvider, registry *ToolRegistry) *Runtime {
	rt := NewRuntime(provider, registry)
	opts := DefaultRuntimeOptions()
	opts.MaxIterations = 3
	rt.SetOptions(opts)
	return rt
}

func drain(t *testing.T, ch <-chan *ResponseChunk) []*ResponseChunk {
	t.Helper()
	var out []*ResponseChunk
	timeout := time.After(2 * time.Second)
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, c)
		case <-timeout:
			t.Fatal("timed out waiting for response stream")
		}
	}
}

func TestProcess_NoToolCalls_PersistsTranscript(t *testing.T) {
	rt := newTestRuntime(textOnlyProvider("hello there"), nil)

	ch, err := rt.Process(context.Background(), "sess-1", "hi")
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	chunks := drain(t, ch)

	var gotText string
	var gotError error
	for _, c := range chunks {
		gotText += c.Text
		if c.Error != nil {
			gotError = c.Error
		}
	}
	if gotError != nil {
		t.Fatalf("unexpected error chunk: %v", gotError)
	}
	if gotText != "hello there" {
		t.Errorf("gotText = %q, want %q", gotText, "hello there")
	}

	history, err := rt.history.History(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 persisted messages (user + assistant), got %d", len(history))
	}
	if history[0].Role != models.RoleUser || history[0].Text() != "hi" {
		t.Errorf("history[0] = %+v, want user message 'hi'", history[0])
	}
	if history[1].Role != models.RoleAssistant || history[1].Text() != "hello there" {
		t.Errorf("history[1] = %+v, want assistant message 'hello there'", history[1])
	}
}

func TestProcess_NoProvider_ReturnsError(t *testing.T) {
	rt := NewRuntime(nil, nil)
	if _, err := rt.Process(context.Background(), "sess-1", "hi"); err != ErrNoProvider {
		t.Errorf("err = %v, want ErrNoProvider", err)
	}
}

func TestProcess_EmptySessionID_ReturnsError(t *testing.T) {
	rt := newTestRuntime(textOnlyProvider("hi"), nil)
	if _, err := rt.Process(context.Background(), "", "hi"); err == nil {
		t.Error("expected error for empty session ID")
	}
}

// echoTool reports back whatever "value" field it was given.
type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes its input" }
func (echoTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object"}`)
}
func (echoTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	var in struct {
		Value string `json:"value"`
	}
	_ = json.Unmarshal(params, &in)
	return &ToolResult{Content: "echo:" + in.Value}, nil
}

func TestProcess_ToolCall_AllowedByDefault_ExecutesAndContinues(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(echoTool{})

	callInput, _ := json.Marshal(map[string]string{"value": "x"})
	provider := &scriptedProvider{batches: [][]*CompletionChunk{
		{{ToolCall: &ToolCall{ID: "call-1", Name: "echo", Input: callInput}, Done: true}},
		{{Text: "final answer", Done: true}},
	}}

	rt := newTestRuntime(provider, registry)
	eng := permission.New()
	rt.SetPermissionEngine(eng)

	ch, err := rt.Process(context.Background(), "sess-2", "run echo")
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	chunks := drain(t, ch)

	var sawToolResult bool
	var finalText string
	for _, c := range chunks {
		if c.ToolResult != nil && c.ToolResult.Content == "echo:x" {
			sawToolResult = true
		}
		finalText += c.Text
		if c.Error != nil {
			t.Fatalf("unexpected error chunk: %v", c.Error)
		}
	}
	if !sawToolResult {
		t.Error("expected a tool result chunk for the echo tool")
	}
	if finalText != "final answer" {
		t.Errorf("finalText = %q, want %q", finalText, "final answer")
	}
	if provider.calls != 2 {
		t.Errorf("provider called %d times, want 2 (one per iteration)", provider.calls)
	}
}

func TestProcess_ToolCall_DeniedByPermission_SkipsExecution(t *testing.T) {
	registry := NewToolRegistry()
	var executed bool
	registry.Register(&testExecTool{
		name: "rm",
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			executed = true
			return &ToolResult{Content: "should not run"}, nil
		},
	})

	provider := &scriptedProvider{batches: [][]*CompletionChunk{
		{{ToolCall: &ToolCall{ID: "call-1", Name: "rm", Input: json.RawMessage(`{"command":"rm -rf /"}`)}, Done: true}},
		{{Text: "stopped", Done: true}},
	}}

	rt := newTestRuntime(provider, registry)
	eng := permission.New(permission.WithProjectRules(permission.RawRuleSet{
		models.KindBash: {Action: models.PermissionDeny},
	}))
	rt.SetPermissionEngine(eng)

	ch, err := rt.Process(context.Background(), "sess-3", "delete everything")
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	chunks := drain(t, ch)

	var sawDenied bool
	for _, c := range chunks {
		if c.ToolResult != nil && c.ToolResult.IsError {
			sawDenied = true
		}
	}
	if !sawDenied {
		t.Error("expected a denied tool result chunk")
	}
	if executed {
		t.Error("tool must not execute once denied by the permission engine")
	}
}

func TestProcess_ToolCall_HookDispatcherWithNoRules_StillExecutes(t *testing.T) {
	registry := NewToolRegistry()
	var executed bool
	registry.Register(&testExecTool{
		name: "write_file",
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			executed = true
			return &ToolResult{Content: "wrote"}, nil
		},
	})

	provider := &scriptedProvider{batches: [][]*CompletionChunk{
		{{ToolCall: &ToolCall{ID: "call-1", Name: "write_file", Input: json.RawMessage(`{"path":"/etc/passwd"}`)}, Done: true}},
		{{Text: "stopped", Done: true}},
	}}

	rt := newTestRuntime(provider, registry)
	rt.SetHookDispatcher(hooks.Load(nil, nil, nil))

	ch, err := rt.Process(context.Background(), "sess-4", "edit system file")
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	_ = drain(t, ch)

	if !executed {
		t.Error("expected the tool to run when the hook dispatcher has no configured rules")
	}
}

func TestBuildCompletionMessages_RoundTripsToolParts(t *testing.T) {
	history := []*models.Message{
		{
			Role: models.RoleAssistant,
			Parts: []models.MessagePart{
				{Type: models.PartText, Text: "running a tool"},
				{Type: models.PartToolCall, CallID: "c1", ToolName: "echo", ToolInput: json.RawMessage(`{"value":"x"}`)},
				{Type: models.PartToolResult, CallID: "c1", ToolOutput: "echo:x"},
			},
		},
	}

	msgs := buildCompletionMessages(history)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Content != "running a tool" {
		t.Errorf("Content = %q", msgs[0].Content)
	}
	if len(msgs[0].ToolCalls) != 1 || msgs[0].ToolCalls[0].Name != "echo" {
		t.Errorf("ToolCalls = %+v", msgs[0].ToolCalls)
	}
	if len(msgs[0].ToolResults) != 1 || msgs[0].ToolResults[0].Content != "echo:x" {
		t.Errorf("ToolResults = %+v", msgs[0].ToolResults)
	}
}

func TestToolKind_Classification(t *testing.T) {
	cases := map[string]models.PermissionKind{
		"read_file":     models.KindRead,
		"write_file":    models.KindEdit,
		"bash":          models.KindBash,
		"web_fetch":     models.KindWebFetch,
		"websearch":     models.KindWebSearch,
		"grep":          models.KindGrep,
		"glob":          models.KindGlob,
		"list_dir":      models.KindList,
		"todo_read":     models.KindTodoRead,
		"todo_write":    models.KindTodoWrite,
		"mystery_tool":  models.KindBash,
	}
	for name, want := range cases {
		if got := toolKind(name); got != want {
			t.Errorf("toolKind(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestToolScope_ExtractsPathFromInput(t *testing.T) {
	call := ToolCall{Input: json.RawMessage(`{"path":"/tmp/foo.go"}`)}
	if got := toolScope(call); got != "/tmp/foo.go" {
		t.Errorf("toolScope = %q, want /tmp/foo.go", got)
	}
}

func TestToolScope_EmptyInput(t *testing.T) {
	call := ToolCall{}
	if got := toolScope(call); got != "" {
		t.Errorf("toolScope = %q, want empty", got)
	}
}
