// Command codecoder is the terminal entry point for the agent runtime: it
// loads a project's codecoder.json/codecoder.yaml, wires the Permission
// Engine, Hook Dispatch Pipeline, Memory Router, Causal Graph recorder, and
// Agent Registry into a Runtime, and drives a single turn's output to
// stdout per invocation.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/codecoder/core/internal/agent"
	"github.com/codecoder/core/internal/agent/providers"
	"github.com/codecoder/core/internal/agents"
	"github.com/codecoder/core/internal/audit"
	"github.com/codecoder/core/internal/bus"
	"github.com/codecoder/core/internal/causal"
	"github.com/codecoder/core/internal/config"
	turncontext "github.com/codecoder/core/internal/context"
	"github.com/codecoder/core/internal/hooks"
	"github.com/codecoder/core/internal/memory"
	"github.com/codecoder/core/internal/observability"
	"github.com/codecoder/core/internal/permission"
	"github.com/codecoder/core/internal/storage"
	"github.com/codecoder/core/internal/writer"
)

func main() {
	var (
		configPath  = flag.String("config", "codecoder.json", "path to the project config file")
		workspace   = flag.String("workspace", ".", "workspace root the session runs against")
		sessionID   = flag.String("session", "", "session ID to resume; a new one is generated if empty")
		dbPath      = flag.String("db", "", "sqlite database path; \":memory:\" and empty both use an in-process store")
		agentName   = flag.String("agent", "", "agent to drive this turn with; defaults to the configured default agent")
		printSchema = flag.Bool("print-schema", false, "print the config file's JSON Schema and exit")
	)
	flag.Parse()

	if *printSchema {
		schema, err := config.JSONSchema()
		if err != nil {
			fmt.Fprintln(os.Stderr, "codecoder: generate schema:", err)
			os.Exit(1)
		}
		os.Stdout.Write(schema)
		fmt.Println()
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "codecoder:", err)
		os.Exit(1)
	}

	log := observability.NewLogger(observability.LogConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	slogLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Logging.Level, "debug") {
		slogLevel = slog.LevelDebug
	}
	baseLogger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(*dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "codecoder: open store:", err)
		os.Exit(1)
	}
	defer store.Close()

	eventBus := bus.New(baseLogger)

	projectRules := cfg.Permission
	engine := permission.New(permission.WithProjectRules(projectRules), permission.WithBus(eventBus))

	dispatcher := hooks.Load(cfg.Hooks.Paths, eventBus, baseLogger)
	if err := dispatcher.Watch(ctx); err != nil {
		log.Warn(ctx, "hook hot-reload disabled", "error", err)
	}
	defer dispatcher.Close()

	recorder := causal.NewRecorder()
	router := memory.NewRouter(store)
	memManager, err := memory.NewManager(nil) // vector recall is opt-in via memory config; none configured by codecoder.json's narrow schema
	if err != nil {
		fmt.Fprintln(os.Stderr, "codecoder: memory manager:", err)
		os.Exit(1)
	}
	editsSource := agent.NewEditRecorder(store)
	ctxBuilder := turncontext.NewBuilder(router, memManager, recorder, editsSource, *workspace)

	registry := agents.Build(cfg.RegistryConfig(), projectRules)
	registry.Configure(engine)

	selected := *agentName
	if selected == "" {
		selected = cfg.DefaultAgent
	}
	info, err := registry.ResolveDefault(selected)
	if err != nil {
		fmt.Fprintln(os.Stderr, "codecoder: resolve agent:", err)
		os.Exit(1)
	}

	provider, err := buildProvider(cfg.Provider)
	if err != nil {
		fmt.Fprintln(os.Stderr, "codecoder:", err)
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	supervisor := writer.New(writer.WithBus(eventBus))
	_ = supervisor // exercised by long-running edit tasks the agent's write tool enqueues

	auditLogger, err := audit.NewLogger(audit.Config{
		Enabled: true,
		Level:   audit.LevelInfo,
		Format:  audit.FormatJSON,
		Output:  "stderr",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "codecoder: audit logger:", err)
		os.Exit(1)
	}
	defer auditLogger.Close()

	runtime := agent.NewRuntime(provider, agent.NewToolRegistry())
	runtime.SetPermissionEngine(engine)
	runtime.SetHookDispatcher(dispatcher)
	runtime.SetCausalRecorder(recorder)
	runtime.SetEditRecorder(editsSource)
	runtime.SetMetrics(metrics)
	runtime.SetAuditLogger(auditLogger)
	runtime.SetHistoryStore(agent.NewHistoryStore(store))
	runtime.SetDefaultModel(firstNonEmpty(info.Model, cfg.Model))

	session := *sessionID
	if session == "" {
		session = uuid.NewString()
	}

	agentCtx := ctxBuilder.Build(ctx, &turncontext.BuildRequest{SessionID: session})
	runtime.SetSystemPrompt(strings.TrimSpace(info.Prompt + "\n\n" + agentCtx.Markdown))

	if err := runTurn(ctx, runtime, session); err != nil {
		fmt.Fprintln(os.Stderr, "codecoder:", err)
		os.Exit(1)
	}
}

// loadConfig reads the project config file, falling back to pure defaults
// when the file is simply absent (a fresh workspace with no config yet is
// not an error).
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return config.Default(), nil
		}
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config file: %w", err)
	}
	return cfg, nil
}

func openStore(path string) (storage.Store, error) {
	if strings.TrimSpace(path) == "" {
		return storage.NewMemoryStore(), nil
	}
	return storage.NewSQLiteStore(path, nil)
}

// buildProvider selects an LLMProvider by name, reading credentials from
// the environment the way the teacher's provider adapters expect — the
// project config carries only the provider's name and default model, never
// a secret.
func buildProvider(name string) (agent.LLMProvider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "anthropic":
		return providers.NewAnthropicProvider(providers.AnthropicConfig{APIKey: os.Getenv("ANTHROPIC_API_KEY")})
	case "openai":
		return providers.NewOpenAIProvider(os.Getenv("OPENAI_API_KEY")), nil
	case "google", "gemini":
		return providers.NewGoogleProvider(providers.GoogleConfig{APIKey: os.Getenv("GOOGLE_API_KEY")})
	case "ollama":
		return providers.NewOllamaProvider(providers.OllamaConfig{BaseURL: os.Getenv("OLLAMA_BASE_URL")}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// runTurn reads one line of user input from stdin and streams the
// resulting response chunks to stdout.
func runTurn(ctx context.Context, runtime *agent.Runtime, sessionID string) error {
	fmt.Print("> ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read input: %w", err)
	}

	chunks, err := runtime.Process(ctx, sessionID, strings.TrimSpace(line))
	if err != nil {
		return fmt.Errorf("process turn: %w", err)
	}

	for chunk := range chunks {
		if chunk.Error != nil {
			return chunk.Error
		}
		if chunk.Text != "" {
			fmt.Print(chunk.Text)
		}
		if chunk.ToolResult != nil {
			fmt.Printf("\n[tool result] %s\n", summarize(chunk.ToolResult.Content))
		}
	}
	fmt.Println()
	return nil
}

func summarize(s string) string {
	const maxLen = 200
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
