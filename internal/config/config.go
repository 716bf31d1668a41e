package config

import (
	"fmt"
	"strings"

	"github.com/codecoder/core/internal/agents"
	"github.com/codecoder/core/internal/permission"
	"github.com/codecoder/core/pkg/models"
)

// Config is the root configuration for a codecoder project: the
// codecoder.json/codecoder.yaml file at a worktree's root.
type Config struct {
	DefaultAgent  string                           `yaml:"default_agent"`
	Agent         map[string]*agents.RegistryEntry `yaml:"agent"`
	Permission    permission.RawRuleSet            `yaml:"permission"`
	MCP           map[string]MCPServerConfig       `yaml:"mcp"`
	Model         string                           `yaml:"model"`
	Provider      string                           `yaml:"provider"`
	Username      string                           `yaml:"username"`
	Experimental  ExperimentalConfig               `yaml:"experimental"`
	Hooks         HooksConfig                      `yaml:"hooks"`
	Skills        SkillsConfig                     `yaml:"skills"`
	Logging       LoggingConfig                    `yaml:"logging"`
	Observability ObservabilityConfig              `yaml:"observability"`
}

// MCPServerConfig describes one MCP server entry: either a child process
// launched over stdio (Command/Args/Env) or a server reached over URL.
// Discovery and the wire protocol are out of scope for the core; this is
// the data shape a caller-supplied MCP client uses to connect.
type MCPServerConfig struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	URL     string            `yaml:"url"`
}

// ExperimentalConfig gates features still under evaluation.
type ExperimentalConfig struct {
	OpenTelemetry bool `yaml:"openTelemetry"`
}

// HooksConfig lists the hook definition files the Hook Pipeline loads and
// watches for changes.
type HooksConfig struct {
	Paths []string `yaml:"paths"`
}

// SkillsConfig lists skill directories the Agent Registry and Tool
// Registry consult. No filesystem discovery walker ships in the core;
// this is the plain path list a caller-supplied loader consumes.
type SkillsConfig struct {
	Paths []string `yaml:"paths"`
}

// Load reads and parses the configuration file (YAML, JSON, or JSON5,
// selected by extension), resolving any $include directives, then applies
// defaults and validates the result.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration a project gets when no config file is
// present: every default applied, nothing else set.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.DefaultAgent == "" {
		cfg.DefaultAgent = "build"
	}
	if cfg.Provider == "" {
		cfg.Provider = "anthropic"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if len(cfg.Hooks.Paths) == 0 {
		cfg.Hooks.Paths = []string{".codecoder/hooks.json"}
	}
	if len(cfg.Skills.Paths) == 0 {
		cfg.Skills.Paths = []string{".codecoder/skills"}
	}
}

// RegistryConfig adapts the project config's default_agent/agent fields to
// the shape internal/agents.Build expects.
func (cfg *Config) RegistryConfig() *agents.RegistryConfig {
	if cfg == nil {
		return &agents.RegistryConfig{}
	}
	return &agents.RegistryConfig{
		DefaultAgent: cfg.DefaultAgent,
		Agents:       cfg.Agent,
	}
}

// ConfigValidationError collects every config issue found, rather than
// failing on the first one, so a config author can fix a file in one pass.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var issues []string

	for kind, rule := range cfg.Permission {
		if rule.Action == "" && len(rule.Patterns) == 0 {
			issues = append(issues, fmt.Sprintf("permission[%s] must set an action or at least one pattern", kind))
			continue
		}
		if err := validatePermissionAction(rule.Action); rule.Action != "" && err != nil {
			issues = append(issues, fmt.Sprintf("permission[%s]: %v", kind, err))
		}
		for pattern, action := range rule.Patterns {
			if err := validatePermissionAction(action); err != nil {
				issues = append(issues, fmt.Sprintf("permission[%s][%s]: %v", kind, pattern, err))
			}
		}
	}

	for name, server := range cfg.MCP {
		if strings.TrimSpace(server.Command) == "" && strings.TrimSpace(server.URL) == "" {
			issues = append(issues, fmt.Sprintf("mcp[%s] must set command or url", name))
		}
	}

	if level := strings.ToLower(strings.TrimSpace(cfg.Logging.Level)); level != "" {
		switch level {
		case "debug", "info", "warn", "error":
		default:
			issues = append(issues, "logging.level must be \"debug\", \"info\", \"warn\", or \"error\"")
		}
	}
	if format := strings.ToLower(strings.TrimSpace(cfg.Logging.Format)); format != "" {
		switch format {
		case "json", "text":
		default:
			issues = append(issues, "logging.format must be \"json\" or \"text\"")
		}
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}

func validatePermissionAction(action models.PermissionAction) error {
	switch action {
	case "allow", "ask", "deny":
		return nil
	default:
		return fmt.Errorf("action must be \"allow\", \"ask\", or \"deny\", got %q", action)
	}
}
