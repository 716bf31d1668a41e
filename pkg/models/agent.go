package models

// AgentMode classifies how an agent can be invoked.
type AgentMode string

const (
	AgentPrimary  AgentMode = "primary"
	AgentSubagent AgentMode = "subagent"
	AgentAll      AgentMode = "all"
)

// ToolOptions carries per-tool configuration overrides for an agent, keyed
// by tool name (e.g. timeout overrides, output caps).
type ToolOptions map[string]map[string]any

// AgentInfo is a materialized agent definition: built-ins merged with user
// config, immutable per process after first access (§4.5).
type AgentInfo struct {
	Name        string      `json:"name"`
	Mode        AgentMode   `json:"mode"`
	Description string      `json:"description,omitempty"`
	Model       string      `json:"model,omitempty"`
	Prompt      string      `json:"prompt,omitempty"`
	ToolOptions ToolOptions `json:"tool_options,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`

	Hidden bool `json:"hidden,omitempty"`
	Steps  int  `json:"steps,omitempty"`

	// Native marks a built-in agent; user-only agents default to Mode=All,
	// Native=false.
	Native bool `json:"native,omitempty"`

	Color string `json:"color,omitempty"`

	// Permission is the agent's compiled ruleset name/reference; the actual
	// compiled rules live in the permission engine, keyed by agent name.
	PermissionRaw map[string]any `json:"permission,omitempty"`
}

// IsVisiblePrimary reports whether this agent can serve as the default
// primary agent.
func (a *AgentInfo) IsVisiblePrimary() bool {
	return a != nil && !a.Hidden && a.Mode == AgentPrimary
}
