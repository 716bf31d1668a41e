package models

// HookEvent identifies when a hook entry runs relative to tool execution.
type HookEvent string

const (
	HookPreToolUse  HookEvent = "PreToolUse"
	HookPostToolUse HookEvent = "PostToolUse"
)

// HookActionType is one of the three action kinds a hook entry can run.
type HookActionType string

const (
	ActionScan        HookActionType = "scan"
	ActionNotifyOnly  HookActionType = "notify_only"
	ActionCheckEnv    HookActionType = "check_env"
)

// HookAction is one step of a hook entry's action list, evaluated in order.
type HookAction struct {
	Type HookActionType `json:"type"`

	// Patterns are regexes scanned against tool input (Pre) or output (Post).
	Patterns []string `json:"patterns,omitempty"`
	// Message is the block/notify message; "{match}" is substituted with the
	// matched substring for scan actions.
	Message string `json:"message,omitempty"`
	Block   bool   `json:"block,omitempty"`

	// Variable and CommandPattern configure check_env actions: if Variable is
	// unset in the environment and CommandPattern matches the command input,
	// this action behaves as a block.
	Variable       string `json:"variable,omitempty"`
	CommandPattern string `json:"command_pattern,omitempty"`
}

// HookEntry is one named entry under an event in hooks.json.
type HookEntry struct {
	Name        string       `json:"-"`
	Event       HookEvent    `json:"-"`
	Pattern     string       `json:"pattern"`
	FilePattern string       `json:"file_pattern,omitempty"`
	Actions     []HookAction `json:"actions"`
}

// HookConfig is the root shape of a hooks.json file.
type HookConfig struct {
	Hooks struct {
		PreToolUse  map[string]HookEntry `json:"PreToolUse,omitempty"`
		PostToolUse map[string]HookEntry `json:"PostToolUse,omitempty"`
	} `json:"hooks"`
	Settings struct {
		Enabled *bool `json:"enabled,omitempty"`
	} `json:"settings,omitempty"`
}

// Enabled reports whether this config's hooks are active (default true).
func (c *HookConfig) Enabled() bool {
	if c == nil || c.Settings.Enabled == nil {
		return true
	}
	return *c.Settings.Enabled
}

// HookResult is the only shape the Runtime consumes from the hook pipeline.
type HookResult struct {
	Blocked  bool   `json:"blocked"`
	HookName string `json:"hook_name,omitempty"`
	Message  string `json:"message,omitempty"`
}
