package agents

import (
	"fmt"
	"sort"

	"github.com/codecoder/core/internal/permission"
	"github.com/codecoder/core/pkg/models"
)

// AgentMode classifies where an agent may appear: as the primary driver of
// a top-level session, as a sub-agent spawned by another agent's turn, or
// either.
type AgentMode string

const (
	ModePrimary  AgentMode = "primary"
	ModeSubagent AgentMode = "subagent"
	ModeAll      AgentMode = "all"
)

// AgentInfo is the materialized, immutable-per-process definition of one
// agent: built-in defaults merged with whatever a user's config overrides.
type AgentInfo struct {
	Name        string
	Mode        AgentMode
	Native      bool // true for a built-in agent; false for a user-defined one
	Hidden      bool
	Model       string // empty means the provider's default model
	Prompt      string
	Description string
	Color       string
	Steps       int
	Temperature *float64
	TopP        *float64
	Options     map[string]string

	// Permission is this agent's fully compiled decision list: built-in
	// defaults overlaid with this agent's own rules and the project's.
	// The first matching rule decides (see internal/permission.Compile).
	Permission []models.PermissionRule

	// rawPermission is this agent's own override layer (built-in rules
	// merged with any user-config override), kept uncompiled so it can be
	// handed to an Engine via Configure without baking in planMode=false.
	rawPermission permission.RawRuleSet
}

// RegistryConfig is the user-config subset the registry merges over
// built-ins: one entry per agent, plus the default_agent selector.
type RegistryConfig struct {
	DefaultAgent string                    `json:"default_agent,omitempty" yaml:"default_agent"`
	Agents       map[string]*RegistryEntry `json:"agents,omitempty" yaml:"agents"`
}

// RegistryEntry is a user override for one agent. A nil field leaves the
// built-in (or, for a user-only agent, the zero-value) untouched; Disable
// removes the agent from the resolved map entirely.
type RegistryEntry struct {
	Disable     bool                  `json:"disable,omitempty" yaml:"disable"`
	Mode        AgentMode             `json:"mode,omitempty" yaml:"mode"`
	Hidden      *bool                 `json:"hidden,omitempty" yaml:"hidden"`
	Model       string                `json:"model,omitempty" yaml:"model"`
	Prompt      string                `json:"prompt,omitempty" yaml:"prompt"`
	Description string                `json:"description,omitempty" yaml:"description"`
	Color       string                `json:"color,omitempty" yaml:"color"`
	Steps       int                   `json:"steps,omitempty" yaml:"steps"`
	Temperature *float64              `json:"temperature,omitempty" yaml:"temperature"`
	TopP        *float64              `json:"top_p,omitempty" yaml:"top_p"`
	Options     map[string]string     `json:"options,omitempty" yaml:"options"`
	Permission  permission.RawRuleSet `json:"permission,omitempty" yaml:"permission"`
}

// builtinSpec is the hardcoded shape of a built-in agent prior to any user
// override; it carries its own RawRuleSet layer since built-ins differ in
// how much the default ruleset should open up (e.g. explore is read-only).
type builtinSpec struct {
	name        string
	mode        AgentMode
	hidden      bool
	description string
	prompt      string
	permission  permission.RawRuleSet
}

func builtins() []builtinSpec {
	return []builtinSpec{
		{
			name:        "build",
			mode:        ModePrimary,
			description: "Writes and edits code directly against the project.",
		},
		{
			name:        "plan",
			mode:        ModePrimary,
			description: "Investigates and proposes a plan without editing files.",
			permission: permission.RawRuleSet{
				models.KindEdit: {Action: models.PermissionDeny},
				models.KindBash: {Action: models.PermissionAsk},
			},
		},
		{
			name:        "explore",
			mode:        ModeSubagent,
			description: "Read-only codebase exploration: search, read, summarize.",
			permission: permission.RawRuleSet{
				models.KindEdit: {Action: models.PermissionDeny},
				models.KindBash: {Action: models.PermissionDeny},
			},
		},
		{
			name:        "code-reviewer",
			mode:        ModeSubagent,
			description: "Reviews a diff or file set and reports findings.",
			permission: permission.RawRuleSet{
				models.KindEdit: {Action: models.PermissionDeny},
			},
		},
		{
			name:   "compaction",
			mode:   ModeSubagent,
			hidden: true,
			prompt: "Summarize the conversation so far, preserving decisions and open threads.",
		},
		{
			name:   "title",
			mode:   ModeSubagent,
			hidden: true,
			prompt: "Produce a short session title from the first message.",
		},
		{
			name:   "summary",
			mode:   ModeSubagent,
			hidden: true,
			prompt: "Produce a one-paragraph summary of the session so far.",
		},
	}
}

// ErrDefaultAgentNotFound is returned by ResolveDefault when neither the
// configured default_agent nor auto-detection can find a usable agent.
var ErrDefaultAgentNotFound = fmt.Errorf("agents: no default agent found")

// Registry holds the resolved Name -> AgentInfo map for one process.
type Registry struct {
	agents map[string]AgentInfo
	order  []string // insertion order, built-ins first, for stable auto-detect
}

// Build composes the built-in agents with cfg's overrides into the
// authoritative registry. project is the project-level permission layer
// (may be nil); it is compiled into every agent's ruleset alongside the
// built-in defaults and that agent's own overrides.
func Build(cfg *RegistryConfig, project permission.RawRuleSet) *Registry {
	r := &Registry{agents: make(map[string]AgentInfo)}

	for _, b := range builtins() {
		entry := lookupEntry(cfg, b.name)
		if entry != nil && entry.Disable {
			continue
		}
		info := AgentInfo{
			Name:        b.name,
			Mode:        b.mode,
			Native:      true,
			Hidden:      b.hidden,
			Prompt:      b.prompt,
			Description: b.description,
		}
		applyEntry(&info, entry)
		info.rawPermission = mergeRawRuleSets(b.permission, entryRuleSet(entry))
		info.Permission = permission.Compile(false, permission.BuiltinDefaults(), info.rawPermission, project)
		r.add(info)
	}

	if cfg != nil {
		for name, entry := range cfg.Agents {
			if _, exists := r.agents[name]; exists {
				continue // already handled as a built-in above
			}
			if entry == nil || entry.Disable {
				continue
			}
			info := AgentInfo{
				Name:   name,
				Mode:   ModeAll,
				Native: false,
			}
			applyEntry(&info, entry)
			info.rawPermission = entryRuleSet(entry)
			info.Permission = permission.Compile(false, permission.BuiltinDefaults(), info.rawPermission, project)
			r.add(info)
		}
	}

	return r
}

func (r *Registry) add(info AgentInfo) {
	if _, exists := r.agents[info.Name]; !exists {
		r.order = append(r.order, info.Name)
	}
	r.agents[info.Name] = info
}

// Get returns the named agent and whether it exists.
func (r *Registry) Get(name string) (AgentInfo, bool) {
	info, ok := r.agents[name]
	return info, ok
}

// All returns every resolved agent, built-ins first in declared order,
// then user-defined agents in the order their config keys were seen.
func (r *Registry) All() []AgentInfo {
	out := make([]AgentInfo, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.agents[name])
	}
	return out
}

// knownNative is the set of agent names auto-detection is allowed to
// fall through to when a configured default_agent is a recognized
// built-in name that happens to be missing from the resolved map (e.g.
// disabled by config).
var knownNative = map[string]bool{
	"build": true,
	"plan":  true,
}

// ResolveDefault implements the default-agent resolution chain: an
// explicitly configured, visible primary agent wins; a configured but
// missing native name falls through to auto-detection; anything else
// fails with ErrDefaultAgentNotFound. Auto-detection picks the first
// visible primary agent in registry order.
func (r *Registry) ResolveDefault(configuredDefault string) (AgentInfo, error) {
	if configuredDefault != "" {
		if info, ok := r.agents[configuredDefault]; ok {
			if info.Mode != ModeSubagent && !info.Hidden {
				return info, nil
			}
		} else if !knownNative[configuredDefault] {
			return AgentInfo{}, ErrDefaultAgentNotFound
		}
	}

	for _, name := range r.order {
		info := r.agents[name]
		if info.Hidden || info.Mode == ModeSubagent {
			continue
		}
		return info, nil
	}
	return AgentInfo{}, ErrDefaultAgentNotFound
}

// VisiblePrimary returns every non-hidden agent usable as a session's
// top-level driver, sorted by name for stable display.
func (r *Registry) VisiblePrimary() []AgentInfo {
	var out []AgentInfo
	for _, info := range r.agents {
		if info.Hidden || info.Mode == ModeSubagent {
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func lookupEntry(cfg *RegistryConfig, name string) *RegistryEntry {
	if cfg == nil || cfg.Agents == nil {
		return nil
	}
	return cfg.Agents[name]
}

func entryRuleSet(entry *RegistryEntry) permission.RawRuleSet {
	if entry == nil {
		return nil
	}
	return entry.Permission
}

// mergeRawRuleSets flattens layers into a single RawRuleSet, later layers
// winning at equal (kind, pattern). Used to collapse a built-in's own
// rules and a user's override into the one layer an Engine expects per
// agent.
func mergeRawRuleSets(layers ...permission.RawRuleSet) permission.RawRuleSet {
	merged := make(permission.RawRuleSet)
	for _, layer := range layers {
		for kind, rule := range layer {
			existing, ok := merged[kind]
			if !ok {
				merged[kind] = rule
				continue
			}
			if rule.Action != "" {
				existing.Action = rule.Action
			}
			if len(rule.Patterns) > 0 {
				if existing.Patterns == nil {
					existing.Patterns = make(map[string]models.PermissionAction, len(rule.Patterns))
				}
				for pattern, action := range rule.Patterns {
					existing.Patterns[pattern] = action
				}
			}
			merged[kind] = existing
		}
	}
	return merged
}

// Configure installs every agent's raw permission layer onto engine, so
// that Engine.Check's per-call compile (which needs the live planMode
// flag the registry cannot know in advance) sees the same agent-specific
// rules this registry's own AgentInfo.Permission snapshot was built from.
func (r *Registry) Configure(engine *permission.Engine) {
	for _, name := range r.order {
		engine.SetAgentRules(name, r.agents[name].rawPermission)
	}
}

// applyEntry merges a non-nil RegistryEntry's overridable fields onto
// info. Zero-valued fields on entry leave info's existing value in place.
func applyEntry(info *AgentInfo, entry *RegistryEntry) {
	if entry == nil {
		return
	}
	if entry.Mode != "" {
		info.Mode = entry.Mode
	}
	if entry.Hidden != nil {
		info.Hidden = *entry.Hidden
	}
	if entry.Model != "" {
		info.Model = entry.Model
	}
	if entry.Prompt != "" {
		info.Prompt = entry.Prompt
	}
	if entry.Description != "" {
		info.Description = entry.Description
	}
	if entry.Color != "" {
		info.Color = entry.Color
	}
	if entry.Steps != 0 {
		info.Steps = entry.Steps
	}
	if entry.Temperature != nil {
		info.Temperature = entry.Temperature
	}
	if entry.TopP != nil {
		info.TopP = entry.TopP
	}
	if len(entry.Options) > 0 {
		if info.Options == nil {
			info.Options = make(map[string]string, len(entry.Options))
		}
		for k, v := range entry.Options {
			info.Options[k] = v
		}
	}
}
