package models

import "encoding/json"

// ToolParam describes one parameter of a ToolDef's input schema.
type ToolParam struct {
	Name        string          `json:"name"`
	Type        string          `json:"type"` // string, number, boolean, object, array
	Required    bool            `json:"required"`
	Description string          `json:"description,omitempty"`
	Default     json.RawMessage `json:"default,omitempty"`
}

// ToolDef describes a registered tool's schema and dispatch metadata.
// Discovery of skill-authored tools is out of scope (interface only);
// this type is the shape the Agent Registry and Tool Registry share.
type ToolDef struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Kind        string      `json:"kind"` // maps to a PermissionKind
	Params      []ToolParam `json:"params,omitempty"`

	// Protected marks a tool-declared capability that compaction must never
	// prune (the "skill tool" concept from spec §9's Open Question,
	// resolved as a declared capability rather than a name test).
	Protected bool `json:"protected,omitempty"`
}
