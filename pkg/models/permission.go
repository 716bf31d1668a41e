package models

import "time"

// PermissionAction is a verdict the Permission Engine can return.
type PermissionAction string

const (
	PermissionAllow PermissionAction = "allow"
	PermissionAsk   PermissionAction = "ask"
	PermissionDeny  PermissionAction = "deny"
)

// PermissionKind is one of the closed set of tool kinds (§6).
type PermissionKind string

const (
	KindRead             PermissionKind = "read"
	KindEdit             PermissionKind = "edit"
	KindBash             PermissionKind = "bash"
	KindWebFetch         PermissionKind = "webfetch"
	KindWebSearch        PermissionKind = "websearch"
	KindCodeSearch       PermissionKind = "codesearch"
	KindGlob             PermissionKind = "glob"
	KindGrep             PermissionKind = "grep"
	KindList             PermissionKind = "list"
	KindTodoRead         PermissionKind = "todoread"
	KindTodoWrite        PermissionKind = "todowrite"
	KindQuestion         PermissionKind = "question"
	KindPlanEnter        PermissionKind = "plan_enter"
	KindPlanExit         PermissionKind = "plan_exit"
	KindDoomLoop         PermissionKind = "doom_loop"
	KindExternalDirectory PermissionKind = "external_directory"
)

// PermissionRule is one compiled entry of a ruleset: (kind, scope, pattern,
// action). Scope distinguishes sub-scoped kinds (e.g. external_directory)
// from the tool's own kind.
type PermissionRule struct {
	Kind    PermissionKind   `json:"kind"`
	Scope   string           `json:"scope,omitempty"`
	Pattern string           `json:"pattern"`
	Action  PermissionAction `json:"action"`

	// specificity is computed at compile time for ordering; exported so
	// callers can inspect why a rule ranked where it did.
	Specificity int `json:"specificity"`
}

// PermissionRequestStatus tracks an ask request's lifecycle.
type PermissionRequestStatus string

const (
	RequestPending  PermissionRequestStatus = "pending"
	RequestAnswered PermissionRequestStatus = "answered"
)

// PermissionReplyKind is the reply a caller gives to a pending request.
type PermissionReplyKind string

const (
	ReplyAllowOnce   PermissionReplyKind = "allow_once"
	ReplyAllowAlways PermissionReplyKind = "allow_always"
	ReplyDeny        PermissionReplyKind = "deny"
)

// PermissionRequest is a persisted ask-verdict awaiting a reply.
type PermissionRequest struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	MessageID string         `json:"message_id,omitempty"`
	Tool      string         `json:"tool"`
	Input     map[string]any `json:"input,omitempty"`

	// DerivedPatterns are the candidate glob patterns computed from Input,
	// offered to the user e.g. for an "always allow this path" reply.
	DerivedPatterns []string `json:"derived_patterns,omitempty"`

	Status PermissionRequestStatus `json:"status"`

	Reply     PermissionReplyKind `json:"reply,omitempty"`
	ReplyBody string              `json:"reply_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	AnsweredAt time.Time `json:"answered_at,omitempty"`
}
