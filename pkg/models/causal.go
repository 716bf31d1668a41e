package models

import "time"

// DecisionNode is a recorded agent decision (append-only).
type DecisionNode struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	AgentID    string    `json:"agent_id"`
	Prompt     string    `json:"prompt"`
	Reasoning  string    `json:"reasoning,omitempty"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
	ContextRef string    `json:"context_ref,omitempty"`
}

// ActionType classifies an ActionNode for reporting and the tool-name map
// in §4.9.
type ActionType string

const (
	ActionFileOperation ActionType = "file_operation"
	ActionSearch        ActionType = "search"
	ActionToolExecution ActionType = "tool_execution"
	ActionAPICall       ActionType = "api_call"
	ActionCodeChange    ActionType = "code_change"
	ActionOther         ActionType = "other"
)

// ActionNode is a recorded tool invocation, with exactly one DecisionNode
// parent.
type ActionNode struct {
	ID          string        `json:"id"`
	DecisionID  string        `json:"decision_id"`
	Type        ActionType    `json:"type"`
	Description string        `json:"description"`
	Input       string        `json:"input,omitempty"`
	Output      string        `json:"output,omitempty"`
	Duration    time.Duration `json:"duration"`
	Timestamp   time.Time     `json:"timestamp"`
}

// OutcomeStatus is the result of an ActionNode.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailure OutcomeStatus = "failure"
	OutcomePartial OutcomeStatus = "partial"
)

// OutcomeNode is the (at most one) outcome of an ActionNode.
type OutcomeNode struct {
	ID          string            `json:"id"`
	ActionID    string            `json:"action_id"`
	Status      OutcomeStatus     `json:"status"`
	Description string            `json:"description,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	Feedback    string            `json:"feedback,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// CausalRelationship labels a CausalEdge.
type CausalRelationship string

const (
	RelCauses   CausalRelationship = "causes"
	RelResultsIn CausalRelationship = "results_in"
)

// CausalEdge is a derived, non-user-editable edge in the causal graph.
type CausalEdge struct {
	Source       string             `json:"source"`
	Target       string             `json:"target"`
	Relationship CausalRelationship `json:"relationship"`
	Weight       float64            `json:"weight"`
	Metadata     map[string]any     `json:"metadata,omitempty"`
}

// CausalChain is a Decision with its Actions and their Outcomes.
type CausalChain struct {
	Decision *DecisionNode  `json:"decision"`
	Actions  []*ActionNode  `json:"actions"`
	Outcomes []*OutcomeNode `json:"outcomes"`
	Edges    []*CausalEdge  `json:"edges"`
}
