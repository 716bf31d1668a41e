package models

import "time"

// EditOp classifies a single file change within an EditRecord.
type EditOp string

const (
	EditCreate EditOp = "create"
	EditUpdate EditOp = "update"
	EditDelete EditOp = "delete"
	EditMove   EditOp = "move"
)

// FileChange is one file touched by an edit-class tool call.
type FileChange struct {
	Path         string `json:"path"`
	Op           EditOp `json:"op"`
	Additions    int    `json:"additions"`
	Deletions    int    `json:"deletions"`
	BeforeHash   string `json:"before_hash,omitempty"`
	AfterHash    string `json:"after_hash,omitempty"`
}

// EditRecord is appended on every successful edit-class tool call.
type EditRecord struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	Timestamp time.Time    `json:"timestamp"`
	Changes   []FileChange `json:"changes"`
	Agent     string       `json:"agent"`
	Model     string       `json:"model"`
	Tokens    int          `json:"tokens"`
	Duration  time.Duration `json:"duration"`
}

// StyleSample is one retained example feeding a StyleObservation.
type StyleSample struct {
	Snippet  string    `json:"snippet"`
	SeenAt   time.Time `json:"seen_at"`
}

// StyleObservation is an upserted, EMA-weighted inference about a single
// style dimension (indentation, quotes, semicolons, ...).
type StyleObservation struct {
	PatternKey string        `json:"pattern_key"`
	Confidence float64       `json:"confidence"`
	Samples    []StyleSample `json:"samples,omitempty"`
	SampleCount int          `json:"sample_count"`
	LastSeen   time.Time     `json:"last_seen"`
}

// MemoryScope names the layer a vector/KV entry is attached to.
type MemoryScope string

const (
	ScopeSession MemoryScope = "session"
	ScopeChannel MemoryScope = "channel"
	ScopeAgent   MemoryScope = "agent"
	ScopeGlobal  MemoryScope = "global"
	ScopeAll     MemoryScope = "all"
)

// Pattern is one entry in the recurring-pattern catalog:
// error-handling, async, data-fetching, state-management, validation, auth,
// plus whatever a session adds. Frequency increments on every observation.
type Pattern struct {
	Category   string   `json:"category"`
	Name       string   `json:"name"`
	Template   string   `json:"template,omitempty"`
	Files      []string `json:"files,omitempty"`
	Frequency  int      `json:"frequency"`
	Confidence float64  `json:"confidence"`
}

// Preferences is the long-term, Router-owned record of inferred user taste:
// style settings promoted from StyleObservations once confidence crosses the
// promotion threshold, plus the learned pattern catalog.
type Preferences struct {
	Indentation    string             `json:"indentation,omitempty"`
	Quotes         string             `json:"quotes,omitempty"`
	Semicolons     string             `json:"semicolons,omitempty"`
	TrailingCommas string             `json:"trailing_commas,omitempty"`
	Patterns       map[string]Pattern `json:"patterns,omitempty"`
}

// MemoryMetadata carries free-form provenance alongside a vector entry.
type MemoryMetadata struct {
	Source string         `json:"source,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// MemoryEntry is one entry in the Vector index: a piece of content, its
// embedding, and the scope (session/channel/agent) it belongs to. Exactly
// one of SessionID/ChannelID/AgentID is normally set; none set means global.
type MemoryEntry struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id,omitempty"`
	ChannelID string         `json:"channel_id,omitempty"`
	AgentID   string         `json:"agent_id,omitempty"`
	Content   string         `json:"content"`
	Embedding []float32      `json:"embedding,omitempty"`
	Metadata  MemoryMetadata `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SearchRequest is the Manager.Search input: a query string plus scoping
// and ranking parameters. Limit/Threshold/Scope default from Config.Search
// when left zero-valued.
type SearchRequest struct {
	Query     string         `json:"query"`
	Scope     MemoryScope    `json:"scope,omitempty"`
	ScopeID   string         `json:"scope_id,omitempty"`
	Limit     int            `json:"limit,omitempty"`
	Threshold float32        `json:"threshold,omitempty"`
	Filters   map[string]any `json:"filters,omitempty"`
}

// SearchResult pairs a vector entry with its similarity score.
type SearchResult struct {
	Entry *MemoryEntry `json:"entry"`
	Score float32      `json:"score"`
}

// SearchResponse is the outcome of a vector/hierarchical search.
type SearchResponse struct {
	Results    []*SearchResult `json:"results"`
	TotalCount int             `json:"total_count"`
	QueryTime  time.Duration   `json:"query_time"`
}

// AgentContext is the Context Builder's rendered output for one turn.
type AgentContext struct {
	Technical AgentContextTechnical `json:"technical"`
	Markdown  string                `json:"markdown"`
	Formatted string                `json:"formatted"`
}

// AgentContextTechnical is the structured half of an AgentContext.
type AgentContextTechnical struct {
	Fingerprint    string             `json:"fingerprint"`
	Style          map[string]string  `json:"style,omitempty"`
	LearnedPatterns []PatternSummary  `json:"learned_patterns,omitempty"`
	EndpointCount  int                `json:"endpoint_count"`
	ModelCount     int                `json:"model_count"`
	ComponentCount int                `json:"component_count"`
	RelevantFiles  []RelevantFile     `json:"relevant_files,omitempty"`
	RecentEdits    []RecentEdit       `json:"recent_edits,omitempty"`
	RecentDecisions []RecentDecision  `json:"recent_decisions,omitempty"`
	Warnings       []string           `json:"warnings,omitempty"`
}

// PatternSummary is a learned-pattern line in AgentContext.
type PatternSummary struct {
	Category   string  `json:"category"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// RelevantFile is one ranked file in AgentContext.
type RelevantFile struct {
	Path    string `json:"path"`
	Reason  string `json:"reason"`
	Summary string `json:"summary"`
}

// RecentEdit is a compact recent-edit line in AgentContext.
type RecentEdit struct {
	Path       string `json:"path"`
	MinutesAgo int    `json:"minutes_ago"`
}

// RecentDecision is a compact recent-decision line in AgentContext.
type RecentDecision struct {
	Title string `json:"title"`
	Type  string `json:"type"`
}
