package models

import "time"

// Session is a conversation thread scoped to exactly one Project.
type Session struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Title     string `json:"title,omitempty"`
	Summary   string `json:"summary,omitempty"`

	// ParentSessionID is set for subagent sessions spawned from a parent turn.
	ParentSessionID string `json:"parent_session_id,omitempty"`

	// ForkedFrom is set when this session was created by Fork; it names the
	// origin session ID.
	ForkedFrom string `json:"forked_from,omitempty"`
	// ForkedAtMessageID is the message the fork was taken at (inclusive).
	ForkedAtMessageID string `json:"forked_at_message_id,omitempty"`

	Time struct {
		Created time.Time `json:"created"`
		Updated time.Time `json:"updated"`
	} `json:"time"`
}

// Touch stamps UpdatedAt, preserving the CreatedAt <= UpdatedAt invariant.
func (s *Session) Touch(now time.Time) {
	if s.Time.Created.IsZero() {
		s.Time.Created = now
	}
	if now.Before(s.Time.Created) {
		now = s.Time.Created
	}
	s.Time.Updated = now
}
