// Package models defines the shared data types for CodeCoder's core
// subsystems: projects, sessions, messages, agents, permissions, hooks,
// context snapshots, the causal graph, and memory records.
package models

import "time"

// Project is a worktree the runtime has been pointed at. Its ID is
// derived deterministically from the absolute worktree path so the
// same directory always resolves to the same Project across restarts.
type Project struct {
	ID        string    `json:"id"`
	Worktree  string    `json:"worktree"`
	CreatedAt time.Time `json:"created_at"`
}
