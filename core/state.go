package core

import "time"

// Status is the lifecycle state of a session's agent task.
type Status string

const (
	// StatusIdle means no task is running for the session.
	StatusIdle Status = "idle"
	// StatusRunning means the loop is actively iterating.
	StatusRunning Status = "running"
	// StatusPaused means the loop is holding at an iteration boundary.
	StatusPaused Status = "paused"
	// StatusInterrupted means a stop request was honored.
	StatusInterrupted Status = "interrupted"
	// StatusCompleted means the task finished normally.
	StatusCompleted Status = "completed"
	// StatusFailed means the task aborted on an error or timeout.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status ends a task.
func (s Status) Terminal() bool {
	switch s {
	case StatusInterrupted, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// AgentState is a snapshot of a session's loop progress. Iteration is
// monotonic for the lifetime of the session, never reset between turns, so
// checkpoint sequence numbers stay strictly increasing.
type AgentState struct {
	SessionID        string    `json:"session_id"`
	Status           Status    `json:"status"`
	Iteration        int       `json:"iteration"`
	PendingToolCalls []string  `json:"pending_tool_calls,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}
