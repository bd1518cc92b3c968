package core

import "time"

// Checkpoint is an append-only record of a session's state after one loop
// iteration. Checkpoints for a session carry strictly increasing Iteration
// values; sinks treat (SessionID, Iteration) as idempotency key.
type Checkpoint struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Iteration int       `json:"iteration"`
	Status    Status    `json:"status"`
	Messages  []Message `json:"messages"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
