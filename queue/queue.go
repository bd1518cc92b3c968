// Package queue provides the prioritized message queue feeding the
// scheduler. The in-memory backend lives here; Redis and Postgres backends
// live in subpackages.
//
// Ordering is priority descending, FIFO within a priority level.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned by Enqueue and Dequeue after Close. Consumers should
// stop on it instead of re-polling.
var ErrClosed = errors.New("queue closed")

// Message is the queue envelope. Payload is opaque to the queue; the
// scheduler stores the user's input text there. A zero ExpiresAt means the
// message never expires.
type Message struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Payload    string    `json:"payload"`
	Priority   int       `json:"priority"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
}

// NewMessage creates an envelope with a fresh ID.
func NewMessage(sessionID, payload string, priority int) Message {
	return Message{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Payload:    payload,
		Priority:   priority,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Expired reports whether the message's TTL has passed.
func (m Message) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && now.After(m.ExpiresAt)
}

// Backend is a prioritized queue. Dequeue blocks up to wait for a message;
// ok is false on timeout. Implementations must wake blocked consumers on
// enqueue rather than polling on a fixed interval.
type Backend interface {
	Enqueue(ctx context.Context, msg Message) error
	Dequeue(ctx context.Context, wait time.Duration) (msg Message, ok bool, err error)
	Len(ctx context.Context) (int, error)
	Close() error
}
