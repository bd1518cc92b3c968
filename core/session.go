package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session holds one conversation's context window. Messages contains the
// verbatim entries (hot and warm tiers); Summary is the cold tier, a single
// text distillate of everything that has been compressed away.
//
// The scheduler guarantees a single writer per session; the internal mutex
// only protects against concurrent readers (stats, snapshots) racing that
// writer.
type Session struct {
	mu sync.RWMutex

	ID        string
	Messages  []Message
	Summary   string
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSession creates an empty session. A non-empty systemPrompt becomes the
// leading system message.
func NewSession(systemPrompt string) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:        uuid.NewString(),
		Metadata:  map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if systemPrompt != "" {
		s.Messages = append(s.Messages, NewMessage(RoleSystem, systemPrompt))
	}
	return s
}

// Append adds a message to the end of the window.
func (s *Session) Append(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now().UTC()
}

// Replace swaps the retained message list and cold summary in one step,
// used after compression.
func (s *Session) Replace(msgs []Message, summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = msgs
	s.Summary = summary
	s.UpdatedAt = time.Now().UTC()
}

// Snapshot returns a deep copy of the current messages and summary.
func (s *Session) Snapshot() ([]Message, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return CloneMessages(s.Messages), s.Summary
}

// TokenTotal sums the recorded token counts of all retained messages.
func (s *Session) TokenTotal() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, m := range s.Messages {
		total += m.TokenCount
	}
	return total
}

// Len returns the number of retained messages.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Messages)
}
