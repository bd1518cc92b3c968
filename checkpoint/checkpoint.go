// Package checkpoint persists per-iteration session snapshots. The contract
// is write-only and append-only: sinks accept checkpoints with strictly
// increasing iteration numbers per session and ignore duplicates, so a
// retried write is harmless. Recovery tooling reads the store out of band.
package checkpoint

import (
	"context"
	"sort"
	"sync"

	"github.com/agentloop/agentloop/core"
)

// Sink accepts checkpoint writes. Write must be idempotent on
// (SessionID, Iteration).
type Sink interface {
	Write(ctx context.Context, cp core.Checkpoint) error
	Close() error
}

// MemorySink keeps checkpoints in process, mainly for tests and the default
// wiring. Duplicate iterations are dropped silently.
type MemorySink struct {
	mu   sync.Mutex
	byID map[string][]core.Checkpoint
	seen map[string]map[int]bool
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		byID: map[string][]core.Checkpoint{},
		seen: map[string]map[int]bool{},
	}
}

// Write implements Sink.
func (s *MemorySink) Write(_ context.Context, cp core.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[cp.SessionID] == nil {
		s.seen[cp.SessionID] = map[int]bool{}
	}
	if s.seen[cp.SessionID][cp.Iteration] {
		return nil
	}
	s.seen[cp.SessionID][cp.Iteration] = true
	s.byID[cp.SessionID] = append(s.byID[cp.SessionID], cp)
	sort.Slice(s.byID[cp.SessionID], func(i, j int) bool {
		return s.byID[cp.SessionID][i].Iteration < s.byID[cp.SessionID][j].Iteration
	})
	return nil
}

// Close implements Sink.
func (s *MemorySink) Close() error { return nil }

// BySession returns the stored checkpoints for a session in iteration
// order. Test helper; the runtime write path never reads.
func (s *MemorySink) BySession(sessionID string) []core.Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Checkpoint, len(s.byID[sessionID]))
	copy(out, s.byID[sessionID])
	return out
}
