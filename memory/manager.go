package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/logging"
	"github.com/agentloop/agentloop/token"
)

// ManagerOptions configure a Manager.
type ManagerOptions struct {
	// MaxContextTokens is the context window budget.
	MaxContextTokens int
	// CompressionThreshold is the usage ratio at which Evaluate fires.
	CompressionThreshold float64
	// TargetRatio is the post-compression usage target.
	TargetRatio float64
	// KeepRecent pins the trailing window during compression.
	KeepRecent int
	// SummaryMaxTokens caps the cold summary.
	SummaryMaxTokens int

	Scorer     *Scorer
	Summarizer Summarizer
	Logger     logging.Logger
}

// Manager owns sessions and their context windows. The scheduler is the
// single writer per session; the manager's lock only guards the session
// index for cross-session access.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session

	counter    token.Counter
	compressor *Compressor
	opts       ManagerOptions
	logger     logging.Logger
}

// NewManager creates a manager with the given token counter.
func NewManager(counter token.Counter, optFns ...func(o *ManagerOptions)) *Manager {
	opts := ManagerOptions{
		MaxContextTokens:     128000,
		CompressionThreshold: 0.92,
		TargetRatio:          0.3,
		KeepRecent:           4,
		SummaryMaxTokens:     500,
		Logger:               logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Scorer == nil {
		opts.Scorer = NewScorer()
	}
	compressor := NewCompressor(opts.Scorer, counter, func(c *Compressor) {
		c.KeepRecent = opts.KeepRecent
		c.SummaryMaxTokens = opts.SummaryMaxTokens
		if opts.Summarizer != nil {
			c.summarizer = opts.Summarizer
		}
	})
	return &Manager{
		sessions:   map[string]*core.Session{},
		counter:    counter,
		compressor: compressor,
		opts:       opts,
		logger:     opts.Logger,
	}
}

// Create makes a new session, counting the system prompt if present.
func (m *Manager) Create(systemPrompt string) *core.Session {
	s := core.NewSession(systemPrompt)
	for i := range s.Messages {
		s.Messages[i].TokenCount = m.counter.CountMessage(s.Messages[i])
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.logger.Debug("session created", "session_id", s.ID)
	return s
}

// Get returns the session for id.
func (m *Manager) Get(id string) (*core.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete removes a session.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Append counts the message and adds it to the session window.
func (m *Manager) Append(sessionID string, msg core.Message) error {
	s, ok := m.Get(sessionID)
	if !ok {
		return fmt.Errorf("append: unknown session %q", sessionID)
	}
	if msg.TokenCount == 0 {
		msg.TokenCount = m.counter.CountMessage(msg)
	}
	s.Append(msg)
	return nil
}

// UsageRatio is current tokens over the context budget.
func (m *Manager) UsageRatio(sessionID string) float64 {
	s, ok := m.Get(sessionID)
	if !ok {
		return 0
	}
	return float64(s.TokenTotal()) / float64(m.opts.MaxContextTokens)
}

// Evaluate reports whether the session has crossed the compression
// threshold. The comparison is inclusive: exactly at threshold triggers.
func (m *Manager) Evaluate(sessionID string) bool {
	return m.UsageRatio(sessionID) >= m.opts.CompressionThreshold
}

// Compress runs one compression pass toward the target ratio. Returns
// core.ErrCompressionIncomplete (non-fatal) when the target was not reached.
func (m *Manager) Compress(ctx context.Context, sessionID string) error {
	s, ok := m.Get(sessionID)
	if !ok {
		return fmt.Errorf("compress: unknown session %q", sessionID)
	}
	msgs, prior := s.Snapshot()
	target := int(m.opts.TargetRatio * float64(m.opts.MaxContextTokens))

	res, err := m.compressor.Compress(ctx, msgs, prior, target)
	if err != nil && res.Demoted == 0 {
		// Nothing demotable at all; leave the window untouched.
		m.logger.Warn("compression made no progress", "session_id", sessionID)
		return err
	}
	s.Replace(res.Retained, res.Summary)
	m.logger.Info("compressed session",
		"session_id", sessionID,
		"demoted", res.Demoted,
		"tokens", s.TokenTotal(),
		"incomplete", res.Incomplete,
	)
	return err
}

// ContextMessages assembles the model-facing window: the cold summary (as a
// system message right after the real system prompt) followed by the
// verbatim hot and warm messages.
func (m *Manager) ContextMessages(sessionID string) []core.Message {
	s, ok := m.Get(sessionID)
	if !ok {
		return nil
	}
	msgs, summary := s.Snapshot()
	if summary == "" {
		return msgs
	}
	summaryMsg := core.NewMessage(core.RoleSystem, "Summary of earlier conversation:\n"+summary)
	summaryMsg.TokenCount = m.counter.CountMessage(summaryMsg)

	out := make([]core.Message, 0, len(msgs)+1)
	insert := 0
	for insert < len(msgs) && msgs[insert].Role == core.RoleSystem {
		insert++
	}
	out = append(out, msgs[:insert]...)
	out = append(out, summaryMsg)
	out = append(out, msgs[insert:]...)
	return out
}

// Stats returns per-session usage numbers.
func (m *Manager) Stats(sessionID string) map[string]any {
	s, ok := m.Get(sessionID)
	if !ok {
		return nil
	}
	_, summary := s.Snapshot()
	return map[string]any{
		"session_id":    sessionID,
		"message_count": s.Len(),
		"token_total":   s.TokenTotal(),
		"usage_ratio":   m.UsageRatio(sessionID),
		"has_summary":   summary != "",
	}
}

// Sessions returns the IDs of all live sessions.
func (m *Manager) Sessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}
