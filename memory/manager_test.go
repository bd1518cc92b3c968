package memory

import (
	"context"
	"testing"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(maxTokens int) *Manager {
	return NewManager(token.NewHeuristicCounter(), func(o *ManagerOptions) {
		o.MaxContextTokens = maxTokens
		o.KeepRecent = 2
	})
}

func TestThresholdIsInclusive(t *testing.T) {
	m := newTestManager(1000)
	s := m.Create("")

	// 919 of 1000 tokens: below threshold.
	require.NoError(t, m.Append(s.ID, msg(core.RoleUser, "x", 919)))
	assert.False(t, m.Evaluate(s.ID))

	// One more token lands exactly on 0.92: triggers.
	require.NoError(t, m.Append(s.ID, msg(core.RoleUser, "y", 1)))
	assert.InDelta(t, 0.92, m.UsageRatio(s.ID), 1e-9)
	assert.True(t, m.Evaluate(s.ID))
}

func TestAppendCountsTokens(t *testing.T) {
	m := newTestManager(1000)
	s := m.Create("")

	require.NoError(t, m.Append(s.ID, core.NewMessage(core.RoleUser, "abcdabcd")))
	got, ok := m.Get(s.ID)
	require.True(t, ok)
	assert.Positive(t, got.TokenTotal())
}

func TestAppendUnknownSession(t *testing.T) {
	m := newTestManager(1000)
	assert.Error(t, m.Append("missing", core.NewMessage(core.RoleUser, "hi")))
}

func TestCompressReducesUsage(t *testing.T) {
	m := newTestManager(1000)
	s := m.Create("system prompt")
	for i := 0; i < 8; i++ {
		role := core.RoleUser
		if i%2 == 1 {
			role = core.RoleAssistant
		}
		require.NoError(t, m.Append(s.ID, msg(role, "filler content", 120)))
	}
	require.True(t, m.Evaluate(s.ID))

	require.NoError(t, m.Compress(context.Background(), s.ID))
	assert.False(t, m.Evaluate(s.ID))
	assert.LessOrEqual(t, m.UsageRatio(s.ID), 0.5)

	_, summary := s.Snapshot()
	assert.NotEmpty(t, summary)
}

func TestContextMessagesInjectsSummaryAfterSystem(t *testing.T) {
	m := newTestManager(1000)
	s := m.Create("system prompt")
	require.NoError(t, m.Append(s.ID, core.NewMessage(core.RoleUser, "hello")))

	// No summary yet: window passes through untouched.
	ctxMsgs := m.ContextMessages(s.ID)
	require.Len(t, ctxMsgs, 2)

	s.Replace(s.Messages, "things happened")
	ctxMsgs = m.ContextMessages(s.ID)
	require.Len(t, ctxMsgs, 3)
	assert.Equal(t, core.RoleSystem, ctxMsgs[0].Role)
	assert.Equal(t, "system prompt", ctxMsgs[0].Content)
	assert.Equal(t, core.RoleSystem, ctxMsgs[1].Role)
	assert.Contains(t, ctxMsgs[1].Content, "things happened")
	assert.Equal(t, core.RoleUser, ctxMsgs[2].Role)
}

func TestSystemMessagesNeverDemoted(t *testing.T) {
	m := NewManager(token.NewHeuristicCounter(), func(o *ManagerOptions) {
		o.MaxContextTokens = 100
		o.KeepRecent = 1
	})
	s := m.Create("never lose this")
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Append(s.ID, msg(core.RoleUser, "bulk", 50)))
	}

	_ = m.Compress(context.Background(), s.ID)
	msgs, _ := s.Snapshot()
	require.NotEmpty(t, msgs)
	assert.Equal(t, core.RoleSystem, msgs[0].Role)
	assert.Equal(t, "never lose this", msgs[0].Content)
}

func TestStats(t *testing.T) {
	m := newTestManager(1000)
	s := m.Create("sys")
	require.NoError(t, m.Append(s.ID, msg(core.RoleUser, "q", 100)))

	stats := m.Stats(s.ID)
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats["message_count"])
	assert.Equal(t, false, stats["has_summary"])
	assert.Nil(t, m.Stats("missing"))
}

func TestDelete(t *testing.T) {
	m := newTestManager(1000)
	s := m.Create("")
	m.Delete(s.ID)
	_, ok := m.Get(s.ID)
	assert.False(t, ok)
	assert.Empty(t, m.Sessions())
}
