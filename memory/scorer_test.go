package memory

import (
	"testing"

	"github.com/agentloop/agentloop/core"
	"github.com/stretchr/testify/assert"
)

func TestPositionFactorDecay(t *testing.T) {
	s := NewScorer()

	// Last message has no decay.
	assert.InDelta(t, 1.0, s.PositionFactor(9, 10), 1e-9)
	// Oldest of ten: 0.95^9.
	assert.InDelta(t, 0.6302, s.PositionFactor(0, 10), 1e-4)
	// Empty window degrades gracefully.
	assert.InDelta(t, 1.0, s.PositionFactor(0, 0), 1e-9)
}

func TestKeywordScore(t *testing.T) {
	s := NewScorer()

	tests := []struct {
		name    string
		content string
		want    float64
	}{
		{"no keywords", "hello there", 0},
		{"single", "an error occurred", 0.3},
		{"case insensitive", "CRITICAL failure", 0.3},
		{"accumulates", "critical error in the result", 0.75},
		{"capped at one", "critical error decision important remember conclusion key result", 1.0},
		{"empty", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, s.KeywordScore(tt.content), 1e-9)
		})
	}
}

func TestRoleOrdering(t *testing.T) {
	s := NewScorer()
	// Same position and content, only the role differs.
	score := func(role core.Role) float64 {
		return s.Score(core.Message{Role: role, Content: "hello"}, 0, 5)
	}
	sys, user, asst := score(core.RoleSystem), score(core.RoleUser), score(core.RoleAssistant)
	assert.Greater(t, sys, user)
	assert.Greater(t, user, asst)
}

func TestToolBonus(t *testing.T) {
	s := NewScorer()
	plain := core.Message{Role: core.RoleAssistant, Content: "x"}
	withCalls := plain
	withCalls.ToolCalls = []core.ToolCall{{ID: "c", Name: "clock"}}
	toolResult := core.Message{Role: core.RoleTool, Content: "x", ToolCallID: "c"}

	base := s.Score(plain, 0, 3)
	assert.InDelta(t, base+0.2, s.Score(withCalls, 0, 3), 1e-9)
	assert.Greater(t, s.Score(toolResult, 0, 3), 0.2)
}

func TestRecentMessagesOutscoreOld(t *testing.T) {
	s := NewScorer()
	m := core.Message{Role: core.RoleUser, Content: "plain"}
	old := s.Score(m, 0, 20)
	recent := s.Score(m, 19, 20)
	assert.Greater(t, recent, old)
}
