package token

import (
	"strings"
	"testing"

	"github.com/agentloop/agentloop/core"
	"github.com/stretchr/testify/assert"
)

func TestCountText(t *testing.T) {
	c := NewHeuristicCounter()

	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"exact multiple", "abcdabcd", 2},
		{"rounds up", "abcde", 2},
		{"single char", "a", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.CountText(tt.text))
		})
	}
}

func TestCountMessageIncludesOverheadAndToolCalls(t *testing.T) {
	c := NewHeuristicCounter()

	plain := core.NewMessage(core.RoleUser, "abcdabcd")
	// 4 overhead + 2 text + 2 priming
	assert.Equal(t, 8, c.CountMessage(plain))

	withCall := core.NewMessage(core.RoleAssistant, "")
	withCall.ToolCalls = []core.ToolCall{{ID: "c1", Name: "calc", Arguments: []byte(`{"a":1}`)}}
	assert.Greater(t, c.CountMessage(withCall), c.CountMessage(core.NewMessage(core.RoleAssistant, "")))
}

func TestCountMessagesAddsConversationPriming(t *testing.T) {
	c := NewHeuristicCounter()
	msgs := []core.Message{
		core.NewMessage(core.RoleUser, "abcd"),
		core.NewMessage(core.RoleAssistant, "abcd"),
	}
	sum := 0
	for _, m := range msgs {
		sum += c.CountMessage(m)
	}
	assert.Equal(t, sum+3, c.CountMessages(msgs))
}

func TestTruncateText(t *testing.T) {
	c := NewHeuristicCounter()
	long := strings.Repeat("word ", 100)

	out := c.TruncateText(long, 10)
	assert.LessOrEqual(t, c.CountText(out), 10)
	assert.Equal(t, "", c.TruncateText(long, 0))
	assert.Equal(t, "short", c.TruncateText("short", 100))
}
