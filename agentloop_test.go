package agentloop

import (
	"context"
	"testing"
	"time"

	"github.com/agentloop/agentloop/config"
	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/model"
	"github.com/agentloop/agentloop/scheduler"
	"github.com/agentloop/agentloop/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoop(t *testing.T, mock *model.MockModel, optFns ...func(o *Options)) *AgentLoop {
	t.Helper()
	all := append([]func(o *Options){func(o *Options) {
		o.Config.Queue.DequeueTimeout = 20 * time.Millisecond
	}}, optFns...)
	loop, err := New(mock, all...)
	require.NoError(t, err)
	loop.Start()
	t.Cleanup(func() { require.NoError(t, loop.Stop()) })
	return loop
}

func TestChatRoundTrip(t *testing.T) {
	mock := model.NewMockModel("test-model")
	mock.QueueText("the answer is 4")
	loop := newLoop(t, mock)

	sessionID := loop.NewSession("you are terse")
	reply, err := loop.Chat(context.Background(), sessionID, "what is 2+2?")
	require.NoError(t, err)
	assert.Equal(t, "the answer is 4", reply)

	st, ok := loop.State(sessionID)
	require.True(t, ok)
	assert.Equal(t, core.StatusCompleted, st.Status)
}

func TestChatWithToolRound(t *testing.T) {
	mock := model.NewMockModel("test-model")
	mock.QueueToolCalls("", core.ToolCall{ID: "c1", Name: "echo", Arguments: []byte(`{}`)})
	mock.QueueText("tool said: pong")
	loop := newLoop(t, mock)

	require.NoError(t, loop.RegisterTool(tool.NewFunc("echo", "replies pong",
		func(context.Context, map[string]any) (any, error) { return "pong", nil })))

	sessionID := loop.NewSession("")
	reply, err := loop.Chat(context.Background(), sessionID, "ping the tool")
	require.NoError(t, err)
	assert.Equal(t, "tool said: pong", reply)
	assert.Equal(t, 2, mock.Served())
}

func TestChatStreamEmitsDoneEvent(t *testing.T) {
	mock := model.NewMockModel("test-model")
	mock.QueueText("hello")
	loop := newLoop(t, mock)

	sessionID := loop.NewSession("")
	msgID, events, err := loop.ChatStream(context.Background(), sessionID, "hi")
	require.NoError(t, err)
	require.NotEmpty(t, msgID)

	var sawDone bool
	for ev := range events {
		if ev.Type == scheduler.EventDone {
			sawDone = true
			assert.Equal(t, core.StatusCompleted, ev.State.Status)
		}
	}
	assert.True(t, sawDone)
}

func TestChatUnknownSession(t *testing.T) {
	loop := newLoop(t, model.NewMockModel("test-model"))

	var ve *core.ValidationError
	_, err := loop.Chat(context.Background(), "missing", "hi")
	require.ErrorAs(t, err, &ve)
}

func TestInterruptIdleSession(t *testing.T) {
	loop := newLoop(t, model.NewMockModel("test-model"))
	assert.False(t, loop.Interrupt(loop.NewSession("")))
}

func TestRegisterToolConflict(t *testing.T) {
	loop := newLoop(t, model.NewMockModel("test-model"))
	echo := tool.NewFunc("echo", "", func(context.Context, map[string]any) (any, error) { return "", nil })
	require.NoError(t, loop.RegisterTool(echo))

	var ce *core.ConflictError
	require.ErrorAs(t, loop.RegisterTool(echo), &ce)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Memory.MaxContextTokens = 0
	_, err := New(model.NewMockModel("test-model"), func(o *Options) { o.Config = cfg })
	require.Error(t, err)
}

func TestStatsIncludesToolCount(t *testing.T) {
	loop := newLoop(t, model.NewMockModel("test-model"))
	require.NoError(t, loop.RegisterTools(tool.Builtins()...))

	stats := loop.Stats(context.Background())
	assert.Equal(t, 2, stats["tools"])
}
