package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/agentloop/agentloop/checkpoint"
	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/memory"
	"github.com/agentloop/agentloop/model"
	"github.com/agentloop/agentloop/pipeline"
	"github.com/agentloop/agentloop/queue"
	"github.com/agentloop/agentloop/token"
	"github.com/agentloop/agentloop/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	sched    *Scheduler
	memory   *memory.Manager
	registry *tool.Registry
	sink     *checkpoint.MemorySink
	mock     *model.MockModel
}

func newFixture(t *testing.T, optFns ...func(o *Options)) *fixture {
	t.Helper()
	mem := memory.NewManager(token.NewHeuristicCounter())
	registry := tool.NewRegistry()
	executor := tool.NewExecutor(registry)
	pipe := pipeline.New()
	require.NoError(t, pipe.Use(&pipeline.ValidationMiddleware{}))
	sink := checkpoint.NewMemorySink()
	mock := model.NewMockModel("test-model")
	q := queue.NewMemory()

	all := append([]func(o *Options){func(o *Options) {
		o.DequeueTimeout = 20 * time.Millisecond
		o.IterationTimeout = 5 * time.Second
	}}, optFns...)
	sched := New(q, mem, mock, registry, executor, pipe, sink, all...)
	sched.Start()
	t.Cleanup(func() {
		sched.Stop()
		_ = q.Close()
	})
	return &fixture{sched: sched, memory: mem, registry: registry, sink: sink, mock: mock}
}

// drain collects all events until the channel closes.
func drain(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatal("timed out draining events")
		}
	}
}

func doneEvent(t *testing.T, events []Event) Event {
	t.Helper()
	for _, ev := range events {
		if ev.Type == EventDone {
			return ev
		}
	}
	t.Fatal("no done event")
	return Event{}
}

func TestTaskCompletesWithoutTools(t *testing.T) {
	f := newFixture(t)
	f.mock.QueueText("hello back")
	sess := f.memory.Create("be brief")

	_, events, err := f.sched.Submit(context.Background(), sess.ID, "hi", 0)
	require.NoError(t, err)
	all := drain(t, events)

	done := doneEvent(t, all)
	assert.Equal(t, core.StatusCompleted, done.State.Status)

	msgs, _ := sess.Snapshot()
	require.Len(t, msgs, 3) // system, user, assistant
	assert.Equal(t, "hi", msgs[1].Content)
	assert.Equal(t, "hello back", msgs[2].Content)

	cps := f.sink.BySession(sess.ID)
	require.Len(t, cps, 1)
	assert.Equal(t, 1, cps[0].Iteration)
	assert.Equal(t, core.StatusCompleted, cps[0].Status)
}

func TestToolRoundResultsInRequestOrder(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.Register(tool.NewFunc("slow", "", func(context.Context, map[string]any) (any, error) {
		time.Sleep(40 * time.Millisecond)
		return "slow-out", nil
	})))
	require.NoError(t, f.registry.Register(tool.NewFunc("fast", "", func(context.Context, map[string]any) (any, error) {
		return "fast-out", nil
	})))

	f.mock.QueueToolCalls("",
		core.ToolCall{ID: "c1", Name: "slow", Arguments: []byte(`{}`)},
		core.ToolCall{ID: "c2", Name: "fast", Arguments: []byte(`{}`)},
	)
	f.mock.QueueText("final answer")
	sess := f.memory.Create("")

	_, events, err := f.sched.Submit(context.Background(), sess.ID, "run the tools", 0)
	require.NoError(t, err)
	all := drain(t, events)
	assert.Equal(t, core.StatusCompleted, doneEvent(t, all).State.Status)

	msgs, _ := sess.Snapshot()
	// user, assistant(tool calls), result c1, result c2, assistant final
	require.Len(t, msgs, 5)
	assert.Equal(t, "c1", msgs[2].ToolCallID)
	assert.Equal(t, "slow-out", msgs[2].Content)
	assert.Equal(t, "c2", msgs[3].ToolCallID)
	assert.Equal(t, "fast-out", msgs[3].Content)
	assert.Equal(t, "final answer", msgs[4].Content)

	cps := f.sink.BySession(sess.ID)
	require.Len(t, cps, 2)
	assert.Equal(t, 1, cps[0].Iteration)
	assert.Equal(t, core.StatusRunning, cps[0].Status)
	assert.Equal(t, 2, cps[1].Iteration)
	assert.Equal(t, core.StatusCompleted, cps[1].Status)
}

func TestInterruptHonoredAtIterationBoundary(t *testing.T) {
	f := newFixture(t)
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, f.registry.Register(tool.NewFunc("gate", "", func(context.Context, map[string]any) (any, error) {
		close(started)
		<-release
		return "gated", nil
	})))

	f.mock.QueueToolCalls("", core.ToolCall{ID: "c1", Name: "gate", Arguments: []byte(`{}`)})
	f.mock.QueueText("never reached")
	sess := f.memory.Create("")

	// No active task yet: interrupt is refused.
	assert.False(t, f.sched.Interrupt(sess.ID))

	_, events, err := f.sched.Submit(context.Background(), sess.ID, "go", 0)
	require.NoError(t, err)

	<-started
	assert.True(t, f.sched.Interrupt(sess.ID))
	close(release)

	all := drain(t, events)
	assert.Equal(t, core.StatusInterrupted, doneEvent(t, all).State.Status)

	// The in-flight tool round still joined and its result was kept; the
	// second model turn never ran.
	msgs, _ := sess.Snapshot()
	assert.Equal(t, "gated", msgs[len(msgs)-1].Content)
	assert.Equal(t, 1, f.mock.Served())
}

func TestPauseAndResume(t *testing.T) {
	f := newFixture(t)
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, f.registry.Register(tool.NewFunc("gate", "", func(context.Context, map[string]any) (any, error) {
		close(started)
		<-release
		return "gated", nil
	})))

	f.mock.QueueToolCalls("", core.ToolCall{ID: "c1", Name: "gate", Arguments: []byte(`{}`)})
	f.mock.QueueText("after pause")
	sess := f.memory.Create("")

	_, events, err := f.sched.Submit(context.Background(), sess.ID, "go", 0)
	require.NoError(t, err)

	<-started
	assert.True(t, f.sched.Pause(sess.ID))
	close(release)

	// Wait for the loop to report Paused at the next boundary.
	sawPaused := false
	for ev := range events {
		if ev.Type == EventStatus && ev.State.Status == core.StatusPaused {
			sawPaused = true
			assert.True(t, f.sched.Resume(sess.ID))
		}
		if ev.Type == EventDone {
			assert.Equal(t, core.StatusCompleted, ev.State.Status)
			break
		}
	}
	assert.True(t, sawPaused)

	msgs, _ := sess.Snapshot()
	assert.Equal(t, "after pause", msgs[len(msgs)-1].Content)
}

func TestPerSessionSerialization(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Workers = 2 })
	started := make(chan struct{})
	require.NoError(t, f.registry.Register(tool.NewFunc("nap", "", func(context.Context, map[string]any) (any, error) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		return "ok", nil
	})))

	// Turn one runs a tool to hold the session busy; both tasks then answer.
	f.mock.QueueToolCalls("", core.ToolCall{ID: "c1", Name: "nap", Arguments: []byte(`{}`)})
	f.mock.QueueText("first answer")
	f.mock.QueueText("second answer")
	sess := f.memory.Create("")

	ctx := context.Background()
	_, ev1, err := f.sched.Submit(ctx, sess.ID, "first", 0)
	require.NoError(t, err)
	// Only submit the second message once the first task is mid-flight, so
	// it must park behind the busy session.
	<-started
	_, ev2, err := f.sched.Submit(ctx, sess.ID, "second", 0)
	require.NoError(t, err)

	assert.Equal(t, core.StatusCompleted, doneEvent(t, drain(t, ev1)).State.Status)
	assert.Equal(t, core.StatusCompleted, doneEvent(t, drain(t, ev2)).State.Status)

	// The second user message only entered the window after the first task
	// reached a terminal state.
	msgs, _ := sess.Snapshot()
	var order []string
	for _, m := range msgs {
		if m.Role == core.RoleUser {
			order = append(order, m.Content)
		}
		if m.Role == core.RoleAssistant && m.Content != "" {
			order = append(order, m.Content)
		}
	}
	assert.Equal(t, []string{"first", "first answer", "second", "second answer"}, order)
}

func TestIterationTimeoutFailsTask(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.IterationTimeout = 50 * time.Millisecond })
	require.NoError(t, f.registry.Register(tool.NewFunc("hang", "", func(ctx context.Context, _ map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})))

	f.mock.QueueToolCalls("", core.ToolCall{ID: "c1", Name: "hang", Arguments: []byte(`{}`)})
	sess := f.memory.Create("")

	_, events, err := f.sched.Submit(context.Background(), sess.ID, "go", 0)
	require.NoError(t, err)
	all := drain(t, events)

	done := doneEvent(t, all)
	assert.Equal(t, core.StatusFailed, done.State.Status)

	var taskErr error
	for _, ev := range all {
		if ev.Type == EventError {
			taskErr = ev.Err
		}
	}
	var timeoutErr *core.AgentTimeoutError
	require.ErrorAs(t, taskErr, &timeoutErr)

	// Partial tool results of the aborted iteration are discarded.
	msgs, _ := sess.Snapshot()
	for _, m := range msgs {
		assert.NotEqual(t, core.RoleTool, m.Role)
	}

	// The aborted iteration still gets a snapshot so the sequence is gapless.
	cps := f.sink.BySession(sess.ID)
	require.Len(t, cps, 1)
	assert.Equal(t, 1, cps[0].Iteration)
	assert.Equal(t, core.StatusFailed, cps[0].Status)
}

func TestMaxIterationsCompletes(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.MaxIterations = 2 })
	require.NoError(t, f.registry.Register(tool.NewFunc("noop", "", func(context.Context, map[string]any) (any, error) {
		return "ok", nil
	})))
	// The model keeps asking for tools; the budget cuts it off.
	for i := 0; i < 3; i++ {
		f.mock.QueueToolCalls("", core.ToolCall{ID: "c", Name: "noop", Arguments: []byte(`{}`)})
	}
	sess := f.memory.Create("")

	_, events, err := f.sched.Submit(context.Background(), sess.ID, "go", 0)
	require.NoError(t, err)
	all := drain(t, events)

	assert.Equal(t, core.StatusCompleted, doneEvent(t, all).State.Status)
	assert.Equal(t, 2, f.mock.Served())
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	sess := f.memory.Create("")

	var ve *core.ValidationError
	_, _, err := f.sched.Submit(context.Background(), sess.ID, "", 0)
	require.ErrorAs(t, err, &ve)

	_, _, err = f.sched.Submit(context.Background(), "missing", "hi", 0)
	require.ErrorAs(t, err, &ve)

	_, _, err = f.sched.Submit(context.Background(), "", "hi", 0)
	require.ErrorAs(t, err, &ve)
}

func TestStateSnapshot(t *testing.T) {
	f := newFixture(t)
	f.mock.QueueText("done")
	sess := f.memory.Create("")

	_, events, err := f.sched.Submit(context.Background(), sess.ID, "hi", 0)
	require.NoError(t, err)
	drain(t, events)

	st, ok := f.sched.State(sess.ID)
	require.True(t, ok)
	assert.Equal(t, sess.ID, st.SessionID)
	assert.Equal(t, core.StatusCompleted, st.Status)
	assert.Equal(t, 1, st.Iteration)

	_, ok = f.sched.State("missing")
	assert.False(t, ok)
}

func TestRetriedIterationLeavesNoCheckpointGap(t *testing.T) {
	mem := memory.NewManager(token.NewHeuristicCounter())
	registry := tool.NewRegistry()
	executor := tool.NewExecutor(registry)
	pipe := pipeline.New()
	require.NoError(t, pipe.Use(&pipeline.ValidationMiddleware{}))
	require.NoError(t, pipe.Use(pipeline.NewRetryMiddleware(func(m *pipeline.RetryMiddleware) {
		m.BaseDelay = time.Millisecond
	})))
	sink := checkpoint.NewMemorySink()
	mock := model.NewMockModel("test-model")
	mock.QueueError(core.Transient("model.generate", assert.AnError))
	mock.QueueText("recovered")
	q := queue.NewMemory()

	sched := New(q, mem, mock, registry, executor, pipe, sink, func(o *Options) {
		o.DequeueTimeout = 20 * time.Millisecond
	})
	sched.Start()
	t.Cleanup(func() {
		sched.Stop()
		_ = q.Close()
	})

	sess := mem.Create("")
	_, events, err := sched.Submit(context.Background(), sess.ID, "hi", 0)
	require.NoError(t, err)
	all := drain(t, events)

	assert.Equal(t, core.StatusCompleted, doneEvent(t, all).State.Status)
	assert.Equal(t, 2, mock.Served())

	// The transient attempt consumed iteration 1; the retry ran as 2. Both
	// numbers carry a snapshot.
	cps := sink.BySession(sess.ID)
	require.Len(t, cps, 2)
	assert.Equal(t, 1, cps[0].Iteration)
	assert.Equal(t, core.StatusFailed, cps[0].Status)
	assert.Equal(t, 2, cps[1].Iteration)
	assert.Equal(t, core.StatusCompleted, cps[1].Status)

	// The retry re-ran only the loop, not the user-message append.
	msgs, _ := sess.Snapshot()
	var users int
	for _, m := range msgs {
		if m.Role == core.RoleUser {
			users++
		}
	}
	assert.Equal(t, 1, users)
}

func TestModelErrorFailsTask(t *testing.T) {
	f := newFixture(t)
	f.mock.QueueError(assert.AnError)
	sess := f.memory.Create("")

	_, events, err := f.sched.Submit(context.Background(), sess.ID, "hi", 0)
	require.NoError(t, err)
	all := drain(t, events)
	assert.Equal(t, core.StatusFailed, doneEvent(t, all).State.Status)
}
