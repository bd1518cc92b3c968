package scheduler

import (
	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/tool"
)

// EventType discriminates stream events emitted while a task runs.
type EventType string

const (
	// EventDelta is a partial text chunk from a streaming model.
	EventDelta EventType = "delta"
	// EventMessage is a completed assistant message.
	EventMessage EventType = "message"
	// EventToolResult is one finished tool call.
	EventToolResult EventType = "tool_result"
	// EventStatus is a task status transition.
	EventStatus EventType = "status"
	// EventDone closes a task; State carries the terminal status.
	EventDone EventType = "done"
	// EventError reports the task's failure cause alongside EventDone.
	EventError EventType = "error"
)

// Event is one entry in a task's stream.
type Event struct {
	Type      EventType
	SessionID string
	MessageID string
	Delta     string
	Message   *core.Message
	Result    *tool.Result
	State     core.AgentState
	Err       error
}
