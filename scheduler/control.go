package scheduler

import (
	"sync"
	"time"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/queue"
)

// control is the single coordinating block for one session: loop state,
// interrupt/pause flags and the backlog of messages that arrived while a
// task was active. All signal paths go through it so the loop has exactly
// one place to poll at iteration boundaries.
type control struct {
	mu          sync.Mutex
	state       core.AgentState
	busy        bool
	interrupted bool
	paused      bool
	resume      chan struct{}
	pending     []queue.Message
}

func newControl(sessionID string) *control {
	return &control{
		state: core.AgentState{
			SessionID: sessionID,
			Status:    core.StatusIdle,
			UpdatedAt: time.Now().UTC(),
		},
	}
}

// begin claims the control for a task, or parks the message when one is
// already active.
func (c *control) begin(msg queue.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		c.pending = append(c.pending, msg)
		return false
	}
	c.busy = true
	c.interrupted = false
	c.paused = false
	c.resume = nil
	return true
}

// next pops the oldest parked message, releasing the control when the
// backlog is empty.
func (c *control) next() (queue.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		c.busy = false
		return queue.Message{}, false
	}
	msg := c.pending[0]
	c.pending = c.pending[1:]
	c.interrupted = false
	c.paused = false
	c.resume = nil
	return msg, true
}

// interrupt requests a stop. Only honored while a task is active; a paused
// task is released so the loop can observe the flag.
func (c *control) interrupt() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.busy {
		return false
	}
	c.interrupted = true
	if c.paused {
		c.paused = false
		if c.resume != nil {
			close(c.resume)
			c.resume = nil
		}
	}
	return true
}

// pause asks the loop to hold at the next iteration boundary.
func (c *control) pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.busy || c.paused || c.interrupted {
		return false
	}
	c.paused = true
	c.resume = make(chan struct{})
	return true
}

// unpause releases a paused task.
func (c *control) unpause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return false
	}
	c.paused = false
	if c.resume != nil {
		close(c.resume)
		c.resume = nil
	}
	return true
}

// takeInterrupt reports and consumes the interrupt flag.
func (c *control) takeInterrupt() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.interrupted {
		return false
	}
	c.interrupted = false
	return true
}

// pauseGate returns the channel to wait on while paused, or nil when the
// loop may proceed.
func (c *control) pauseGate() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return nil
	}
	return c.resume
}

// setStatus updates the tracked loop state.
func (c *control) setStatus(status core.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Status = status
	c.state.UpdatedAt = time.Now().UTC()
}

// setPending records in-flight tool call IDs.
func (c *control) setPendingCalls(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.PendingToolCalls = ids
}

// nextIteration advances the monotonic iteration counter and returns it.
func (c *control) nextIteration() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Iteration++
	return c.state.Iteration
}

// snapshot returns a copy of the loop state.
func (c *control) snapshot() core.AgentState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state
	st.PendingToolCalls = append([]string(nil), c.state.PendingToolCalls...)
	return st
}
