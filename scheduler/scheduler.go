// Package scheduler drives the agent loop: it consumes the message queue,
// serializes tasks per session, runs the iterate-call-dispatch cycle and
// honors interrupt/pause signals at iteration boundaries.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/agentloop/agentloop/checkpoint"
	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/logging"
	"github.com/agentloop/agentloop/memory"
	"github.com/agentloop/agentloop/model"
	"github.com/agentloop/agentloop/pipeline"
	"github.com/agentloop/agentloop/queue"
	"github.com/agentloop/agentloop/telemetry"
	"github.com/agentloop/agentloop/tool"
)

// Options configure a Scheduler.
type Options struct {
	// MaxIterations caps loop iterations per task.
	MaxIterations int
	// IterationTimeout bounds one full iteration (model call plus tools).
	IterationTimeout time.Duration
	// DequeueTimeout bounds each blocking queue poll.
	DequeueTimeout time.Duration
	// MessageTTL expires submitted messages still sitting in the queue.
	// Zero disables expiry.
	MessageTTL time.Duration
	// Workers is the number of queue consumers.
	Workers int
	// Stream requests partial deltas from the model.
	Stream bool
	// EventBuffer sizes each task's event channel.
	EventBuffer int

	Logger  logging.Logger
	Metrics *telemetry.Metrics
}

// Scheduler owns the worker pool and per-session controls.
type Scheduler struct {
	queue    queue.Backend
	memory   *memory.Manager
	mdl      model.Model
	registry *tool.Registry
	executor *tool.Executor
	pipe     *pipeline.Pipeline
	sink     checkpoint.Sink

	opts    Options
	logger  logging.Logger
	metrics *telemetry.Metrics

	mu       sync.Mutex
	controls map[string]*control
	waiters  map[string]chan Event

	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New wires a scheduler from its collaborators.
func New(
	q queue.Backend,
	mem *memory.Manager,
	mdl model.Model,
	registry *tool.Registry,
	executor *tool.Executor,
	pipe *pipeline.Pipeline,
	sink checkpoint.Sink,
	optFns ...func(o *Options),
) *Scheduler {
	opts := Options{
		MaxIterations:    10,
		IterationTimeout: 300 * time.Second,
		DequeueTimeout:   time.Second,
		Workers:          1,
		EventBuffer:      64,
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Scheduler{
		queue:    q,
		memory:   mem,
		mdl:      mdl,
		registry: registry,
		executor: executor,
		pipe:     pipe,
		sink:     sink,
		opts:     opts,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		controls: map[string]*control{},
		waiters:  map[string]chan Event{},
	}
}

// Start launches the worker pool. Idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.runCtx, s.cancel = context.WithCancel(context.Background())
	for i := 0; i < s.opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.logger.Info("scheduler started", "workers", s.opts.Workers)
}

// Stop cancels the workers and waits for them to drain.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Submit validates and enqueues a user message for a session. The returned
// channel streams the task's events and is closed after the done event.
func (s *Scheduler) Submit(ctx context.Context, sessionID, payload string, priority int) (string, <-chan Event, error) {
	if sessionID == "" {
		return "", nil, &core.ValidationError{Field: "session_id", Message: "session id is required"}
	}
	if payload == "" {
		return "", nil, &core.ValidationError{Field: "payload", Message: "payload is empty"}
	}
	if _, ok := s.memory.Get(sessionID); !ok {
		return "", nil, &core.ValidationError{Field: "session_id", Message: "unknown session"}
	}

	msg := queue.NewMessage(sessionID, payload, priority)
	if s.opts.MessageTTL > 0 {
		msg.ExpiresAt = msg.EnqueuedAt.Add(s.opts.MessageTTL)
	}

	events := make(chan Event, s.opts.EventBuffer)
	s.mu.Lock()
	s.waiters[msg.ID] = events
	s.mu.Unlock()

	if err := s.queue.Enqueue(ctx, msg); err != nil {
		s.mu.Lock()
		delete(s.waiters, msg.ID)
		s.mu.Unlock()
		return "", nil, err
	}
	s.metrics.IncEnqueued()
	s.logger.Debug("message submitted", "session_id", sessionID, "message_id", msg.ID, "priority", priority)
	return msg.ID, events, nil
}

// Interrupt requests a stop of the session's active task. Returns false
// when no task is active; the signal is honored at the next iteration
// boundary or after the current tool round joins.
func (s *Scheduler) Interrupt(sessionID string) bool {
	ctl, ok := s.lookupControl(sessionID)
	if !ok {
		return false
	}
	if ctl.interrupt() {
		s.logger.Info("interrupt requested", "session_id", sessionID)
		return true
	}
	return false
}

// Pause holds the session's task at the next iteration boundary.
func (s *Scheduler) Pause(sessionID string) bool {
	ctl, ok := s.lookupControl(sessionID)
	if !ok {
		return false
	}
	if ctl.pause() {
		s.logger.Info("pause requested", "session_id", sessionID)
		return true
	}
	return false
}

// Resume releases a paused task.
func (s *Scheduler) Resume(sessionID string) bool {
	ctl, ok := s.lookupControl(sessionID)
	if !ok {
		return false
	}
	if ctl.unpause() {
		s.logger.Info("task resumed", "session_id", sessionID)
		return true
	}
	return false
}

// State returns the session's loop state snapshot.
func (s *Scheduler) State(sessionID string) (core.AgentState, bool) {
	ctl, ok := s.lookupControl(sessionID)
	if !ok {
		return core.AgentState{}, false
	}
	return ctl.snapshot(), true
}

// Stats reports queue depth and tracked sessions.
func (s *Scheduler) Stats(ctx context.Context) map[string]any {
	depth, _ := s.queue.Len(ctx)
	s.mu.Lock()
	sessions := len(s.controls)
	s.mu.Unlock()
	return map[string]any{
		"queue_depth": depth,
		"sessions":    sessions,
		"workers":     s.opts.Workers,
	}
}

func (s *Scheduler) lookupControl(sessionID string) (*control, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctl, ok := s.controls[sessionID]
	return ctl, ok
}

func (s *Scheduler) controlFor(sessionID string) *control {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctl, ok := s.controls[sessionID]
	if !ok {
		ctl = newControl(sessionID)
		s.controls[sessionID] = ctl
	}
	return ctl
}

func (s *Scheduler) takeWaiter(messageID string) chan Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.waiters[messageID]
	delete(s.waiters, messageID)
	return ch
}

// worker consumes the queue until the scheduler stops. A message for a busy
// session is parked on that session's control and replayed in arrival
// order once the active task finishes.
func (s *Scheduler) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.runCtx.Done():
			return
		default:
		}
		msg, ok, err := s.queue.Dequeue(s.runCtx, s.opts.DequeueTimeout)
		if err != nil {
			if s.runCtx.Err() != nil {
				return
			}
			if errors.Is(err, queue.ErrClosed) {
				s.logger.Warn("queue closed, worker stopping")
				return
			}
			s.logger.Warn("dequeue failed", "error", err)
			continue
		}
		if !ok {
			continue
		}
		s.metrics.IncDequeued()

		ctl := s.controlFor(msg.SessionID)
		if !ctl.begin(msg) {
			// Parked; the owning worker picks it up via ctl.next.
			continue
		}
		for {
			s.runTask(ctl, msg)
			next, more := ctl.next()
			if !more {
				break
			}
			msg = next
		}
	}
}
