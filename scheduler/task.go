package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/model"
	"github.com/agentloop/agentloop/pipeline"
	"github.com/agentloop/agentloop/queue"
)

// emitter delivers events to the task's subscriber, dropping on overflow so
// a slow consumer can never wedge the loop.
type emitter struct {
	ch        chan Event
	sessionID string
	messageID string
	sched     *Scheduler
}

func (e *emitter) send(ev Event) {
	if e.ch == nil {
		return
	}
	ev.SessionID = e.sessionID
	ev.MessageID = e.messageID
	select {
	case e.ch <- ev:
	default:
		e.sched.logger.Warn("event dropped, subscriber too slow",
			"session_id", e.sessionID, "event_type", ev.Type)
	}
}

func (e *emitter) close() {
	if e.ch != nil {
		close(e.ch)
	}
}

// runTask executes one queued message end to end: pipeline, loop, terminal
// state, done event. Nothing escapes; every failure lands in the task's
// terminal status.
func (s *Scheduler) runTask(ctl *control, msg queue.Message) {
	emit := &emitter{
		ch:        s.takeWaiter(msg.ID),
		sessionID: msg.SessionID,
		messageID: msg.ID,
		sched:     s,
	}
	defer emit.close()

	logger := s.logger
	logger.Debug("task started", "session_id", msg.SessionID, "message_id", msg.ID)

	ctl.setStatus(core.StatusRunning)
	emit.send(Event{Type: EventStatus, State: ctl.snapshot()})

	if err := s.memory.Append(msg.SessionID, core.NewMessage(core.RoleUser, msg.Payload)); err != nil {
		s.finishTask(ctl, emit, core.StatusFailed, err)
		return
	}

	pc := pipeline.NewContext(msg.SessionID, msg.ID, msg.Payload)
	err := s.pipe.Execute(s.runCtx, pc, func(ctx context.Context, _ *pipeline.Context) error {
		return s.runLoop(ctx, ctl, msg.SessionID, emit)
	})

	st := ctl.snapshot()
	switch {
	case err != nil:
		s.finishTask(ctl, emit, core.StatusFailed, err)
	case st.Status.Terminal():
		s.finishTask(ctl, emit, st.Status, nil)
	default:
		// The loop returned without setting a terminal state; treat as
		// completed.
		s.finishTask(ctl, emit, core.StatusCompleted, nil)
	}
}

func (s *Scheduler) finishTask(ctl *control, emit *emitter, status core.Status, err error) {
	ctl.setStatus(status)
	ctl.setPendingCalls(nil)
	if err != nil {
		emit.send(Event{Type: EventError, Err: err})
		s.logger.Warn("task failed", "session_id", ctl.snapshot().SessionID, "error", err)
	}
	s.metrics.IncTaskStatus(string(status))
	emit.send(Event{Type: EventDone, State: ctl.snapshot()})
}

// runLoop is the iteration cycle: signal check, context maintenance, model
// call, tool round, checkpoint. Interrupt and pause are only observed here,
// at iteration boundaries and after a tool round joins.
func (s *Scheduler) runLoop(ctx context.Context, ctl *control, sessionID string, emit *emitter) error {
	for i := 0; i < s.opts.MaxIterations; i++ {
		if s.checkSignals(ctx, ctl, emit) {
			return nil
		}

		iterCtx, cancel := context.WithTimeout(ctx, s.opts.IterationTimeout)
		done, err := s.runIteration(iterCtx, ctl, sessionID, emit)
		cancel()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}

	// Iteration budget exhausted; the conversation stands as-is.
	s.logger.Info("max iterations reached", "session_id", sessionID, "max", s.opts.MaxIterations)
	ctl.setStatus(core.StatusCompleted)
	return nil
}

// checkSignals handles pause and interrupt at an iteration boundary.
// Returns true when the task should stop as interrupted.
func (s *Scheduler) checkSignals(ctx context.Context, ctl *control, emit *emitter) bool {
	if ctl.takeInterrupt() {
		ctl.setStatus(core.StatusInterrupted)
		return true
	}
	for {
		gate := ctl.pauseGate()
		if gate == nil {
			break
		}
		ctl.setStatus(core.StatusPaused)
		emit.send(Event{Type: EventStatus, State: ctl.snapshot()})
		select {
		case <-ctx.Done():
			return false
		case <-gate:
		}
		ctl.setStatus(core.StatusRunning)
		emit.send(Event{Type: EventStatus, State: ctl.snapshot()})
	}
	if ctl.takeInterrupt() {
		ctl.setStatus(core.StatusInterrupted)
		return true
	}
	return false
}

// runIteration performs one model call and, if requested, one parallel tool
// round, then checkpoints. done is true when the model answered without
// tool calls (the task completed). A failed attempt still consumed its
// iteration number, so it gets a Failed snapshot before the error
// propagates: the pipeline retry middleware may rerun the loop, and the
// per-session checkpoint sequence must stay gapless either way.
func (s *Scheduler) runIteration(ctx context.Context, ctl *control, sessionID string, emit *emitter) (bool, error) {
	s.metrics.IncIterations()
	iteration := ctl.nextIteration()

	done, err := s.iterate(ctx, ctl, sessionID, iteration, emit)
	if err != nil {
		// runCtx, not ctx: the iteration deadline may already be spent.
		_ = s.writeCheckpoint(s.runCtx, ctl, sessionID, iteration, core.StatusFailed)
		return false, err
	}
	return done, nil
}

func (s *Scheduler) iterate(ctx context.Context, ctl *control, sessionID string, iteration int, emit *emitter) (bool, error) {
	if s.memory.Evaluate(sessionID) {
		s.metrics.IncCompressions()
		if err := s.memory.Compress(ctx, sessionID); err != nil {
			if !errors.Is(err, core.ErrCompressionIncomplete) {
				return false, err
			}
			// Best effort: proceed with whatever space was reclaimed.
			s.logger.Warn("compression incomplete", "session_id", sessionID)
		}
	}

	req := model.Request{
		Messages: s.memory.ContextMessages(sessionID),
		Tools:    s.registry.Definitions(),
		Stream:   s.opts.Stream,
	}
	start := time.Now()
	final, err := s.drainModel(ctx, req, emit)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			// Partial output of the aborted iteration is discarded.
			return false, &core.AgentTimeoutError{
				SessionID: sessionID,
				Iteration: iteration,
				Timeout:   s.opts.IterationTimeout,
			}
		}
		return false, err
	}
	s.logger.Debug("model call finished",
		"session_id", sessionID,
		"iteration", iteration,
		"duration", time.Since(start),
		"finish_reason", final.FinishReason,
	)

	assistant := final.Message
	if err := s.memory.Append(sessionID, assistant); err != nil {
		return false, err
	}
	emit.send(Event{Type: EventMessage, Message: &assistant})

	if !assistant.HasToolCalls() {
		ctl.setStatus(core.StatusCompleted)
		return true, s.writeCheckpoint(ctx, ctl, sessionID, iteration, core.StatusCompleted)
	}

	callIDs := make([]string, len(assistant.ToolCalls))
	for i, tc := range assistant.ToolCalls {
		callIDs[i] = tc.ID
	}
	ctl.setPendingCalls(callIDs)

	results := s.executor.Execute(ctx, assistant.ToolCalls)
	if ctx.Err() == context.DeadlineExceeded {
		// Tool round overran the iteration budget; partial results are
		// discarded, none are appended.
		ctl.setPendingCalls(nil)
		return false, &core.AgentTimeoutError{
			SessionID: sessionID,
			Iteration: iteration,
			Timeout:   s.opts.IterationTimeout,
		}
	}
	for i := range results {
		res := results[i]
		s.metrics.IncToolCall(res.Name, res.IsError())
		if err := s.memory.Append(sessionID, core.NewToolResult(res.CallID, res.Content)); err != nil {
			return false, err
		}
		emit.send(Event{Type: EventToolResult, Result: &res})
	}
	ctl.setPendingCalls(nil)

	return false, s.writeCheckpoint(ctx, ctl, sessionID, iteration, core.StatusRunning)
}

// drainModel consumes the model's channel pair, forwarding deltas and
// returning the final response.
func (s *Scheduler) drainModel(ctx context.Context, req model.Request, emit *emitter) (model.Response, error) {
	respCh, errCh := s.mdl.Generate(ctx, req)
	var final model.Response
	var sawFinal bool
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return model.Response{}, ctx.Err()
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if resp.Partial {
				emit.send(Event{Type: EventDelta, Delta: resp.Delta})
				continue
			}
			final = resp
			sawFinal = true
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return model.Response{}, err
			}
		}
	}
	if !sawFinal {
		return model.Response{}, errors.New("model produced no final response")
	}
	return final, nil
}

// writeCheckpoint persists the post-iteration snapshot. Iteration numbers
// are strictly increasing per session; the sink deduplicates retries.
func (s *Scheduler) writeCheckpoint(ctx context.Context, ctl *control, sessionID string, iteration int, status core.Status) error {
	sess, ok := s.memory.Get(sessionID)
	if !ok {
		return nil
	}
	msgs, summary := sess.Snapshot()
	cp := core.Checkpoint{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Iteration: iteration,
		Status:    status,
		Messages:  msgs,
		Summary:   summary,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.sink.Write(ctx, cp); err != nil {
		// A lost checkpoint must not fail the conversation.
		s.logger.Warn("checkpoint write failed", "session_id", sessionID, "iteration", iteration, "error", err)
		return nil
	}
	s.metrics.IncCheckpoints()
	return nil
}
