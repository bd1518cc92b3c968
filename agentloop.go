// Package agentloop provides a high-level façade over the runtime components
// (context memory, message queue, pipeline, tool executor and the loop
// scheduler) enabling rapid construction of conversational agents. Most
// applications interact with this package by:
//  1. Creating an AgentLoop via New() with a model (optionally overriding the
//     default in-memory queue and checkpoint sink)
//  2. Registering tools
//  3. Submitting messages synchronously (Chat) or as an event stream
//     (ChatStream)
//
// The façade delegates orchestration to scheduler.Scheduler while keeping
// setup and usage ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply the Redis
// or Postgres queue backend, a Postgres checkpoint sink and a structured
// logger.
package agentloop

import (
	"context"
	"fmt"

	"github.com/agentloop/agentloop/checkpoint"
	"github.com/agentloop/agentloop/config"
	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/logging"
	"github.com/agentloop/agentloop/memory"
	"github.com/agentloop/agentloop/model"
	"github.com/agentloop/agentloop/pipeline"
	"github.com/agentloop/agentloop/queue"
	"github.com/agentloop/agentloop/scheduler"
	"github.com/agentloop/agentloop/telemetry"
	"github.com/agentloop/agentloop/token"
	"github.com/agentloop/agentloop/tool"
)

// Options configures the AgentLoop instance.
type Options struct {
	// Config holds the tunable runtime settings. Defaults to config.Default.
	Config *config.Config

	// Queue is the message backend. Defaults to the in-memory heap queue.
	Queue queue.Backend

	// Sink receives iteration checkpoints. Defaults to an in-memory sink.
	Sink checkpoint.Sink

	// Counter estimates token usage. Defaults to the character heuristic.
	Counter token.Counter

	// Middlewares replace the default chain (validation, logging, timing,
	// retry) when non-nil.
	Middlewares []pipeline.Middleware

	// Workers is the number of queue consumers.
	Workers int

	// Stream requests partial deltas from the model.
	Stream bool

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	// Metrics is an optional telemetry bundle.
	Metrics *telemetry.Metrics
}

// AgentLoop is the high-level façade aggregating the runtime components.
type AgentLoop struct {
	opts     Options
	memory   *memory.Manager
	registry *tool.Registry
	sched    *scheduler.Scheduler
}

// New creates a new AgentLoop around the given model with optional
// overrides. Any unset component is initialized with an in-memory
// implementation.
func New(mdl model.Model, optFns ...func(o *Options)) (*AgentLoop, error) {
	opts := Options{
		Config:  config.Default(),
		Counter: token.NewHeuristicCounter(),
		Workers: 1,
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Queue == nil {
		opts.Queue = queue.NewMemory(func(o *queue.MemoryOptions) {
			o.MaxSize = cfg.Queue.MaxSize
		})
	}
	if opts.Sink == nil {
		opts.Sink = checkpoint.NewMemorySink()
	}

	mem := memory.NewManager(opts.Counter, func(o *memory.ManagerOptions) {
		o.MaxContextTokens = cfg.Memory.MaxContextTokens
		o.CompressionThreshold = cfg.Memory.CompressionThreshold
		o.TargetRatio = cfg.Memory.TargetRatio
		o.KeepRecent = cfg.Memory.KeepRecent
		o.SummaryMaxTokens = cfg.Memory.SummaryMaxTokens
		o.Scorer = memory.NewScorer(func(s *memory.Scorer) {
			s.Decay = cfg.Memory.DecayFactor
		})
		o.Logger = opts.Logger
	})

	registry := tool.NewRegistry()
	executor := tool.NewExecutor(registry, func(o *tool.ExecutorOptions) {
		o.MaxParallel = cfg.Agent.MaxParallelTools
		o.CallTimeout = cfg.Agent.ToolCallTimeout
		o.Logger = opts.Logger
	})

	pipe := pipeline.New()
	mws := opts.Middlewares
	if mws == nil {
		mws = []pipeline.Middleware{
			&pipeline.ValidationMiddleware{},
			&pipeline.LoggingMiddleware{Logger: opts.Logger},
			&pipeline.TimingMiddleware{},
			pipeline.NewRetryMiddleware(func(m *pipeline.RetryMiddleware) {
				m.MaxRetries = cfg.Pipeline.MaxRetries
				m.BaseDelay = cfg.Pipeline.RetryDelay
				m.Logger = opts.Logger
			}),
		}
	}
	for _, mw := range mws {
		if err := pipe.Use(mw); err != nil {
			return nil, fmt.Errorf("pipeline setup: %w", err)
		}
	}

	sched := scheduler.New(opts.Queue, mem, mdl, registry, executor, pipe, opts.Sink,
		func(o *scheduler.Options) {
			o.MaxIterations = cfg.Agent.MaxIterations
			o.IterationTimeout = cfg.Agent.IterationTimeout
			o.DequeueTimeout = cfg.Queue.DequeueTimeout
			o.MessageTTL = cfg.Queue.MessageTTL
			o.Workers = opts.Workers
			o.Stream = opts.Stream
			o.Logger = opts.Logger
			o.Metrics = opts.Metrics
		},
	)

	return &AgentLoop{
		opts:     opts,
		memory:   mem,
		registry: registry,
		sched:    sched,
	}, nil
}

// Start launches the scheduler workers.
func (l *AgentLoop) Start() { l.sched.Start() }

// Stop drains the workers and closes the queue and checkpoint sink.
func (l *AgentLoop) Stop() error {
	l.sched.Stop()
	if err := l.opts.Queue.Close(); err != nil {
		return err
	}
	return l.opts.Sink.Close()
}

// RegisterTool adds a tool to the registry.
func (l *AgentLoop) RegisterTool(t tool.Tool) error { return l.registry.Register(t) }

// RegisterTools registers a tool list in order, honoring the registry's
// conflict policy.
func (l *AgentLoop) RegisterTools(tools ...tool.Tool) error {
	return l.registry.RegisterAll(tools...)
}

// NewSession creates a conversation and returns its id.
func (l *AgentLoop) NewSession(systemPrompt string) string {
	return l.memory.Create(systemPrompt).ID
}

// DeleteSession drops a conversation and its context window.
func (l *AgentLoop) DeleteSession(sessionID string) { l.memory.Delete(sessionID) }

// ChatStream submits a message and returns the task's event stream. The
// channel closes after the done event.
func (l *AgentLoop) ChatStream(ctx context.Context, sessionID, text string) (string, <-chan scheduler.Event, error) {
	return l.sched.Submit(ctx, sessionID, text, 0)
}

// Chat is a synchronous helper that drains the event stream and returns the
// final assistant reply.
func (l *AgentLoop) Chat(ctx context.Context, sessionID, text string) (string, error) {
	_, events, err := l.sched.Submit(ctx, sessionID, text, 0)
	if err != nil {
		return "", err
	}

	var reply string
	var taskErr error
	for {
		select {
		case <-ctx.Done():
			// Stream abandoned; the task still runs to its terminal state.
			return reply, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return reply, taskErr
			}
			switch ev.Type {
			case scheduler.EventMessage:
				if ev.Message != nil && ev.Message.Content != "" {
					reply = ev.Message.Content
				}
			case scheduler.EventError:
				taskErr = ev.Err
			}
		}
	}
}

// Interrupt stops the session's active task at the next iteration boundary.
func (l *AgentLoop) Interrupt(sessionID string) bool { return l.sched.Interrupt(sessionID) }

// Pause holds the session's active task at the next iteration boundary.
func (l *AgentLoop) Pause(sessionID string) bool { return l.sched.Pause(sessionID) }

// Resume releases a paused task.
func (l *AgentLoop) Resume(sessionID string) bool { return l.sched.Resume(sessionID) }

// State returns the session's loop state.
func (l *AgentLoop) State(sessionID string) (core.AgentState, bool) { return l.sched.State(sessionID) }

// Memory exposes the context manager for inspection and tuning.
func (l *AgentLoop) Memory() *memory.Manager { return l.memory }

// Stats aggregates scheduler and memory statistics.
func (l *AgentLoop) Stats(ctx context.Context) map[string]any {
	stats := l.sched.Stats(ctx)
	stats["tools"] = l.registry.Len()
	return stats
}
