// Package pipeline runs messages through an ordered middleware chain before
// they reach the agent loop. Middlewares compose continuation-style: each
// one decides whether to call the rest of the chain.
package pipeline

import (
	"context"
	"time"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/logging"
)

// Context is the mutable state flowing through the chain alongside one
// message.
type Context struct {
	SessionID string
	MessageID string
	Payload   any
	Metadata  map[string]any
	StartedAt time.Time
}

// NewContext creates a pipeline context for a message.
func NewContext(sessionID, messageID string, payload any) *Context {
	return &Context{
		SessionID: sessionID,
		MessageID: messageID,
		Payload:   payload,
		Metadata:  map[string]any{},
		StartedAt: time.Now(),
	}
}

// Handler is a continuation: either the rest of the chain or the final
// message handler.
type Handler func(ctx context.Context, pc *Context) error

// Middleware wraps message handling. Implementations call next to continue
// the chain, or return without calling it to short-circuit.
type Middleware interface {
	Name() string
	Process(ctx context.Context, pc *Context, next Handler) error
}

// Options configure a Pipeline.
type Options struct {
	Logger logging.Logger
}

// Pipeline is an ordered middleware chain. Middleware names are unique; a
// duplicate Use keeps the first registration.
type Pipeline struct {
	mws    []Middleware
	names  map[string]bool
	logger logging.Logger
}

// New creates an empty pipeline.
func New(optFns ...func(o *Options)) *Pipeline {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Pipeline{names: map[string]bool{}, logger: opts.Logger}
}

// Use appends a middleware. A duplicate name returns *core.ConflictError
// and leaves the chain unchanged.
func (p *Pipeline) Use(mw Middleware) error {
	if p.names[mw.Name()] {
		p.logger.Warn("duplicate middleware registration rejected", "middleware", mw.Name())
		return &core.ConflictError{Kind: "middleware", Name: mw.Name()}
	}
	p.names[mw.Name()] = true
	p.mws = append(p.mws, mw)
	return nil
}

// Names lists the chain in execution order.
func (p *Pipeline) Names() []string {
	out := make([]string, len(p.mws))
	for i, mw := range p.mws {
		out[i] = mw.Name()
	}
	return out
}

// Execute runs pc through the chain and into final. The chain is composed
// in reverse so the first registered middleware runs outermost.
func (p *Pipeline) Execute(ctx context.Context, pc *Context, final Handler) error {
	h := final
	for i := len(p.mws) - 1; i >= 0; i-- {
		mw := p.mws[i]
		next := h
		h = func(ctx context.Context, pc *Context) error {
			return mw.Process(ctx, pc, next)
		}
	}
	return h(ctx, pc)
}
