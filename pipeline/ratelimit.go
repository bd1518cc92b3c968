package pipeline

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/agentloop/agentloop/core"
)

// RateLimitMode selects how over-limit messages are handled.
type RateLimitMode int

const (
	// RateLimitWait blocks until the token bucket refills (or the context
	// is cancelled). The message is delayed, never dropped.
	RateLimitWait RateLimitMode = iota
	// RateLimitReject fails over-limit messages with core.ErrRateLimited.
	RateLimitReject
)

// RateLimitMiddleware enforces a token-bucket limit on message throughput.
// Over-limit messages are either delayed or rejected with an explicit
// error, never silently dropped.
type RateLimitMiddleware struct {
	limiter *rate.Limiter
	mode    RateLimitMode
}

// RateLimitOptions configure the middleware.
type RateLimitOptions struct {
	// RPS is the sustained messages-per-second rate.
	RPS float64
	// Burst is the bucket size; defaults to ceil(RPS).
	Burst int
	Mode  RateLimitMode
}

// NewRateLimitMiddleware builds a limiter at the given rate.
func NewRateLimitMiddleware(optFns ...func(o *RateLimitOptions)) *RateLimitMiddleware {
	opts := RateLimitOptions{RPS: 10, Mode: RateLimitWait}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Burst <= 0 {
		opts.Burst = int(opts.RPS)
		if opts.Burst < 1 {
			opts.Burst = 1
		}
	}
	return &RateLimitMiddleware{
		limiter: rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst),
		mode:    opts.Mode,
	}
}

// Name implements Middleware.
func (m *RateLimitMiddleware) Name() string { return "rate_limit" }

// Process implements Middleware.
func (m *RateLimitMiddleware) Process(ctx context.Context, pc *Context, next Handler) error {
	switch m.mode {
	case RateLimitReject:
		if !m.limiter.Allow() {
			return core.ErrRateLimited
		}
	default:
		if err := m.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return next(ctx, pc)
}
