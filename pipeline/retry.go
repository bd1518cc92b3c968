package pipeline

import (
	"context"
	"time"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/logging"
)

// RetryMiddleware re-runs the rest of the chain on transient failures with
// exponential backoff. Non-retryable errors pass through immediately.
type RetryMiddleware struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int
	// BaseDelay is doubled on each attempt.
	BaseDelay time.Duration
	Logger    logging.Logger
}

// NewRetryMiddleware returns a retry middleware with sane defaults.
func NewRetryMiddleware(optFns ...func(m *RetryMiddleware)) *RetryMiddleware {
	m := &RetryMiddleware{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(m)
	}
	return m
}

// Name implements Middleware.
func (m *RetryMiddleware) Name() string { return "retry" }

// Process implements Middleware.
func (m *RetryMiddleware) Process(ctx context.Context, pc *Context, next Handler) error {
	var err error
	delay := m.BaseDelay
	for attempt := 0; ; attempt++ {
		err = next(ctx, pc)
		if err == nil || !core.Retryable(err) || attempt >= m.MaxRetries {
			return err
		}
		m.Logger.Warn("retrying message",
			"message_id", pc.MessageID,
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}
