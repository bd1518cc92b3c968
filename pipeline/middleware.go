package pipeline

import (
	"context"
	"time"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/logging"
)

// LoggingMiddleware logs entry and exit of every message.
type LoggingMiddleware struct {
	Logger logging.Logger
}

// Name implements Middleware.
func (m *LoggingMiddleware) Name() string { return "logging" }

// Process implements Middleware.
func (m *LoggingMiddleware) Process(ctx context.Context, pc *Context, next Handler) error {
	m.Logger.Debug("message entering pipeline", "session_id", pc.SessionID, "message_id", pc.MessageID)
	err := next(ctx, pc)
	if err != nil {
		m.Logger.Warn("message handling failed", "session_id", pc.SessionID, "message_id", pc.MessageID, "error", err)
	} else {
		m.Logger.Debug("message handled", "session_id", pc.SessionID, "message_id", pc.MessageID)
	}
	return err
}

// TimingMiddleware records handling duration into Metadata["duration"].
type TimingMiddleware struct{}

// Name implements Middleware.
func (m *TimingMiddleware) Name() string { return "timing" }

// Process implements Middleware.
func (m *TimingMiddleware) Process(ctx context.Context, pc *Context, next Handler) error {
	start := time.Now()
	err := next(ctx, pc)
	pc.Metadata["duration"] = time.Since(start)
	return err
}

// ValidationMiddleware rejects empty payloads before they reach the loop.
type ValidationMiddleware struct{}

// Name implements Middleware.
func (m *ValidationMiddleware) Name() string { return "validation" }

// Process implements Middleware. A nil or empty payload short-circuits the
// chain with a ValidationError; next is never called.
func (m *ValidationMiddleware) Process(ctx context.Context, pc *Context, next Handler) error {
	if pc.Payload == nil {
		return &core.ValidationError{Field: "payload", Message: "payload is nil"}
	}
	if s, ok := pc.Payload.(string); ok && s == "" {
		return &core.ValidationError{Field: "payload", Message: "payload is empty"}
	}
	if pc.SessionID == "" {
		return &core.ValidationError{Field: "session_id", Message: "session id is required"}
	}
	return next(ctx, pc)
}
