package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrCompressionIncomplete signals that compression ran out of demotable
// messages before reaching its target size. It is a warning, not a failure:
// the loop proceeds with whatever space was reclaimed.
var ErrCompressionIncomplete = errors.New("compression incomplete: target size not reached")

// ErrQueueFull is returned by bounded queue backends when an enqueue would
// exceed the configured capacity.
var ErrQueueFull = errors.New("queue full")

// ErrRateLimited is returned by the rate limit middleware in reject mode.
// It is transient by definition, callers may retry later.
var ErrRateLimited = errors.New("rate limited")

// ValidationError reports malformed input (bad tool arguments, empty
// payloads, out-of-range config values). Never retryable.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error for field %q: %s", e.Field, e.Message)
}

// TransientError wraps a failure that is expected to succeed on retry
// (provider 429/5xx, network resets, broker hiccups).
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable, or returns nil if err is nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// AgentTimeoutError reports an iteration exceeding its deadline. The task
// transitions to Failed and partial results of the iteration are discarded.
type AgentTimeoutError struct {
	SessionID string
	Iteration int
	Timeout   time.Duration
}

func (e *AgentTimeoutError) Error() string {
	return fmt.Sprintf("session %s: iteration %d exceeded timeout %s", e.SessionID, e.Iteration, e.Timeout)
}

// ToolExecutionError reports a single tool call failing. It is captured in
// the call's result slot and never aborts sibling calls.
type ToolExecutionError struct {
	Tool   string
	CallID string
	Err    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s (call %s): %v", e.Tool, e.CallID, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// ConflictError reports a duplicate registration (tool name, middleware
// name). The first registration wins; the duplicate is rejected.
type ConflictError struct {
	Kind string
	Name string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already registered", e.Kind, e.Name)
}

// Retryable classifies an error for the retry middleware: only transient
// failures and rate limiting qualify. Validation errors, timeouts and tool
// failures are final.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, ErrRateLimited)
}
