package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/logging"
)

// Result is the outcome of one tool call. Err is set when the call failed;
// Content then carries a short error description for the model.
type Result struct {
	CallID   string
	Name     string
	Content  string
	Err      error
	Duration time.Duration
}

// IsError reports whether the call failed.
func (r Result) IsError() bool { return r.Err != nil }

// ExecutorOptions configure an Executor.
type ExecutorOptions struct {
	// MaxParallel bounds concurrent tool calls within one batch.
	MaxParallel int
	// CallTimeout is the per-call deadline.
	CallTimeout time.Duration
	Logger      logging.Logger
}

// Executor runs tool call batches with bounded parallelism. Failures are
// captured per call and never abort sibling calls; results come back in
// request order regardless of completion order.
type Executor struct {
	registry    *Registry
	sem         *semaphore.Weighted
	maxParallel int
	callTimeout time.Duration
	logger      logging.Logger
}

// NewExecutor creates an executor over the given registry.
func NewExecutor(registry *Registry, optFns ...func(o *ExecutorOptions)) *Executor {
	opts := ExecutorOptions{
		MaxParallel: 5,
		CallTimeout: 30 * time.Second,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxParallel < 1 {
		opts.MaxParallel = 1
	}
	return &Executor{
		registry:    registry,
		sem:         semaphore.NewWeighted(int64(opts.MaxParallel)),
		maxParallel: opts.MaxParallel,
		callTimeout: opts.CallTimeout,
		logger:      opts.Logger,
	}
}

// Execute runs all calls and blocks until every slot is filled. The returned
// slice is index-aligned with the request batch.
func (e *Executor) Execute(ctx context.Context, calls []core.ToolCall) []Result {
	results := make([]Result, len(calls))
	done := make(chan int, len(calls))

	for i, call := range calls {
		go func(i int, call core.ToolCall) {
			defer func() { done <- i }()
			results[i] = e.runOne(ctx, call)
		}(i, call)
	}
	for range calls {
		<-done
	}
	return results
}

func (e *Executor) runOne(ctx context.Context, call core.ToolCall) Result {
	res := Result{CallID: call.ID, Name: call.Name}
	start := time.Now()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		res.Err = &core.ToolExecutionError{Tool: call.Name, CallID: call.ID, Err: err}
		res.Content = "error: " + err.Error()
		res.Duration = time.Since(start)
		return res
	}
	defer e.sem.Release(1)

	t, ok := e.registry.Get(call.Name)
	if !ok {
		res.Err = &core.ToolExecutionError{Tool: call.Name, CallID: call.ID, Err: fmt.Errorf("unknown tool")}
		res.Content = fmt.Sprintf("error: unknown tool %q", call.Name)
		res.Duration = time.Since(start)
		return res
	}

	args, err := decodeArgs(call.Arguments)
	if err != nil {
		res.Err = &core.ToolExecutionError{Tool: call.Name, CallID: call.ID, Err: err}
		res.Content = "error: " + err.Error()
		res.Duration = time.Since(start)
		return res
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	out, err := e.invoke(callCtx, t, args)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = &core.ToolExecutionError{Tool: call.Name, CallID: call.ID, Err: err}
		res.Content = "error: " + err.Error()
		e.logger.Warn("tool call failed", "tool", call.Name, "call_id", call.ID, "error", err)
		return res
	}
	res.Content = renderResult(out)
	e.logger.Debug("tool call completed", "tool", call.Name, "call_id", call.ID, "duration", res.Duration)
	return res
}

// invoke guards against panicking tools; a panic becomes a captured error.
func (e *Executor) invoke(ctx context.Context, t Tool, args map[string]any) (any, error) {
	type callResult struct {
		out any
		err error
	}
	ch := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- callResult{nil, fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		o, e := t.Call(ctx, args)
		ch <- callResult{o, e}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.out, r.err
	}
}

func decodeArgs(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func renderResult(out any) string {
	switch v := out.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
