package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentloop/agentloop/core"
)

// ToolDefinition declaratively exposes a callable tool to the model.
// Parameters is a JSON schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input assembled by the scheduler:
// the full context window plus the registry's tool definitions.
type Request struct {
	Messages []core.Message   `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
	Stream   bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a streaming model.
// Partial chunks carry Delta; the final chunk carries the assembled Message
// including any tool calls.
type Response struct {
	Partial      bool         `json:"partial"`
	Delta        string       `json:"delta,omitempty"`
	Message      core.Message `json:"message"`
	FinishReason string       `json:"finish_reason,omitempty"` // "stop", "tool_calls", "length"
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface the scheduler needs to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// scripted is one queued MockModel turn.
type scripted struct {
	text  string
	calls []core.ToolCall
	err   error
}

// MockModel is a lightweight in-memory Model for tests and examples. Turns
// are scripted in order; once the script is exhausted it echoes the last
// input message.
type MockModel struct {
	mu     sync.Mutex
	info   Info
	script []scripted
	served int
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{info: Info{Name: name, Provider: "mock", SupportsTools: true}}
}

// QueueText scripts a plain text turn.
func (m *MockModel) QueueText(text string) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scripted{text: text})
	return m
}

// QueueToolCalls scripts a turn that requests the given tool calls.
func (m *MockModel) QueueToolCalls(text string, calls ...core.ToolCall) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scripted{text: text, calls: calls})
	return m
}

// QueueError scripts a failing turn.
func (m *MockModel) QueueError(err error) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scripted{err: err})
	return m
}

// Served reports how many turns have been generated.
func (m *MockModel) Served() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.served
}

// Generate implements Model; emits optional streaming char chunks then the
// final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	var turn scripted
	if m.served < len(m.script) {
		turn = m.script[m.served]
	} else if len(req.Messages) > 0 {
		last := req.Messages[len(req.Messages)-1]
		turn = scripted{text: fmt.Sprintf("Mock response to: %s", last.Content)}
	} else {
		turn = scripted{err: fmt.Errorf("no messages provided")}
	}
	m.served++
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)
		if turn.err != nil {
			errCh <- turn.err
			return
		}
		if req.Stream {
			for _, r := range turn.text {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Delta: string(r)}:
				}
			}
		}
		msg := core.NewMessage(core.RoleAssistant, turn.text)
		msg.ToolCalls = turn.calls
		reason := "stop"
		if len(turn.calls) > 0 {
			reason = "tool_calls"
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{Message: msg, FinishReason: reason}:
		}
	}()
	return respCh, errCh
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
