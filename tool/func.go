package tool

import (
	"context"

	"github.com/agentloop/agentloop/internal/util"
)

// Func adapts a plain Go function into a Tool, validating arguments against
// the schema before invocation.
type Func struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(ctx context.Context, args map[string]any) (any, error)
}

// FuncOptions configure a Func tool.
type FuncOptions struct {
	// Parameters is the JSON schema for the tool arguments. When nil an
	// empty object schema is used.
	Parameters map[string]any
}

// NewFunc creates a function-backed tool.
func NewFunc(name, description string, fn func(ctx context.Context, args map[string]any) (any, error), optFns ...func(o *FuncOptions)) *Func {
	opts := FuncOptions{}
	for _, f := range optFns {
		f(&opts)
	}
	if opts.Parameters == nil {
		opts.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return &Func{name: name, description: description, parameters: opts.Parameters, fn: fn}
}

// WithParametersFrom derives the parameter schema from a Go struct.
func WithParametersFrom(structType any) func(o *FuncOptions) {
	return func(o *FuncOptions) { o.Parameters = util.BuildSchema(structType) }
}

// WithParameters sets an explicit JSON schema.
func WithParameters(schema map[string]any) func(o *FuncOptions) {
	return func(o *FuncOptions) { o.Parameters = schema }
}

// Name implements Tool.
func (f *Func) Name() string { return f.name }

// Description implements Tool.
func (f *Func) Description() string { return f.description }

// Parameters implements Tool.
func (f *Func) Parameters() map[string]any { return f.parameters }

// Call validates args against the schema and invokes the function.
func (f *Func) Call(ctx context.Context, args map[string]any) (any, error) {
	if args == nil {
		args = map[string]any{}
	}
	if err := util.ValidateArgs(args, f.parameters); err != nil {
		return nil, err
	}
	return f.fn(ctx, args)
}
