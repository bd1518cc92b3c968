// Package tool defines the tool abstraction, the startup registry and the
// bounded-parallel executor that runs the model's tool call batches.
package tool

import (
	"context"
)

// Tool is a callable capability exposed to the model. Parameters returns a
// JSON schema object describing the accepted arguments.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Call(ctx context.Context, args map[string]any) (any, error)
}
