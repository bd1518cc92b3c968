package tool

import (
	"context"
	"fmt"
	"time"
)

// calcArgs are the calculator tool arguments.
type calcArgs struct {
	A  float64 `json:"a" description:"Left operand"`
	B  float64 `json:"b" description:"Right operand"`
	Op string  `json:"op" description:"Operator: add, sub, mul or div"`
}

// NewClockTool reports the current UTC time.
func NewClockTool() *Func {
	return NewFunc("clock", "Returns the current UTC time in RFC 3339 format.",
		func(context.Context, map[string]any) (any, error) {
			return time.Now().UTC().Format(time.RFC3339), nil
		})
}

// NewCalculatorTool performs basic arithmetic on two operands.
func NewCalculatorTool() *Func {
	return NewFunc("calculator", "Performs basic arithmetic: add, sub, mul, div.",
		func(_ context.Context, args map[string]any) (any, error) {
			a, _ := args["a"].(float64)
			b, _ := args["b"].(float64)
			op, _ := args["op"].(string)
			switch op {
			case "add":
				return a + b, nil
			case "sub":
				return a - b, nil
			case "mul":
				return a * b, nil
			case "div":
				if b == 0 {
					return nil, fmt.Errorf("division by zero")
				}
				return a / b, nil
			default:
				return nil, fmt.Errorf("unknown operator %q", op)
			}
		}, WithParametersFrom(calcArgs{}))
}

// Builtins returns the stock provider list. Nothing registers these
// automatically; pass them to Registry.RegisterAll (or the façade's
// RegisterTools) when wanted.
func Builtins() []Tool {
	return []Tool{NewClockTool(), NewCalculatorTool()}
}
