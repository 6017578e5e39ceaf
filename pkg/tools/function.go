package tools

import (
	"context"
	"encoding/json"
)

// Func is the body of a FunctionTool. The returned value is JSON-encoded as
// the tool output.
type Func func(ctx context.Context, args json.RawMessage) (any, error)

// FunctionTool adapts a plain function to the Tool interface
type FunctionTool struct {
	desc Descriptor
	fn   Func
}

// NewFunctionTool creates a function-backed tool
func NewFunctionTool(desc Descriptor, fn Func) *FunctionTool {
	return &FunctionTool{desc: desc, fn: fn}
}

// Descriptor returns the tool descriptor
func (t *FunctionTool) Descriptor() Descriptor {
	return t.desc
}

// Invoke calls the function and encodes its output
func (t *FunctionTool) Invoke(ctx context.Context, args json.RawMessage) (Result, error) {
	out, err := t.fn(ctx, args)
	if err != nil {
		return Result{}, err
	}
	if res, ok := out.(Result); ok {
		return res, nil
	}
	return Success(out)
}
