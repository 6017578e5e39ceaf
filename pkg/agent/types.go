package agent

import (
	"context"
	"strings"
)

// Shared state keys the runtime populates before planning
const (
	StateKeyProfile     = "profile"
	StateKeyRecentTurns = "recent_turns"
	StateKeyPersona     = "persona"
	// StateKeyTarget is read when Context.Target is empty
	StateKeyTarget = "target"
)

// Executor produces a textual result from an instruction
type Executor interface {
	Name() string
	Execute(ctx context.Context, execCtx *Context) (Result, error)
}

// Describer is implemented by executors that describe themselves to planners
type Describer interface {
	Description() string
}

// Context is the step-scoped view an executor receives
type Context struct {
	RunID          string
	ConversationID string
	// UserInput is the original request, Input is the step instruction
	UserInput      string
	Input          string
	Target         string
	ExpectedOutput string
	// State is a copy of the run's shared state. Changes are merged back
	// into the run after the step returns.
	State map[string]any
}

// NewContext creates a context with a copy of state
func NewContext(runID, conversationID, userInput string, state map[string]any) *Context {
	c := &Context{
		RunID:          runID,
		ConversationID: conversationID,
		UserInput:      userInput,
		State:          make(map[string]any, len(state)),
	}
	for k, v := range state {
		c.State[k] = v
	}
	return c
}

// Lookup reads a state value by case-insensitive key
func (c *Context) Lookup(key string) (any, bool) {
	if c.State == nil {
		return nil, false
	}
	if v, ok := c.State[key]; ok {
		return v, true
	}
	for k, v := range c.State {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// Set writes a state value
func (c *Context) Set(key string, value any) {
	if c.State == nil {
		c.State = make(map[string]any)
	}
	c.State[key] = value
}

// Result is what an executor returns
type Result struct {
	Output  string
	Success bool
	Error   string
	// NextExecutorOverride names the executor the next executor step uses
	NextExecutorOverride string
}

// Succeeded creates a successful result
func Succeeded(output string) Result {
	return Result{Output: output, Success: true}
}

// Failed creates a failed result
func Failed(output, errMsg string) Result {
	return Result{Output: output, Error: errMsg}
}

// FuncExecutor adapts a function to Executor
type FuncExecutor struct {
	name string
	fn   func(ctx context.Context, execCtx *Context) (Result, error)
}

// NewFuncExecutor creates a named function-backed executor
func NewFuncExecutor(name string, fn func(ctx context.Context, execCtx *Context) (Result, error)) *FuncExecutor {
	return &FuncExecutor{name: name, fn: fn}
}

func (f *FuncExecutor) Name() string { return f.name }

// Execute calls the function
func (f *FuncExecutor) Execute(ctx context.Context, execCtx *Context) (Result, error) {
	return f.fn(ctx, execCtx)
}
