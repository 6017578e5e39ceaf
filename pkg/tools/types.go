package tools

import (
	"context"
	"encoding/json"
	"time"
)

// Error codes produced by the invoker and built-in adapters
const (
	CodeToolNotFound      = "tool_not_found"
	CodeInvalidArguments  = "tool_invalid_arguments"
	CodeToolTimeout       = "tool_timeout"
	CodeToolException     = "tool_exception"
	CodeToolNotAllowed    = "tool_not_allowed"
	CodeHTTPError         = "http_error"
	CodeURLBlocked        = "url_blocked"
	CodeUnreportedFailure = "tool_failed"
)

// unknownToolLabel replaces unregistered tool names in metric labels
const unknownToolLabel = "unknown"

// Tool is a named, schema-described operation
type Tool interface {
	Descriptor() Descriptor
	// Invoke runs the tool. Returning an error is treated as an exception
	// by the invoker; structured failures belong in Result.
	Invoke(ctx context.Context, args json.RawMessage) (Result, error)
}

// Descriptor describes a tool to planners and the invoker
type Descriptor struct {
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	InputSchema  Schema        `json:"inputSchema"`
	OutputSchema *Schema       `json:"outputSchema,omitempty"`
	Tags         []string      `json:"tags,omitempty"`
	Timeout      time.Duration `json:"-"`
	Idempotent   *bool         `json:"idempotent,omitempty"`
}

// TimeoutMs returns the declared timeout in milliseconds, zero when unset
func (d Descriptor) TimeoutMs() int64 {
	return d.Timeout.Milliseconds()
}

// Schema is the subset of JSON Schema used to describe tool arguments
type Schema struct {
	Type       string           `json:"type"`
	Properties map[string]Field `json:"properties,omitempty"`
	Required   []string         `json:"required,omitempty"`
}

// Field describes one property of a Schema
type Field struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// ObjectSchema builds an object schema from fields and required names
func ObjectSchema(fields map[string]Field, required ...string) Schema {
	return Schema{Type: "object", Properties: fields, Required: required}
}

// Result is the outcome of one invocation. Output is never nil.
type Result struct {
	Success bool            `json:"success"`
	Output  json.RawMessage `json:"output"`
	Error   *Error          `json:"error,omitempty"`
	Metrics *Metrics        `json:"metrics,omitempty"`
}

// Error is a structured tool failure
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) String() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}

// Metrics carries measurements of one invocation
type Metrics struct {
	LatencyMs int64 `json:"latencyMs"`
}

// Invocation is a single request to run a tool
type Invocation struct {
	RunID     string
	StepID    string
	ToolName  string
	Arguments json.RawMessage
}

var emptyObject = json.RawMessage(`{}`)

// Success builds a successful result from any JSON-encodable value
func Success(output any) (Result, error) {
	raw, err := json.Marshal(output)
	if err != nil {
		return Result{}, err
	}
	return Result{Success: true, Output: raw}, nil
}

// Failure builds a failed result with an empty output object
func Failure(code, message string, details map[string]any) Result {
	return Result{
		Success: false,
		Output:  emptyObject,
		Error:   &Error{Code: code, Message: message, Details: details},
	}
}
