package runstate

import (
	"errors"
	"time"

	"github.com/harun/skagent/pkg/planner"
)

// Status is the lifecycle state of a run
type Status string

const (
	StatusInitialized Status = "initialized"
	StatusExecuting   Status = "executing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// IsTerminal reports whether no further transitions are allowed
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StepStatus is the lifecycle state of one step execution
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "failed"
)

var (
	ErrFinalized         = errors.New("run already finalized")
	ErrNotTerminal       = errors.New("final status must be completed or failed")
	ErrInvalidTransition = errors.New("invalid run status transition")
	ErrStepNotFound      = errors.New("step execution not found")
	ErrStepCompleted     = errors.New("step execution already completed")
)

// StepExecution is the runtime record of one attempt at a step
type StepExecution struct {
	Step       planner.Step
	Attempt    int
	Status     StepStatus
	Output     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// ToolCallRecord is one entry of the tool-call audit log. Previews are
// bounded by the caller.
type ToolCallRecord struct {
	StepOrder     int           `json:"stepOrder"`
	ToolName      string        `json:"toolName"`
	ArgsPreview   string        `json:"argsPreview"`
	Success       bool          `json:"success"`
	OutputPreview string        `json:"outputPreview"`
	ErrorCode     string        `json:"errorCode,omitempty"`
	ErrorMessage  string        `json:"errorMessage,omitempty"`
	Latency       time.Duration `json:"-"`
	LatencyMs     int64         `json:"latencyMs"`
}

// StepView is the caller-facing summary of a step execution
type StepView struct {
	Order   int        `json:"order"`
	Kind    string     `json:"kind"`
	Target  string     `json:"target"`
	Attempt int        `json:"attempt"`
	Status  StepStatus `json:"status"`
	Output  string     `json:"output"`
	Error   string     `json:"error,omitempty"`
}

// Result is an immutable snapshot of a run
type Result struct {
	RunID          string           `json:"runId"`
	ConversationID string           `json:"conversationId"`
	UserInput      string           `json:"userInput"`
	Goal           string           `json:"goal"`
	Status         Status           `json:"status"`
	Output         string           `json:"output"`
	Steps          []StepView       `json:"steps"`
	ToolCalls      []ToolCallRecord `json:"toolCalls"`
	StartedAt      time.Time        `json:"startedAt"`
	FinishedAt     time.Time        `json:"finishedAt,omitzero"`
}
