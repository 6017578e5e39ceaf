package planner

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Plan is an ordered set of steps produced by a plan source
type Plan struct {
	Goal  string `json:"goal"`
	Steps []Step `json:"steps"`
}

// StepKind identifies which variant of Step is populated
type StepKind string

const (
	StepKindAgent StepKind = "agent" // Dispatched through the executor router
	StepKindTool  StepKind = "tool"  // Dispatched through the tool invoker
)

// Step is one unit of work. Agent steps carry Instruction, tool steps carry
// Arguments; never both.
type Step struct {
	Order          int             `json:"order"`
	Kind           StepKind        `json:"kind"`
	Target         string          `json:"target"`
	Instruction    string          `json:"instruction,omitempty"`
	Arguments      json.RawMessage `json:"arguments,omitempty"`
	ExpectedOutput string          `json:"expectedOutput,omitempty"`
}

// NewExecutorStep creates an agent step
func NewExecutorStep(order int, target, instruction, expectedOutput string) Step {
	return Step{
		Order:          order,
		Kind:           StepKindAgent,
		Target:         target,
		Instruction:    instruction,
		ExpectedOutput: expectedOutput,
	}
}

// NewToolStep creates a tool step. args must be a JSON object.
func NewToolStep(order int, target string, args json.RawMessage, expectedOutput string) Step {
	return Step{
		Order:          order,
		Kind:           StepKindTool,
		Target:         target,
		Arguments:      append(json.RawMessage(nil), args...),
		ExpectedOutput: expectedOutput,
	}
}

// IsTool reports whether the step invokes a tool
func (s Step) IsTool() bool {
	return s.Kind == StepKindTool
}

// Validate checks the variant invariants of a step
func (s Step) Validate() error {
	if strings.TrimSpace(s.Target) == "" {
		return fmt.Errorf("%w: step %d has no target", ErrInvalidPlan, s.Order)
	}

	hasInstruction := strings.TrimSpace(s.Instruction) != ""
	hasArguments := len(strings.TrimSpace(string(s.Arguments))) > 0

	switch s.Kind {
	case StepKindAgent, StepKindTool:
	default:
		return fmt.Errorf("%w: step %d has unknown kind %q", ErrInvalidPlan, s.Order, s.Kind)
	}

	if hasInstruction == hasArguments {
		return fmt.Errorf("%w: step %d must set exactly one of instruction or argumentsJson", ErrInvalidPlan, s.Order)
	}
	if s.Kind == StepKindAgent && !hasInstruction {
		return fmt.Errorf("%w: agent step %d has no instruction", ErrInvalidPlan, s.Order)
	}
	if s.Kind == StepKindTool {
		if !hasArguments {
			return fmt.Errorf("%w: tool step %d has no argumentsJson", ErrInvalidPlan, s.Order)
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(s.Arguments, &obj); err != nil {
			return fmt.Errorf("%w: tool step %d argumentsJson is not a JSON object: %v", ErrInvalidPlan, s.Order, err)
		}
		if obj == nil {
			return fmt.Errorf("%w: tool step %d argumentsJson is not a JSON object", ErrInvalidPlan, s.Order)
		}
	}

	return nil
}

// Validate checks every step of the plan. Orders must be unique; they key the
// retry counters and the tool call audit.
func (p Plan) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("%w: plan has no steps", ErrInvalidPlan)
	}
	seen := make(map[int]struct{}, len(p.Steps))
	for _, step := range p.Steps {
		if err := step.Validate(); err != nil {
			return err
		}
		if _, dup := seen[step.Order]; dup {
			return fmt.Errorf("%w: duplicate step order %d", ErrInvalidPlan, step.Order)
		}
		seen[step.Order] = struct{}{}
	}
	return nil
}

// SortedSteps returns a copy of the steps in ascending order. Steps sharing an
// order value keep their declared position.
func (p Plan) SortedSteps() []Step {
	steps := make([]Step, len(p.Steps))
	copy(steps, p.Steps)
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].Order < steps[j].Order
	})
	return steps
}

// StepID returns the identifier used for a step in tool invocations and logs
func StepID(step Step) string {
	return fmt.Sprintf("step-%d", step.Order)
}
