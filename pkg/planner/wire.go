package planner

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPlan marks a plan that cannot be executed. It is a planning
// error and is never retried.
var ErrInvalidPlan = errors.New("invalid plan")

type wirePlan struct {
	Goal  string     `json:"goal"`
	Steps []wireStep `json:"steps"`
}

type wireStep struct {
	Order          int             `json:"order"`
	Kind           string          `json:"kind"`
	Target         string          `json:"target"`
	Agent          string          `json:"agent"`
	Instruction    string          `json:"instruction"`
	ArgumentsJSON  json.RawMessage `json:"argumentsJson"`
	ExpectedOutput string          `json:"expectedOutput"`
}

// ParsePlan decodes and validates the plan wire format:
//
//	{"goal": "...", "steps": [{"order": 1, "kind": "agent|tool", "target": "...",
//	  "instruction": "..." | "argumentsJson": "{...}", "expectedOutput": "..."}]}
//
// A missing kind means agent, and "agent" is accepted in place of "target".
func ParsePlan(data []byte) (Plan, error) {
	var wp wirePlan
	if err := json.Unmarshal(data, &wp); err != nil {
		return Plan{}, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}

	plan := Plan{Goal: strings.TrimSpace(wp.Goal), Steps: make([]Step, 0, len(wp.Steps))}
	for _, ws := range wp.Steps {
		step, err := ws.toStep()
		if err != nil {
			return Plan{}, err
		}
		plan.Steps = append(plan.Steps, step)
	}

	if err := plan.Validate(); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

func (ws wireStep) toStep() (Step, error) {
	kind := StepKind(strings.ToLower(strings.TrimSpace(ws.Kind)))
	if kind == "" {
		kind = StepKindAgent
	}

	target := strings.TrimSpace(ws.Target)
	if target == "" && kind == StepKindAgent {
		target = strings.TrimSpace(ws.Agent)
	}

	args, err := decodeArguments(ws.ArgumentsJSON)
	if err != nil {
		return Step{}, fmt.Errorf("%w: step %d argumentsJson: %v", ErrInvalidPlan, ws.Order, err)
	}

	return Step{
		Order:          ws.Order,
		Kind:           kind,
		Target:         target,
		Instruction:    ws.Instruction,
		Arguments:      args,
		ExpectedOutput: ws.ExpectedOutput,
	}, nil
}

// decodeArguments accepts the JSON-encoded string form and, leniently, a
// bare object. null, "" and "null" mean absent.
func decodeArguments(raw json.RawMessage) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		s = strings.TrimSpace(s)
		if s == "" || s == "null" {
			return nil, nil
		}
		return json.RawMessage(s), nil
	}
	return append(json.RawMessage(nil), raw...), nil
}
