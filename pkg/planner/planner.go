package planner

import (
	"context"
	"encoding/json"

	"github.com/harun/skagent/pkg/memory"
	"github.com/harun/skagent/pkg/persona"
	"github.com/harun/skagent/pkg/tools"
)

// ExecutorInfo describes an executor a plan may target
type ExecutorInfo struct {
	Name        string
	Description string
}

// Request carries what a plan source may look at
type Request struct {
	UserInput   string
	Persona     persona.Options
	Profile     map[string]string
	RecentTurns []memory.TurnRecord
	Executors   []ExecutorInfo
	Tools       []tools.Descriptor
}

// Generator produces a plan for one run
type Generator interface {
	CreatePlan(ctx context.Context, req Request) (Plan, error)
}

// GeneratorFunc adapts a function to Generator
type GeneratorFunc func(ctx context.Context, req Request) (Plan, error)

// CreatePlan calls f
func (f GeneratorFunc) CreatePlan(ctx context.Context, req Request) (Plan, error) {
	return f(ctx, req)
}

// StaticPlanner returns the same plan for every request
type StaticPlanner struct {
	plan Plan
}

// NewStaticPlanner validates plan once and serves it
func NewStaticPlanner(plan Plan) (*StaticPlanner, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &StaticPlanner{plan: plan}, nil
}

// LoadStaticPlanner parses a wire-format plan document
func LoadStaticPlanner(data []byte) (*StaticPlanner, error) {
	plan, err := ParsePlan(data)
	if err != nil {
		return nil, err
	}
	return &StaticPlanner{plan: plan}, nil
}

// CreatePlan returns a copy of the fixed plan. An empty goal takes the user input.
func (p *StaticPlanner) CreatePlan(ctx context.Context, req Request) (Plan, error) {
	if err := ctx.Err(); err != nil {
		return Plan{}, err
	}

	plan := Plan{Goal: p.plan.Goal, Steps: make([]Step, len(p.plan.Steps))}
	for i, s := range p.plan.Steps {
		s.Arguments = append(json.RawMessage(nil), s.Arguments...)
		plan.Steps[i] = s
	}
	if plan.Goal == "" {
		plan.Goal = req.UserInput
	}
	return plan, nil
}
