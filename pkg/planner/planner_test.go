package planner

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/harun/skagent/pkg/llm"
	"github.com/harun/skagent/pkg/memory"
	"github.com/harun/skagent/pkg/persona"
	"github.com/harun/skagent/pkg/tools"
	"github.com/rs/zerolog"
)

func TestParsePlan(t *testing.T) {
	data := []byte(`{
		"goal": "shout then explain",
		"steps": [
			{"order": 2, "kind": "agent", "target": "chat", "instruction": "explain the result"},
			{"order": 1, "kind": "tool", "target": "string.upper", "argumentsJson": "{\"text\":\"hello\"}", "expectedOutput": "HELLO"}
		]
	}`)

	plan, err := ParsePlan(data)
	if err != nil {
		t.Fatalf("ParsePlan failed: %v", err)
	}
	if plan.Goal != "shout then explain" {
		t.Errorf("Unexpected goal: %q", plan.Goal)
	}
	if len(plan.Steps) != 2 {
		t.Fatalf("Expected 2 steps, got %d", len(plan.Steps))
	}

	tool := plan.Steps[1]
	if !tool.IsTool() || tool.Target != "string.upper" {
		t.Errorf("Unexpected tool step: %+v", tool)
	}
	if string(tool.Arguments) != `{"text":"hello"}` {
		t.Errorf("Unexpected arguments: %s", tool.Arguments)
	}
	if tool.ExpectedOutput != "HELLO" {
		t.Errorf("Unexpected expected output: %q", tool.ExpectedOutput)
	}
}

func TestParsePlanLegacyAgentField(t *testing.T) {
	plan, err := ParsePlan([]byte(`{"goal":"g","steps":[{"order":1,"agent":"chat","instruction":"hi"}]}`))
	if err != nil {
		t.Fatalf("ParsePlan failed: %v", err)
	}
	step := plan.Steps[0]
	if step.Kind != StepKindAgent || step.Target != "chat" {
		t.Errorf("Legacy agent field not honored: %+v", step)
	}
}

func TestParsePlanAcceptsObjectArguments(t *testing.T) {
	plan, err := ParsePlan([]byte(`{"goal":"g","steps":[{"order":1,"kind":"tool","target":"t","argumentsJson":{"a":1}}]}`))
	if err != nil {
		t.Fatalf("ParsePlan failed: %v", err)
	}
	if string(plan.Steps[0].Arguments) != `{"a":1}` {
		t.Errorf("Unexpected arguments: %s", plan.Steps[0].Arguments)
	}
}

func TestParsePlanRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed json", `{"goal":`},
		{"no steps", `{"goal":"g","steps":[]}`},
		{"unknown kind", `{"goal":"g","steps":[{"order":1,"kind":"robot","target":"x","instruction":"i"}]}`},
		{"missing target", `{"goal":"g","steps":[{"order":1,"kind":"agent","instruction":"i"}]}`},
		{"both payloads", `{"goal":"g","steps":[{"order":1,"kind":"agent","target":"chat","instruction":"i","argumentsJson":"{}"}]}`},
		{"neither payload", `{"goal":"g","steps":[{"order":1,"kind":"agent","target":"chat"}]}`},
		{"tool with instruction", `{"goal":"g","steps":[{"order":1,"kind":"tool","target":"t","instruction":"i"}]}`},
		{"arguments not object", `{"goal":"g","steps":[{"order":1,"kind":"tool","target":"t","argumentsJson":"[1,2]"}]}`},
		{"arguments null string", `{"goal":"g","steps":[{"order":1,"kind":"tool","target":"t","argumentsJson":"null"}]}`},
		{"duplicate order", `{"goal":"g","steps":[{"order":1,"kind":"agent","target":"chat","instruction":"i"},{"order":1,"kind":"tool","target":"t","argumentsJson":"{}"}]}`},
		{"arguments not json", `{"goal":"g","steps":[{"order":1,"kind":"tool","target":"t","argumentsJson":"text=hi"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlan([]byte(tt.data))
			if !errors.Is(err, ErrInvalidPlan) {
				t.Errorf("Expected ErrInvalidPlan, got %v", err)
			}
		})
	}
}

func TestSortedStepsIsStable(t *testing.T) {
	plan := Plan{Steps: []Step{
		NewExecutorStep(3, "chat", "c", ""),
		NewExecutorStep(1, "chat", "a1", ""),
		NewExecutorStep(2, "chat", "b", ""),
		NewExecutorStep(1, "chat", "a2", ""),
	}}

	sorted := plan.SortedSteps()
	got := []string{}
	for _, s := range sorted {
		got = append(got, s.Instruction)
	}
	want := "a1,a2,b,c"
	if strings.Join(got, ",") != want {
		t.Errorf("Expected order %s, got %s", want, strings.Join(got, ","))
	}
	if plan.Steps[0].Instruction != "c" {
		t.Error("SortedSteps must not reorder the plan in place")
	}
}

func TestValidateRejectsNullArguments(t *testing.T) {
	step := NewToolStep(1, "string.upper", json.RawMessage(`null`), "")
	if err := step.Validate(); !errors.Is(err, ErrInvalidPlan) {
		t.Errorf("Expected ErrInvalidPlan for null arguments, got %v", err)
	}
}

func TestNewToolStepCopiesArguments(t *testing.T) {
	args := []byte(`{"text":"a"}`)
	step := NewToolStep(1, "string.upper", args, "")
	args[2] = 'X'
	if string(step.Arguments) != `{"text":"a"}` {
		t.Errorf("Arguments aliased caller buffer: %s", step.Arguments)
	}
	if StepID(step) != "step-1" {
		t.Errorf("Unexpected step id %s", StepID(step))
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"prose", "Here is the plan:\n```json\n{\"a\":{\"b\":1}}\n```\nDone.", `{"a":{"b":1}}`},
		{"doubled braces", `{{"goal":"g","steps":[{{"order":1}}]}}`, `{"goal":"g","steps":[{"order":1}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			if err != nil {
				t.Fatalf("ExtractJSON failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}

	if _, err := ExtractJSON("no json here"); !errors.Is(err, ErrNoJSON) {
		t.Errorf("Expected ErrNoJSON, got %v", err)
	}
	if _, err := ExtractJSON("  "); !errors.Is(err, ErrNoJSON) {
		t.Errorf("Expected ErrNoJSON for blank input, got %v", err)
	}
}

func TestStaticPlanner(t *testing.T) {
	p, err := NewStaticPlanner(Plan{Steps: []Step{NewToolStep(1, "time.now", []byte(`{}`), "")}})
	if err != nil {
		t.Fatalf("NewStaticPlanner failed: %v", err)
	}

	plan, err := p.CreatePlan(context.Background(), Request{UserInput: "what time is it"})
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}
	if plan.Goal != "what time is it" {
		t.Errorf("Expected goal to default to user input, got %q", plan.Goal)
	}

	plan.Steps[0].Arguments[0] = 'X'
	again, _ := p.CreatePlan(context.Background(), Request{})
	if string(again.Steps[0].Arguments) != `{}` {
		t.Error("StaticPlanner leaked its plan to callers")
	}

	if _, err := NewStaticPlanner(Plan{}); !errors.Is(err, ErrInvalidPlan) {
		t.Errorf("Expected ErrInvalidPlan for empty plan, got %v", err)
	}
}

func TestLLMPlanner(t *testing.T) {
	provider := &llm.StaticProvider{Reply: `Sure! {"goal":"greet","steps":[{"order":1,"kind":"agent","target":"chat","instruction":"say hi"}]}`}
	p := NewLLMPlanner(provider, "test-model").WithLogger(zerolog.Nop())

	long := strings.Repeat("x", 300)
	plan, err := p.CreatePlan(context.Background(), Request{
		UserInput:   "hello",
		Persona:     persona.Neutral,
		Profile:     map[string]string{"name": "Ana"},
		RecentTurns: []memory.TurnRecord{{UserInput: "earlier\nquestion", AssistantOutput: long}},
		Executors:   []ExecutorInfo{{Name: "chat", Description: "answers questions"}},
		Tools:       []tools.Descriptor{tools.StringUpperTool().Descriptor()},
	})
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}
	if plan.Goal != "greet" || len(plan.Steps) != 1 {
		t.Errorf("Unexpected plan: %+v", plan)
	}

	reqs := provider.Requests()
	if len(reqs) != 1 {
		t.Fatalf("Expected 1 provider request, got %d", len(reqs))
	}
	req := reqs[0]
	if req.Temperature == nil || *req.Temperature != 0 {
		t.Error("Planner must run at temperature 0")
	}
	if req.Model != "test-model" {
		t.Errorf("Unexpected model %q", req.Model)
	}
	if !strings.Contains(req.SystemPrompt, persona.Neutral.PlannerHint) {
		t.Error("System prompt is missing the persona planner hint")
	}
	if !strings.Contains(req.SystemPrompt, "string.upper") || !strings.Contains(req.SystemPrompt, "(arguments: text)") {
		t.Error("System prompt is missing the tool catalog")
	}

	input := req.Messages[0].Content
	if !strings.Contains(input, "name=Ana") {
		t.Error("Planner input is missing the profile")
	}
	if !strings.Contains(input, "- User: earlier question") {
		t.Error("Recent turns must be flattened to one line")
	}
	if !strings.Contains(input, strings.Repeat("x", 180)+"...") || strings.Contains(input, strings.Repeat("x", 181)) {
		t.Error("Assistant recap must be capped at 180 characters")
	}
}

func TestLLMPlannerErrors(t *testing.T) {
	boom := errors.New("rate limited")
	_, err := NewLLMPlanner(&llm.StaticProvider{Err: boom}, "").WithLogger(zerolog.Nop()).CreatePlan(context.Background(), Request{})
	if !errors.Is(err, boom) {
		t.Errorf("Expected provider error, got %v", err)
	}

	_, err = NewLLMPlanner(&llm.StaticProvider{Reply: "I cannot help"}, "").WithLogger(zerolog.Nop()).CreatePlan(context.Background(), Request{})
	if !errors.Is(err, ErrInvalidPlan) {
		t.Errorf("Expected ErrInvalidPlan, got %v", err)
	}
}
