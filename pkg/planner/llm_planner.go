package planner

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/harun/skagent/pkg/llm"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const assistantRecapLimit = 180

// LLMPlanner asks a text generator for a plan
type LLMPlanner struct {
	provider llm.Provider
	model    string
	logger   zerolog.Logger
}

// NewLLMPlanner creates a model-backed plan source
func NewLLMPlanner(provider llm.Provider, model string) *LLMPlanner {
	return &LLMPlanner{provider: provider, model: model, logger: log.Logger}
}

// WithLogger sets the logger
func (p *LLMPlanner) WithLogger(logger zerolog.Logger) *LLMPlanner {
	p.logger = logger
	return p
}

// CreatePlan prompts the model and parses its answer. Unparseable or
// invalid answers are ErrInvalidPlan.
func (p *LLMPlanner) CreatePlan(ctx context.Context, req Request) (Plan, error) {
	resp, err := p.provider.Generate(ctx, llm.Request{
		Model:        p.model,
		SystemPrompt: buildSystemPrompt(req),
		Messages:     []llm.Message{{Role: "user", Content: buildPlannerInput(req)}},
		Temperature:  llm.Temperature(0),
	})
	if err != nil {
		return Plan{}, fmt.Errorf("planner generation failed: %w", err)
	}

	raw, err := ExtractJSON(resp.Content)
	if err != nil {
		p.logger.Warn().Str("output", truncate(resp.Content, 200)).Msg("Planner returned no JSON")
		return Plan{}, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}

	plan, err := ParsePlan([]byte(raw))
	if err != nil {
		return Plan{}, err
	}
	if plan.Goal == "" {
		plan.Goal = req.UserInput
	}

	p.logger.Debug().Int("steps", len(plan.Steps)).Str("goal", plan.Goal).Msg("Plan created")
	return plan, nil
}

func buildSystemPrompt(req Request) string {
	var sb strings.Builder

	sb.WriteString("You are an agent planner.\n")
	if hint := strings.TrimSpace(req.Persona.PlannerHint); hint != "" {
		sb.WriteString("Persona constraints (must follow):\n")
		sb.WriteString(hint)
		sb.WriteString("\n")
	}

	sb.WriteString(`
Your task:
- Break the user request into an ordered list of steps
- Each step is executed by exactly one agent or one tool

Rules:
- Do not use Markdown
- Do not wrap the answer in code fences
- Do not output any explanation

`)

	sb.WriteString("Available agents:\n")
	for _, e := range req.Executors {
		fmt.Fprintf(&sb, "- %s : %s\n", e.Name, e.Description)
	}

	if len(req.Tools) > 0 {
		sb.WriteString("\nAvailable tools:\n")
		for _, t := range req.Tools {
			fmt.Fprintf(&sb, "- %s : %s", t.Name, t.Description)
			if len(t.InputSchema.Properties) > 0 {
				names := make([]string, 0, len(t.InputSchema.Properties))
				for name := range t.InputSchema.Properties {
					names = append(names, name)
				}
				sort.Strings(names)
				fmt.Fprintf(&sb, " (arguments: %s)", strings.Join(names, ", "))
			}
			sb.WriteString("\n")
		}
	}

	sb.WriteString(`
The output must be exactly:
{
  "goal": "...",
  "steps": [
    {"order": 1, "kind": "agent", "target": "chat", "instruction": "...", "expectedOutput": "..."},
    {"order": 2, "kind": "tool", "target": "string.upper", "argumentsJson": "{\"text\":\"...\"}"}
  ]
}
Every step sets exactly one of instruction (agent steps) or argumentsJson (tool steps, a JSON-encoded object).
`)
	return sb.String()
}

// buildPlannerInput keeps history short so the prompt does not grow per turn
func buildPlannerInput(req Request) string {
	var sb strings.Builder

	if len(req.Profile) > 0 {
		sb.WriteString("[User Profile]\n")
		keys := make([]string, 0, len(req.Profile))
		for k := range req.Profile {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "%s=%s\n", k, req.Profile[k])
		}
		sb.WriteString("\n")
	}

	if len(req.RecentTurns) > 0 {
		sb.WriteString("[Recent Conversation Memory]\n")
		for _, t := range req.RecentTurns {
			fmt.Fprintf(&sb, "- User: %s\n", oneLine(t.UserInput))
			fmt.Fprintf(&sb, "  Assistant: %s\n", truncate(oneLine(t.AssistantOutput), assistantRecapLimit))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("[Current User Input]\n")
	sb.WriteString(req.UserInput)
	sb.WriteString("\n")
	return sb.String()
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
