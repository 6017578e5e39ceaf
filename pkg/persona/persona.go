// Package persona defines the assistant personalities used by the planner
// and chat executor.
package persona

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Options configures a persona
type Options struct {
	Name         string `yaml:"name" json:"name"`
	SystemPrompt string `yaml:"system_prompt" json:"system_prompt"`
	PlannerHint  string `yaml:"planner_hint" json:"planner_hint"`
}

// Neutral is an objective, concise assistant
var Neutral = Options{
	Name:         "neutral",
	SystemPrompt: "You are an objective, neutral and concise assistant.",
	PlannerHint:  "Keep the plan to as few steps as possible.",
}

// EngineerWellness is a long-term companion combining an engineering mindset
// with everyday wellness habits
var EngineerWellness = Options{
	Name: "engineer_wellness",
	SystemPrompt: strings.TrimSpace(`
You are a long-term companion assistant who thinks like an engineer and cares about sustainable wellness habits.
Rules:
- Clarify the goal before giving advice; avoid vague answers
- Lead with the conclusion, keep points structured and actionable
- Never exaggerate benefits, never diagnose, never replace a doctor
- Prefer light habits the user can keep up
Style: concise, structured, warm but not syrupy.`),
	PlannerHint: strings.TrimSpace(`
Prefer the fewest steps that reach the goal.
If the request is about health or wellness, add one step that asks for key background (sleep schedule, location, symptom duration, restrictions, history).`),
}

var catalog = map[string]Options{
	Neutral.Name:          Neutral,
	EngineerWellness.Name: EngineerWellness,
}

// Lookup returns a built-in persona by name
func Lookup(name string) (Options, bool) {
	p, ok := catalog[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Names returns the built-in persona names
func Names() []string {
	return []string{Neutral.Name, EngineerWellness.Name}
}

// LoadFile reads a persona from a YAML file. A missing name defaults to the
// file's base name without extension.
func LoadFile(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("failed to read persona file: %w", err)
	}

	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("failed to parse persona file: %w", err)
	}
	if strings.TrimSpace(opts.SystemPrompt) == "" {
		return Options{}, fmt.Errorf("persona file %s has no system_prompt", path)
	}
	if opts.Name == "" {
		base := filepath.Base(path)
		opts.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	opts.SystemPrompt = strings.TrimSpace(opts.SystemPrompt)
	opts.PlannerHint = strings.TrimSpace(opts.PlannerHint)
	return opts, nil
}

// Resolve picks a persona. A file path wins over a catalog name; an empty
// name yields Neutral.
func Resolve(name, file string) (Options, error) {
	if file != "" {
		return LoadFile(file)
	}
	if p, ok := Lookup(name); ok {
		return p, nil
	}
	if name != "" {
		return Options{}, fmt.Errorf("unknown persona: %s", name)
	}
	return Neutral, nil
}
