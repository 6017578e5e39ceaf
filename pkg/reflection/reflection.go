package reflection

import (
	"context"
	"strings"

	"github.com/harun/skagent/pkg/planner"
	"github.com/harun/skagent/pkg/runstate"
)

// Action is what the executor should do after a failed step
type Action string

const (
	ActionNone          Action = "none"
	ActionRetrySameStep Action = "retry_same_step"
)

// Decision is the outcome of reflecting on a failure
type Decision struct {
	Action Action
	Reason string
}

// ShouldRetry reports whether the decision asks for a retry
func (d Decision) ShouldRetry() bool {
	return d.Action == ActionRetrySameStep
}

// Decider decides how to react to a failed step. The retry cap is enforced
// by the caller, not by the decider.
type Decider interface {
	Decide(ctx context.Context, run *runstate.RunState, step planner.Step, reason string) (Decision, error)
}

// DefaultMaxRetriesPerStep is the number of retries after the first attempt
const DefaultMaxRetriesPerStep = 2

// RetryPolicy bounds retries per step
type RetryPolicy struct {
	MaxRetriesPerStep int `json:"max_retries_per_step" mapstructure:"max_retries_per_step"`
}

// DefaultRetryPolicy allows two retries per step
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetriesPerStep: DefaultMaxRetriesPerStep}
}

// MaxAttempts is the total number of attempts a step may make
func (p RetryPolicy) MaxAttempts() int {
	if p.MaxRetriesPerStep < 0 {
		return 1
	}
	return p.MaxRetriesPerStep + 1
}

// FixedDecider always returns Action
type FixedDecider struct {
	Action Action
}

// AlwaysRetry is the baseline decider
func AlwaysRetry() FixedDecider {
	return FixedDecider{Action: ActionRetrySameStep}
}

// Decide returns the fixed action with the failure reason
func (d FixedDecider) Decide(ctx context.Context, run *runstate.RunState, step planner.Step, reason string) (Decision, error) {
	return Decision{Action: d.Action, Reason: reason}, nil
}

// permanentFailures never get better on retry
var permanentFailures = []string{
	"not found",
	"not_found",
	"permission",
	"not allowed",
	"not_allowed",
	"invalid argument",
	"invalid_argument",
	"url_blocked",
}

// HeuristicDecider gives up on failures that look permanent and retries
// the rest (timeouts, connection errors, empty answers)
type HeuristicDecider struct{}

// Decide inspects the failure reason
func (HeuristicDecider) Decide(ctx context.Context, run *runstate.RunState, step planner.Step, reason string) (Decision, error) {
	lower := strings.ToLower(reason)
	for _, p := range permanentFailures {
		if strings.Contains(lower, p) {
			return Decision{Action: ActionNone, Reason: "permanent failure: " + reason}, nil
		}
	}
	return Decision{Action: ActionRetrySameStep, Reason: reason}, nil
}

// OutputEvaluator checks a step output against its expected output
type OutputEvaluator interface {
	IsSatisfied(output, expected string) bool
}

// SimpleOutputEvaluator accepts any output when nothing is expected and
// otherwise requires case-insensitive containment
type SimpleOutputEvaluator struct{}

// IsSatisfied implements OutputEvaluator
func (SimpleOutputEvaluator) IsSatisfied(output, expected string) bool {
	if strings.TrimSpace(expected) == "" {
		return true
	}
	if strings.TrimSpace(output) == "" {
		return false
	}
	return strings.Contains(strings.ToLower(output), strings.ToLower(expected))
}

// NewDecider returns the decider for a config name: "always" or "heuristic"
func NewDecider(name string) (Decider, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "always", "fixed":
		return AlwaysRetry(), true
	case "heuristic":
		return HeuristicDecider{}, true
	case "never", "none":
		return FixedDecider{Action: ActionNone}, true
	default:
		return nil, false
	}
}
