package execution

import (
	"github.com/harun/skagent/internal/metrics"
	"github.com/harun/skagent/pkg/reflection"
	"github.com/rs/zerolog"
)

// DefaultPreviewLimit bounds the argument and output previews kept in the
// tool-call audit log
const DefaultPreviewLimit = 400

// Option configures a PlanExecutor
type Option func(*PlanExecutor)

// WithRetryPolicy sets the per-step retry cap
func WithRetryPolicy(p reflection.RetryPolicy) Option {
	return func(e *PlanExecutor) { e.policy = p }
}

// WithDecider sets the reflection decider
func WithDecider(d reflection.Decider) Option {
	return func(e *PlanExecutor) {
		if d != nil {
			e.decider = d
		}
	}
}

// WithPreviewLimit sets the audit preview budget in characters
func WithPreviewLimit(n int) Option {
	return func(e *PlanExecutor) {
		if n > 0 {
			e.previewLimit = n
		}
	}
}

// WithOutputEvaluator fails successful steps whose output does not satisfy
// their expected output
func WithOutputEvaluator(ev reflection.OutputEvaluator) Option {
	return func(e *PlanExecutor) { e.evaluator = ev }
}

// WithMetrics records step and retry metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *PlanExecutor) { e.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(e *PlanExecutor) { e.logger = l }
}
