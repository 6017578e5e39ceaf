package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/harun/skagent/internal/metrics"
	"github.com/harun/skagent/internal/tracing"
	"github.com/harun/skagent/pkg/agent"
	"github.com/harun/skagent/pkg/events"
	"github.com/harun/skagent/pkg/planner"
	"github.com/harun/skagent/pkg/reflection"
	"github.com/harun/skagent/pkg/runstate"
	"github.com/harun/skagent/pkg/tools"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrNoPlan     = errors.New("no plan available for execution")
	ErrCancelled  = errors.New("run cancelled")
	ErrStepFailed = errors.New("step failed")
	ErrStepPanic  = errors.New("step panicked")
)

const unsatisfiedOutput = "output does not satisfy expected output"

// StepRouter dispatches executor steps
type StepRouter interface {
	Execute(ctx context.Context, execCtx *agent.Context) (agent.Result, error)
}

// ToolInvoker dispatches tool steps. It never fails with a Go error.
type ToolInvoker interface {
	Invoke(ctx context.Context, inv tools.Invocation) tools.Result
}

// PlanExecutor runs plans step by step
type PlanExecutor struct {
	router       StepRouter
	invoker      ToolInvoker
	decider      reflection.Decider
	policy       reflection.RetryPolicy
	evaluator    reflection.OutputEvaluator
	previewLimit int
	metrics      *metrics.Metrics
	logger       zerolog.Logger
}

// New creates a plan executor
func New(router StepRouter, invoker ToolInvoker, opts ...Option) *PlanExecutor {
	e := &PlanExecutor{
		router:       router,
		invoker:      invoker,
		decider:      reflection.AlwaysRetry(),
		policy:       reflection.DefaultRetryPolicy(),
		previewLimit: DefaultPreviewLimit,
		logger:       log.Logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// outcome is the result of one step attempt
type outcome struct {
	output   string
	success  bool
	errMsg   string
	override string
	// fatal ends the run without consulting the decider
	fatal error
}

// Execute runs the plan stored in run and finalizes it. The returned error
// explains a failed run; run is terminal either way.
func (e *PlanExecutor) Execute(ctx context.Context, run *runstate.RunState, emitter *events.Emitter) error {
	if emitter == nil {
		emitter = events.NewEmitter(run, nil, e.logger)
	}
	logger := tracing.LoggerFromContext(ctx, e.logger).With().Str("run_id", run.RunID()).Logger()

	plan, ok := run.Plan()
	if !ok {
		return e.fail(run, ErrNoPlan)
	}
	if err := plan.Validate(); err != nil {
		return e.fail(run, err)
	}
	if err := run.MarkExecuting(); err != nil {
		return e.fail(run, err)
	}

	steps := plan.SortedSteps()
	logger.Info().Int("steps", len(steps)).Str("goal", plan.Goal).Msg("Executing plan")

	for _, step := range steps {
		target := step.Target
		if !step.IsTool() {
			if override, ok := run.ConsumePendingOverride(); ok {
				logger.Debug().
					Int("step_order", step.Order).
					Str("planned", step.Target).
					Str("override", override).
					Msg("Applying executor override")
				target = override
			}
		}
		resolved := step
		resolved.Target = target

		for {
			if err := ctx.Err(); err != nil {
				return e.cancelled(run, err)
			}

			attempt := run.IncrementAttempts(step.Order)
			idx := run.AppendStepExecution(resolved, attempt)
			emitter.Emit(ctx, events.StepStarted, stepPayload(resolved, attempt, nil))

			out := e.attempt(ctx, run, resolved)
			if out.fatal != nil && out.errMsg == "" {
				out.errMsg = out.fatal.Error()
			}
			if err := run.CompleteStep(idx, out.success, out.output, out.errMsg); err != nil {
				return e.fail(run, err)
			}
			e.metrics.ObserveStep(string(step.Kind), stepStatus(out.success))

			if out.success {
				emitter.Emit(ctx, events.StepCompleted, stepPayload(resolved, attempt, map[string]any{
					"output": preview(out.output, e.previewLimit),
				}))
				if out.override != "" {
					run.SetPendingOverride(out.override)
				}
				break
			}

			emitter.Emit(ctx, events.StepFailed, stepPayload(resolved, attempt, map[string]any{
				"error": out.errMsg,
			}))
			logger.Warn().
				Int("step_order", step.Order).
				Str("target", target).
				Int("attempt", attempt).
				Str("error", out.errMsg).
				Msg("Step failed")

			if err := ctx.Err(); err != nil {
				return e.cancelled(run, err)
			}
			if out.fatal != nil {
				return e.fail(run, out.fatal)
			}

			decision, err := e.decider.Decide(ctx, run, resolved, out.errMsg)
			if err != nil {
				return e.fail(run, fmt.Errorf("reflection failed for step %d: %w", step.Order, err))
			}
			if !decision.ShouldRetry() || attempt >= e.policy.MaxAttempts() {
				return e.fail(run, fmt.Errorf("%w: step %d after %d attempt(s): %s", ErrStepFailed, step.Order, attempt, out.errMsg))
			}

			e.metrics.ObserveRetry(string(step.Kind))
			emitter.Emit(ctx, events.RetryScheduled, stepPayload(resolved, attempt, map[string]any{
				"nextAttempt": attempt + 1,
				"reason":      decision.Reason,
			}))
		}
	}

	if err := run.Finalize(runstate.StatusCompleted, run.AggregatedOutput()); err != nil {
		return err
	}
	logger.Info().Msg("Plan completed")
	return nil
}

// attempt runs one try of step under a span. Panics become fatal outcomes.
func (e *PlanExecutor) attempt(ctx context.Context, run *runstate.RunState, step planner.Step) (out outcome) {
	ctx, span := tracing.StartSpan(ctx, "skagent/execution", "step.execute",
		attribute.Int("step.order", step.Order),
		attribute.String("step.kind", string(step.Kind)),
		attribute.String("step.target", step.Target),
	)
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().
				Str("run_id", run.RunID()).
				Int("step_order", step.Order).
				Str("stack", string(debug.Stack())).
				Msgf("Step panicked: %v", r)
			fatal := fmt.Errorf("%w: %v", ErrStepPanic, r)
			out = outcome{fatal: fatal, errMsg: fatal.Error()}
		}
		if out.success {
			tracing.EndSpan(span, nil)
			return
		}
		tracing.Fail(span, out.errMsg)
		if out.fatal != nil {
			span.RecordError(out.fatal)
		}
		span.End()
	}()

	if step.IsTool() {
		return e.runTool(ctx, run, step)
	}
	return e.runExecutor(ctx, run, step)
}

func (e *PlanExecutor) runTool(ctx context.Context, run *runstate.RunState, step planner.Step) outcome {
	start := time.Now()
	result := e.invoker.Invoke(ctx, tools.Invocation{
		RunID:     run.RunID(),
		StepID:    planner.StepID(step),
		ToolName:  step.Target,
		Arguments: step.Arguments,
	})

	latency := time.Since(start)
	if result.Metrics != nil {
		latency = time.Duration(result.Metrics.LatencyMs) * time.Millisecond
	}

	output := string(result.Output)
	if !result.Success && strings.TrimSpace(output) == "{}" {
		output = ""
	}

	rec := runstate.ToolCallRecord{
		StepOrder:     step.Order,
		ToolName:      step.Target,
		ArgsPreview:   preview(compactJSON(step.Arguments), e.previewLimit),
		Success:       result.Success,
		OutputPreview: preview(output, e.previewLimit),
		Latency:       latency,
	}
	errMsg := ""
	if result.Error != nil {
		rec.ErrorCode = result.Error.Code
		rec.ErrorMessage = result.Error.Message
		errMsg = result.Error.String()
	} else if !result.Success {
		errMsg = tools.CodeUnreportedFailure
	}
	run.RecordToolCall(rec)

	out := outcome{output: output, success: result.Success, errMsg: errMsg}
	return e.evaluate(out, step)
}

func (e *PlanExecutor) runExecutor(ctx context.Context, run *runstate.RunState, step planner.Step) outcome {
	execCtx := agent.NewContext(run.RunID(), run.ConversationID(), run.UserInput(), run.SharedState())
	execCtx.Input = step.Instruction
	execCtx.Target = step.Target
	execCtx.ExpectedOutput = step.ExpectedOutput

	res, err := e.router.Execute(ctx, execCtx)
	if err != nil {
		return outcome{fatal: err}
	}
	run.MergeSharedState(execCtx.State)

	out := outcome{
		output:   res.Output,
		success:  res.Success,
		errMsg:   res.Error,
		override: strings.TrimSpace(res.NextExecutorOverride),
	}
	if !out.success && out.errMsg == "" {
		out.errMsg = "executor reported failure"
	}
	return e.evaluate(out, step)
}

func (e *PlanExecutor) evaluate(out outcome, step planner.Step) outcome {
	if !out.success || e.evaluator == nil {
		return out
	}
	if !e.evaluator.IsSatisfied(out.output, step.ExpectedOutput) {
		out.success = false
		out.errMsg = unsatisfiedOutput
	}
	return out
}

func (e *PlanExecutor) cancelled(run *runstate.RunState, cause error) error {
	return e.fail(run, fmt.Errorf("%w: %w", ErrCancelled, cause))
}

// fail finalizes run as failed with the outputs collected so far
func (e *PlanExecutor) fail(run *runstate.RunState, cause error) error {
	if err := run.Finalize(runstate.StatusFailed, run.AggregatedOutput()); err != nil && !errors.Is(err, runstate.ErrFinalized) {
		return errors.Join(cause, err)
	}
	return cause
}

func stepPayload(step planner.Step, attempt int, extra map[string]any) map[string]any {
	p := map[string]any{
		"order":   step.Order,
		"kind":    step.Kind,
		"target":  step.Target,
		"attempt": attempt,
	}
	for k, v := range extra {
		p[k] = v
	}
	return p
}

func stepStatus(success bool) string {
	if success {
		return string(runstate.StepSuccess)
	}
	return string(runstate.StepFailed)
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// preview keeps at most limit characters, marking truncation with "..."
func preview(s string, limit int) string {
	r := []rune(s)
	if limit <= 0 || len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
