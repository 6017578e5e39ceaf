package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/harun/skagent/internal/metrics"
	"github.com/harun/skagent/internal/tracing"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// Invoker resolves tools by name and runs them with timeout enforcement and
// failure normalization
type Invoker struct {
	registry *Registry
	policy   *Policy
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

// InvokerOption configures an Invoker
type InvokerOption func(*Invoker)

// WithPolicy restricts which tools may run
func WithPolicy(p *Policy) InvokerOption {
	return func(i *Invoker) { i.policy = p }
}

// WithInvokerMetrics records tool metrics
func WithInvokerMetrics(m *metrics.Metrics) InvokerOption {
	return func(i *Invoker) { i.metrics = m }
}

// WithInvokerLogger sets the logger
func WithInvokerLogger(l zerolog.Logger) InvokerOption {
	return func(i *Invoker) { i.logger = l }
}

// NewInvoker creates an invoker over a registry
func NewInvoker(registry *Registry, opts ...InvokerOption) *Invoker {
	i := &Invoker{
		registry: registry,
		logger:   log.Logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

type callOutcome struct {
	result   Result
	err      error
	panicked bool
}

// Invoke runs one invocation. It never panics and always returns a Result.
func (i *Invoker) Invoke(ctx context.Context, inv Invocation) Result {
	logger := tracing.LoggerFromContext(ctx, i.logger).With().
		Str("tool", inv.ToolName).
		Str("step_id", inv.StepID).
		Logger()

	entry, ok := i.registry.lookup(inv.ToolName)
	if !ok {
		logger.Warn().Msg("Tool not found")
		res := Failure(CodeToolNotFound, fmt.Sprintf("tool %q is not registered", inv.ToolName), nil)
		res.Metrics = &Metrics{LatencyMs: 0}
		i.metrics.ObserveTool(unknownToolLabel, false, CodeToolNotFound, 0)
		return res
	}
	name := entry.desc.Name

	if !i.policy.Allows(name) {
		logger.Warn().Msg("Tool invocation blocked by policy")
		res := Failure(CodeToolNotAllowed, fmt.Sprintf("tool %q is not allowed by policy", name), nil)
		res.Metrics = &Metrics{LatencyMs: 0}
		i.metrics.ObserveTool(name, false, CodeToolNotAllowed, 0)
		return res
	}

	ctx, span := tracing.StartSpan(ctx, "skagent.tools", "tool.invoke",
		attribute.String("tool.name", name),
		attribute.String("run.id", inv.RunID),
		attribute.String("step.id", inv.StepID),
	)

	start := i.now()
	res := i.invoke(ctx, entry, inv.Arguments, logger)
	latency := i.now().Sub(start)

	if res.Metrics == nil {
		res.Metrics = &Metrics{LatencyMs: latency.Milliseconds()}
	}

	code := ""
	if !res.Success {
		code = res.Error.Code
		tracing.Fail(span, res.Error.String())
		logger.Warn().Str("code", code).Str("error", res.Error.Message).Dur("duration", latency).Msg("Tool invocation failed")
	} else {
		logger.Debug().Dur("duration", latency).Msg("Tool invocation completed")
	}
	span.SetAttributes(attribute.Bool("tool.success", res.Success))
	span.End()
	i.metrics.ObserveTool(name, res.Success, code, latency)

	return res
}

func (i *Invoker) invoke(ctx context.Context, entry *registeredTool, args json.RawMessage, logger zerolog.Logger) Result {
	if len(strings.TrimSpace(string(args))) == 0 {
		args = emptyObject
	}
	if err := validateArguments(entry.schema, args); err != nil {
		return Failure(CodeInvalidArguments, err.Error(), nil)
	}

	callCtx := ctx
	timeout := entry.desc.Timeout
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan callOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Tool panicked")
				done <- callOutcome{err: fmt.Errorf("panic: %v", r), panicked: true}
			}
		}()
		res, err := entry.tool.Invoke(callCtx, args)
		done <- callOutcome{result: res, err: err}
	}()

	var out callOutcome
	select {
	case out = <-done:
	case <-callCtx.Done():
		out = callOutcome{err: callCtx.Err()}
	}

	if out.err != nil {
		// Deadline fired while the caller is still live: the tool's own budget ran out
		if timeout > 0 && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return Failure(CodeToolTimeout, fmt.Sprintf("tool %s timed out after %v", entry.desc.Name, timeout), map[string]any{
				"timeoutMs": timeout.Milliseconds(),
			})
		}
		details := map[string]any{"type": errorType(out.err)}
		if out.panicked {
			details["panic"] = true
		}
		return Failure(CodeToolException, out.err.Error(), details)
	}

	return normalize(out.result)
}

// normalize enforces the result contract on tool-supplied values
func normalize(res Result) Result {
	if len(res.Output) == 0 {
		res.Output = emptyObject
	}
	if !res.Success && res.Error == nil {
		res.Error = &Error{Code: CodeUnreportedFailure, Message: "tool reported failure without an error"}
	}
	return res
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "context.Canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "context.DeadlineExceeded"
	}
	var jsonErr *json.SyntaxError
	if errors.As(err, &jsonErr) {
		return "json.SyntaxError"
	}
	return fmt.Sprintf("%T", err)
}
