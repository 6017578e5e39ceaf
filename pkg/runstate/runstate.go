package runstate

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/harun/skagent/pkg/planner"
)

// RunState is the mutable aggregate for one run
type RunState struct {
	id             string
	conversationID string
	userInput      string
	startedAt      time.Time

	mu              sync.RWMutex
	plan            *planner.Plan
	steps           []StepExecution
	shared          map[string]any
	attempts        map[int]int
	toolCalls       []ToolCallRecord
	status          Status
	finalOutput     string
	finishedAt      time.Time
	pendingOverride string

	seq atomic.Int64
}

// New creates a run with a fresh run id
func New(conversationID, userInput string) *RunState {
	return NewWithID(uuid.NewString(), conversationID, userInput)
}

// NewWithID creates a run with a caller-supplied run id
func NewWithID(runID, conversationID, userInput string) *RunState {
	return &RunState{
		id:             runID,
		conversationID: conversationID,
		userInput:      userInput,
		startedAt:      time.Now(),
		shared:         make(map[string]any),
		attempts:       make(map[int]int),
		status:         StatusInitialized,
	}
}

// RunID returns the run id
func (r *RunState) RunID() string { return r.id }

// ConversationID returns the caller's correlation key
func (r *RunState) ConversationID() string { return r.conversationID }

// UserInput returns the original input. It is never rewritten.
func (r *RunState) UserInput() string { return r.userInput }

// Status returns the current status
func (r *RunState) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// SetPlan stores the plan for the run
func (r *RunState) SetPlan(plan planner.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status.IsTerminal() {
		return ErrFinalized
	}
	r.plan = &plan
	return nil
}

// Plan returns the plan, or false before planning completes
func (r *RunState) Plan() (planner.Plan, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.plan == nil {
		return planner.Plan{}, false
	}
	return *r.plan, true
}

// MarkExecuting moves an initialized run into execution
func (r *RunState) MarkExecuting() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusInitialized {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.status, StatusExecuting)
	}
	r.status = StatusExecuting
	return nil
}

// AppendStepExecution records a running attempt at step and returns its index
func (r *RunState) AppendStepExecution(step planner.Step, attempt int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.steps = append(r.steps, StepExecution{
		Step:      step,
		Attempt:   attempt,
		Status:    StepRunning,
		StartedAt: time.Now(),
	})
	return len(r.steps) - 1
}

// CompleteStep sets the terminal status of a step execution. Each record is
// completed once.
func (r *RunState) CompleteStep(index int, success bool, output, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if index < 0 || index >= len(r.steps) {
		return fmt.Errorf("%w: index %d", ErrStepNotFound, index)
	}
	exec := &r.steps[index]
	if exec.Status == StepSuccess || exec.Status == StepFailed {
		return fmt.Errorf("%w: step %d attempt %d", ErrStepCompleted, exec.Step.Order, exec.Attempt)
	}

	exec.Status = StepFailed
	if success {
		exec.Status = StepSuccess
	}
	exec.Output = output
	exec.Error = errMsg
	exec.FinishedAt = time.Now()
	return nil
}

// Steps returns a copy of the step executions in append order
func (r *RunState) Steps() []StepExecution {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]StepExecution, len(r.steps))
	copy(out, r.steps)
	return out
}

// MergeSharedState writes every key of patch over the shared state. Keys are
// case-insensitive; keys absent from patch are left untouched.
func (r *RunState) MergeSharedState(patch map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, v := range patch {
		r.shared[normalizeKey(k)] = v
	}
}

// SharedState returns a copy of the shared state
func (r *RunState) SharedState() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]any, len(r.shared))
	for k, v := range r.shared {
		out[k] = v
	}
	return out
}

// Get returns one shared state value
func (r *RunState) Get(key string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.shared[normalizeKey(key)]
	return v, ok
}

// RecordToolCall appends to the audit log
func (r *RunState) RecordToolCall(rec ToolCallRecord) {
	rec.LatencyMs = rec.Latency.Milliseconds()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.toolCalls = append(r.toolCalls, rec)
}

// ToolCalls returns a copy of the audit log
func (r *RunState) ToolCalls() []ToolCallRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ToolCallRecord, len(r.toolCalls))
	copy(out, r.toolCalls)
	return out
}

// NextEventSequence returns the next event sequence number, starting at 1
func (r *RunState) NextEventSequence() int64 {
	return r.seq.Add(1)
}

// IncrementAttempts bumps the attempt counter for a step order and returns
// the new total
func (r *RunState) IncrementAttempts(order int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempts[order]++
	return r.attempts[order]
}

// Attempts returns how many times a step order has been attempted
func (r *RunState) Attempts(order int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.attempts[order]
}

// SetPendingOverride names the executor the next executor step should use
func (r *RunState) SetPendingOverride(target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingOverride = strings.TrimSpace(target)
}

// PendingOverride peeks at the override without consuming it
func (r *RunState) PendingOverride() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pendingOverride, r.pendingOverride != ""
}

// ConsumePendingOverride returns and clears the override
func (r *RunState) ConsumePendingOverride() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target := r.pendingOverride
	r.pendingOverride = ""
	return target, target != ""
}

// Finalize sets the terminal status and final output. It succeeds once.
func (r *RunState) Finalize(status Status, output string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrNotTerminal, status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status.IsTerminal() {
		return ErrFinalized
	}
	r.status = status
	r.finalOutput = output
	r.finishedAt = time.Now()
	return nil
}

// FinalOutput returns the aggregated output set by Finalize
func (r *RunState) FinalOutput() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.finalOutput
}

// AggregatedOutput joins the non-blank outputs of every step execution
// recorded so far, one per line
func (r *RunState) AggregatedOutput() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	parts := make([]string, 0, len(r.steps))
	for _, s := range r.steps {
		if strings.TrimSpace(s.Output) != "" {
			parts = append(parts, s.Output)
		}
	}
	return strings.Join(parts, "\n")
}

// Result snapshots the run for callers
func (r *RunState) Result() Result {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := Result{
		RunID:          r.id,
		ConversationID: r.conversationID,
		UserInput:      r.userInput,
		Status:         r.status,
		Output:         r.finalOutput,
		Steps:          make([]StepView, 0, len(r.steps)),
		ToolCalls:      make([]ToolCallRecord, len(r.toolCalls)),
		StartedAt:      r.startedAt,
		FinishedAt:     r.finishedAt,
	}
	if r.plan != nil {
		res.Goal = r.plan.Goal
	}
	for _, s := range r.steps {
		res.Steps = append(res.Steps, StepView{
			Order:   s.Step.Order,
			Kind:    string(s.Step.Kind),
			Target:  s.Step.Target,
			Attempt: s.Attempt,
			Status:  s.Status,
			Output:  s.Output,
			Error:   s.Error,
		})
	}
	copy(res.ToolCalls, r.toolCalls)
	return res
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
