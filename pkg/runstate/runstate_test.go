package runstate

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/harun/skagent/pkg/planner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	run := New("conv-1", "hello")

	assert.NotEmpty(t, run.RunID())
	assert.Equal(t, "conv-1", run.ConversationID())
	assert.Equal(t, "hello", run.UserInput())
	assert.Equal(t, StatusInitialized, run.Status())

	_, ok := run.Plan()
	assert.False(t, ok)

	other := New("conv-1", "hello")
	assert.NotEqual(t, run.RunID(), other.RunID())
}

func TestStatusTransitions(t *testing.T) {
	run := NewWithID("run-1", "c", "in")

	require.NoError(t, run.MarkExecuting())
	assert.ErrorIs(t, run.MarkExecuting(), ErrInvalidTransition)

	assert.ErrorIs(t, run.Finalize(StatusExecuting, "x"), ErrNotTerminal)
	require.NoError(t, run.Finalize(StatusCompleted, "done"))
	assert.ErrorIs(t, run.Finalize(StatusFailed, "again"), ErrFinalized)

	assert.Equal(t, StatusCompleted, run.Status())
	assert.Equal(t, "done", run.FinalOutput())
	assert.ErrorIs(t, run.SetPlan(planner.Plan{}), ErrFinalized)
}

func TestStepExecutionLifecycle(t *testing.T) {
	run := New("c", "in")
	step := planner.NewExecutorStep(1, "chat", "say hi", "")

	idx := run.AppendStepExecution(step, 1)
	steps := run.Steps()
	require.Len(t, steps, 1)
	assert.Equal(t, StepRunning, steps[0].Status)

	require.NoError(t, run.CompleteStep(idx, true, "hi", ""))
	assert.ErrorIs(t, run.CompleteStep(idx, false, "", "late"), ErrStepCompleted)
	assert.ErrorIs(t, run.CompleteStep(5, true, "", ""), ErrStepNotFound)

	steps = run.Steps()
	assert.Equal(t, StepSuccess, steps[0].Status)
	assert.Equal(t, "hi", steps[0].Output)
	assert.False(t, steps[0].FinishedAt.IsZero())
}

func TestMergeSharedStateLastWriterWins(t *testing.T) {
	run := New("c", "in")

	run.MergeSharedState(map[string]any{"x": "1", "keep": true})
	run.MergeSharedState(map[string]any{"X": "2"})

	v, ok := run.Get("x")
	require.True(t, ok)
	assert.Equal(t, "2", v)

	state := run.SharedState()
	assert.Equal(t, true, state["keep"])
	assert.Len(t, state, 2)

	state["x"] = "mutated"
	v, _ = run.Get("X")
	assert.Equal(t, "2", v, "SharedState must return a copy")
}

func TestPendingOverrideIsSingleUse(t *testing.T) {
	run := New("c", "in")

	_, ok := run.ConsumePendingOverride()
	assert.False(t, ok)

	run.SetPendingOverride(" mcp ")
	target, ok := run.PendingOverride()
	assert.True(t, ok)
	assert.Equal(t, "mcp", target)

	target, ok = run.ConsumePendingOverride()
	assert.True(t, ok)
	assert.Equal(t, "mcp", target)

	_, ok = run.ConsumePendingOverride()
	assert.False(t, ok)
}

func TestNextEventSequence(t *testing.T) {
	run := New("c", "in")

	var wg sync.WaitGroup
	seen := make(chan int64, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- run.NextEventSequence()
		}()
	}
	wg.Wait()
	close(seen)

	unique := map[int64]bool{}
	for s := range seen {
		unique[s] = true
	}
	assert.Len(t, unique, 100)
	for i := int64(1); i <= 100; i++ {
		assert.True(t, unique[i], "missing sequence %d", i)
	}
}

func TestAttempts(t *testing.T) {
	run := New("c", "in")

	assert.Equal(t, 0, run.Attempts(1))
	assert.Equal(t, 1, run.IncrementAttempts(1))
	assert.Equal(t, 2, run.IncrementAttempts(1))
	assert.Equal(t, 1, run.IncrementAttempts(2))
	assert.Equal(t, 2, run.Attempts(1))
}

func TestAggregatedOutputAndResult(t *testing.T) {
	run := NewWithID("run-9", "conv", "shout hello")
	plan := planner.Plan{Goal: "shout", Steps: []planner.Step{
		planner.NewToolStep(1, "string.upper", json.RawMessage(`{"text":"hello"}`), ""),
		planner.NewExecutorStep(2, "chat", "explain", ""),
	}}
	require.NoError(t, run.SetPlan(plan))

	i := run.AppendStepExecution(plan.Steps[0], 1)
	require.NoError(t, run.CompleteStep(i, true, `{"result":"HELLO"}`, ""))
	i = run.AppendStepExecution(plan.Steps[1], 1)
	require.NoError(t, run.CompleteStep(i, false, "  ", "chat failed"))

	run.RecordToolCall(ToolCallRecord{StepOrder: 1, ToolName: "string.upper", Success: true, Latency: 1500 * time.Microsecond})

	assert.Equal(t, `{"result":"HELLO"}`, run.AggregatedOutput())
	require.NoError(t, run.Finalize(StatusFailed, run.AggregatedOutput()))

	res := run.Result()
	assert.Equal(t, "run-9", res.RunID)
	assert.Equal(t, "shout", res.Goal)
	assert.Equal(t, StatusFailed, res.Status)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, "tool", res.Steps[0].Kind)
	assert.Equal(t, "chat failed", res.Steps[1].Error)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, int64(1), res.ToolCalls[0].LatencyMs)

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"runId":"run-9"`)
	assert.Contains(t, string(data), `"toolCalls":[`)
}
