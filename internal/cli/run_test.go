package cli

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const upperPlan = `{
  "goal": "shout",
  "steps": [
    {"order": 1, "kind": "tool", "target": "string.upper", "argumentsJson": "{\"text\":\"hello\"}"}
  ]
}`

func writePlan(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

type line struct {
	Type   string          `json:"type"`
	Seq    int64           `json:"seq"`
	Result json.RawMessage `json:"result"`
}

func parseLines(t *testing.T, out string) []line {
	t.Helper()
	var lines []line
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var l line
		require.NoError(t, json.Unmarshal(sc.Bytes(), &l), sc.Text())
		lines = append(lines, l)
	}
	return lines
}

func TestRunCommandWithPlanFile(t *testing.T) {
	cfg := writeConfig(t, nil)
	plan := writePlan(t, upperPlan)

	out, err := execute(t, "run", "--config", cfg, "--plan", plan, "--conversation", "conv-1", "make", "it", "loud")
	require.NoError(t, err)

	lines := parseLines(t, out)
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Equal(t, "run_started", lines[0].Type)
	assert.Equal(t, "run_completed", lines[len(lines)-2].Type)

	last := lines[len(lines)-1]
	require.Equal(t, "result", last.Type)

	var result struct {
		ConversationID string `json:"conversationId"`
		UserInput      string `json:"userInput"`
		Goal           string `json:"goal"`
		Status         string `json:"status"`
		Output         string `json:"output"`
	}
	require.NoError(t, json.Unmarshal(last.Result, &result))
	assert.Equal(t, "conv-1", result.ConversationID)
	assert.Equal(t, "make it loud", result.UserInput)
	assert.Equal(t, "shout", result.Goal)
	assert.Equal(t, "completed", result.Status)
	assert.Contains(t, result.Output, "HELLO")

	for i := 1; i < len(lines)-1; i++ {
		assert.Greater(t, lines[i].Seq, lines[i-1].Seq, "event sequence must increase")
	}
}

func TestRunCommandReportsFailure(t *testing.T) {
	cfg := writeConfig(t, nil)
	plan := writePlan(t, `{"goal":"g","steps":[{"order":1,"kind":"tool","target":"missing.tool","argumentsJson":"{}"}]}`)

	out, err := execute(t, "run", "--config", cfg, "--plan", plan, "anything")
	require.ErrorIs(t, err, ErrRunFailed)

	lines := parseLines(t, out)
	require.NotEmpty(t, lines)
	last := lines[len(lines)-1]
	assert.Equal(t, "result", last.Type)
	assert.Contains(t, string(last.Result), `"status":"failed"`)
}

func TestRunCommandWithoutPlannerFails(t *testing.T) {
	cfg := writeConfig(t, nil)

	_, err := execute(t, "run", "--config", cfg, "hello")
	require.ErrorIs(t, err, ErrNoPlanner)
}

func TestRunCommandRejectsBadPlanFile(t *testing.T) {
	cfg := writeConfig(t, nil)
	plan := writePlan(t, `{"goal":"g","steps":[]}`)

	_, err := execute(t, "run", "--config", cfg, "--plan", plan, "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plan file")
}

func TestRunCommandRequiresInput(t *testing.T) {
	_, err := execute(t, "run")
	require.Error(t, err)
}
