package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harun/skagent/internal/config"
	"github.com/harun/skagent/pkg/events"
	"github.com/harun/skagent/pkg/llm"
	"github.com/harun/skagent/pkg/runstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Logging.Console = false
	cfg.LLM.APIKey = ""
	return cfg
}

func TestNewAppWithLLMPlanner(t *testing.T) {
	provider := &llm.StaticProvider{Reply: upperPlan}

	app, err := NewApp(testConfig(t), AppOptions{Provider: provider})
	require.NoError(t, err)
	defer app.Close()

	run := app.Service.Run(context.Background(), "conv-llm", "shout hello", events.NullSink{})
	assert.Equal(t, runstate.StatusCompleted, run.Status())
	assert.Contains(t, run.FinalOutput(), "HELLO")
	assert.NotEmpty(t, provider.Requests())
}

func TestNewAppRequiresPlanner(t *testing.T) {
	_, err := NewApp(testConfig(t), AppOptions{})
	require.ErrorIs(t, err, ErrNoPlanner)
}

func TestNewAppRegistersBuiltins(t *testing.T) {
	app, err := NewApp(testConfig(t), AppOptions{Provider: &llm.StaticProvider{}})
	require.NoError(t, err)
	defer app.Close()

	for _, name := range []string{"string.upper", "time.now", "http.request", "web.read"} {
		_, ok := app.Tools.Get(name)
		assert.True(t, ok, name)
	}
	_, ok := app.Tools.Get("web.page_text")
	assert.False(t, ok, "browser tool is opt-in")
}

func TestNewAppWithSQLiteAndRetention(t *testing.T) {
	cfg := testConfig(t)
	cfg.Memory.Backend = config.BackendSQLite
	cfg.Memory.Path = filepath.Join(cfg.DataDir, "nested", "memory.db")
	cfg.Memory.Retention.Enabled = true

	plan, err := loadPlanFile(writePlan(t, upperPlan))
	require.NoError(t, err)

	app, err := NewApp(cfg, AppOptions{Planner: plan})
	require.NoError(t, err)

	app.Service.Run(context.Background(), "conv-sql", "first", events.NullSink{})
	require.NoError(t, app.Close())

	_, err = os.Stat(cfg.Memory.Path)
	assert.NoError(t, err)
}

func TestNewAppWatchesPersonaFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Persona.File = filepath.Join(cfg.DataDir, "pirate.yaml")
	cfg.Persona.Watch = true
	require.NoError(t, os.WriteFile(cfg.Persona.File, []byte("system_prompt: Speak like a pirate.\n"), 0o600))

	plan, err := loadPlanFile(writePlan(t, upperPlan))
	require.NoError(t, err)

	app, err := NewApp(cfg, AppOptions{Planner: plan})
	require.NoError(t, err)
	assert.NoError(t, app.Close())
}

func TestAppRunWritesAuditTrail(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging.AuditFile = filepath.Join(cfg.DataDir, "audit", "runs.jsonl")

	plan, err := loadPlanFile(writePlan(t, upperPlan))
	require.NoError(t, err)

	app, err := NewApp(cfg, AppOptions{Planner: plan})
	require.NoError(t, err)

	sink := events.NewMemorySink()
	run := app.Run(context.Background(), "conv-audit", "shout", sink)
	require.NoError(t, app.Close())

	data, err := os.ReadFile(cfg.Logging.AuditFile)
	require.NoError(t, err)
	lines := splitLines(string(data))
	assert.Len(t, lines, len(sink.Events()))
	assert.Contains(t, lines[0], `"event_type":"run_started"`)
	assert.Contains(t, lines[0], run.RunID())
	assert.Contains(t, lines[0], `"conversation_id":"conv-audit"`)
}

func TestNewAppUnknownPersonaFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Persona.Name = "nobody"

	_, err := NewApp(cfg, AppOptions{Provider: &llm.StaticProvider{}})
	require.Error(t, err)
}

func TestAppCloseIsIdempotent(t *testing.T) {
	app, err := NewApp(testConfig(t), AppOptions{Provider: &llm.StaticProvider{}})
	require.NoError(t, err)

	require.NoError(t, app.Close())
	assert.NoError(t, app.Close())
}

func TestUptime(t *testing.T) {
	assert.Equal(t, 90*time.Second, uptime(time.Now().Add(-90*time.Second-100*time.Millisecond)))
	assert.Equal(t, time.Duration(0), uptime(time.Now().Add(time.Hour)))
}
