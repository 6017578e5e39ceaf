package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoader(t *testing.T, path string) *Loader {
	t.Helper()
	home := t.TempDir()
	l := NewLoader(path)
	l.home = func() (string, error) { return home, nil }
	return l
}

func TestLoaderPath(t *testing.T) {
	l := testLoader(t, "")
	home, _ := l.home()
	path, err := l.Path()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".skagent", "skagent.json"), path)

	l = NewLoader("/etc/skagent.yaml")
	path, err = l.Path()
	require.NoError(t, err)
	assert.Equal(t, "/etc/skagent.yaml", path)
}

func TestLoaderLoad(t *testing.T) {
	t.Run("defaults when default file is missing", func(t *testing.T) {
		l := testLoader(t, "")
		cfg, err := l.Load()
		require.NoError(t, err)

		home, _ := l.home()
		assert.Equal(t, filepath.Join(home, ".skagent"), cfg.DataDir)
		assert.Equal(t, 8080, cfg.Gateway.Port)
		assert.Equal(t, 10*time.Second, cfg.Gateway.WriteTimeout)
		assert.Equal(t, 30*time.Second, cfg.Tools.Browser.Timeout)
	})

	t.Run("explicit missing file is an error", func(t *testing.T) {
		l := testLoader(t, filepath.Join(t.TempDir(), "nope.json"))
		_, err := l.Load()
		assert.Error(t, err)
	})

	t.Run("json file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "skagent.json")
		require.NoError(t, os.WriteFile(path, []byte(`{
			"gateway": {"port": 9090, "write_timeout": "3s"},
			"llm": {"provider": "anthropic", "api_key": "sk-ant-abc", "model": "claude-3-5-haiku-latest"},
			"execution": {"retry": {"max_retries_per_step": 4}, "decider": "heuristic"},
			"memory": {"backend": "sqlite"},
			"tools": {"policy": {"deny": ["http.*"]}, "browser": {"enabled": true, "max_chars": 100}}
		}`), 0o644))

		cfg, err := testLoader(t, path).Load()
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Gateway.Port)
		assert.Equal(t, 3*time.Second, cfg.Gateway.WriteTimeout)
		assert.Equal(t, 15*time.Second, cfg.Gateway.ShutdownTimeout)
		assert.Equal(t, "anthropic", cfg.LLM.Provider)
		assert.Equal(t, "sk-ant-abc", cfg.LLM.APIKey)
		assert.Equal(t, 1024, cfg.LLM.MaxTokens)
		assert.Equal(t, 4, cfg.Execution.Retry.MaxRetriesPerStep)
		assert.Equal(t, "heuristic", cfg.Execution.Decider)
		assert.Equal(t, filepath.Join(cfg.DataDir, "memory.db"), cfg.Memory.Path)
		assert.Equal(t, []string{"http.*"}, cfg.Tools.Policy.Deny)
		assert.True(t, cfg.Tools.Browser.Enabled)
		assert.Equal(t, 100, cfg.Tools.Browser.MaxChars)
		assert.True(t, cfg.Tools.Browser.NoSandbox)
	})

	t.Run("yaml file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "skagent.yaml")
		require.NoError(t, os.WriteFile(path, []byte("persona:\n  name: engineer_wellness\nlogging:\n  level: debug\n"), 0o644))

		cfg, err := testLoader(t, path).Load()
		require.NoError(t, err)
		assert.Equal(t, "engineer_wellness", cfg.Persona.Name)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "skagent.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"gateway": {"port": 9090}}`), 0o644))
		t.Setenv("SKAGENT_GATEWAY_PORT", "7070")
		t.Setenv("SKAGENT_EXECUTION_DECIDER", "never")

		cfg, err := testLoader(t, path).Load()
		require.NoError(t, err)
		assert.Equal(t, 7070, cfg.Gateway.Port)
		assert.Equal(t, "never", cfg.Execution.Decider)
	})

	t.Run("provider key from conventional env", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "sk-from-env")
		cfg, err := testLoader(t, "").Load()
		require.NoError(t, err)
		assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "skagent.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"gateway": `), 0o644))
		_, err := testLoader(t, path).Load()
		assert.Error(t, err)
	})
}

func TestLoaderSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "skagent.json")
	l := testLoader(t, path)

	cfg := DefaultConfig()
	cfg.Gateway.Port = 9191
	cfg.Memory.Retention.MaxAge = 48 * time.Hour
	require.NoError(t, l.Save(cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, 9191, loaded.Gateway.Port)
	assert.Equal(t, 48*time.Hour, loaded.Memory.Retention.MaxAge)
}
