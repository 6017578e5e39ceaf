package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with fresh flag values
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cfgFile, logLevel = "", ""
	runPlanFile, runConversationID, servePlanFile = "", "", ""
	configForce, toolsJSON = false, false
	stopTimeout = 30 * time.Second
	resetBuiltinFlags(rootCmd)

	cmd := GetRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// resetBuiltinFlags clears --help and --version, which cobra keeps set
// between executions of the same command tree
func resetBuiltinFlags(cmd *cobra.Command) {
	for _, name := range []string{"help", "version"} {
		if f := cmd.Flags().Lookup(name); f != nil {
			_ = f.Value.Set("false")
		}
	}
	for _, c := range cmd.Commands() {
		resetBuiltinFlags(c)
	}
}

// writeConfig writes a quiet in-memory config into a temp data dir
func writeConfig(t *testing.T, extra map[string]any) string {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	dir := t.TempDir()
	doc := map[string]any{
		"data_dir": dir,
		"logging":  map[string]any{"console": false},
		"memory":   map[string]any{"backend": "inmemory"},
	}
	for k, v := range extra {
		doc[k] = v
	}

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(dir, "skagent.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestRootCommand(t *testing.T) {
	t.Run("version flag", func(t *testing.T) {
		out, err := execute(t, "--version")
		require.NoError(t, err)

		assert.Contains(t, out, "skagent version")
		assert.Contains(t, out, GetVersion())
	})

	t.Run("help flag", func(t *testing.T) {
		out, err := execute(t, "--help")
		require.NoError(t, err)

		assert.Contains(t, out, "skagent")
		assert.Contains(t, out, "plan")
	})

	t.Run("global flags", func(t *testing.T) {
		cmd := GetRootCmd()

		configFlag := cmd.PersistentFlags().Lookup("config")
		require.NotNil(t, configFlag)
		assert.Equal(t, "", configFlag.DefValue)

		logLevelFlag := cmd.PersistentFlags().Lookup("log-level")
		require.NotNil(t, logLevelFlag)
		assert.Equal(t, "", logLevelFlag.DefValue)
	})

	t.Run("subcommands registered", func(t *testing.T) {
		names := map[string]bool{}
		for _, c := range GetRootCmd().Commands() {
			names[c.Name()] = true
		}
		for _, want := range []string{"serve", "run", "tools", "status", "stop", "config"} {
			assert.True(t, names[want], "%s command should exist", want)
		}
	})
}

func TestGetVersion(t *testing.T) {
	version := GetVersion()
	assert.NotEmpty(t, version)
	assert.True(t, strings.HasPrefix(version, "0."))
}

func TestLoadConfigAppliesLogLevelOverride(t *testing.T) {
	cfgFile = writeConfig(t, nil)
	logLevel = "debug"
	t.Cleanup(func() { cfgFile, logLevel = "", "" })

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cfgFile = writeConfig(t, map[string]any{"gateway": map[string]any{"port": 70000}})
	t.Cleanup(func() { cfgFile = "" })

	_, err := loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway")
}

func TestMissingExplicitConfigFails(t *testing.T) {
	_, err := execute(t, "tools", "--config", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
