package cli

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile(t *testing.T) {
	t.Run("path under data dir", func(t *testing.T) {
		assert.Equal(t, filepath.Join("/data", "skagent.pid"), getPIDFilePath("/data"))
		assert.Contains(t, getPIDFilePath(""), "skagent.pid")
	})

	t.Run("missing file is not running", func(t *testing.T) {
		assert.False(t, isRunning(filepath.Join(t.TempDir(), "none.pid")))
	})

	t.Run("own pid is running", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "run", "skagent.pid")
		require.NoError(t, writePIDFile(path))

		pid, err := readPID(path)
		require.NoError(t, err)
		assert.Equal(t, os.Getpid(), pid)
		assert.True(t, isRunning(path))
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.pid")
		require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

		_, err := readPID(path)
		assert.Error(t, err)
		assert.False(t, isRunning(path))
	})
}

func TestStatusCommand(t *testing.T) {
	t.Run("stopped", func(t *testing.T) {
		out, err := execute(t, "status", "--config", writeConfig(t, nil))
		require.NoError(t, err)
		assert.Contains(t, out, "Status: stopped")
	})

	t.Run("running", func(t *testing.T) {
		cfg := writeConfig(t, nil)
		dataDir := filepath.Dir(cfg)
		require.NoError(t, os.WriteFile(getPIDFilePath(dataDir), []byte(strconv.Itoa(os.Getpid())), 0o644))

		out, err := execute(t, "status", "--config", cfg)
		require.NoError(t, err)
		assert.Contains(t, out, "Status: running")
		assert.Contains(t, out, "PID: "+strconv.Itoa(os.Getpid()))
		assert.Contains(t, out, "Address: 0.0.0.0:8080")
	})
}

func TestStopCommandWhenNotRunning(t *testing.T) {
	_, err := execute(t, "stop", "--config", writeConfig(t, nil))
	require.ErrorIs(t, err, errNotRunning)
}
