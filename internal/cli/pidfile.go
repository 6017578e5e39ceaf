package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const pidFileName = "skagent.pid"

var errNotRunning = errors.New("gateway is not running")

func getPIDFilePath(dataDir string) string {
	if dataDir == "" {
		return filepath.Join(os.TempDir(), pidFileName)
	}
	return filepath.Join(dataDir, pidFileName)
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID file %s", path)
	}
	return pid, nil
}

// isRunning reports whether the PID file names a live process
func isRunning(path string) bool {
	pid, err := readPID(path)
	if err != nil {
		return false
	}
	return processAlive(pid)
}

func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix FindProcess always succeeds, signal 0 probes the process
	return process.Signal(syscall.Signal(0)) == nil
}
