package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gateway status",
	Long:  `Show whether a gateway started with "skagent serve" is running.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	pidFile := getPIDFilePath(cfg.DataDir)
	pid, err := readPID(pidFile)
	if err != nil || !processAlive(pid) {
		fmt.Fprintln(out, "Status: stopped")
		return nil
	}

	fmt.Fprintf(out, "Status: running\nPID: %d\nAddress: %s\n", pid, cfg.Gateway.Address())
	// The PID file is written once the listener is up
	if info, err := os.Stat(pidFile); err == nil {
		fmt.Fprintf(out, "Uptime: %s\n", uptime(info.ModTime()))
	}
	return nil
}

func uptime(since time.Time) time.Duration {
	return max(time.Since(since), 0).Round(time.Second)
}
