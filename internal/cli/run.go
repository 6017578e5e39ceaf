package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/harun/skagent/pkg/events"
	"github.com/harun/skagent/pkg/gateway"
	"github.com/harun/skagent/pkg/runstate"
	"github.com/harun/skagent/pkg/runtime"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/cobra"
)

// ErrRunFailed is returned after a run finalized as failed. The result line
// has already been written.
var ErrRunFailed = errors.New("run failed")

var (
	runPlanFile       string
	runConversationID string
)

var runCmd = &cobra.Command{
	Use:   "run [input...]",
	Short: "Execute one request and stream its events",
	Long: `Execute one request and write every run event to stdout as one JSON
object per line, followed by a final {"type":"result"} line. Logs go to stderr.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runPlanFile, "plan", "", "execute the plan in this JSON file instead of asking the LLM planner")
	runCmd.Flags().StringVar(&runConversationID, "conversation", "", "conversation id (default: a new id)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	input := strings.TrimSpace(strings.Join(args, " "))
	if input == "" {
		return errors.New("input is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	opts := AppOptions{}
	if runPlanFile != "" {
		if opts.Planner, err = loadPlanFile(runPlanFile); err != nil {
			return err
		}
	}

	app, err := NewApp(cfg, opts)
	if err != nil {
		return err
	}
	defer app.Close()

	conversationID := runConversationID
	if conversationID == "" {
		if conversationID, err = gonanoid.New(); err != nil {
			return fmt.Errorf("failed to generate conversation id: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	run := app.Run(commandContext(cmd), conversationID, input, events.NewLineSink(out))

	result := events.ResultFrame{
		Type: "result",
		Result: gateway.RunResponse{
			Result:          run.Result(),
			ProfileSnapshot: runtime.ProfileSnapshot(run),
		},
	}
	if err := json.NewEncoder(out).Encode(result); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	if run.Status() == runstate.StatusFailed {
		return ErrRunFailed
	}
	return nil
}
