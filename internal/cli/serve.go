package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harun/skagent/pkg/gateway"
	"github.com/harun/skagent/pkg/planner"
	"github.com/harun/skagent/pkg/runtime"
	"github.com/spf13/cobra"
)

var servePlanFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway",
	Long: `Start the HTTP gateway in the foreground.
Runs are accepted on /api/agent/run, streamed over SSE on /api/agentstream/run
and over websocket on /api/agentstream/ws. SIGINT or SIGTERM drains in-flight
runs before exiting.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePlanFile, "plan", "", "serve every request with the plan in this JSON file instead of the LLM planner")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pidFile := getPIDFilePath(cfg.DataDir)
	if isRunning(pidFile) {
		return fmt.Errorf("gateway is already running (PID file: %s)", pidFile)
	}

	opts := AppOptions{}
	if servePlanFile != "" {
		if opts.Planner, err = loadPlanFile(servePlanFile); err != nil {
			return err
		}
	}

	app, err := NewApp(cfg, opts)
	if err != nil {
		return err
	}
	defer app.Close()

	srv, err := gateway.NewServer(gateway.Config{
		Host:              cfg.Gateway.Host,
		Port:              cfg.Gateway.Port,
		Runner:            app,
		Profile:           runtime.ProfileSnapshot,
		Metrics:           app.Metrics,
		ReadTimeout:       cfg.Gateway.ReadTimeout,
		WriteTimeout:      cfg.Gateway.WriteTimeout,
		RunTimeout:        cfg.Gateway.RunTimeout,
		ShutdownTimeout:   cfg.Gateway.ShutdownTimeout,
		RequestsPerMinute: cfg.Gateway.RateLimit.RequestsPerMinute,
		MaxConcurrent:     cfg.Gateway.RateLimit.MaxConcurrent,
		Logger:            app.Logger,
	})
	if err != nil {
		return err
	}

	if err := srv.Start(); err != nil {
		return err
	}
	if err := writePIDFile(pidFile); err != nil {
		app.Logger.Warn().Err(err).Str("pid_file", pidFile).Msg("Failed to write PID file")
	}
	defer os.Remove(pidFile)

	app.Logger.Info().Str("addr", srv.Addr()).Msg("Gateway listening")
	fmt.Fprintf(cmd.OutOrStdout(), "skagent gateway listening on %s\n", srv.Addr())

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	app.Logger.Info().Msg("Shutting down gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Gateway.ShutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func loadPlanFile(path string) (planner.Generator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	p, err := planner.LoadStaticPlanner(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan file: %w", err)
	}
	return p, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
