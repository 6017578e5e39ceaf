package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/harun/skagent/internal/config"
	"github.com/harun/skagent/internal/logger"
	"github.com/harun/skagent/internal/metrics"
	"github.com/harun/skagent/internal/observability"
	"github.com/harun/skagent/internal/tracing"
	"github.com/harun/skagent/pkg/agent"
	"github.com/harun/skagent/pkg/events"
	"github.com/harun/skagent/pkg/execution"
	"github.com/harun/skagent/pkg/llm"
	"github.com/harun/skagent/pkg/memory"
	"github.com/harun/skagent/pkg/persona"
	"github.com/harun/skagent/pkg/planner"
	"github.com/harun/skagent/pkg/reflection"
	"github.com/harun/skagent/pkg/runstate"
	"github.com/harun/skagent/pkg/runtime"
	"github.com/harun/skagent/pkg/tools"
	"github.com/rs/zerolog"
)

// ErrNoPlanner is returned when no plan source can be wired
var ErrNoPlanner = errors.New("no planner: configure an LLM API key or pass --plan")

const tracingShutdownTimeout = 5 * time.Second

// AppOptions overrides parts of the wiring
type AppOptions struct {
	// Planner replaces the LLM planner, e.g. a plan loaded from a file
	Planner planner.Generator
	// Provider replaces the provider built from the llm config
	Provider llm.Provider
}

// App is the wired runtime plus everything that must be released with it
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	Tools   *tools.Registry
	Service *runtime.Service

	audit   *observability.AuditLogger
	closers []func() error
}

// NewApp builds the runtime described by cfg. On error every resource
// opened so far is released.
func NewApp(cfg *config.Config, opts AppOptions) (_ *App, err error) {
	app := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	lg, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.onClose(lg.Close)
	app.Logger = lg.Component("app")

	shutdownTracing, err := tracing.Init(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	app.onClose(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), tracingShutdownTimeout)
		defer cancel()
		return shutdownTracing(ctx)
	})

	app.Metrics = metrics.NewMetrics()

	if path := cfg.Logging.AuditFile; path != "" {
		if app.audit, err = observability.OpenAuditLogger(path); err != nil {
			return nil, err
		}
		app.onClose(app.audit.Close)
	}

	if err := app.buildTools(cfg.Tools); err != nil {
		return nil, err
	}

	shortTerm, profiles, err := app.buildMemory(cfg.Memory, lg)
	if err != nil {
		return nil, err
	}

	source, err := app.buildPersona(cfg.Persona, lg)
	if err != nil {
		return nil, err
	}

	provider := opts.Provider
	if provider == nil && cfg.LLM.APIKey != "" {
		provider, err = llm.NewProvider(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM provider: %w", err)
		}
	}

	executors := []agent.Executor{
		agent.NewMCPExecutor(agent.LocalMCPClient{}),
		agent.NewA2AExecutor(agent.LocalA2AChannel{}),
	}
	if provider != nil {
		executors = append(executors, agent.NewChatExecutor(agent.ChatConfig{
			Provider:  provider,
			Composer:  agent.NewComposer(source),
			Model:     cfg.LLM.Model,
			MaxTokens: cfg.LLM.MaxTokens,
			Logger:    lg.Component("chat"),
		}))
	}
	router, err := agent.NewRouter(lg.Component("router"), executors...)
	if err != nil {
		return nil, err
	}

	gen := opts.Planner
	if gen == nil {
		if provider == nil {
			return nil, ErrNoPlanner
		}
		gen = planner.NewLLMPlanner(provider, cfg.LLM.Model).WithLogger(lg.Component("planner"))
	}

	executor, err := app.buildExecutor(cfg.Execution, router, lg)
	if err != nil {
		return nil, err
	}

	app.Service, err = runtime.NewService(runtime.Config{
		Planner:     gen,
		Executor:    executor,
		Router:      router,
		Tools:       app.Tools,
		Memory:      shortTerm,
		Profiles:    profiles,
		Persona:     source,
		RecentTurns: cfg.Memory.RecentTurns,
		Metrics:     app.Metrics,
		Logger:      lg.Component("runtime"),
	})
	if err != nil {
		return nil, err
	}

	app.Logger.Debug().
		Int("tools", app.Tools.Count()).
		Int("executors", len(executors)).
		Str("memory", cfg.Memory.Backend).
		Msg("Runtime ready")
	return app, nil
}

// Run executes one request through the service, copying every event to the
// audit trail when one is configured
func (a *App) Run(ctx context.Context, conversationID, input string, sink events.Sink) *runstate.RunState {
	if a.audit != nil {
		if sink == nil {
			sink = a.audit
		} else {
			sink = events.NewCompositeSink(sink, a.audit)
		}
	}
	return a.Service.Run(ctx, conversationID, input, sink)
}

func (a *App) buildTools(cfg config.ToolsConfig) error {
	a.Tools = tools.NewRegistry()

	opts := tools.BuiltinOptions{
		HTTPTimeout: cfg.HTTPTimeout,
		URLPolicy:   cfg.URLPolicy,
	}
	if cfg.Browser.Enabled {
		browser := cfg.Browser.BrowserOptions
		opts.Browser = &browser
	}
	if err := tools.RegisterBuiltins(a.Tools, opts); err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}

	if t, ok := a.Tools.Get("web.page_text"); ok {
		if page, ok := t.(*tools.PageTextTool); ok {
			a.onClose(page.Close)
		}
	}
	return nil
}

func (a *App) buildMemory(cfg config.MemoryConfig, lg *logger.Logger) (memory.ShortTermMemory, memory.ProfileStore, error) {
	if cfg.Backend != config.BackendSQLite {
		store := memory.NewInMemory(cfg.MaxTurns)
		return store, store, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create memory directory: %w", err)
	}
	store, err := memory.NewSQLiteStore(memory.SQLiteConfig{
		DBPath:   cfg.Path,
		MaxTurns: cfg.MaxTurns,
		Logger:   lg.Component("memory"),
	})
	if err != nil {
		return nil, nil, err
	}
	a.onClose(store.Close)

	if cfg.Retention.Enabled {
		retention, err := memory.NewRetention(store, cfg.Retention.Schedule, cfg.Retention.MaxAge, lg.Component("retention"))
		if err != nil {
			return nil, nil, err
		}
		retention.Start()
		a.onClose(func() error {
			retention.Stop()
			return nil
		})
	}
	return store, store, nil
}

func (a *App) buildPersona(cfg config.PersonaConfig, lg *logger.Logger) (persona.Source, error) {
	if cfg.Watch && cfg.File != "" {
		fs, err := persona.NewFileSource(cfg.File, lg.Component("persona"))
		if err != nil {
			return nil, err
		}
		a.onClose(fs.Stop)
		return fs, nil
	}

	opts, err := persona.Resolve(cfg.Name, cfg.File)
	if err != nil {
		return nil, err
	}
	return persona.Static(opts), nil
}

func (a *App) buildExecutor(cfg config.ExecutionConfig, router *agent.Router, lg *logger.Logger) (*execution.PlanExecutor, error) {
	decider, ok := reflection.NewDecider(cfg.Decider)
	if !ok {
		return nil, fmt.Errorf("unknown decider %q", cfg.Decider)
	}

	invoker := tools.NewInvoker(a.Tools,
		tools.WithPolicy(&a.Config.Tools.Policy),
		tools.WithInvokerMetrics(a.Metrics),
		tools.WithInvokerLogger(lg.Component("tools")),
	)

	opts := []execution.Option{
		execution.WithRetryPolicy(cfg.Retry),
		execution.WithDecider(decider),
		execution.WithPreviewLimit(cfg.PreviewLimit),
		execution.WithMetrics(a.Metrics),
		execution.WithLogger(lg.Component("execution")),
	}
	if cfg.EvaluateOutput {
		opts = append(opts, execution.WithOutputEvaluator(reflection.SimpleOutputEvaluator{}))
	}
	return execution.New(router, invoker, opts...), nil
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
