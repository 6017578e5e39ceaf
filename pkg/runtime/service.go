// Package runtime is the caller-facing entry point: it loads conversation
// memory, asks the planner for a plan, executes it and commits the turn.
package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/harun/skagent/internal/metrics"
	"github.com/harun/skagent/internal/tracing"
	"github.com/harun/skagent/pkg/agent"
	"github.com/harun/skagent/pkg/events"
	"github.com/harun/skagent/pkg/execution"
	"github.com/harun/skagent/pkg/memory"
	"github.com/harun/skagent/pkg/persona"
	"github.com/harun/skagent/pkg/planner"
	"github.com/harun/skagent/pkg/runstate"
	"github.com/harun/skagent/pkg/tools"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultRecentTurns is how many past turns are loaded per run
const DefaultRecentTurns = 4

// Config wires a Service
type Config struct {
	Planner     planner.Generator
	Executor    *execution.PlanExecutor
	Router      *agent.Router
	Tools       *tools.Registry
	Memory      memory.ShortTermMemory
	Profiles    memory.ProfileStore
	Persona     persona.Source
	RecentTurns int
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
}

// Service runs one user request end to end
type Service struct {
	planner     planner.Generator
	executor    *execution.PlanExecutor
	router      *agent.Router
	tools       *tools.Registry
	memory      memory.ShortTermMemory
	profiles    memory.ProfileStore
	persona     persona.Source
	recentTurns int
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// NewService validates cfg
func NewService(cfg Config) (*Service, error) {
	if cfg.Planner == nil {
		return nil, errors.New("planner is required")
	}
	if cfg.Executor == nil {
		return nil, errors.New("plan executor is required")
	}
	if cfg.Memory == nil {
		return nil, errors.New("short-term memory is required")
	}
	if cfg.Profiles == nil {
		return nil, errors.New("profile store is required")
	}
	if cfg.Persona == nil {
		cfg.Persona = persona.Static(persona.Neutral)
	}
	if cfg.RecentTurns <= 0 {
		cfg.RecentTurns = DefaultRecentTurns
	}

	return &Service{
		planner:     cfg.Planner,
		executor:    cfg.Executor,
		router:      cfg.Router,
		tools:       cfg.Tools,
		memory:      cfg.Memory,
		profiles:    cfg.Profiles,
		persona:     cfg.Persona,
		recentTurns: cfg.RecentTurns,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}, nil
}

// Run executes userInput for a conversation. It always returns a
// finalized run; failures are reported through its status and events.
func (s *Service) Run(ctx context.Context, conversationID, userInput string, sink events.Sink) *runstate.RunState {
	run := runstate.New(conversationID, userInput)

	ctx = tracing.NewRunContext(ctx, run.RunID(), conversationID)
	ctx, span := tracing.StartSpan(ctx, "skagent/runtime", "run",
		attribute.String("run.id", run.RunID()),
		attribute.String("conversation.id", conversationID),
	)
	logger := tracing.LoggerFromContext(ctx, s.logger)

	done := s.metrics.RunStarted()
	defer done()
	start := time.Now()

	emitter := events.NewEmitter(run, sink, logger).WithMetrics(s.metrics)
	emitter.Emit(ctx, events.RunStarted, map[string]any{
		"input":          userInput,
		"conversationId": conversationID,
	})

	p := s.persona.Current()
	recent := s.loadRecent(ctx, logger, conversationID)
	profile := s.loadProfile(ctx, logger, conversationID)
	run.MergeSharedState(map[string]any{
		agent.StateKeyRecentTurns: recent,
		agent.StateKeyProfile:     profile,
		agent.StateKeyPersona:     p.Name,
	})

	runErr := s.planAndExecute(ctx, logger, run, emitter, planner.Request{
		UserInput:   userInput,
		Persona:     p,
		Profile:     profile,
		RecentTurns: recent,
		Executors:   s.describeExecutors(),
		Tools:       s.describeTools(),
	})

	// Bookkeeping outlives the caller's cancellation
	bg := tracing.CloneContext(ctx)
	s.commitTurn(bg, logger, run)
	s.updateProfile(bg, logger, run)

	status := run.Status()
	completed := map[string]any{
		"status":      status,
		"finalOutput": run.FinalOutput(),
	}
	if runErr != nil {
		completed["error"] = runErr.Error()
		tracing.Fail(span, runErr.Error())
		span.RecordError(runErr)
		span.End()
	} else {
		tracing.EndSpan(span, nil)
	}
	emitter.Emit(bg, events.RunCompleted, completed)

	s.metrics.ObserveRun(string(status), time.Since(start))
	logger.Info().
		Str("status", string(status)).
		Dur("duration", time.Since(start)).
		Msg("Run finished")
	return run
}

func (s *Service) planAndExecute(ctx context.Context, logger zerolog.Logger, run *runstate.RunState, emitter *events.Emitter, req planner.Request) error {
	plan, err := s.planner.CreatePlan(ctx, req)
	if err == nil {
		err = plan.Validate()
	}
	if err != nil {
		logger.Error().Err(err).Msg("Planning failed")
		_ = run.Finalize(runstate.StatusFailed, "")
		return err
	}
	if err := run.SetPlan(plan); err != nil {
		return err
	}

	steps := make([]map[string]any, 0, len(plan.Steps))
	for _, st := range plan.SortedSteps() {
		steps = append(steps, map[string]any{"order": st.Order, "kind": st.Kind, "target": st.Target})
	}
	emitter.Emit(ctx, events.PlanCreated, map[string]any{
		"goal":      plan.Goal,
		"stepCount": len(plan.Steps),
		"steps":     steps,
	})

	return s.executor.Execute(ctx, run, emitter)
}

func (s *Service) loadRecent(ctx context.Context, logger zerolog.Logger, conversationID string) []memory.TurnRecord {
	recent, err := s.memory.Recent(ctx, conversationID, s.recentTurns)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load recent turns")
		return nil
	}
	return recent
}

func (s *Service) loadProfile(ctx context.Context, logger zerolog.Logger, conversationID string) map[string]string {
	profile, err := s.profiles.Get(ctx, conversationID)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load profile")
		return map[string]string{}
	}
	return profile
}

// commitTurn stores the turn when at least one step ran
func (s *Service) commitTurn(ctx context.Context, logger zerolog.Logger, run *runstate.RunState) {
	if run.ConversationID() == "" {
		return
	}
	steps := run.Steps()
	if len(steps) == 0 {
		return
	}

	turn := memory.TurnRecord{
		At:              time.Now().UTC(),
		UserInput:       run.UserInput(),
		AssistantOutput: run.FinalOutput(),
		Steps:           make([]memory.StepRecord, 0, len(steps)),
	}
	if plan, ok := run.Plan(); ok {
		turn.Goal = plan.Goal
	}
	for _, st := range steps {
		turn.Steps = append(turn.Steps, memory.StepRecord{
			Order:       st.Step.Order,
			Target:      st.Step.Target,
			Instruction: st.Step.Instruction,
			Output:      st.Output,
			Status:      string(st.Status),
		})
	}

	if err := s.memory.Append(ctx, run.ConversationID(), turn); err != nil {
		logger.Warn().Err(err).Msg("Failed to commit turn")
	}
}

func (s *Service) updateProfile(ctx context.Context, logger zerolog.Logger, run *runstate.RunState) {
	patch := memory.ExtractProfile(run.UserInput())
	if len(patch) == 0 || run.ConversationID() == "" {
		return
	}

	if err := s.profiles.Upsert(ctx, run.ConversationID(), patch); err != nil {
		logger.Warn().Err(err).Msg("Failed to update profile")
		return
	}
	merged, err := s.profiles.Get(ctx, run.ConversationID())
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to reload profile")
		return
	}
	run.MergeSharedState(map[string]any{agent.StateKeyProfile: merged})
}

func (s *Service) describeExecutors() []planner.ExecutorInfo {
	if s.router == nil {
		return nil
	}
	return s.router.Describe()
}

func (s *Service) describeTools() []tools.Descriptor {
	if s.tools == nil {
		return nil
	}
	return s.tools.List()
}

// ProfileSnapshot returns the profile held in the run's shared state
func ProfileSnapshot(run *runstate.RunState) map[string]string {
	v, ok := run.Get(agent.StateKeyProfile)
	if !ok {
		return map[string]string{}
	}
	profile, ok := v.(map[string]string)
	if !ok || profile == nil {
		return map[string]string{}
	}
	return profile
}
