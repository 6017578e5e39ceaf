package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/harun/skagent/pkg/planner"
	"github.com/rs/zerolog"
)

var (
	ErrNoTarget              = errors.New("no target executor")
	ErrExecutorNotRegistered = errors.New("target executor not registered")
	ErrDuplicateExecutor     = errors.New("executor already registered")
)

// Router dispatches to registered executors by case-insensitive name
type Router struct {
	mu        sync.RWMutex
	executors map[string]Executor
	logger    zerolog.Logger
}

// NewRouter creates a router over executors
func NewRouter(logger zerolog.Logger, executors ...Executor) (*Router, error) {
	r := &Router{
		executors: make(map[string]Executor),
		logger:    logger.With().Str("component", "router").Logger(),
	}
	for _, e := range executors {
		if err := r.Register(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Name returns "router"
func (r *Router) Name() string {
	return "router"
}

// Register adds an executor
func (r *Router) Register(e Executor) error {
	key := normalizeName(e.Name())
	if key == "" {
		return fmt.Errorf("%w: empty executor name", ErrNoTarget)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executors[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateExecutor, e.Name())
	}
	r.executors[key] = e
	return nil
}

// Resolve returns the executor for a name
func (r *Router) Resolve(name string) (Executor, error) {
	key := normalizeName(name)
	if key == "" {
		return nil, ErrNoTarget
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.executors[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutorNotRegistered, name)
	}
	return e, nil
}

// Execute resolves the target of execCtx and runs it. A missing or
// unknown target is a configuration error, returned as a Go error.
func (r *Router) Execute(ctx context.Context, execCtx *Context) (Result, error) {
	target := execCtx.Target
	if strings.TrimSpace(target) == "" {
		if legacy, ok := execCtx.Lookup(StateKeyTarget); ok {
			target = fmt.Sprint(legacy)
		}
	}

	e, err := r.Resolve(target)
	if err != nil {
		return Result{}, err
	}

	r.logger.Info().
		Str("executor", e.Name()).
		Str("run_id", execCtx.RunID).
		Msg("Routing to executor")

	return e.Execute(ctx, execCtx)
}

// Describe lists registered executors for planners, sorted by name
func (r *Router) Describe() []planner.ExecutorInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]planner.ExecutorInfo, 0, len(r.executors))
	for _, e := range r.executors {
		info := planner.ExecutorInfo{Name: e.Name()}
		if d, ok := e.(Describer); ok {
			info.Description = d.Description()
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
