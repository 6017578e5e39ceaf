package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Pruner deletes turns older than a cutoff
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Retention periodically prunes old turns on a cron schedule
type Retention struct {
	pruner   Pruner
	maxAge   time.Duration
	schedule cron.Schedule
	cron     *cron.Cron
	logger   zerolog.Logger
	now      func() time.Time
}

// NewRetention parses a five-field cron expression and prepares the job.
// Turns older than maxAge are deleted on each tick.
func NewRetention(pruner Pruner, expr string, maxAge time.Duration, logger zerolog.Logger) (*Retention, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("retention max age must be positive")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	return &Retention{
		pruner:   pruner,
		maxAge:   maxAge,
		schedule: sched,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Start begins the schedule. Stop must be called to release it.
func (r *Retention) Start() {
	r.cron = cron.New()
	r.cron.Schedule(r.schedule, cron.FuncJob(func() {
		if _, err := r.RunOnce(context.Background()); err != nil {
			r.logger.Error().Err(err).Msg("Memory retention run failed")
		}
	}))
	r.cron.Start()
}

// Stop halts the schedule and waits for a running prune
func (r *Retention) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}

// Next reports when the next prune is due after t
func (r *Retention) Next(t time.Time) time.Time {
	return r.schedule.Next(t)
}

// RunOnce prunes immediately
func (r *Retention) RunOnce(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.maxAge)
	n, err := r.pruner.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	r.logger.Info().Int64("removed", n).Time("cutoff", cutoff).Msg("Pruned conversation memory")
	return n, nil
}
