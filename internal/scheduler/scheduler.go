// Package scheduler runs periodic token store maintenance.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Pruner removes logins that have been idle for too long.
type Pruner interface {
	Prune(ctx context.Context) (int64, error)
}

// Scheduler prunes idle logins on a fixed interval.
type Scheduler struct {
	pruner Pruner
	log    *slog.Logger
	tick   time.Duration
}

// New creates a Scheduler that prunes every tick.
func New(p Pruner, tick time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{
		pruner: p,
		log:    log,
		tick:   tick,
	}
}

// Run prunes once immediately and then on every tick, blocking until ctx
// is cancelled. Failed runs are logged and retried on the next tick.
func (s *Scheduler) Run(ctx context.Context) {
	s.prune(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			s.prune(ctx)
		}
	}
}

func (s *Scheduler) prune(ctx context.Context) {
	n, err := s.pruner.Prune(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error("prune tokens", "error", err)
		}
		return
	}
	s.log.Debug("prune run", "removed", n)
}
