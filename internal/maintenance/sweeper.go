// Package maintenance houses the retention sweep: a periodic batch delete
// of task and webhook records older than the retention window. Housekeeping
// is best-effort; a failed sweep logs and waits for the next tick.
package maintenance

import (
	"context"
	"time"

	"github.com/triagent/triagent/internal/logging"
)

// Pruner deletes records created before a cutoff.
type Pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper runs the retention sweep on an interval.
type Sweeper struct {
	tasks     Pruner
	webhooks  Pruner
	retention time.Duration
	interval  time.Duration
	logger    *logging.Logger
}

// New wires a sweeper over the two durable stores.
func New(tasks, webhooks Pruner, retention, interval time.Duration, logger *logging.Logger) *Sweeper {
	return &Sweeper{tasks: tasks, webhooks: webhooks, retention: retention, interval: interval, logger: logger}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Plain().WithFields(map[string]any{
		"retention": s.retention.String(),
		"interval":  s.interval.String(),
	}).Info("retention sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Plain().Info("retention sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one batch delete across both stores.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.retention)

	tasks, err := s.tasks.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("task retention sweep failed")
	}
	webhooks, err := s.webhooks.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("webhook retention sweep failed")
	}

	if tasks > 0 || webhooks > 0 {
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"tasks_deleted":    tasks,
			"webhooks_deleted": webhooks,
		}).Info("retention sweep completed")
	}
}
