// Package cleanup prunes idle rooms from the directory on a cron schedule.
// Nothing runs until the owner calls Start.
package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Pruner deletes rooms idle since before cutoff.
type Pruner interface {
	PruneRooms(cutoff time.Time) (int64, error)
}

// Scheduler runs Pruner on a schedule.
type Scheduler struct {
	pruner    Pruner
	schedule  string
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time

	cron *cron.Cron
}

// New validates schedule and returns a stopped scheduler.
func New(p Pruner, schedule string, retention time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("cleanup schedule %q: %w", schedule, err)
	}
	return &Scheduler{
		pruner:    p,
		schedule:  schedule,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Start begins running the job in the background.
func (s *Scheduler) Start() error {
	if s.cron != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { _, _ = s.RunOnce() }); err != nil {
		return fmt.Errorf("schedule cleanup: %w", err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("cleanup scheduled", zap.String("schedule", s.schedule), zap.Duration("retention", s.retention))
	return nil
}

// Stop halts the schedule and waits for a running job, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop()
	s.cron = nil
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce prunes immediately. A zero retention keeps everything.
func (s *Scheduler) RunOnce() (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.retention)
	n, err := s.pruner.PruneRooms(cutoff)
	if err != nil {
		s.logger.Error("room cleanup failed", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		s.logger.Info("pruned idle rooms", zap.Int64("rooms", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}
