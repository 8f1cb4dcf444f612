package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Task is one unit of scheduled work.
type Task interface {
	Execute(ctx context.Context) error
}

type TaskFunc func(ctx context.Context) error

func (f TaskFunc) Execute(ctx context.Context) error { return f(ctx) }

// Scheduler runs a task on a fixed interval until its context ends.
type Scheduler struct {
	name     string
	interval time.Duration
	task     Task
	log      *zap.Logger
}

func NewScheduler(name string, interval time.Duration, task Task, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{name: name, interval: interval, task: task, log: log.With(zap.String("schedule", name))}
}

// Start blocks until ctx is done. A failing run is logged and the schedule
// continues.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.log.Info("scheduler started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			if err := s.task.Execute(ctx); err != nil {
				s.log.Error("scheduled run failed", zap.Error(err))
			}
		}
	}
}
