package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rastreio-bot/pkg/logger"
)

// PeriodicTask is a named job run on a fixed interval
type PeriodicTask struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs periodic tasks, each on its own ticker. A run never overlaps
// the previous run of the same task; errors and panics are logged and the
// loop carries on.
type Scheduler struct {
	tasks  []PeriodicTask
	logger *logger.Logger
}

// NewScheduler creates a scheduler for tasks
func NewScheduler(log *logger.Logger, tasks ...PeriodicTask) *Scheduler {
	return &Scheduler{
		tasks:  tasks,
		logger: log.WithComponent("scheduler"),
	}
}

// Run blocks until ctx is cancelled and every task loop has returned
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, task := range s.tasks {
		if task.Interval <= 0 {
			s.logger.Warn("Task disabled, non-positive interval", "task", task.Name)
			continue
		}
		wg.Add(1)
		go func(task PeriodicTask) {
			defer wg.Done()
			s.loop(ctx, task)
		}(task)
	}
	wg.Wait()
	return nil
}

func (s *Scheduler) loop(ctx context.Context, task PeriodicTask) {
	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	s.logger.Info("Task scheduled", "task", task.Name, "interval", task.Interval.String())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.runOnce(ctx, task); err != nil {
				s.logger.Error("Task run failed", "task", task.Name, "error", err)
			}
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, task PeriodicTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task.Run(ctx)
}

// WhenConnected wraps run so it is skipped while connected reports false
func WhenConnected(connected func() bool, run func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if !connected() {
			return nil
		}
		return run(ctx)
	}
}
