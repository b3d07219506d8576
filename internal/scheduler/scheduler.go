// Package scheduler runs the periodic agenda refresh on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "spondcal/internal/log"
)

// Task is one step of a refresh cycle.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Scheduler runs its tasks, in order, on every tick of a cron schedule.
// A tick is skipped while the previous one is still running.
type Scheduler struct {
	spec  string
	cron  *cron.Cron
	tasks []Task
}

// New validates spec (standard 5-field cron syntax or descriptors such as
// "@hourly") and prepares a scheduler in loc.
func New(spec string, loc *time.Location, tasks ...Task) (*Scheduler, error) {
	if spec == "" {
		return nil, errors.New("scheduler: empty cron spec")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("scheduler: invalid cron spec %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.Local
	}

	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	return &Scheduler{spec: spec, cron: c, tasks: tasks}, nil
}

// RunOnce runs every task once. A failing task is logged and does not stop
// the following ones; the first error is returned.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var first error
	for _, t := range s.tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		if err := t.Run(ctx); err != nil {
			appLog.Error("scheduled task failed", err, "task", t.Name)
			if first == nil {
				first = fmt.Errorf("%s: %w", t.Name, err)
			}
			continue
		}
		appLog.Info("scheduled task done", "task", t.Name, "duration", time.Since(start).Round(time.Millisecond))
	}
	return first
}

// Run blocks until ctx is canceled, running the tasks on every tick.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() {
		_ = s.RunOnce(ctx)
	}); err != nil {
		return err
	}

	appLog.Info("scheduler started", "refresh", s.spec, "tasks", len(s.tasks))
	s.cron.Start()

	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	appLog.Info("scheduler stopped")
	return nil
}

// Next returns the next activation after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	sched, err := cron.ParseStandard(s.spec)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(t)
}

// cronLogger adapts cron's logger to the application log.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
