package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"lake-wap/internal/domain"
)

// DefaultSchedule runs the pipeline once a day at midnight UTC.
const DefaultSchedule = "@daily"

// Trigger starts a run. Implemented by *Service.
type Trigger interface {
	TriggerRun(ctx context.Context, req domain.TriggerRunRequest) (*domain.PipelineRun, error)
}

// Scheduler triggers a run for the previous day on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	trigger  Trigger
	schedule string
	logger   *slog.Logger

	mu      sync.Mutex
	entryID cron.EntryID
	started bool
}

// NewScheduler creates a scheduler. An empty schedule selects DefaultSchedule.
func NewScheduler(trigger Trigger, schedule string, logger *slog.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		trigger:  trigger,
		schedule: schedule,
		logger:   logger,
	}
}

// Start registers the schedule and starts the cron scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	entryID, err := s.cron.AddFunc(s.schedule, func() {
		s.Fire(context.WithoutCancel(ctx), time.Now())
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.schedule, err)
	}
	s.entryID = entryID
	s.started = true
	s.cron.Start()
	s.logger.Info("pipeline scheduler started", "schedule", s.schedule)
	return nil
}

// Stop stops the cron scheduler and waits for a running trigger to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	<-s.cron.Stop().Done()
	s.cron.Remove(s.entryID)
	s.started = false
	s.logger.Info("pipeline scheduler stopped")
}

// Next returns the next fire time, or zero when the scheduler is not running.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return time.Time{}
	}
	entry := s.cron.Entry(s.entryID)
	if entry.Schedule == nil {
		return time.Time{}
	}
	return entry.Schedule.Next(time.Now().UTC())
}

// Fire triggers the run for the logical date belonging to firedAt.
func (s *Scheduler) Fire(ctx context.Context, firedAt time.Time) {
	date := LogicalDateFor(firedAt)
	run, err := s.trigger.TriggerRun(ctx, domain.TriggerRunRequest{
		LogicalDate: date,
		TriggerType: domain.TriggerTypeScheduled,
	})
	if err != nil {
		s.logger.Warn("scheduled trigger failed", "logical_date", date.Format(time.DateOnly), "error", err)
		return
	}
	s.logger.Info("scheduled run triggered", "run_id", run.ID, "branch", run.Branch)
}

// LogicalDateFor returns the logical date a run fired at t covers: the
// previous UTC day, truncated to midnight.
func LogicalDateFor(t time.Time) time.Time {
	y, m, d := t.UTC().AddDate(0, 0, -1).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
