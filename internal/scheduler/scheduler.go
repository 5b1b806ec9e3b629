package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/FerryClaw/FerryClaw/internal/delivery"
	"github.com/FerryClaw/FerryClaw/internal/store"
)

// RunFunc invokes the reasoning loop headlessly for a scheduled prompt and
// returns the final response text.
type RunFunc func(ctx context.Context, chatID int64, prompt string) (string, error)

// Config holds scheduler settings.
type Config struct {
	TickInterval time.Duration
	Location     *time.Location
}

// Recorder receives task execution outcomes for the audit trail.
type Recorder interface {
	RecordTaskRun(ctx context.Context, taskID int64, success bool, summary string)
}

// Option configures optional scheduler behavior.
type Option func(*Scheduler)

// WithRecorder attaches an audit recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.audit = r }
}

const resultSummaryMax = 200

// Scheduler polls for due tasks on a fixed interval and executes them
// sequentially.
type Scheduler struct {
	store     *store.Store
	deliverer *delivery.Deliverer
	run       RunFunc
	interval  time.Duration
	loc       *time.Location
	audit     Recorder
	logger    *slog.Logger
}

// New creates a Scheduler.
func New(cfg Config, st *store.Store, d *delivery.Deliverer, run RunFunc, logger *slog.Logger, opts ...Option) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		store:     st,
		deliverer: d,
		run:       run,
		interval:  cfg.TickInterval,
		loc:       cfg.Location,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks until ctx is cancelled, executing due tasks every tick.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", "tick", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx, time.Now().UTC())
		}
	}
}

// Tick executes every task due as of now. One task's failure never aborts
// the rest of the tick.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	tasks, err := s.store.GetDueTasks(now)
	if err != nil {
		s.logger.Error("scheduler: failed to query due tasks", "error", err)
		return
	}

	for _, task := range tasks {
		s.executeTask(ctx, task, now)
	}
}

func (s *Scheduler) executeTask(ctx context.Context, task store.ScheduledTask, now time.Time) {
	s.logger.Info("scheduler: executing task", "task_id", task.ID, "chat_id", task.ChatID)
	startedAt := time.Now().UTC()

	var success bool
	var summary string

	response, err := s.run(ctx, task.ChatID, task.Prompt)
	if err != nil {
		s.logger.Error("scheduler: task failed", "task_id", task.ID, "error", err)
		notice := fmt.Sprintf("Scheduled task #%d failed: %v", task.ID, err)
		if derr := s.deliverer.SendAndStore(ctx, task.ChatID, notice); derr != nil {
			s.logger.Error("scheduler: failed to deliver error notice", "task_id", task.ID, "error", derr)
		}
		summary = truncateSummary(fmt.Sprintf("Error: %v", err))
	} else {
		success = true
		if response != "" {
			if derr := s.deliverer.SendAndStore(ctx, task.ChatID, response); derr != nil {
				s.logger.Error("scheduler: failed to deliver response", "task_id", task.ID, "error", derr)
			}
		}
		summary = truncateSummary(response)
	}

	finishedAt := time.Now().UTC()
	runRow := &store.TaskRun{
		TaskID:        task.ID,
		ChatID:        task.ChatID,
		StartedAt:     startedAt,
		FinishedAt:    finishedAt,
		DurationMS:    finishedAt.Sub(startedAt).Milliseconds(),
		Success:       success,
		ResultSummary: summary,
	}
	if err := s.store.LogTaskRun(runRow); err != nil {
		s.logger.Error("scheduler: failed to log task run", "task_id", task.ID, "error", err)
	}
	if s.audit != nil {
		s.audit.RecordTaskRun(ctx, task.ID, success, summary)
	}

	s.reschedule(task, now, startedAt)
}

// reschedule computes the task's next fire time. A cron expression that no
// longer parses leaves the task untouched so the breakage is visible
// instead of silently rescheduled.
func (s *Scheduler) reschedule(task store.ScheduledTask, now, startedAt time.Time) {
	var nextRun *time.Time
	if task.ScheduleType == "cron" {
		expr, err := ParseCron(task.ScheduleValue)
		if err != nil {
			s.logger.Error("scheduler: invalid cron expression", "task_id", task.ID, "error", err)
			return
		}
		next := expr.Next(now.In(s.loc)).UTC()
		nextRun = &next
	}

	if err := s.store.UpdateTaskAfterRun(task.ID, startedAt, nextRun); err != nil {
		s.logger.Error("scheduler: failed to update task", "task_id", task.ID, "error", err)
	}
}

func truncateSummary(text string) string {
	runes := []rune(text)
	if len(runes) <= resultSummaryMax {
		return text
	}
	return string(runes[:resultSummaryMax]) + "..."
}
