// internal/scheduler/cron_scheduler.go
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"tasks-pizza/internal/domain"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Schedules accept an optional leading seconds field and descriptors like @hourly.
var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// cronScheduler triggers dispatch runs at the right time. What a run does is
// up to the runner.
type cronScheduler struct {
	cron   *cron.Cron
	runner domain.DispatchRunner
	mu     sync.Mutex
	runs   map[string]cron.EntryID
	logger *slog.Logger
	tracer trace.Tracer
}

// NewCronScheduler creates a scheduler that calls runner on every tick.
func NewCronScheduler(runner domain.DispatchRunner, logger *slog.Logger) domain.Schedular {
	return &cronScheduler{
		cron:   cron.New(cron.WithParser(scheduleParser)),
		runner: runner,
		runs:   make(map[string]cron.EntryID),
		logger: logger.With("component", "cron-scheduler"),
		tracer: otel.Tracer("tasks-pizza-scheduler"),
	}
}

// Start runs the cron loop until ctx is done.
func (s *cronScheduler) Start(ctx context.Context) error {
	s.logger.Info("cron scheduler started")
	s.cron.Start()
	<-ctx.Done()
	s.Stop()
	return ctx.Err()
}

// Stop waits for running dispatches to finish.
func (s *cronScheduler) Stop() {
	s.logger.Info("cron scheduler stopping...")
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("cron scheduler stopped")
}

// AddRun schedules a dispatch run. Adding the same spec twice keeps one entry.
func (s *cronScheduler) AddRun(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[spec]; ok {
		return nil
	}

	entryID, err := s.cron.AddJob(spec, &cronRunWrapper{
		runner: s.runner,
		logger: s.logger.With("schedule", spec),
		tracer: s.tracer,
	})
	if err != nil {
		s.logger.Error("failed to add run to cron", "schedule", spec, "error", err)
		return err
	}

	s.runs[spec] = entryID
	s.logger.Info("added run to scheduler", "schedule", spec)
	return nil
}

// cronRunWrapper adapts a DispatchRunner to cron.Job.
type cronRunWrapper struct {
	runner domain.DispatchRunner
	logger *slog.Logger
	tracer trace.Tracer
}

// Run is called by the cron library.
func (w *cronRunWrapper) Run() {
	ctx, span := w.tracer.Start(context.Background(), "scheduler.Run")
	defer span.End()

	w.logger.Info("starting scheduled dispatch run")
	report, err := w.runner.Run(ctx)
	if errors.Is(err, domain.ErrRunInProgress) {
		w.logger.Warn("previous dispatch run still in progress")
		return
	}
	if err != nil {
		w.logger.Error("scheduled dispatch run failed", "error", err)
		span.RecordError(err)
		return
	}
	span.SetAttributes(
		attribute.String("run.id", report.RunID),
		attribute.Int("tasks.succeeded", report.Succeeded),
		attribute.Int("tasks.failed", report.Failed()),
	)
}
