// internal/worker/runner.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tasks-pizza/internal/domain"
	"tasks-pizza/internal/metrics"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Runner drains one queue: it leases the oldest pending task, performs its
// request and records the execution.
type Runner struct {
	queue        domain.TaskQueue
	consumer     domain.TaskConsumer
	executor     domain.TaskExecutor
	execRepo     domain.ExecutionRepository
	queuePath    string
	defaults     domain.RetryConfig
	pollInterval time.Duration
	workerID     string
	logger       *slog.Logger
	tracer       trace.Tracer
}

// NewRunner creates a runner for the queue at queuePath. defaults fill in the
// retry settings the queue leaves unset.
func NewRunner(
	queue domain.TaskQueue,
	consumer domain.TaskConsumer,
	executor domain.TaskExecutor,
	execRepo domain.ExecutionRepository,
	queuePath string,
	defaults domain.RetryConfig,
	pollInterval time.Duration,
	workerID string,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		queue:        queue,
		consumer:     consumer,
		executor:     executor,
		execRepo:     execRepo,
		queuePath:    queuePath,
		defaults:     defaults,
		pollInterval: pollInterval,
		workerID:     workerID,
		logger:       logger.With("component", "queue-runner", "queue", queuePath),
		tracer:       otel.Tracer("tasks-pizza-worker"),
	}
}

// Run processes tasks until ctx is done, sleeping for the poll interval
// whenever the queue is empty.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("queue runner started", "worker_id", r.workerID)
	for {
		processed, err := r.ProcessNext(ctx)
		if ctx.Err() != nil {
			r.logger.Info("queue runner stopped")
			return ctx.Err()
		}
		if err != nil {
			r.logger.Error("failed to process task", "error", err)
		}
		if processed {
			continue
		}

		select {
		case <-time.After(r.pollInterval):
		case <-ctx.Done():
			r.logger.Info("queue runner stopped")
			return ctx.Err()
		}
	}
}

// ProcessNext runs at most one task. It reports false when nothing was pending.
func (r *Runner) ProcessNext(ctx context.Context) (bool, error) {
	policy, err := r.retryConfig(ctx)
	if errors.Is(err, domain.ErrQueueNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	lease, err := r.consumer.LeaseTask(ctx, r.queuePath)
	if errors.Is(err, domain.ErrNoTask) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to lease task: %w", err)
	}

	return true, r.runTask(ctx, lease, policy)
}

func (r *Runner) retryConfig(ctx context.Context) (domain.RetryConfig, error) {
	policy := r.defaults
	queue, err := r.queue.GetQueue(ctx, r.queuePath)
	if err != nil {
		return policy, err
	}
	if queue.RetryConfig.MaxAttempts > 0 {
		policy.MaxAttempts = queue.RetryConfig.MaxAttempts
	}
	if queue.RetryConfig.MinBackoff > 0 {
		policy.MinBackoff = queue.RetryConfig.MinBackoff
	}
	if queue.RetryConfig.MaxBackoff > 0 {
		policy.MaxBackoff = queue.RetryConfig.MaxBackoff
	}
	return policy, nil
}

func (r *Runner) runTask(ctx context.Context, lease domain.TaskLease, policy domain.RetryConfig) error {
	task := lease.Task()
	executionID := uuid.NewString()

	ctx, span := r.tracer.Start(ctx, "worker.runTask", trace.WithAttributes(
		attribute.String("task.name", task.Name),
		attribute.String("execution.id", executionID),
	))
	defer span.End()

	logger := r.logger.With("task_name", task.Name, "execution_id", executionID)

	record := &domain.ExecutionRecord{
		ID:        executionID,
		TaskName:  task.Name,
		StartTime: time.Now(),
		Status:    domain.ExecutionStatusRunning,
		WorkerID:  r.workerID,
	}
	// Execution goes ahead even when the history cannot be written.
	if err := r.execRepo.Save(ctx, record); err != nil {
		logger.Error("failed to save initial execution record", "error", err)
		span.RecordError(err)
	}

	logger.Info("executing task", "dispatch_count", task.DispatchCount)
	output, attempts, execErr := r.executor.Execute(ctx, task, policy)
	record.Output = output
	record.Attempts = attempts
	record.EndTime = time.Now()

	if ctx.Err() != nil {
		// Shutting down: another worker picks the task up again.
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Error("failed to release task", "error", err)
		}
		record.Status = domain.ExecutionStatusFailed
		record.Error = "interrupted: " + ctx.Err().Error()
		r.saveFinal(ctx, logger, span, record)
		return nil
	}

	if execErr != nil {
		record.Status = domain.ExecutionStatusFailed
		record.Error = execErr.Error()
		metrics.TaskExecutionsTotal.WithLabelValues("failed").Inc()
		span.RecordError(execErr)
		span.SetStatus(codes.Error, "task execution failed")
		logger.Error("task execution failed", "attempts", attempts, "error", execErr)
	} else {
		record.Status = domain.ExecutionStatusSuccess
		metrics.TaskExecutionsTotal.WithLabelValues("success").Inc()
		span.SetStatus(codes.Ok, "task execution successful")
		logger.Info("task executed", "attempts", attempts)
	}
	r.saveFinal(ctx, logger, span, record)

	if err := lease.Complete(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to complete task %s: %w", task.Name, err)
	}
	return nil
}

func (r *Runner) saveFinal(ctx context.Context, logger *slog.Logger, span trace.Span, record *domain.ExecutionRecord) {
	if err := r.execRepo.Save(context.WithoutCancel(ctx), record); err != nil {
		logger.Error("failed to save final execution record", "error", err)
		span.RecordError(err)
	}
}
