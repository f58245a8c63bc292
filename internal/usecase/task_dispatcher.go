package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"tasks-pizza/internal/domain"
	"tasks-pizza/internal/metrics"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TaskDispatcher submits one task per identifier to a queue.
type TaskDispatcher struct {
	queue       domain.TaskQueue
	ref         domain.QueueRef
	callback    *url.URL
	concurrency int
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewTaskDispatcher creates a dispatcher whose tasks call callbackURL with the
// identifier in the id query parameter. concurrency below 2 submits
// sequentially in input order.
func NewTaskDispatcher(queue domain.TaskQueue, ref domain.QueueRef, callbackURL string, concurrency int, logger *slog.Logger) (*TaskDispatcher, error) {
	callback, err := url.Parse(callbackURL)
	if err != nil {
		return nil, fmt.Errorf("invalid callback url %q: %w", callbackURL, err)
	}
	if !callback.IsAbs() {
		return nil, fmt.Errorf("callback url %q must be absolute", callbackURL)
	}
	return &TaskDispatcher{
		queue:       queue,
		ref:         ref,
		callback:    callback,
		concurrency: max(concurrency, 1),
		logger:      logger.With("component", "task-dispatcher", "queue", ref.Queue),
		tracer:      otel.Tracer("tasks-pizza-usecase"),
	}, nil
}

// BuildTask returns the task for identifier. Its name is the normalized
// identifier and its URL carries the identifier unchanged.
func (d *TaskDispatcher) BuildTask(identifier string) *domain.Task {
	target := *d.callback
	query := target.Query()
	query.Set("id", identifier)
	target.RawQuery = query.Encode()

	return domain.NewHTTPTask(d.ref.TaskPath(domain.NormalizeTaskName(identifier)), target.String())
}

type dispatchOutcome struct {
	taskName string
	err      error
}

// Dispatch submits a task for every identifier. A failed submission is logged
// and recorded in the report, and the remaining identifiers are still submitted.
func (d *TaskDispatcher) Dispatch(ctx context.Context, identifiers []string) *domain.DispatchReport {
	report := &domain.DispatchReport{
		RunID:     uuid.New().String(),
		Queue:     d.ref.QueuePath(),
		StartTime: time.Now().UTC(),
	}

	ctx, span := d.tracer.Start(ctx, "service.Dispatch", trace.WithAttributes(
		attribute.String("run.id", report.RunID),
		attribute.String("queue.name", report.Queue),
		attribute.Int("identifiers", len(identifiers)),
	))
	defer span.End()

	outcomes := make([]dispatchOutcome, len(identifiers))
	if d.concurrency == 1 {
		for i, identifier := range identifiers {
			outcomes[i] = d.submit(ctx, identifier)
		}
	} else {
		p := pool.New().WithMaxGoroutines(d.concurrency)
		for i, identifier := range identifiers {
			p.Go(func() {
				outcomes[i] = d.submit(ctx, identifier)
			})
		}
		p.Wait()
	}

	for i, outcome := range outcomes {
		if outcome.err != nil {
			report.RecordFailure(identifiers[i], outcome.taskName, outcome.err)
			continue
		}
		report.RecordSuccess()
	}
	report.EndTime = time.Now().UTC()

	span.SetAttributes(
		attribute.Int("tasks.succeeded", report.Succeeded),
		attribute.Int("tasks.failed", report.Failed()),
	)
	if report.Failed() > 0 {
		span.SetStatus(codes.Error, "some tasks were not created")
	}
	d.logger.Info("dispatch finished",
		"run_id", report.RunID,
		"attempted", report.Attempted,
		"succeeded", report.Succeeded,
		"failed", report.Failed(),
	)
	return report
}

func (d *TaskDispatcher) submit(ctx context.Context, identifier string) dispatchOutcome {
	task := d.BuildTask(identifier)

	created, err := d.queue.CreateTask(ctx, d.ref.QueuePath(), task)
	if err != nil {
		metrics.TasksDispatchedTotal.WithLabelValues(d.ref.Queue, "failed").Inc()
		d.logger.Error("failed to create task",
			"identifier", identifier,
			"task_name", task.Name,
			"error", err,
		)
		return dispatchOutcome{taskName: task.Name, err: err}
	}

	metrics.TasksDispatchedTotal.WithLabelValues(d.ref.Queue, "created").Inc()
	d.logger.Info("created task", "task_name", created.Name)
	return dispatchOutcome{taskName: created.Name}
}
