package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tasks-pizza/internal/domain"
	"tasks-pizza/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ domain.DispatchRunner = (*DispatchService)(nil)

// DispatchService runs a dispatch end to end: ensure the queue, fetch the
// identifiers, submit one task each.
type DispatchService struct {
	provisioner *QueueProvisioner
	source      domain.IdentifierSource
	dispatcher  *TaskDispatcher
	execRepo    domain.ExecutionRepository
	locker      domain.Locker
	policy      domain.RunConcurrencyPolicy
	queueName   string
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewDispatchService creates the orchestrator for the queue called queueName.
// locker is only used with RunConcurrencyForbid and may be nil otherwise.
// execRepo may be nil when task history is not served.
func NewDispatchService(
	provisioner *QueueProvisioner,
	source domain.IdentifierSource,
	dispatcher *TaskDispatcher,
	execRepo domain.ExecutionRepository,
	locker domain.Locker,
	policy domain.RunConcurrencyPolicy,
	queueName string,
	logger *slog.Logger,
) *DispatchService {
	return &DispatchService{
		provisioner: provisioner,
		source:      source,
		dispatcher:  dispatcher,
		execRepo:    execRepo,
		locker:      locker,
		policy:      policy,
		queueName:   queueName,
		logger:      logger.With("component", "dispatch-service"),
		tracer:      otel.Tracer("tasks-pizza-usecase"),
	}
}

// Run performs one dispatch run. Failing to ensure the queue or to fetch the
// identifiers ends the run with that error; failed submissions only show up in
// the report.
func (s *DispatchService) Run(ctx context.Context) (*domain.DispatchReport, error) {
	ctx, span := s.tracer.Start(ctx, "service.Run")
	defer span.End()
	span.SetAttributes(attribute.String("queue.name", s.queueName))

	if s.policy == domain.RunConcurrencyForbid {
		lock, err := s.locker.Lock(ctx, "runs/"+s.queueName)
		if errors.Is(err, domain.ErrLockNotAcquired) {
			metrics.DispatchRunsTotal.WithLabelValues("rejected").Inc()
			s.logger.Warn("skipping run, another run holds the queue", "queue", s.queueName)
			return nil, domain.ErrRunInProgress
		}
		if err != nil {
			return nil, s.fail(span, "failed to acquire run lock", err)
		}
		defer func() {
			if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("failed to release run lock", "queue", s.queueName, "error", err)
			}
		}()
	}

	s.logger.Info("ensuring queue", "queue", s.queueName)
	if err := s.provisioner.EnsureQueue(ctx, s.queueName); err != nil {
		return nil, s.fail(span, "failed to ensure queue", err)
	}

	identifiers, err := s.source.Fetch(ctx)
	if err != nil {
		return nil, s.fail(span, "failed to fetch identifiers", fmt.Errorf("failed to fetch identifiers: %w", err))
	}
	s.logger.Info("fetched identifiers", "count", len(identifiers))

	report := s.dispatcher.Dispatch(ctx, identifiers)
	metrics.DispatchRunsTotal.WithLabelValues("done").Inc()
	return report, nil
}

func (s *DispatchService) fail(span trace.Span, msg string, err error) error {
	metrics.DispatchRunsTotal.WithLabelValues("failed").Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	s.logger.Error(msg, "queue", s.queueName, "error", err)
	return err
}

// ListIdentifiers returns the identifiers the next run would dispatch.
func (s *DispatchService) ListIdentifiers(ctx context.Context) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "service.ListIdentifiers")
	defer span.End()

	identifiers, err := s.source.Fetch(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch identifiers")
		return nil, err
	}
	return identifiers, nil
}

// ListHistory lists the execution history of the task created for identifier.
func (s *DispatchService) ListHistory(ctx context.Context, identifier string, page, pageSize int) ([]*domain.ExecutionRecord, error) {
	ctx, span := s.tracer.Start(ctx, "service.ListHistory")
	defer span.End()

	taskName := s.dispatcher.BuildTask(identifier).Name
	span.SetAttributes(
		attribute.String("task.name", taskName),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	)

	if s.execRepo == nil {
		return []*domain.ExecutionRecord{}, nil
	}
	records, err := s.execRepo.ListByTaskName(ctx, taskName, page, pageSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list task history from repository")
	}
	return records, err
}
