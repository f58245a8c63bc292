package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tasks-pizza/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// QueueProvisioner makes sure the queues a run submits to exist.
type QueueProvisioner struct {
	queue  domain.TaskQueue
	ref    domain.QueueRef
	logger *slog.Logger
	tracer trace.Tracer
}

// NewQueueProvisioner creates queues in the project and location of ref.
func NewQueueProvisioner(queue domain.TaskQueue, ref domain.QueueRef, logger *slog.Logger) *QueueProvisioner {
	return &QueueProvisioner{
		queue:  queue,
		ref:    ref,
		logger: logger.With("component", "queue-provisioner"),
		tracer: otel.Tracer("tasks-pizza-usecase"),
	}
}

// Exists reports whether the queue called name exists. A missing queue is not an error.
func (p *QueueProvisioner) Exists(ctx context.Context, name string) (bool, error) {
	ctx, span := p.tracer.Start(ctx, "service.QueueExists")
	defer span.End()

	queuePath := p.ref.WithQueue(name).QueuePath()
	span.SetAttributes(attribute.String("queue.name", queuePath))

	_, err := p.queue.GetQueue(ctx, queuePath)
	if errors.Is(err, domain.ErrQueueNotFound) {
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get queue")
		return false, err
	}
	return true, nil
}

// Create creates the queue called name with default rate limits and retry config.
func (p *QueueProvisioner) Create(ctx context.Context, name string) (*domain.Queue, error) {
	ctx, span := p.tracer.Start(ctx, "service.CreateQueue")
	defer span.End()

	ref := p.ref.WithQueue(name)
	span.SetAttributes(attribute.String("queue.name", ref.QueuePath()))

	queue, err := p.queue.CreateQueue(ctx, ref.LocationPath(), &domain.Queue{
		Name:        ref.QueuePath(),
		RateLimits:  domain.RateLimits{},
		RetryConfig: domain.RetryConfig{},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create queue")
		return nil, err
	}
	return queue, nil
}

// EnsureQueue creates the queue called name unless it already exists.
// Errors are returned as the queue service reported them.
func (p *QueueProvisioner) EnsureQueue(ctx context.Context, name string) error {
	ctx, span := p.tracer.Start(ctx, "service.EnsureQueue")
	defer span.End()

	exists, err := p.Exists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check queue %s: %w", name, err)
	}
	if exists {
		p.logger.Debug("queue exists", "queue", name)
		return nil
	}

	queue, err := p.Create(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to create queue %s: %w", name, err)
	}
	p.logger.Info("created queue", "queue", queue.Name)
	return nil
}
