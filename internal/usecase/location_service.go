package usecase

import (
	"context"
	"log/slog"
	"time"

	"tasks-pizza/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// LocationService backs the callback target: it stores a record for every
// identifier a task delivers.
type LocationService struct {
	repo   domain.LocationRepository
	logger *slog.Logger
	tracer trace.Tracer
}

func NewLocationService(repo domain.LocationRepository, logger *slog.Logger) *LocationService {
	return &LocationService{
		repo:   repo,
		logger: logger.With("component", "location-service"),
		tracer: otel.Tracer("tasks-pizza-usecase"),
	}
}

// Add stores the record of identifier id, replacing an earlier one.
func (s *LocationService) Add(ctx context.Context, id string) (*domain.Location, error) {
	ctx, span := s.tracer.Start(ctx, "service.AddLocation")
	defer span.End()
	span.SetAttributes(attribute.String("location.id", id))

	location := &domain.Location{
		ID:       id,
		TaskName: domain.NormalizeTaskName(id),
		StoredAt: time.Now().UTC(),
	}
	if err := location.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, location); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save location to repository")
		return nil, err
	}
	s.logger.Info("stored location", "identifier", id, "task_name", location.TaskName)
	return location, nil
}

// Get returns the record of id, or ErrLocationNotFound.
func (s *LocationService) Get(ctx context.Context, id string) (*domain.Location, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetLocation")
	defer span.End()
	span.SetAttributes(attribute.String("location.id", id))

	location, err := s.repo.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get location from repository")
	}
	return location, err
}

// ListNames lists the ids of all stored locations.
func (s *LocationService) ListNames(ctx context.Context) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "service.ListLocations")
	defer span.End()

	names, err := s.repo.ListNames(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list locations from repository")
	}
	return names, err
}
