// internal/infra/etcd/etcd_location_repository.go
package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"tasks-pizza/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	LocationDir = KeyRoot + "locations/"
)

type etcdLocationRepository struct {
	client *clientv3.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// NewEtcdLocationRepository creates a location store backed by etcd.
func NewEtcdLocationRepository(client *clientv3.Client, logger *slog.Logger) domain.LocationRepository {
	return &etcdLocationRepository{
		client: client,
		logger: logger,
		tracer: otel.Tracer("tasks-pizza-etcd-location-repo"),
	}
}

// Identifiers are free text, so they are escaped into a single key segment.
func locationKey(id string) string {
	return LocationDir + url.PathEscape(id)
}

func (r *etcdLocationRepository) Save(ctx context.Context, location *domain.Location) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.SaveLocation")
	defer span.End()

	data, err := json.Marshal(location)
	if err != nil {
		return fmt.Errorf("failed to marshal location to JSON: %w", err)
	}

	key := locationKey(location.ID)
	span.SetAttributes(
		attribute.String("location.id", location.ID),
		attribute.String("etcd.key", key),
	)

	if _, err := r.client.Put(ctx, key, string(data)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put location to etcd")
		return fmt.Errorf("failed to save location %s to etcd: %w", location.ID, err)
	}
	return nil
}

func (r *etcdLocationRepository) Get(ctx context.Context, id string) (*domain.Location, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.GetLocation")
	defer span.End()
	span.SetAttributes(attribute.String("location.id", id))

	resp, err := r.client.Get(ctx, locationKey(id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get location from etcd")
		return nil, fmt.Errorf("failed to get location %s from etcd: %w", id, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, domain.ErrLocationNotFound
	}

	var location domain.Location
	if err := json.Unmarshal(resp.Kvs[0].Value, &location); err != nil {
		return nil, fmt.Errorf("failed to unmarshal location %s from JSON: %w", id, err)
	}
	return &location, nil
}

func (r *etcdLocationRepository) ListNames(ctx context.Context) ([]string, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.ListLocations")
	defer span.End()

	// Keys only: the names are recovered from the escaped key segment.
	resp, err := r.client.Get(ctx, LocationDir, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list locations from etcd")
		return nil, fmt.Errorf("failed to list locations from etcd: %w", err)
	}
	span.SetAttributes(attribute.Int("etcd.kv_count", len(resp.Kvs)))

	names := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		name, err := url.PathUnescape(string(kv.Key[len(LocationDir):]))
		if err != nil {
			r.logger.Warn("skipping malformed location key", "key", string(kv.Key), "error", err)
			continue
		}
		names = append(names, name)
	}
	return names, nil
}
