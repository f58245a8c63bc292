package memory

import (
	"context"
	"sort"
	"sync"

	"tasks-pizza/internal/domain"
)

var _ domain.LocationRepository = (*LocationRepository)(nil)

// LocationRepository keeps location records in a map.
type LocationRepository struct {
	mu        sync.RWMutex
	locations map[string]domain.Location
}

func NewLocationRepository() *LocationRepository {
	return &LocationRepository{locations: make(map[string]domain.Location)}
}

func (r *LocationRepository) Save(ctx context.Context, location *domain.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locations[location.ID] = *location
	return nil
}

func (r *LocationRepository) Get(ctx context.Context, id string) (*domain.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	location, ok := r.locations[id]
	if !ok {
		return nil, domain.ErrLocationNotFound
	}
	return &location, nil
}

func (r *LocationRepository) ListNames(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.locations))
	for id := range r.locations {
		names = append(names, id)
	}
	sort.Strings(names)
	return names, nil
}
