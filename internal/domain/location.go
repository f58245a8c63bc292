package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrLocationNotFound is returned when no record is stored for a location.
var ErrLocationNotFound = errors.New("location not found")

// Location is the record the callback target stores for one identifier.
type Location struct {
	ID       string    `json:"id"`
	TaskName string    `json:"task_name"`
	StoredAt time.Time `json:"stored_at"`
}

// Validate checks if the location record is valid.
func (l *Location) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("location id cannot be empty")
	}
	if l.StoredAt.IsZero() {
		return fmt.Errorf("location stored_at cannot be zero")
	}
	return nil
}

// LocationRepository persists location records keyed by their raw identifier.
type LocationRepository interface {
	Save(ctx context.Context, location *Location) error
	Get(ctx context.Context, id string) (*Location, error)
	// ListNames returns the ids of all stored locations.
	ListNames(ctx context.Context) ([]string, error)
}
