package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tasks-pizza/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// locationRow is the table layout of a domain.Location.
type locationRow struct {
	ID       string    `gorm:"primaryKey;not null"`
	TaskName string    `gorm:"not null"`
	StoredAt time.Time `gorm:"not null"`
}

func (locationRow) TableName() string {
	return "locations"
}

type PostgresLocationRepository struct {
	db *gorm.DB
}

func NewLocationRepository(db *gorm.DB) domain.LocationRepository {
	return &PostgresLocationRepository{db}
}

// Save inserts the location or overwrites the stored one with the same id.
func (repo *PostgresLocationRepository) Save(ctx context.Context, location *domain.Location) error {
	row := locationRow{ID: location.ID, TaskName: location.TaskName, StoredAt: location.StoredAt}
	err := repo.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save location %s: %w", location.ID, err)
	}
	return nil
}

func (repo *PostgresLocationRepository) Get(ctx context.Context, id string) (*domain.Location, error) {
	var row locationRow
	err := repo.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrLocationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get location %s: %w", id, err)
	}
	return &domain.Location{ID: row.ID, TaskName: row.TaskName, StoredAt: row.StoredAt}, nil
}

func (repo *PostgresLocationRepository) ListNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := repo.db.WithContext(ctx).Model(&locationRow{}).Order("id").Pluck("id", &names).Error; err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	return names, nil
}
