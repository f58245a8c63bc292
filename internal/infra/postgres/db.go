package postgres

import (
	"errors"

	ps "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	ErrMigration = errors.New("database migration failed")
)

// InitDB opens the database and migrates the location table.
func InitDB(dsn string, config *gorm.Config) (*gorm.DB, error) {
	db, err := gorm.Open(ps.Open(dsn), config)
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&locationRow{}); err != nil {
		return errors.Join(ErrMigration, err)
	}
	return nil
}
