package db

import (
	"fmt"

	"github.com/zulandar/docchat/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the GORM models that make up the client state schema.
func AllModels() []interface{} {
	return []interface{}{
		&models.KVEntry{},
	}
}

// AutoMigrate creates or updates all client state tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
