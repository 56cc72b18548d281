package kvstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/docchat/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQL stores entries in the client_state table via GORM. It works with any
// dialect db.Connect supports.
type SQL struct {
	db *gorm.DB
}

// NewSQL wraps an already migrated GORM handle.
func NewSQL(gormDB *gorm.DB) *SQL {
	return &SQL{db: gormDB}
}

func (s *SQL) Get(key string) (string, bool, error) {
	var entry models.KVEntry
	err := s.db.Where("`key` = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kvstore: get %q: %w", key, err)
	}
	return entry.Value, true, nil
}

func (s *SQL) Set(key, value string) error {
	entry := models.KVEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry)
	if result.Error != nil {
		return fmt.Errorf("kvstore: set %q: %w", key, result.Error)
	}
	return nil
}

func (s *SQL) Delete(key string) error {
	if err := s.db.Where("`key` = ?", key).Delete(&models.KVEntry{}).Error; err != nil {
		return fmt.Errorf("kvstore: delete %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("kvstore: close: %w", err)
	}
	return sqlDB.Close()
}
