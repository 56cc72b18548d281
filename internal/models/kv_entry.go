package models

import "time"

// KVEntry is one row of the SQL-backed client state store.
type KVEntry struct {
	Key       string `gorm:"primaryKey;size:191"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// TableName pins the table name so sqlite and MySQL stores share a schema.
func (KVEntry) TableName() string {
	return "client_state"
}
