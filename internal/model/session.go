package model

import "time"

// SessionEntry is one key of session-local state kept in postgres.
type SessionEntry struct {
	Key       string    `json:"key" gorm:"primaryKey;type:varchar(128)"`
	Value     string    `json:"value" gorm:"type:text"`
	UpdatedAt time.Time `json:"updated_at"`
}
