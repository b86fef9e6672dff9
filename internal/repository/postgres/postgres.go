package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"registrar/internal/domain"
	"registrar/internal/model"
)

// SessionRepository keeps session-local state in the session_entries table.
type SessionRepository struct {
	DB *gorm.DB
}

var _ domain.SessionStorage = (*SessionRepository)(nil)

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{DB: db}
}

// Migrate creates the session_entries table.
func (r *SessionRepository) Migrate() error {
	return r.DB.AutoMigrate(&model.SessionEntry{})
}

func (r *SessionRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var entry model.SessionEntry
	err := r.DB.WithContext(ctx).Where("key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

// Set inserts the key or overwrites its value.
func (r *SessionRepository) Set(ctx context.Context, key, value string) error {
	entry := model.SessionEntry{Key: key, Value: value, UpdatedAt: time.Now()}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

func (r *SessionRepository) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Where("key IN ?", keys).Delete(&model.SessionEntry{}).Error
}
