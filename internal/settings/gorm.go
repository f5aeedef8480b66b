package settings

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/whatsondev/whatsfeed/internal/models"
	"github.com/whatsondev/whatsfeed/pkg/logging"
)

// GormStore is the Postgres-backed settings store
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore creates a settings store on an open database connection
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:     db,
		logger: logging.GetLogger().With(zap.String("component", "settings-store")),
	}
}

// GetString retrieves a string value, returning def when absent
func (s *GormStore) GetString(ctx context.Context, key, def string) string {
	var setting models.Setting
	if err := s.db.WithContext(ctx).First(&setting, "key = ?", key).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("settings read failed", zap.String("key", key), zap.Error(err))
		}
		return def
	}
	return setting.Value
}

// GetInt retrieves an integer value, returning def when absent or unparsable
func (s *GormStore) GetInt(ctx context.Context, key string, def int) int {
	raw := s.GetString(ctx, key, "")
	if raw == "" {
		return def
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return i
}

// SetValue stores a value, overwriting any existing one
func (s *GormStore) SetValue(ctx context.Context, key, value string) error {
	setting := models.Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
}

// DeleteValue removes a value; deleting an absent key is not an error
func (s *GormStore) DeleteValue(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Delete(&models.Setting{}, "key = ?", key).Error
}

// GetExpiring retrieves an unexpired transient value
func (s *GormStore) GetExpiring(ctx context.Context, key string) (string, bool) {
	var transient models.Transient
	if err := s.db.WithContext(ctx).First(&transient, "key = ?", key).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("transient read failed", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	if time.Now().UTC().After(transient.ExpiresAt) {
		// Lazy cleanup; a failed delete only delays the next one
		s.db.WithContext(ctx).Delete(&models.Transient{}, "key = ?", key)
		return "", false
	}
	return transient.Value, true
}

// SetExpiring stores a transient value with a TTL
func (s *GormStore) SetExpiring(ctx context.Context, key, value string, ttl time.Duration) error {
	transient := models.Transient{
		Key:       key,
		Value:     value,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at"}),
	}).Create(&transient).Error
}

// DeleteExpiring removes a transient value
func (s *GormStore) DeleteExpiring(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Delete(&models.Transient{}, "key = ?", key).Error
}

// DeleteExpiringPrefix removes every transient value under a key prefix
func (s *GormStore) DeleteExpiringPrefix(ctx context.Context, prefix string) error {
	return s.db.WithContext(ctx).Delete(&models.Transient{}, "key LIKE ?", prefix+"%").Error
}
