package store

import (
	"context"
	"errors"

	"github.com/backoffice/server/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Settings struct {
	db *gorm.DB
}

// Load returns the oldest settings row, or unsaved defaults.
func (r *Settings) Load(ctx context.Context) (*models.TwoFactorSettings, error) {
	var settings models.TwoFactorSettings
	err := r.db.WithContext(ctx).Order("created_at ASC").First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		defaults := models.DefaultTwoFactorSettings()
		return &defaults, nil
	}
	if err != nil {
		return nil, err
	}
	if len(settings.AllowedMethods) == 0 {
		settings.AllowedMethods = models.DefaultTwoFactorSettings().AllowedMethods
	}
	return &settings, nil
}

func (r *Settings) Save(ctx context.Context, settings *models.TwoFactorSettings) error {
	db := r.db.WithContext(ctx)
	if settings.ID == uuid.Nil {
		return db.Create(settings).Error
	}
	return db.Save(settings).Error
}
