package store

import (
	"context"
	"time"

	"github.com/backoffice/server/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Devices struct {
	db *gorm.DB
}

func (r *Devices) Create(ctx context.Context, device *models.TrustedDevice) error {
	return r.db.WithContext(ctx).Create(device).Error
}

func (r *Devices) FindActive(ctx context.Context, userID uuid.UUID, tokenHash string, now time.Time) (*models.TrustedDevice, error) {
	var device models.TrustedDevice
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND token_hash = ? AND trusted_until > ?", userID, tokenHash, now).
		First(&device).Error
	if err != nil {
		return nil, translate(err)
	}
	return &device, nil
}

func (r *Devices) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.TrustedDevice{}).
		Where("id = ?", id).
		UpdateColumn("last_used_at", at).Error
}

func (r *Devices) ListByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.TrustedDevice, error) {
	var devices []models.TrustedDevice
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND trusted_until > ?", userID, now).
		Order("created_at DESC").
		Find(&devices).Error
	return devices, err
}

func (r *Devices) Delete(ctx context.Context, userID, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.TrustedDevice{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *Devices) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.TrustedDevice{}).Error
}

func (r *Devices) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("trusted_until <= ?", now).Delete(&models.TrustedDevice{})
	return result.RowsAffected, result.Error
}
