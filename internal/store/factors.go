package store

import (
	"context"
	"errors"
	"time"

	"github.com/backoffice/server/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var errConfirmLost = errors.New("registration already enabled or gone")

type Factors struct {
	db *gorm.DB
}

func (r *Factors) FindByUser(ctx context.Context, userID uuid.UUID) (*models.FactorRegistration, error) {
	var reg models.FactorRegistration
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&reg).Error; err != nil {
		return nil, translate(err)
	}
	return &reg, nil
}

// Save resets the user's row to an unconfirmed registration for reg.Method.
func (r *Factors) Save(ctx context.Context, reg *models.FactorRegistration) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.FactorRegistration
		err := tx.Where("user_id = ?", reg.UserID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			reg.Enabled = false
			reg.Confirmed = false
			reg.EnabledAt = nil
			return tx.Create(reg).Error
		}
		if err != nil {
			return err
		}

		if err := tx.Model(&existing).Updates(map[string]interface{}{
			"method":       reg.Method,
			"secret":       reg.Secret,
			"phone_number": reg.PhoneNumber,
			"enabled":      false,
			"confirmed":    false,
			"enabled_at":   nil,
		}).Error; err != nil {
			return err
		}
		reg.ID = existing.ID
		reg.CreatedAt = existing.CreatedAt
		return nil
	})
}

// ConfirmWithBackupCodes writes the batch first and the enabled flag last.
// When the conditional update matches no row the whole transaction rolls
// back, so a losing confirm never replaces the winner's codes.
func (r *Factors) ConfirmWithBackupCodes(ctx context.Context, userID uuid.UUID, at time.Time, hashes []string) (bool, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := replaceBackupCodes(tx, userID, hashes); err != nil {
			return err
		}
		result := tx.Model(&models.FactorRegistration{}).
			Where("user_id = ? AND enabled = ?", userID, false).
			Updates(map[string]interface{}{
				"confirmed":  true,
				"enabled":    true,
				"enabled_at": at,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return errConfirmLost
		}
		return nil
	})
	if errors.Is(err, errConfirmLost) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *Factors) TouchLastUsed(ctx context.Context, userID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.FactorRegistration{}).
		Where("user_id = ?", userID).
		UpdateColumn("last_used_at", at).Error
}

func (r *Factors) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.FactorRegistration{}).Error
}
