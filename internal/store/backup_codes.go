package store

import (
	"context"
	"time"

	"github.com/backoffice/server/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BackupCodes struct {
	db *gorm.DB
}

func (r *BackupCodes) Replace(ctx context.Context, userID uuid.UUID, hashes []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return replaceBackupCodes(tx, userID, hashes)
	})
}

func replaceBackupCodes(tx *gorm.DB, userID uuid.UUID, hashes []string) error {
	if err := tx.Where("user_id = ?", userID).Delete(&models.BackupCode{}).Error; err != nil {
		return err
	}
	if len(hashes) == 0 {
		return nil
	}
	rows := make([]models.BackupCode, len(hashes))
	for i, h := range hashes {
		rows[i] = models.BackupCode{UserID: userID, CodeHash: h}
	}
	return tx.Create(&rows).Error
}

func (r *BackupCodes) ListUnused(ctx context.Context, userID uuid.UUID) ([]models.BackupCode, error) {
	var codes []models.BackupCode
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND used = ?", userID, false).
		Find(&codes).Error
	return codes, err
}

// MarkUsed only flips a row that is still unused; RowsAffected decides the winner.
func (r *BackupCodes) MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.BackupCode{}).
		Where("id = ? AND used = ?", id, false).
		Updates(map[string]interface{}{"used": true, "used_at": at})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *BackupCodes) CountUnused(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.BackupCode{}).
		Where("user_id = ? AND used = ?", userID, false).
		Count(&count).Error
	return count, err
}

func (r *BackupCodes) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.BackupCode{}).Error
}
