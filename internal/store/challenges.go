package store

import (
	"context"
	"time"

	"github.com/backoffice/server/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Challenges struct {
	db *gorm.DB
}

func (r *Challenges) Create(ctx context.Context, ch *models.VerificationChallenge) error {
	return r.db.WithContext(ctx).Create(ch).Error
}

func (r *Challenges) Latest(ctx context.Context, userID uuid.UUID, now time.Time, maxAttempts int) (*models.VerificationChallenge, error) {
	var ch models.VerificationChallenge
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND expires_at > ? AND attempts < ?", userID, now, maxAttempts).
		Order("created_at DESC").
		First(&ch).Error
	if err != nil {
		return nil, translate(err)
	}
	return &ch, nil
}

func (r *Challenges) IncrementAttempts(ctx context.Context, id uuid.UUID, maxAttempts int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.VerificationChallenge{}).
		Where("id = ? AND attempts < ?", id, maxAttempts).
		UpdateColumn("attempts", gorm.Expr("attempts + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *Challenges) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.VerificationChallenge{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *Challenges) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.VerificationChallenge{}).Error
}

func (r *Challenges) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.VerificationChallenge{})
	return result.RowsAffected, result.Error
}
