package store

import (
	"context"
	"strings"

	"github.com/backoffice/server/internal/models"
	"github.com/backoffice/server/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Users is the primary-credential directory.
type Users struct {
	db *gorm.DB
}

func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db}
}

func (r *Users) FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *Users) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *Users) Create(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *Users) VerifyPassword(ctx context.Context, userID uuid.UUID, password string) (bool, error) {
	user, err := r.FindUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return utils.CheckPassword(password, user.PasswordHash), nil
}
