package twofactor

import (
	"context"
	"time"

	"github.com/backoffice/server/internal/models"
	"github.com/google/uuid"
)

// Lookups return ErrNotFound when nothing matches. Methods returning a bool
// report whether their conditional write actually changed a row; that row
// count is the commit point for one-time resources.

type FactorRepository interface {
	FindByUser(ctx context.Context, userID uuid.UUID) (*models.FactorRegistration, error)
	// Save inserts or replaces the user's pending registration.
	Save(ctx context.Context, reg *models.FactorRegistration) error
	// ConfirmWithBackupCodes stores the backup batch and flips confirmed and
	// enabled in one transaction, only while the row is not yet enabled. A
	// false result leaves both the codes and the row untouched.
	ConfirmWithBackupCodes(ctx context.Context, userID uuid.UUID, at time.Time, hashes []string) (bool, error)
	TouchLastUsed(ctx context.Context, userID uuid.UUID, at time.Time) error
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
}

type BackupCodeRepository interface {
	// Replace deletes every code of the user and stores the new hashes atomically.
	Replace(ctx context.Context, userID uuid.UUID, hashes []string) error
	ListUnused(ctx context.Context, userID uuid.UUID) ([]models.BackupCode, error)
	MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	CountUnused(ctx context.Context, userID uuid.UUID) (int64, error)
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
}

type ChallengeRepository interface {
	Create(ctx context.Context, ch *models.VerificationChallenge) error
	// Latest returns the newest challenge with expires_at > now and attempts < maxAttempts.
	Latest(ctx context.Context, userID uuid.UUID, now time.Time, maxAttempts int) (*models.VerificationChallenge, error)
	IncrementAttempts(ctx context.Context, id uuid.UUID, maxAttempts int) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type TrustedDeviceRepository interface {
	Create(ctx context.Context, device *models.TrustedDevice) error
	// FindActive matches (user, token hash) with trusted_until > now.
	FindActive(ctx context.Context, userID uuid.UUID, tokenHash string, now time.Time) (*models.TrustedDevice, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
	ListByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.TrustedDevice, error)
	Delete(ctx context.Context, userID, id uuid.UUID) (bool, error)
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type SettingsRepository interface {
	// Load returns the stored policy, or the defaults when none was saved.
	Load(ctx context.Context) (*models.TwoFactorSettings, error)
	Save(ctx context.Context, settings *models.TwoFactorSettings) error
}

// UserDirectory is the primary-credential system seen from the core.
type UserDirectory interface {
	FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	VerifyPassword(ctx context.Context, userID uuid.UUID, password string) (bool, error)
}

// Repositories bundles the per-entity stores the service needs.
type Repositories struct {
	Factors     FactorRepository
	BackupCodes BackupCodeRepository
	Challenges  ChallengeRepository
	Devices     TrustedDeviceRepository
	Settings    SettingsRepository
}
