package twofactor

import (
	"context"
	"fmt"
	"time"

	"github.com/backoffice/server/internal/models"
	"github.com/backoffice/server/pkg/logger"
	"github.com/google/uuid"
)

type Status struct {
	State                State               `json:"state"`
	Enabled              bool                `json:"enabled"`
	Confirmed            bool                `json:"confirmed"`
	Method               models.FactorMethod `json:"method,omitempty"`
	PhoneNumber          string              `json:"phoneNumber,omitempty"`
	EnabledAt            *time.Time          `json:"enabledAt,omitempty"`
	LastUsedAt           *time.Time          `json:"lastUsedAt,omitempty"`
	BackupCodesRemaining int64               `json:"backupCodesRemaining"`
	TrustedDevices       int                 `json:"trustedDevices"`
}

func (s *Service) Status(ctx context.Context, userID uuid.UUID) (*Status, error) {
	reg, err := s.registration(ctx, userID)
	if err != nil {
		return nil, err
	}
	status := &Status{State: StateOf(reg), Enabled: Gates(reg)}
	if reg == nil {
		return status, nil
	}
	status.Confirmed = reg.Confirmed
	status.Method = reg.Method
	status.EnabledAt = reg.EnabledAt
	status.LastUsedAt = reg.LastUsedAt
	if reg.PhoneNumber != "" {
		status.PhoneNumber = logger.MaskDestination(reg.PhoneNumber)
	}

	if status.BackupCodesRemaining, err = s.vault.Remaining(ctx, userID); err != nil {
		return nil, fmt.Errorf("count backup codes: %w", err)
	}
	devices, err := s.devices.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list trusted devices: %w", err)
	}
	status.TrustedDevices = len(devices)
	return status, nil
}

// Disable re-checks the password and removes the factor with everything
// that hangs off it. Dependents go first so a failure part-way never
// leaves trusted devices or backup codes behind an absent factor.
func (s *Service) Disable(ctx context.Context, userID uuid.UUID, password string) error {
	if err := s.checkPassword(ctx, userID, password); err != nil {
		return err
	}
	reg, err := s.registration(ctx, userID)
	if err != nil {
		return err
	}
	if reg == nil {
		return ErrNotSetUp
	}

	if err := s.repos.Devices.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("delete trusted devices: %w", err)
	}
	if err := s.repos.Challenges.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("delete challenges: %w", err)
	}
	if err := s.repos.BackupCodes.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("delete backup codes: %w", err)
	}
	if err := s.repos.Factors.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}

	key := userID.String()
	if err := s.cache.Delete(ctx, nonceKey(key)); err != nil {
		return fmt.Errorf("drop nonce: %w", err)
	}
	if err := s.cache.Delete(ctx, failureKey(key)); err != nil {
		return fmt.Errorf("drop failure counter: %w", err)
	}

	s.publish(ctx, Event{Type: EventSecondFactorDisabled, UserID: userID, Method: reg.Method})
	logger.InfoWithUser(key, "twofactor_disabled", map[string]interface{}{
		"method": string(reg.Method),
	})
	return nil
}

// RegenerateBackupCodes replaces the whole batch after a password check.
func (s *Service) RegenerateBackupCodes(ctx context.Context, userID uuid.UUID, password string) ([]string, error) {
	if err := s.checkPassword(ctx, userID, password); err != nil {
		return nil, err
	}
	reg, err := s.registration(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !Gates(reg) {
		return nil, ErrNotSetUp
	}
	codes, err := s.vault.GenerateBatch(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, Event{
		Type:    EventBackupCodesRegenerated,
		UserID:  userID,
		Method:  reg.Method,
		Details: map[string]interface{}{"count": len(codes)},
	})
	return codes, nil
}

func (s *Service) BackupCodesRemaining(ctx context.Context, userID uuid.UUID) (int64, error) {
	reg, err := s.registration(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !Gates(reg) {
		return 0, ErrNotSetUp
	}
	return s.vault.Remaining(ctx, userID)
}

func (s *Service) ListDevices(ctx context.Context, userID uuid.UUID) ([]models.TrustedDevice, error) {
	return s.devices.List(ctx, userID)
}

func (s *Service) RevokeDevice(ctx context.Context, userID, deviceID uuid.UUID) error {
	if err := s.devices.Revoke(ctx, userID, deviceID); err != nil {
		return err
	}
	s.publish(ctx, Event{Type: EventTrustedDeviceRevoked, UserID: userID, ResourceID: &deviceID})
	return nil
}

func (s *Service) Settings(ctx context.Context) (*models.TwoFactorSettings, error) {
	return s.settings(ctx)
}

// SettingsUpdate carries a partial change; nil fields keep their value.
type SettingsUpdate struct {
	TrustDays       *int                  `json:"trustDays"`
	AllowedMethods  []models.FactorMethod `json:"allowedMethods"`
	GracePeriodDays *int                  `json:"gracePeriodDays"`
	Enforced        *bool                 `json:"enforced"`
}

func (s *Service) UpdateSettings(ctx context.Context, update SettingsUpdate) (*models.TwoFactorSettings, error) {
	settings, err := s.settings(ctx)
	if err != nil {
		return nil, err
	}
	if update.TrustDays != nil {
		if *update.TrustDays < 1 || *update.TrustDays > 365 {
			return nil, fmt.Errorf("%w: trustDays must be between 1 and 365", ErrInvalidSettings)
		}
		settings.TrustDays = *update.TrustDays
	}
	if update.GracePeriodDays != nil {
		if *update.GracePeriodDays < 0 || *update.GracePeriodDays > 365 {
			return nil, fmt.Errorf("%w: gracePeriodDays must be between 0 and 365", ErrInvalidSettings)
		}
		settings.GracePeriodDays = *update.GracePeriodDays
	}
	if update.AllowedMethods != nil {
		methods, err := normalizeMethods(update.AllowedMethods)
		if err != nil {
			return nil, err
		}
		settings.AllowedMethods = methods
	}
	if update.Enforced != nil {
		settings.Enforced = *update.Enforced
	}

	if err := s.repos.Settings.Save(ctx, settings); err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}
	logger.Info("twofactor_settings_updated", map[string]interface{}{
		"trust_days":        settings.TrustDays,
		"allowed_methods":   settings.AllowedMethods,
		"grace_period_days": settings.GracePeriodDays,
		"enforced":          settings.Enforced,
	})
	return settings, nil
}

func normalizeMethods(in []models.FactorMethod) ([]models.FactorMethod, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: allowedMethods must not be empty", ErrInvalidSettings)
	}
	seen := make(map[models.FactorMethod]bool, len(in))
	out := make([]models.FactorMethod, 0, len(in))
	for _, m := range in {
		if !m.Valid() {
			return nil, fmt.Errorf("%w: unknown method %q", ErrInvalidSettings, string(m))
		}
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out, nil
}
