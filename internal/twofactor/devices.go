package twofactor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/backoffice/server/internal/models"
	"github.com/google/uuid"
)

const deviceTokenBytes = 32

// DeviceInfo is the descriptive metadata captured when a device is trusted.
type DeviceInfo struct {
	Name      string
	UserAgent string
	IPAddress string
}

// DeviceStore manages the remember-this-device allow-list.
type DeviceStore struct {
	repo   TrustedDeviceRepository
	random io.Reader
	now    func() time.Time
}

func NewDeviceStore(repo TrustedDeviceRepository, random io.Reader, now func() time.Time) *DeviceStore {
	return &DeviceStore{repo: repo, random: random, now: now}
}

// Trust persists the hash of a new token valid for days and returns the raw token.
func (s *DeviceStore) Trust(ctx context.Context, userID uuid.UUID, days int, info DeviceInfo) (string, *models.TrustedDevice, error) {
	token, err := randomURLToken(s.random, deviceTokenBytes)
	if err != nil {
		return "", nil, fmt.Errorf("generate device token: %w", err)
	}
	browser, os := parseUserAgent(info.UserAgent)
	name := info.Name
	if name == "" {
		name = fmt.Sprintf("%s on %s", browser, os)
	}
	device := &models.TrustedDevice{
		UserID:       userID,
		TokenHash:    hashToken(token),
		Name:         truncate(name, 255),
		Browser:      browser,
		OS:           os,
		IPAddress:    truncate(info.IPAddress, 45),
		TrustedUntil: s.now().AddDate(0, 0, days),
	}
	if err := s.repo.Create(ctx, device); err != nil {
		return "", nil, fmt.Errorf("store trusted device: %w", err)
	}
	return token, device, nil
}

// IsTrusted reports whether token belongs to the user and is strictly
// before its trusted_until.
func (s *DeviceStore) IsTrusted(ctx context.Context, userID uuid.UUID, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	now := s.now()
	device, err := s.repo.FindActive(ctx, userID, hashToken(token), now)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find trusted device: %w", err)
	}
	if err := s.repo.TouchLastUsed(ctx, device.ID, now); err != nil {
		return false, fmt.Errorf("touch trusted device: %w", err)
	}
	return true, nil
}

func (s *DeviceStore) List(ctx context.Context, userID uuid.UUID) ([]models.TrustedDevice, error) {
	return s.repo.ListByUser(ctx, userID, s.now())
}

func (s *DeviceStore) Revoke(ctx context.Context, userID, deviceID uuid.UUID) error {
	deleted, err := s.repo.Delete(ctx, userID, deviceID)
	if err != nil {
		return fmt.Errorf("revoke trusted device: %w", err)
	}
	if !deleted {
		return ErrDeviceNotFound
	}
	return nil
}

func (s *DeviceStore) DeleteExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}

// parseUserAgent is a coarse classifier; the result is only shown to the user.
func parseUserAgent(ua string) (browser, os string) {
	browser, os = "Unknown browser", "Unknown OS"
	switch {
	case strings.Contains(ua, "Edg/"):
		browser = "Edge"
	case strings.Contains(ua, "OPR/") || strings.Contains(ua, "Opera"):
		browser = "Opera"
	case strings.Contains(ua, "Firefox/"):
		browser = "Firefox"
	case strings.Contains(ua, "Chrome/"):
		browser = "Chrome"
	case strings.Contains(ua, "Safari/"):
		browser = "Safari"
	}
	switch {
	case strings.Contains(ua, "Windows"):
		os = "Windows"
	case strings.Contains(ua, "iPhone") || strings.Contains(ua, "iPad"):
		os = "iOS"
	case strings.Contains(ua, "Mac OS X"):
		os = "macOS"
	case strings.Contains(ua, "Android"):
		os = "Android"
	case strings.Contains(ua, "Linux"):
		os = "Linux"
	}
	return browser, os
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
