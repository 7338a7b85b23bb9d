package twofactor

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/backoffice/server/internal/models"
	"github.com/backoffice/server/pkg/logger"
	"github.com/google/uuid"
)

const nonceBytes = 32

// LoginAttempt is a primary-credential success handed to the gate. The
// device token and user agent come from the transport, not ambient state.
type LoginAttempt struct {
	UserID      uuid.UUID
	DeviceToken string
}

// Decision is the gate's answer. When Required is set the caller must
// surface {UserID, Method, Nonce} and must not complete the session.
type Decision struct {
	Required      bool                `json:"mfaRequired"`
	UserID        uuid.UUID           `json:"userId"`
	Method        models.FactorMethod `json:"method,omitempty"`
	Nonce         string              `json:"nonce,omitempty"`
	SetupRequired bool                `json:"setupRequired,omitempty"`
	TrustedDevice bool                `json:"trustedDevice,omitempty"`
}

type ChallengeResponse struct {
	UserID      uuid.UUID
	Nonce       string
	Code        string
	TrustDevice bool
	Device      DeviceInfo
}

// ChallengeResult describes a finalized second factor. DeviceToken is set
// only when the device was trusted in this call.
type ChallengeResult struct {
	UserID      uuid.UUID
	Method      models.FactorMethod
	DeviceToken string
	Device      *models.TrustedDevice
}

// Begin runs after the password check and decides whether login needs a
// second factor.
func (s *Service) Begin(ctx context.Context, attempt LoginAttempt) (*Decision, error) {
	decision := &Decision{UserID: attempt.UserID}

	reg, err := s.registration(ctx, attempt.UserID)
	if err != nil {
		return nil, err
	}
	if !Gates(reg) {
		if decision.SetupRequired, err = s.setupRequired(ctx, attempt.UserID); err != nil {
			return nil, err
		}
		return decision, nil
	}

	trusted, err := s.devices.IsTrusted(ctx, attempt.UserID, attempt.DeviceToken)
	if err != nil {
		return nil, err
	}
	if trusted {
		decision.TrustedDevice = true
		logger.InfoWithUser(attempt.UserID.String(), "twofactor_trusted_device_bypass", nil)
		return decision, nil
	}

	nonce, err := randomHex(s.random, nonceBytes)
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	key := attempt.UserID.String()
	stored := packNonce(nonce, s.now().Add(s.cfg.NonceTTL))
	if err := s.cache.Set(ctx, nonceKey(key), stored, s.cfg.NonceTTL); err != nil {
		return nil, fmt.Errorf("store nonce: %w", err)
	}
	for _, counter := range []string{failureKey(key), resendKey(key)} {
		if err := s.cache.Delete(ctx, counter); err != nil {
			return nil, fmt.Errorf("reset login counters: %w", err)
		}
	}

	if reg.Method.UsesChannel() {
		if err := s.issueCode(ctx, reg); err != nil {
			return nil, err
		}
	}

	decision.Required = true
	decision.Method = reg.Method
	decision.Nonce = nonce
	logger.InfoWithUser(key, "twofactor_challenge_issued", map[string]interface{}{
		"method": string(reg.Method),
	})
	return decision, nil
}

// setupRequired is advisory: an enforced policy flags accounts older than
// the grace period that still have no enabled factor.
func (s *Service) setupRequired(ctx context.Context, userID uuid.UUID) (bool, error) {
	settings, err := s.settings(ctx)
	if err != nil {
		return false, err
	}
	if !settings.Enforced {
		return false, nil
	}
	user, err := s.users.FindUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load user: %w", err)
	}
	deadline := user.CreatedAt.AddDate(0, 0, settings.GracePeriodDays)
	return !s.now().Before(deadline), nil
}

// packNonce keeps the nonce's deadline next to it so a claimed nonce can be
// put back for exactly the lifetime it had left.
func packNonce(nonce string, expiresAt time.Time) string {
	return nonce + "." + strconv.FormatInt(expiresAt.UnixMilli(), 10)
}

func unpackNonce(stored string) (string, time.Time, bool) {
	nonce, deadline, found := strings.Cut(stored, ".")
	if !found {
		return "", time.Time{}, false
	}
	ms, err := strconv.ParseInt(deadline, 10, 64)
	if err != nil {
		return "", time.Time{}, false
	}
	return nonce, time.UnixMilli(ms), true
}

// liveNonce returns the stored entry when nonce matches the user's pending
// login, without consuming it.
func (s *Service) liveNonce(ctx context.Context, userID uuid.UUID, nonce string) (string, time.Time, error) {
	if nonce == "" {
		return "", time.Time{}, ErrInvalidSession
	}
	stored, ok, err := s.cache.Get(ctx, nonceKey(userID.String()))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("load nonce: %w", err)
	}
	if !ok {
		return "", time.Time{}, ErrInvalidSession
	}
	live, expiresAt, valid := unpackNonce(stored)
	if !valid || subtle.ConstantTimeCompare([]byte(live), []byte(nonce)) != 1 {
		return "", time.Time{}, ErrInvalidSession
	}
	return stored, expiresAt, nil
}

func (s *Service) checkNonce(ctx context.Context, userID uuid.UUID, nonce string) error {
	_, _, err := s.liveNonce(ctx, userID, nonce)
	return err
}

// nonceClaim is a nonce taken out of the cache for the length of one
// verification.
type nonceClaim struct {
	key       string
	stored    string
	expiresAt time.Time
}

// claimNonce removes the matching nonce so no concurrent verification can
// use it while codes are checked.
func (s *Service) claimNonce(ctx context.Context, userID uuid.UUID, nonce string) (*nonceClaim, error) {
	stored, expiresAt, err := s.liveNonce(ctx, userID, nonce)
	if err != nil {
		return nil, err
	}
	key := nonceKey(userID.String())
	won, err := s.cache.Consume(ctx, key, stored)
	if err != nil {
		return nil, fmt.Errorf("consume nonce: %w", err)
	}
	if !won {
		return nil, ErrInvalidSession
	}
	return &nonceClaim{key: key, stored: stored, expiresAt: expiresAt}, nil
}

// release puts a claimed nonce back for the time it had left.
func (s *Service) release(ctx context.Context, claim *nonceClaim) {
	ttl := claim.expiresAt.Sub(s.now())
	if ttl <= 0 {
		return
	}
	if err := s.cache.Set(ctx, claim.key, claim.stored, ttl); err != nil {
		logger.Warn("twofactor_nonce_release_failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// VerifyChallenge finalizes a login that Begin held back. The nonce is
// claimed before any code comparison, so backup and channel codes are only
// spent under a nonce nobody else holds. A wrong code puts the nonce back
// until the failure cap is reached. Backup codes are accepted whatever the
// configured method is.
func (s *Service) VerifyChallenge(ctx context.Context, resp ChallengeResponse) (*ChallengeResult, error) {
	userKey := resp.UserID.String()
	claim, err := s.claimNonce(ctx, resp.UserID, resp.Nonce)
	if err != nil {
		if errors.Is(err, ErrInvalidSession) {
			logger.WarnWithUser(userKey, "twofactor_verify_invalid_session", nil)
		}
		return nil, err
	}

	reg, err := s.registration(ctx, resp.UserID)
	if err != nil {
		s.release(ctx, claim)
		return nil, err
	}
	if !Gates(reg) {
		return nil, ErrNotSetUp
	}

	code := strings.TrimSpace(resp.Code)
	method := reg.Method
	ok := false
	if isDigits(code) && len(code) == s.codeLength(reg.Method) {
		if ok, err = s.verifyFactor(ctx, reg, code); err != nil {
			s.release(ctx, claim)
			return nil, err
		}
	}
	if !ok && LooksLikeBackupCode(code) {
		method = models.FactorBackupCode
		if ok, err = s.vault.Consume(ctx, resp.UserID, code); err != nil {
			s.release(ctx, claim)
			return nil, err
		}
	}
	observeVerification(string(method), ok)

	if !ok {
		failures, err := s.cache.Incr(ctx, failureKey(userKey), s.cfg.NonceTTL)
		if err != nil {
			s.release(ctx, claim)
			return nil, fmt.Errorf("count failure: %w", err)
		}
		if failures < int64(s.cfg.MaxAttempts) {
			s.release(ctx, claim)
		}
		logger.WarnWithUser(userKey, "twofactor_verify_failed", map[string]interface{}{
			"failures": failures,
		})
		return nil, ErrInvalidCode
	}

	if err := s.cache.Delete(ctx, failureKey(userKey)); err != nil {
		logger.WarnWithUser(userKey, "twofactor_failure_counter_reset_failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if err := s.repos.Factors.TouchLastUsed(ctx, resp.UserID, s.now()); err != nil {
		return nil, fmt.Errorf("touch registration: %w", err)
	}

	result := &ChallengeResult{UserID: resp.UserID, Method: method}
	if resp.TrustDevice {
		if err := s.trustDevice(ctx, resp.UserID, resp.Device, result); err != nil {
			return nil, err
		}
	}

	s.publish(ctx, Event{Type: EventSecondFactorConfirmed, UserID: resp.UserID, Method: method})
	logger.InfoWithUser(userKey, "twofactor_verified", map[string]interface{}{
		"method":         string(method),
		"trusted_device": result.DeviceToken != "",
	})
	return result, nil
}

func (s *Service) trustDevice(ctx context.Context, userID uuid.UUID, info DeviceInfo, result *ChallengeResult) error {
	settings, err := s.settings(ctx)
	if err != nil {
		return err
	}
	token, device, err := s.devices.Trust(ctx, userID, settings.TrustDays, info)
	if err != nil {
		return err
	}
	result.DeviceToken = token
	result.Device = device
	id := device.ID
	s.publish(ctx, Event{
		Type:       EventTrustedDeviceAdded,
		UserID:     userID,
		ResourceID: &id,
		Details:    map[string]interface{}{"name": device.Name, "trusted_until": device.TrustedUntil},
	})
	return nil
}

// ResendCode re-issues an email or SMS code during a pending login. The
// user must have a live login nonce; when nonce is given it must match.
// At most MaxResends codes go out per login.
func (s *Service) ResendCode(ctx context.Context, userID uuid.UUID, nonce string) error {
	userKey := userID.String()
	if nonce != "" {
		if err := s.checkNonce(ctx, userID, nonce); err != nil {
			return err
		}
	} else {
		_, live, err := s.cache.Get(ctx, nonceKey(userKey))
		if err != nil {
			return fmt.Errorf("load nonce: %w", err)
		}
		if !live {
			return ErrInvalidSession
		}
	}

	sent, err := s.cache.Incr(ctx, resendKey(userKey), s.cfg.NonceTTL)
	if err != nil {
		return fmt.Errorf("count resend: %w", err)
	}
	if sent > int64(s.cfg.MaxResends) {
		logger.WarnWithUser(userKey, "twofactor_resend_limited", map[string]interface{}{
			"resends": sent,
		})
		return ErrTooManyResends
	}

	reg, err := s.registration(ctx, userID)
	if err != nil {
		return err
	}
	if !Gates(reg) {
		return ErrNotSetUp
	}
	if !reg.Method.UsesChannel() {
		return ErrInvalidMethod
	}
	if err := s.issueCode(ctx, reg); err != nil {
		return err
	}
	logger.InfoWithUser(userID.String(), "twofactor_code_resent", map[string]interface{}{
		"method": string(reg.Method),
	})
	return nil
}
