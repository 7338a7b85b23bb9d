package twofactor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/backoffice/server/internal/models"
	"github.com/backoffice/server/pkg/logger"
	"github.com/google/uuid"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// NormalizePhone strips formatting and validates the E.164-like shape.
func NormalizePhone(phone string) (string, error) {
	phone = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "").Replace(strings.TrimSpace(phone))
	if phone == "" {
		return "", ErrPhoneRequired
	}
	if !phonePattern.MatchString(phone) {
		return "", ErrInvalidPhone
	}
	return phone, nil
}

type SetupRequest struct {
	Method      models.FactorMethod
	PhoneNumber string
}

// SetupResult is returned once when setup begins. Secret and the
// provisioning fields are only set for TOTP.
type SetupResult struct {
	Method          models.FactorMethod `json:"method"`
	Secret          string              `json:"secret,omitempty"`
	ProvisioningURI string              `json:"provisioningUri,omitempty"`
	QRCode          string              `json:"qrCode,omitempty"`
	CodeSent        bool                `json:"codeSent"`
	Destination     string              `json:"destination,omitempty"`
}

// SetupOverview backs the setup screen: where the user stands and what
// they may choose.
type SetupOverview struct {
	State          State                 `json:"state"`
	Enabled        bool                  `json:"enabled"`
	Method         models.FactorMethod   `json:"method,omitempty"`
	AllowedMethods []models.FactorMethod `json:"allowedMethods"`
}

func (s *Service) SetupOverview(ctx context.Context, userID uuid.UUID) (*SetupOverview, error) {
	reg, err := s.registration(ctx, userID)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings(ctx)
	if err != nil {
		return nil, err
	}
	out := &SetupOverview{
		State:          StateOf(reg),
		Enabled:        Gates(reg),
		AllowedMethods: settings.AllowedMethods,
	}
	if reg != nil {
		out.Method = reg.Method
	}
	return out, nil
}

// Setup puts the user's registration into PENDING_SETUP for req.Method,
// replacing any earlier unconfirmed attempt.
func (s *Service) Setup(ctx context.Context, userID uuid.UUID, req SetupRequest) (*SetupResult, error) {
	method := models.FactorMethod(strings.ToLower(strings.TrimSpace(string(req.Method))))
	if !method.Valid() {
		return nil, ErrInvalidMethod
	}
	var phone string
	if method == models.FactorSMS {
		var err error
		if phone, err = NormalizePhone(req.PhoneNumber); err != nil {
			return nil, err
		}
	}

	settings, err := s.settings(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.Allows(method) {
		return nil, ErrMethodNotAllowed
	}

	existing, err := s.registration(ctx, userID)
	if err != nil {
		return nil, err
	}
	if Gates(existing) {
		return nil, ErrAlreadyEnabled
	}

	user, err := s.users.FindUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	reg := &models.FactorRegistration{
		UserID:      userID,
		Method:      method,
		PhoneNumber: phone,
	}
	result := &SetupResult{Method: method}

	if method == models.FactorTOTP {
		secret, err := GenerateSecret(s.random)
		if err != nil {
			return nil, err
		}
		if reg.Secret, err = s.sealSecret(secret); err != nil {
			return nil, fmt.Errorf("seal totp secret: %w", err)
		}
		uri, err := s.totp.ProvisioningURI(s.cfg.Issuer, user.Email, secret)
		if err != nil {
			return nil, err
		}
		qr, err := QRCodeDataURI(uri, 256)
		if err != nil {
			return nil, err
		}
		result.Secret = secret
		result.ProvisioningURI = uri
		result.QRCode = qr
	}

	if err := s.repos.Factors.Save(ctx, reg); err != nil {
		return nil, fmt.Errorf("save registration: %w", err)
	}

	if method.UsesChannel() {
		dest := user.Email
		if method == models.FactorSMS {
			dest = phone
		}
		if _, err := s.channels.Issue(ctx, userID, method, dest); err != nil {
			return nil, err
		}
		result.CodeSent = true
		result.Destination = logger.MaskDestination(dest)
	}

	logger.InfoWithUser(userID.String(), "twofactor_setup_started", map[string]interface{}{
		"method": string(method),
	})
	return result, nil
}

// ConfirmSetup checks code against the pending method. On success the
// backup batch and the enabled flag commit together, so of two confirms
// racing on one valid code only the winner's codes exist; the plaintext is
// returned exactly once.
func (s *Service) ConfirmSetup(ctx context.Context, userID uuid.UUID, code string) ([]string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInvalidCode
	}
	reg, err := s.registration(ctx, userID)
	if err != nil {
		return nil, err
	}
	switch StateOf(reg) {
	case StateNoFactor:
		return nil, ErrNotSetUp
	case StateConfirmedEnabled:
		return nil, ErrAlreadyEnabled
	}

	ok, err := s.verifyFactor(ctx, reg, code)
	if err != nil {
		return nil, err
	}
	observeVerification("setup_"+string(reg.Method), ok)
	if !ok {
		logger.WarnWithUser(userID.String(), "twofactor_setup_verify_failed", map[string]interface{}{
			"method": string(reg.Method),
		})
		return nil, ErrInvalidCode
	}

	codes, hashes, err := s.vault.NewBatch()
	if err != nil {
		return nil, err
	}
	confirmed, err := s.repos.Factors.ConfirmWithBackupCodes(ctx, userID, s.now(), hashes)
	if err != nil {
		return nil, fmt.Errorf("confirm registration: %w", err)
	}
	if !confirmed {
		current, err := s.registration(ctx, userID)
		if err != nil {
			return nil, err
		}
		if Gates(current) {
			return nil, ErrAlreadyEnabled
		}
		return nil, ErrNotSetUp
	}

	s.publish(ctx, Event{Type: EventSecondFactorConfirmed, UserID: userID, Method: reg.Method})
	s.publish(ctx, Event{Type: EventSecondFactorEnabled, UserID: userID, Method: reg.Method})
	logger.InfoWithUser(userID.String(), "twofactor_enabled", map[string]interface{}{
		"method": string(reg.Method),
	})
	return codes, nil
}
