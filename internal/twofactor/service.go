package twofactor

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/backoffice/server/internal/models"
	"github.com/google/uuid"
)

// Config holds the tunables of the two-factor core.
type Config struct {
	Issuer          string
	NonceTTL        time.Duration
	CodeTTL         time.Duration
	MaxAttempts     int
	MaxResends      int
	BackupCodeCount int
	TOTP            TOTP
}

const DefaultMaxResends = 3

func DefaultConfig() Config {
	return Config{
		Issuer:          "Backoffice",
		NonceTTL:        5 * time.Minute,
		CodeTTL:         DefaultCodeTTL,
		MaxAttempts:     DefaultMaxAttempts,
		MaxResends:      DefaultMaxResends,
		BackupCodeCount: BackupCodeCount,
		TOTP:            DefaultTOTP(),
	}
}

// SecretCipher protects TOTP secrets at rest.
type SecretCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithRandom(r io.Reader) Option {
	return func(s *Service) { s.random = r }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithSecretCipher(c SecretCipher) Option {
	return func(s *Service) { s.cipher = c }
}

// Service is the login gate plus the setup and management flows.
type Service struct {
	cfg       Config
	repos     Repositories
	users     UserDirectory
	cache     NonceCache
	sender    Sender
	now       func() time.Time
	random    io.Reader
	publisher Publisher
	cipher    SecretCipher

	totp     TOTP
	vault    *BackupVault
	channels *ChannelStore
	devices  *DeviceStore
}

// NewService fills unset tunables with defaults and rejects a TOTP
// configuration that could never verify a code.
func NewService(cfg Config, repos Repositories, users UserDirectory, cache NonceCache, sender Sender, opts ...Option) (*Service, error) {
	def := DefaultConfig()
	if cfg.Issuer == "" {
		cfg.Issuer = def.Issuer
	}
	if cfg.NonceTTL <= 0 {
		cfg.NonceTTL = def.NonceTTL
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = def.CodeTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.MaxResends <= 0 {
		cfg.MaxResends = def.MaxResends
	}
	if cfg.TOTP.Period <= 0 {
		cfg.TOTP.Period = DefaultPeriod
	}
	if cfg.TOTP.Digits <= 0 {
		cfg.TOTP.Digits = DefaultDigits
	}
	if cfg.TOTP.Algorithm == "" {
		cfg.TOTP.Algorithm = AlgorithmSHA1
	}
	cfg.TOTP.Algorithm = Algorithm(strings.ToUpper(string(cfg.TOTP.Algorithm)))
	if err := cfg.TOTP.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:       cfg,
		repos:     repos,
		users:     users,
		cache:     cache,
		sender:    sender,
		now:       func() time.Time { return time.Now().UTC() },
		random:    rand.Reader,
		publisher: nopPublisher{},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.totp = cfg.TOTP
	s.vault = NewBackupVault(repos.BackupCodes, s.random, s.now, cfg.BackupCodeCount)
	s.channels = NewChannelStore(repos.Challenges, sender, s.random, s.now, cfg.CodeTTL, cfg.MaxAttempts)
	s.devices = NewDeviceStore(repos.Devices, s.random, s.now)
	return s, nil
}

func (s *Service) Config() Config { return s.cfg }

// registration returns nil, nil when the user has no factor.
func (s *Service) registration(ctx context.Context, userID uuid.UUID) (*models.FactorRegistration, error) {
	reg, err := s.repos.Factors.FindByUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load registration: %w", err)
	}
	return reg, nil
}

func (s *Service) settings(ctx context.Context) (*models.TwoFactorSettings, error) {
	settings, err := s.repos.Settings.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return settings, nil
}

func (s *Service) sealSecret(secret string) (string, error) {
	if s.cipher == nil {
		return secret, nil
	}
	return s.cipher.Encrypt(secret)
}

func (s *Service) openSecret(stored string) (string, error) {
	if s.cipher == nil {
		return stored, nil
	}
	return s.cipher.Decrypt(stored)
}

// verifyFactor checks code against the registration's own method.
func (s *Service) verifyFactor(ctx context.Context, reg *models.FactorRegistration, code string) (bool, error) {
	switch reg.Method {
	case models.FactorTOTP:
		secret, err := s.openSecret(reg.Secret)
		if err != nil {
			return false, fmt.Errorf("open totp secret: %w", err)
		}
		return s.totp.VerifyAt(secret, code, s.now()), nil
	case models.FactorEmail, models.FactorSMS:
		return s.channels.Verify(ctx, reg.UserID, code)
	default:
		return false, ErrInvalidMethod
	}
}

func (s *Service) codeLength(method models.FactorMethod) int {
	if method == models.FactorTOTP {
		return s.totp.Digits
	}
	return ChannelCodeLength
}

// destination resolves where a channel code for reg is delivered.
func (s *Service) destination(ctx context.Context, reg *models.FactorRegistration) (string, error) {
	if reg.Method == models.FactorSMS {
		return reg.PhoneNumber, nil
	}
	user, err := s.users.FindUser(ctx, reg.UserID)
	if err != nil {
		return "", fmt.Errorf("load user: %w", err)
	}
	return user.Email, nil
}

func (s *Service) issueCode(ctx context.Context, reg *models.FactorRegistration) error {
	dest, err := s.destination(ctx, reg)
	if err != nil {
		return err
	}
	_, err = s.channels.Issue(ctx, reg.UserID, reg.Method, dest)
	return err
}

func (s *Service) publish(ctx context.Context, event Event) {
	info := RequestInfoFrom(ctx)
	event.IPAddress = info.IPAddress
	event.RequestID = info.RequestID
	event.OccurredAt = s.now()
	s.publisher.Publish(ctx, event)
}

func (s *Service) checkPassword(ctx context.Context, userID uuid.UUID, password string) error {
	if password == "" {
		return ErrInvalidPassword
	}
	ok, err := s.users.VerifyPassword(ctx, userID, password)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return ErrInvalidPassword
	}
	return nil
}

func isDigits(code string) bool {
	if code == "" {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
