package twofactor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/backoffice/server/internal/models"
	"github.com/backoffice/server/pkg/logger"
	"github.com/google/uuid"
)

const (
	ChannelCodeLength  = 6
	DefaultCodeTTL     = 10 * time.Minute
	DefaultMaxAttempts = 5
)

// Message is a request to deliver a code out of band.
type Message struct {
	UserID      uuid.UUID
	Method      models.FactorMethod
	Destination string
	Code        string
	ExpiresAt   time.Time
}

// Sender delivers codes. Send must not block on slow transports for long;
// its failure never undoes the issued challenge.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a plain function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// ChannelStore issues and checks the numeric codes sent by email or SMS.
type ChannelStore struct {
	repo        ChallengeRepository
	sender      Sender
	random      io.Reader
	now         func() time.Time
	ttl         time.Duration
	maxAttempts int
}

func NewChannelStore(repo ChallengeRepository, sender Sender, random io.Reader, now func() time.Time, ttl time.Duration, maxAttempts int) *ChannelStore {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &ChannelStore{repo: repo, sender: sender, random: random, now: now, ttl: ttl, maxAttempts: maxAttempts}
}

// Issue stores a fresh code for the user, superseding any live ones, and
// hands the plaintext to the sender.
func (s *ChannelStore) Issue(ctx context.Context, userID uuid.UUID, method models.FactorMethod, destination string) (*models.VerificationChallenge, error) {
	if !method.UsesChannel() {
		return nil, ErrInvalidMethod
	}
	code, err := randomString(s.random, "0123456789", ChannelCodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate channel code: %w", err)
	}

	if err := s.repo.DeleteByUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("supersede challenges: %w", err)
	}
	challenge := &models.VerificationChallenge{
		UserID:    userID,
		CodeHash:  hashToken(code),
		Method:    method,
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := s.repo.Create(ctx, challenge); err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}
	codesIssued.WithLabelValues(string(method)).Inc()

	if s.sender != nil {
		msg := Message{
			UserID:      userID,
			Method:      method,
			Destination: destination,
			Code:        code,
			ExpiresAt:   challenge.ExpiresAt,
		}
		if err := s.sender.Send(ctx, msg); err != nil {
			logger.WarnWithUser(userID.String(), "twofactor_code_delivery_failed", map[string]interface{}{
				"method":      string(method),
				"destination": logger.MaskDestination(destination),
				"error":       err.Error(),
			})
		}
	}
	return challenge, nil
}

// Verify checks code against the newest live challenge. Every check spends
// an attempt before the comparison; a match deletes the challenge.
func (s *ChannelStore) Verify(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	challenge, err := s.repo.Latest(ctx, userID, s.now(), s.maxAttempts)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load challenge: %w", err)
	}

	counted, err := s.repo.IncrementAttempts(ctx, challenge.ID, s.maxAttempts)
	if err != nil {
		return false, fmt.Errorf("count attempt: %w", err)
	}
	if !counted || len(code) != ChannelCodeLength || !matchesHash(code, challenge.CodeHash) {
		return false, nil
	}

	deleted, err := s.repo.Delete(ctx, challenge.ID)
	if err != nil {
		return false, fmt.Errorf("consume challenge: %w", err)
	}
	return deleted, nil
}

// DeleteExpired removes challenges whose expiry has passed.
func (s *ChannelStore) DeleteExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}
