package twofactor_test

import (
	"context"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/backoffice/server/internal/database"
	"github.com/backoffice/server/internal/models"
	"github.com/backoffice/server/internal/store"
	"github.com/backoffice/server/internal/twofactor"
	"github.com/backoffice/server/pkg/utils"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const testPassword = "correct-horse-battery"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type captureSender struct {
	mu   sync.Mutex
	msgs []twofactor.Message
}

func (s *captureSender) Send(_ context.Context, msg twofactor.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *captureSender) last(t *testing.T) twofactor.Message {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.msgs, "expected a delivered code")
	return s.msgs[len(s.msgs)-1]
}

func (s *captureSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

type capturePublisher struct {
	mu     sync.Mutex
	events []twofactor.Event
}

func (p *capturePublisher) Publish(_ context.Context, e twofactor.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *capturePublisher) types() []twofactor.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]twofactor.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type harness struct {
	db        *gorm.DB
	repos     twofactor.Repositories
	svc       *twofactor.Service
	clock     *fakeClock
	sender    *captureSender
	cache     *twofactor.MemoryNonceCache
	publisher *capturePublisher
	user      *models.User
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func newHarness(t *testing.T, opts ...twofactor.Option) *harness {
	t.Helper()
	return newHarnessWithRepos(t, nil, opts...)
}

// newHarnessWithRepos lets a test wrap the GORM repositories before the
// service sees them.
func newHarnessWithRepos(t *testing.T, wrap func(twofactor.Repositories) twofactor.Repositories, opts ...twofactor.Option) *harness {
	t.Helper()

	db := openTestDB(t)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	sender := &captureSender{}
	cache := twofactor.NewMemoryNonceCache(clock.Now)
	publisher := &capturePublisher{}
	repos := store.New(db)
	users := store.NewUsers(db)

	hash, err := utils.HashPassword(testPassword)
	require.NoError(t, err)
	user := &models.User{
		Email:        "jane@example.com",
		PasswordHash: hash,
		FirstName:    "Jane",
		LastName:     "Doe",
		Role:         models.UserRoleUser,
	}
	require.NoError(t, users.Create(context.Background(), user))

	cipher, err := utils.NewCipher("test-encryption-secret")
	require.NoError(t, err)

	base := []twofactor.Option{
		twofactor.WithClock(clock.Now),
		twofactor.WithRandom(rand.Reader),
		twofactor.WithPublisher(publisher),
		twofactor.WithSecretCipher(cipher),
	}
	serviceRepos := repos
	if wrap != nil {
		serviceRepos = wrap(repos)
	}
	svc, err := twofactor.NewService(twofactor.DefaultConfig(), serviceRepos, users, cache, sender, append(base, opts...)...)
	require.NoError(t, err)

	return &harness{
		db:        db,
		repos:     repos,
		svc:       svc,
		clock:     clock,
		sender:    sender,
		cache:     cache,
		publisher: publisher,
		user:      user,
	}
}

// enableTOTP walks the setup flow and returns the plaintext secret and backup codes.
func (h *harness) enableTOTP(t *testing.T) (string, []string) {
	t.Helper()
	ctx := context.Background()

	res, err := h.svc.Setup(ctx, h.user.ID, twofactor.SetupRequest{Method: models.FactorTOTP})
	require.NoError(t, err)

	code := h.totpCode(t, res.Secret)
	codes, err := h.svc.ConfirmSetup(ctx, h.user.ID, code)
	require.NoError(t, err)
	require.Len(t, codes, twofactor.BackupCodeCount)
	return res.Secret, codes
}

func (h *harness) enableEmail(t *testing.T) []string {
	t.Helper()
	ctx := context.Background()

	_, err := h.svc.Setup(ctx, h.user.ID, twofactor.SetupRequest{Method: models.FactorEmail})
	require.NoError(t, err)
	codes, err := h.svc.ConfirmSetup(ctx, h.user.ID, h.sender.last(t).Code)
	require.NoError(t, err)
	return codes
}

func (h *harness) totpCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := twofactor.DefaultTOTP().Generate(secret, h.clock.Now().Unix())
	require.NoError(t, err)
	return code
}

func wrongCode(code string) string {
	b := []byte(code)
	if b[0] == '9' {
		b[0] = '0'
	} else {
		b[0]++
	}
	return string(b)
}
