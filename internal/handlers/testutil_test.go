package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/backoffice/server/internal/database"
	"github.com/backoffice/server/internal/middleware"
	"github.com/backoffice/server/internal/models"
	"github.com/backoffice/server/internal/services"
	"github.com/backoffice/server/internal/store"
	"github.com/backoffice/server/internal/twofactor"
	"github.com/backoffice/server/pkg/logger"
	"github.com/backoffice/server/pkg/utils"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	testPassword     = "correct-horse-battery"
	testDeviceCookie = "bo_trusted_device"
)

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

func (s *captureSender) lastCode(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.msgs) == 0 {
		t.Fatalf("expected a delivered verification code")
	}
	return s.msgs[len(s.msgs)-1].Code
}

type testEnv struct {
	app    *fiber.App
	db     *gorm.DB
	svc    *twofactor.Service
	audit  *services.AuditService
	sender *captureSender
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		logger.SetOutput(io.Discard)
		utils.ConfigureJWT("test-secret", 24)
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	cipher, err := utils.NewCipher("test-encryption-secret")
	if err != nil {
		t.Fatalf("failed creating cipher: %v", err)
	}

	bus := twofactor.NewBus()
	auditService := services.NewAuditService(db, nil)
	auditService.Subscribe(bus)

	sender := &captureSender{}
	users := store.NewUsers(db)
	svc, err := twofactor.NewService(
		twofactor.DefaultConfig(),
		store.New(db),
		users,
		twofactor.NewMemoryNonceCache(nil),
		sender,
		twofactor.WithPublisher(bus),
		twofactor.WithSecretCipher(cipher),
	)
	if err != nil {
		t.Fatalf("failed creating two-factor service: %v", err)
	}

	authHandler := NewAuthHandler(users, svc, testDeviceCookie)
	twoFactorHandler := NewTwoFactorHandler(svc, users, testDeviceCookie)
	auditHandler := NewAuditHandler(auditService)
	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New()
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.RequestInfo())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")
	RegisterRoutes(api, authMiddleware, authHandler, twoFactorHandler, auditHandler)

	return &testEnv{app: app, db: db, svc: svc, audit: auditService, sender: sender}
}

func createTestUser(t *testing.T, db *gorm.DB, email string, role models.UserRole) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func dataMap(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected object data, got %+v", body)
	}
	return data
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}

func currentTOTP(t *testing.T, secret string) string {
	t.Helper()
	code, err := twofactor.DefaultTOTP().Generate(secret, time.Now().Unix())
	if err != nil {
		t.Fatalf("failed generating totp code: %v", err)
	}
	return code
}

// enableTOTPOverHTTP runs setup and verify-setup for the token's user and
// returns the secret and backup codes.
func enableTOTPOverHTTP(t *testing.T, env *testEnv, token string) (string, []string) {
	t.Helper()

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/2fa/setup", map[string]any{"method": "totp"}, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
	secret, _ := dataMap(t, decodeJSONMap(t, resp))["secret"].(string)
	if secret == "" {
		t.Fatalf("expected a totp secret in setup response")
	}

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/2fa/verify-setup", map[string]any{"code": currentTOTP(t, secret)}, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
	raw, _ := dataMap(t, decodeJSONMap(t, resp))["backupCodes"].([]any)
	codes := make([]string, 0, len(raw))
	for _, c := range raw {
		codes = append(codes, c.(string))
	}
	if len(codes) != twofactor.BackupCodeCount {
		t.Fatalf("expected %d backup codes, got %d", twofactor.BackupCodeCount, len(codes))
	}
	return secret, codes
}

func login(t *testing.T, env *testEnv, email string, headers map[string]string) map[string]any {
	t.Helper()
	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    email,
		"password": testPassword,
	}, headers)
	assertStatus(t, resp, http.StatusOK)
	return dataMap(t, decodeJSONMap(t, resp))
}
