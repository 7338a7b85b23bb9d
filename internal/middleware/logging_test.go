package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/backoffice/server/pkg/logger"
	"github.com/gofiber/fiber/v2"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(io.Discard) })
	return &buf
}

func logEntries(t *testing.T, buf *bytes.Buffer) []logger.LogEntry {
	t.Helper()
	var entries []logger.LogEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry logger.LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("failed decoding log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func newLoggedApp() *fiber.App {
	app := fiber.New()
	app.Use(RequestLogger())
	app.Use(SecurityLogger())
	app.Post("/api/2fa/verify", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": "invalid verification code"})
	})
	app.Post("/api/2fa/send-code", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"success": false, "error": "too many code requests"})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	return app
}

func TestRequestLoggerPropagatesRequestID(t *testing.T) {
	captureLogs(t)
	app := newLoggedApp()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "login-trace-42")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if got := resp.Header.Get(RequestIDHeader); got != "login-trace-42" {
		t.Fatalf("expected caller request id echoed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", maxRequestIDLength+1))
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	got := resp.Header.Get(RequestIDHeader)
	if got == "" || len(got) > maxRequestIDLength {
		t.Fatalf("expected a generated request id, got %q", got)
	}
}

func TestSecurityLoggerFlagsRejectedSecondFactor(t *testing.T) {
	buf := captureLogs(t)
	app := newLoggedApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/2fa/verify", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/api/2fa/send-code", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}

	actions := map[string]logger.LogEntry{}
	for _, entry := range logEntries(t, buf) {
		actions[entry.Action] = entry
	}
	rejected, ok := actions["twofactor_rejected_unauthenticated"]
	if !ok {
		t.Fatalf("expected a rejected second factor entry, got %v", actions)
	}
	if rejected.Level != logger.LevelWarn || rejected.Details["reason"] != "second_factor_rejected" {
		t.Fatalf("unexpected rejection entry: %+v", rejected)
	}
	if _, ok := actions["twofactor_throttled_unauthenticated"]; !ok {
		t.Fatalf("expected a throttled entry, got %v", actions)
	}
	if actions["http_request"].Level != logger.LevelWarn {
		t.Fatalf("client errors should log at warn, got %q", actions["http_request"].Level)
	}
}

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}
