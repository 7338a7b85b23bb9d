package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLogRedactsSensitiveDetails(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(Init)

	InfoWithUser("user-1", "twofactor_verified", map[string]interface{}{
		"method": "totp",
		"code":   "123456",
		"nonce":  "abc",
	})

	var entry LogEntry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("failed decoding log line: %v (%q)", err, buf.String())
	}
	if entry.Action != "twofactor_verified" {
		t.Fatalf("expected action twofactor_verified, got %q", entry.Action)
	}
	if entry.UserID == nil || *entry.UserID != "user-1" {
		t.Fatalf("expected user id user-1, got %v", entry.UserID)
	}
	if entry.Details["code"] != "[REDACTED]" || entry.Details["nonce"] != "[REDACTED]" {
		t.Fatalf("expected code and nonce redacted, got %+v", entry.Details)
	}
	if entry.Details["method"] != "totp" {
		t.Fatalf("expected method to survive redaction, got %+v", entry.Details)
	}
}

func TestErrorIncludesMessage(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(Init)

	Error("sweep_failed", errors.New("db down"), nil)

	if !strings.Contains(buf.String(), `"error":"db down"`) {
		t.Fatalf("expected error message in output, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Fatalf("expected error level in output, got %q", buf.String())
	}
}

func TestMaskDestination(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice@example.com", "a***@example.com"},
		{"+15551234567", "********4567"},
		{"123", "****"},
	}
	for _, tt := range tests {
		if got := MaskDestination(tt.in); got != tt.want {
			t.Errorf("MaskDestination(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
