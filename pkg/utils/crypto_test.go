package utils

import (
	"errors"
	"testing"
)

func mustCipher(t *testing.T, secret string) *Cipher {
	t.Helper()
	c, err := NewCipher(secret)
	if err != nil {
		t.Fatalf("NewCipher(%q) error = %v", secret, err)
	}
	return c
}

func TestNewCipher(t *testing.T) {
	if _, err := NewCipher(""); !errors.Is(err, ErrEncryptionKeyMissing) {
		t.Fatalf("expected ErrEncryptionKeyMissing, got %v", err)
	}
	if _, err := NewCipher("test-secret-key-32-bytes-long!!"); err != nil {
		t.Fatalf("expected cipher for valid secret, got %v", err)
	}
}

func TestCipherRoundTrip(t *testing.T) {
	c := mustCipher(t, "test-encryption-secret-32-bytes-long!!")

	tests := []struct {
		name    string
		content string
	}{
		{name: "empty", content: ""},
		{name: "base32 secret", content: "JBSWY3DPEHPK3PXP"},
		{name: "unicode", content: "sécurité ✓"},
		{name: "binary-like", content: string([]byte{0, 1, 2, 255, 128, 64})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encrypted, err := c.Encrypt(tt.content)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if tt.content != "" && encrypted == tt.content {
				t.Fatal("expected ciphertext to differ from plaintext")
			}

			decrypted, err := c.Decrypt(encrypted)
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if decrypted != tt.content {
				t.Errorf("round trip failed: got %q, want %q", decrypted, tt.content)
			}
		})
	}
}

func TestCipherEncryptIsRandomized(t *testing.T) {
	c := mustCipher(t, "test-encryption-secret-32-bytes-long!!")

	a, err := c.Encrypt("JBSWY3DPEHPK3PXP")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	b, err := c.Encrypt("JBSWY3DPEHPK3PXP")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if a == b {
		t.Fatal("expected distinct ciphertexts for repeated encryption")
	}
}

func TestCipherDecryptFailures(t *testing.T) {
	c := mustCipher(t, "test-encryption-secret-32-bytes-long!!")
	other := mustCipher(t, "different-key-32-bytes-long!!!")

	sealed, err := c.Encrypt("hello world")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	tests := []struct {
		name       string
		cipher     *Cipher
		ciphertext string
	}{
		{name: "invalid base64", cipher: c, ciphertext: "not-valid-base64!!!"},
		{name: "too short", cipher: c, ciphertext: "YWJj"},
		{name: "wrong key", cipher: other, ciphertext: sealed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.cipher.Decrypt(tt.ciphertext); err == nil {
				t.Fatal("expected decrypt to fail")
			}
		})
	}
}
