package utils

import (
	"crypto/rand"
	"crypto/rsa"
	"strings"
	"testing"
	"time"

	"github.com/backoffice/server/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func useJWTSettings(t *testing.T, secret string, hours int) {
	t.Helper()
	savedSecret, savedHours := append([]byte(nil), jwtSecret...), jwtExpirationHours
	t.Cleanup(func() {
		jwtSecret, jwtExpirationHours = savedSecret, savedHours
	})
	ConfigureJWT(secret, hours)
}

func seededAdmin() *models.User {
	return &models.User{
		BaseModel: models.BaseModel{ID: uuid.New()},
		Email:     "admin@backoffice.local",
		Role:      models.UserRoleAdmin,
	}
}

func TestConfigureJWTKeepsDefaultsForBlankValues(t *testing.T) {
	useJWTSettings(t, "operator-secret", 12)

	ConfigureJWT("", -1)
	if string(jwtSecret) != "operator-secret" || jwtExpirationHours != 12 {
		t.Fatalf("blank values must not override, got %q / %d", jwtSecret, jwtExpirationHours)
	}
}

func TestSessionTokenCarriesAuthenticationMethods(t *testing.T) {
	useJWTSettings(t, "amr-secret", 8)
	admin := seededAdmin()

	cases := []struct {
		name string
		amr  []string
		want string
	}{
		{name: "password only", want: "pwd"},
		{name: "totp challenge", amr: []string{"pwd", "totp"}, want: "pwd,totp"},
		{name: "email code", amr: []string{"pwd", "email"}, want: "pwd,email"},
		{name: "backup code", amr: []string{"pwd", "backup_code"}, want: "pwd,backup_code"},
		{name: "trusted device bypass", amr: []string{"pwd", "trusted_device"}, want: "pwd,trusted_device"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			token, err := GenerateToken(admin, tc.amr...)
			if err != nil {
				t.Fatalf("token generation failed: %v", err)
			}
			claims, err := ValidateToken(token)
			if err != nil {
				t.Fatalf("token validation failed: %v", err)
			}
			if got := strings.Join(claims.AMR, ","); got != tc.want {
				t.Fatalf("expected amr %q, got %q", tc.want, got)
			}
			if claims.UserID != admin.ID || claims.Subject != admin.ID.String() {
				t.Fatalf("token is not bound to the admin: %+v", claims)
			}
			if claims.Role != models.UserRoleAdmin {
				t.Fatalf("expected admin role for settings routes, got %q", claims.Role)
			}
			lifetime := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
			if lifetime != 8*time.Hour {
				t.Fatalf("expected an 8h session, got %s", lifetime)
			}
		})
	}
}

func TestSessionTokensAreDistinct(t *testing.T) {
	useJWTSettings(t, "jti-secret", 1)
	admin := seededAdmin()

	first, err := GenerateToken(admin, "pwd", "totp")
	if err != nil {
		t.Fatalf("token generation failed: %v", err)
	}
	second, err := GenerateToken(admin, "pwd", "totp")
	if err != nil {
		t.Fatalf("token generation failed: %v", err)
	}
	a, _ := ValidateToken(first)
	b, _ := ValidateToken(second)
	if a == nil || b == nil || a.ID == b.ID {
		t.Fatal("each finalized login should get its own token id")
	}
}

func TestValidateTokenRejections(t *testing.T) {
	useJWTSettings(t, "reject-secret", 1)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: uuid.New(),
		AMR:    []string{"pwd", "sms"},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString(jwtSecret)
	if err != nil {
		t.Fatalf("signing expired token: %v", err)
	}

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: uuid.New(),
		AMR:    []string{"pwd", "totp"},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("some-other-secret"))
	if err != nil {
		t.Fatalf("signing forged token: %v", err)
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating rsa key: %v", err)
	}
	rsaSigned, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(key)
	if err != nil {
		t.Fatalf("signing rsa token: %v", err)
	}

	cases := map[string]string{
		"expired second-factor session": expired,
		"amr claims under a foreign key": forged,
		"asymmetric algorithm":           rsaSigned,
		"not a jwt":                      "mfaRequired",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ValidateToken(token); err == nil {
				t.Fatal("expected validation to fail")
			}
		})
	}
}
