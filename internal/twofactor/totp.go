package twofactor

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	DefaultPeriod = 30
	DefaultDigits = 6
	DefaultWindow = 1
)

// TOTP generates and checks RFC 6238 codes. The zero value is not usable;
// start from DefaultTOTP.
type TOTP struct {
	Period    int64
	Digits    int
	Algorithm Algorithm
	Window    int
}

func DefaultTOTP() TOTP {
	return TOTP{
		Period:    DefaultPeriod,
		Digits:    DefaultDigits,
		Algorithm: AlgorithmSHA1,
		Window:    DefaultWindow,
	}
}

// Validate rejects parameters HOTP cannot serve, so a misconfigured
// deployment fails at startup instead of refusing every code.
func (t TOTP) Validate() error {
	if t.Period <= 0 {
		return fmt.Errorf("%w: totp period must be positive", ErrInvalidConfig)
	}
	if t.Digits < 6 || t.Digits > 8 {
		return fmt.Errorf("%w: totp digits must be between 6 and 8, got %d", ErrInvalidConfig, t.Digits)
	}
	if t.Window < 0 {
		return fmt.Errorf("%w: totp window must not be negative", ErrInvalidConfig)
	}
	if _, err := t.Algorithm.newHash(); err != nil || t.Algorithm == "" {
		return fmt.Errorf("%w: unsupported totp algorithm %q", ErrInvalidConfig, string(t.Algorithm))
	}
	return nil
}

func (t TOTP) counter(unixTime int64) int64 {
	if unixTime < 0 {
		return -1
	}
	return unixTime / t.Period
}

// Generate returns the code for the time step containing unixTime.
func (t TOTP) Generate(secret string, unixTime int64) (string, error) {
	key, err := DecodeBase32(secret)
	if err != nil {
		return "", err
	}
	step := t.counter(unixTime)
	if step < 0 {
		return "", fmt.Errorf("time %d precedes the unix epoch", unixTime)
	}
	return HOTP(key, uint64(step), t.Digits, t.Algorithm)
}

// Verify accepts code if it matches any step within ±window of unixTime.
// Each candidate is compared in constant time.
func (t TOTP) Verify(secret, code string, unixTime int64, window int) bool {
	code = strings.TrimSpace(code)
	if len(code) != t.Digits || window < 0 {
		return false
	}
	key, err := DecodeBase32(secret)
	if err != nil {
		return false
	}

	step := t.counter(unixTime)
	for k := -int64(window); k <= int64(window); k++ {
		candidateStep := step + k
		if candidateStep < 0 {
			continue
		}
		candidate, err := HOTP(key, uint64(candidateStep), t.Digits, t.Algorithm)
		if err != nil {
			return false
		}
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(code)) == 1 {
			return true
		}
	}
	return false
}

// VerifyAt is Verify using the engine's configured window.
func (t TOTP) VerifyAt(secret, code string, at time.Time) bool {
	return t.Verify(secret, code, at.Unix(), t.Window)
}

func (t TOTP) otpAlgorithm() otp.Algorithm {
	switch Algorithm(strings.ToUpper(string(t.Algorithm))) {
	case AlgorithmSHA256:
		return otp.AlgorithmSHA256
	case AlgorithmSHA512:
		return otp.AlgorithmSHA512
	default:
		return otp.AlgorithmSHA1
	}
}

// ProvisioningURI renders the otpauth:// key URI for an existing secret.
func (t TOTP) ProvisioningURI(issuer, account, secret string) (string, error) {
	raw, err := DecodeBase32(secret)
	if err != nil {
		return "", err
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      uint(t.Period),
		SecretSize:  uint(len(raw)),
		Secret:      raw,
		Digits:      otp.Digits(t.Digits),
		Algorithm:   t.otpAlgorithm(),
	})
	if err != nil {
		return "", fmt.Errorf("build provisioning uri: %w", err)
	}
	return key.URL(), nil
}

// QRCodeDataURI encodes content as a PNG data URI for direct use in an <img>.
func QRCodeDataURI(content string, size int) (string, error) {
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
