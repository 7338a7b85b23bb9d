package twofactor

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTOTPRFC6238Vectors(t *testing.T) {
	keys := map[Algorithm]string{
		AlgorithmSHA1:   "12345678901234567890",
		AlgorithmSHA256: "12345678901234567890123456789012",
		AlgorithmSHA512: "1234567890123456789012345678901234567890123456789012345678901234",
	}
	tests := []struct {
		unix int64
		alg  Algorithm
		want string
	}{
		{59, AlgorithmSHA1, "94287082"},
		{59, AlgorithmSHA256, "46119246"},
		{59, AlgorithmSHA512, "90693936"},
		{1111111109, AlgorithmSHA1, "07081804"},
		{1111111109, AlgorithmSHA256, "68084774"},
		{1111111109, AlgorithmSHA512, "25091201"},
		{1111111111, AlgorithmSHA1, "14050471"},
		{1234567890, AlgorithmSHA1, "89005924"},
		{2000000000, AlgorithmSHA1, "69279037"},
		{20000000000, AlgorithmSHA1, "65353130"},
	}
	for _, tt := range tests {
		engine := TOTP{Period: 30, Digits: 8, Algorithm: tt.alg, Window: 1}
		secret := EncodeBase32([]byte(keys[tt.alg]))
		got, err := engine.Generate(secret, tt.unix)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s at %d", tt.alg, tt.unix)
	}
}

func TestTOTPMatchesPquerna(t *testing.T) {
	engine := DefaultTOTP()
	secret := "JBSWY3DPEHPK3PXP"
	for _, unix := range []int64{0, 59, 1700000010, 1893456000} {
		want, err := totp.GenerateCodeCustom(secret, time.Unix(unix, 0).UTC(), totp.ValidateOpts{
			Period:    30,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		require.NoError(t, err)
		got, err := engine.Generate(secret, unix)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestTOTPKnownSecretScenario(t *testing.T) {
	engine := DefaultTOTP()
	const (
		secret = "JBSWY3DPEHPK3PXP"
		t0     = int64(1700000010)
	)
	code, err := engine.Generate(secret, t0)
	require.NoError(t, err)
	assert.Equal(t, "367665", code)

	assert.True(t, engine.Verify(secret, code, t0, 1))
	assert.True(t, engine.Verify(secret, code, t0+29, 1))
	assert.True(t, engine.Verify(secret, code, t0+30, 1), "one step of drift is tolerated")
	assert.False(t, engine.Verify(secret, code, t0+61, 1))
	assert.True(t, engine.Verify(secret, code, t0+61, 2))
}

func TestTOTPVerifyProperty(t *testing.T) {
	engine := DefaultTOTP()
	for i := 0; i < 20; i++ {
		secret, err := GenerateSecret(newTestRandom(int64(i)))
		require.NoError(t, err)
		at := int64(1600000000 + i*977)
		code, err := engine.Generate(secret, at)
		require.NoError(t, err)

		assert.True(t, engine.Verify(secret, code, at, 1))
		assert.True(t, engine.Verify(secret, code, at+2*engine.Period, 2))
	}
}

func TestTOTPVerifyRejectsMalformedInput(t *testing.T) {
	engine := DefaultTOTP()
	assert.False(t, engine.Verify("JBSWY3DPEHPK3PXP", "12345", 1700000010, 1))
	assert.False(t, engine.Verify("JBSWY3DPEHPK3PXP", "1234567", 1700000010, 1))
	assert.False(t, engine.Verify("NOT-BASE32-1!", "367665", 1700000010, 1))
	assert.False(t, engine.Verify("JBSWY3DPEHPK3PXP", "367665", 1700000010, -1))
}

func TestTOTPVerifyNearEpoch(t *testing.T) {
	engine := DefaultTOTP()
	code, err := engine.Generate("JBSWY3DPEHPK3PXP", 0)
	require.NoError(t, err)
	assert.True(t, engine.Verify("JBSWY3DPEHPK3PXP", code, 10, 1))
}

func TestProvisioningURI(t *testing.T) {
	engine := DefaultTOTP()
	uri, err := engine.ProvisioningURI("Backoffice", "jane@example.com", "JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	parsed, err := url.Parse(uri)
	require.NoError(t, err)
	assert.Equal(t, "otpauth", parsed.Scheme)
	assert.Equal(t, "totp", parsed.Host)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", parsed.Query().Get("secret"))
	assert.Equal(t, "Backoffice", parsed.Query().Get("issuer"))
	assert.Contains(t, parsed.Path, "jane@example.com")

	key, err := otp.NewKeyFromURL(uri)
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", key.Secret())
}

func TestQRCodeDataURI(t *testing.T) {
	uri, err := QRCodeDataURI("otpauth://totp/Backoffice:jane?secret=JBSWY3DPEHPK3PXP", 128)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))
}
