package twofactor

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
)

// randomString draws length symbols uniformly from alphabet.
func randomString(random io.Reader, alphabet string, length int) (string, error) {
	out := make([]byte, length)
	for i := range out {
		n, err := randInt(random, len(alphabet))
		if err != nil {
			return "", err
		}
		out[i] = alphabet[n]
	}
	return string(out), nil
}

// randInt is rejection sampling over a single byte; alphabets here are
// all shorter than 256 symbols.
func randInt(random io.Reader, limit int) (int, error) {
	ceiling := 256 - 256%limit
	var b [1]byte
	for {
		if _, err := io.ReadFull(random, b[:]); err != nil {
			return 0, fmt.Errorf("read random byte: %w", err)
		}
		if int(b[0]) < ceiling {
			return int(b[0]) % limit, nil
		}
	}
}

func randomHex(random io.Reader, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(random, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func randomURLToken(random io.Reader, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(random, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
