package twofactor

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	"strings"
)

// Base32Alphabet is the RFC 4648 alphabet authenticator apps expect.
const Base32Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// SecretLength is the number of base32 symbols in a generated secret (80 bits).
const SecretLength = 16

// GenerateSecret draws SecretLength symbols uniformly from Base32Alphabet.
// 256 is a multiple of 32, so masking a random byte is unbiased.
func GenerateSecret(random io.Reader) (string, error) {
	buf := make([]byte, SecretLength)
	if _, err := io.ReadFull(random, buf); err != nil {
		return "", fmt.Errorf("read random secret: %w", err)
	}
	out := make([]byte, SecretLength)
	for i, b := range buf {
		out[i] = Base32Alphabet[b&31]
	}
	return string(out), nil
}

// EncodeBase32 is the inverse of DecodeBase32, without padding.
func EncodeBase32(data []byte) string {
	var (
		sb   strings.Builder
		acc  uint32
		bits uint
	)
	sb.Grow((len(data)*8 + 4) / 5)
	for _, b := range data {
		acc = acc<<8 | uint32(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			sb.WriteByte(Base32Alphabet[(acc>>bits)&31])
		}
	}
	if bits > 0 {
		sb.WriteByte(Base32Alphabet[(acc<<(5-bits))&31])
	}
	return sb.String()
}

// DecodeBase32 accumulates 5-bit groups into bytes. Input is
// case-insensitive; spaces, hyphens and trailing '=' padding are skipped.
// Any other symbol outside the alphabet rejects the whole secret.
func DecodeBase32(text string) ([]byte, error) {
	var (
		out  = make([]byte, 0, len(text)*5/8)
		acc  uint32
		bits uint
		n    int
	)
	for _, r := range text {
		switch {
		case r == ' ' || r == '-' || r == '=':
			continue
		case r >= 'a' && r <= 'z':
			r -= 'a' - 'A'
		}
		idx := strings.IndexRune(Base32Alphabet, r)
		if idx < 0 {
			return nil, fmt.Errorf("%w: unexpected symbol %q", ErrMalformedSecret, r)
		}
		acc = acc<<5 | uint32(idx)
		bits += 5
		n++
		if bits >= 8 {
			bits -= 8
			out = append(out, byte(acc>>bits))
			acc &= 1<<bits - 1
		}
	}
	if n == 0 || len(out) == 0 {
		return nil, fmt.Errorf("%w: empty secret", ErrMalformedSecret)
	}
	return out, nil
}

// Algorithm names the HMAC hash used for code derivation.
type Algorithm string

const (
	AlgorithmSHA1   Algorithm = "SHA1"
	AlgorithmSHA256 Algorithm = "SHA256"
	AlgorithmSHA512 Algorithm = "SHA512"
)

func (a Algorithm) newHash() (func() hash.Hash, error) {
	switch Algorithm(strings.ToUpper(string(a))) {
	case AlgorithmSHA1, "":
		return sha1.New, nil
	case AlgorithmSHA256:
		return sha256.New, nil
	case AlgorithmSHA512:
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", string(a))
	}
}

var pow10 = [...]uint32{1, 10, 100, 1000, 10000, 100000, 1000000, 10000000, 100000000, 1000000000}

// HOTP derives the RFC 4226 code for counter, zero-padded to digits.
func HOTP(key []byte, counter uint64, digits int, alg Algorithm) (string, error) {
	if digits < 1 || digits >= len(pow10) {
		return "", fmt.Errorf("unsupported digit count %d", digits)
	}
	newHash, err := alg.newHash()
	if err != nil {
		return "", err
	}

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(newHash, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	truncated := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%0*d", digits, truncated%pow10[digits]), nil
}
