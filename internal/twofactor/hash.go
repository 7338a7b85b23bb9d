package twofactor

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// hashToken is the one-way digest stored for codes and device tokens.
func hashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func matchesHash(value, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(hashToken(value)), []byte(storedHash)) == 1
}
