package twofactor

import (
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRandom(seed int64) io.Reader {
	return rand.New(rand.NewSource(seed))
}

func TestRandomStringUsesAlphabet(t *testing.T) {
	s, err := randomString(newTestRandom(1), "0123456789", 600)
	require.NoError(t, err)
	assert.Len(t, s, 600)

	seen := map[rune]int{}
	for _, r := range s {
		seen[r]++
	}
	assert.Len(t, seen, 10, "every digit should appear over 600 draws")
}

func TestRandomURLTokenLength(t *testing.T) {
	token, err := randomURLToken(newTestRandom(2), 32)
	require.NoError(t, err)
	assert.Len(t, token, 43)
	assert.NotContains(t, token, "=")
}
