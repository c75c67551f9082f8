package cryptoutil

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	t.Run("KnownVector", func(t *testing.T) {
		got := HashPassword("abc")
		want := "ddaf35a193617abacc417349ae20413112e6fa4e89a97ea20a9eeee64b55d39a" +
			"2192992a274fc1a836ba3c23a3feebbd454d4423643ce80e2a9ac94fa54ca49f"
		assert.Equal(t, want, hex.EncodeToString(got))
		assert.Len(t, got, PasswordHashSize)
	})

	t.Run("Verify", func(t *testing.T) {
		stored := HashPassword("pw1")
		assert.True(t, VerifyPassword("pw1", stored))
		assert.False(t, VerifyPassword("pw2", stored))
		assert.False(t, VerifyPassword("pw1", stored[:10]))
		assert.False(t, VerifyPassword("pw1", nil))
	})
}

func TestHashContent(t *testing.T) {
	assert.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d", hex.EncodeToString(HashContent([]byte("abc"))))

	payload := bytes.Repeat([]byte("0123456789"), 10_000)
	sum, n, err := HashReader(bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, HashContent(payload), sum)

	sum, n, err = HashReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, "da39a3ee5e6b4b0d3255bfef95601890afd80709", hex.EncodeToString(sum))
}

func TestNewSessionToken(t *testing.T) {
	a, err := NewSessionToken()
	require.NoError(t, err)
	b, err := NewSessionToken()
	require.NoError(t, err)

	assert.Len(t, a, SessionTokenSize)
	assert.Len(t, b, SessionTokenSize)
	assert.NotEqual(t, a, b)
}
