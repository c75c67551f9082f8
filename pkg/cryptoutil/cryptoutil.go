// Package cryptoutil holds the fixed digests and token generator used by
// the account directory: SHA-512 for passwords, SHA-1 for uploaded content
// and 48 random bytes for session tokens.
package cryptoutil

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"
	"io"
)

const (
	// PasswordHashSize is the length of a stored password digest.
	PasswordHashSize = sha512.Size

	// ContentHashSize is the length of a file content digest.
	ContentHashSize = sha1.Size

	// SessionTokenSize is the length of a generated session token.
	SessionTokenSize = 48

	hashBufferSize = 32 * 1024
)

// HashPassword returns the SHA-512 digest of the UTF-8 password bytes.
func HashPassword(password string) []byte {
	sum := sha512.Sum512([]byte(password))
	return sum[:]
}

// VerifyPassword compares password against a stored digest in constant time.
func VerifyPassword(password string, stored []byte) bool {
	if len(stored) != PasswordHashSize {
		return false
	}
	return subtle.ConstantTimeCompare(HashPassword(password), stored) == 1
}

// HashContent returns the SHA-1 digest of data.
func HashContent(data []byte) []byte {
	sum := sha1.Sum(data)
	return sum[:]
}

// HashReader streams r through SHA-1 and returns the digest and the number
// of bytes consumed.
func HashReader(r io.Reader) ([]byte, int64, error) {
	h := sha1.New()
	buf := make([]byte, hashBufferSize)
	n, err := io.CopyBuffer(h, r, buf)
	if err != nil {
		return nil, n, fmt.Errorf("hash content: %w", err)
	}
	return h.Sum(nil), n, nil
}

// NewSessionToken returns SessionTokenSize bytes from the system CSPRNG.
func NewSessionToken() ([]byte, error) {
	token := make([]byte, SessionTokenSize)
	if _, err := rand.Read(token); err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	return token, nil
}
