package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a random UUID, the primary key format for every table.
func NewID() string {
	return uuid.NewString()
}

// NewToken returns n random bytes hex-encoded, for refresh tokens and
// webhook secrets.
func NewToken(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
