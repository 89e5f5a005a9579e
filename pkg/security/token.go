package security

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateToken returns a hex-encoded token built from n random bytes.
// Used for verification tokens and anything else that must be unguessable.
func GenerateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
