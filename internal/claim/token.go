package claim

import (
	"crypto/rand"
	"encoding/base64"
)

const tokenBytes = 32

// NewToken returns an unguessable URL-safe claim token.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
