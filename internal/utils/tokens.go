package utils

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

// GenerateSecureToken returns n random bytes, base64url encoded without
// padding so the token can go into headers, cookies and CSP nonces as is.
func GenerateSecureToken(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("token length must be positive")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
