package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// CredentialBytes is the number of random bytes behind each credential.
const CredentialBytes = 16

// CredentialGenerator produces fresh credentials.
type CredentialGenerator func() (string, error)

// GenerateCredential returns a fresh 128-bit random token, hex-encoded.
func GenerateCredential() (string, error) {
	return generateCredentialFrom(rand.Reader)
}

func generateCredentialFrom(r io.Reader) (string, error) {
	buf := make([]byte, CredentialBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read random credential: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
