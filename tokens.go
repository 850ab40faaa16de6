package accounts

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// VerificationTokenBytes is the amount of randomness in a verification token.
const VerificationTokenBytes = 32

// TokenGenerator produces fresh verification tokens.
type TokenGenerator func() (string, error)

// GenerateSecureToken generates a cryptographically secure random token,
// hex encoded to 64 characters.
func GenerateSecureToken() (string, error) {
	b := make([]byte, VerificationTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
