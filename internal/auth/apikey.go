// Package auth — extension API-key generation and hashing.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// apiKeyPrefix marks brainbox keys so they're recognizable in secret
// scanners and support tickets without revealing anything.
const apiKeyPrefix = "bbx_"

// apiKeySecretBytes is the entropy of the random part: 24 bytes → 48 hex
// characters. Far beyond brute-force range even with a cheap hash, but we
// use bcrypt anyway so a leaked database row is useless on its own.
const apiKeySecretBytes = 24

// apiKeyCost is the bcrypt work factor for API keys. Lower than the
// password cost: the secret is 24 random bytes, not a guessable human
// password, and validation scans every active connection — cost 12 per
// candidate would make each extension call take seconds.
const apiKeyCost = 6

// APIKeyService issues and verifies extension API keys.
//
// The plaintext key is returned exactly once, at pairing time. Storage only
// ever sees the bcrypt hash plus a truncated preview for display; there is
// no way to recover the key afterwards, only to re-issue via a new
// connection.
type APIKeyService struct {
	cost int
}

func NewAPIKeyService() *APIKeyService {
	return &APIKeyService{cost: apiKeyCost}
}

// NewAPIKeyServiceForTest lowers the bcrypt cost to the minimum so tests
// that issue and validate many keys stay fast.
func NewAPIKeyServiceForTest() *APIKeyService {
	return &APIKeyService{cost: bcrypt.MinCost}
}

// Generate creates a fresh API key and returns the plaintext, its bcrypt
// hash, and the display preview.
func (s *APIKeyService) Generate() (plaintext, hash, preview string, err error) {
	buf := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("auth: generating API key: %w", err)
	}
	plaintext = apiKeyPrefix + hex.EncodeToString(buf)

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), s.cost)
	if err != nil {
		return "", "", "", fmt.Errorf("auth: hashing API key: %w", err)
	}

	return plaintext, string(hashed), Preview(plaintext), nil
}

// Verify reports whether the candidate plaintext matches the stored hash.
func (s *APIKeyService) Verify(hash, candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}

// Preview returns the truncated display form of a key, e.g. "bbx_a1b2…e9f8".
// Shows enough for the user to tell keys apart, not enough to reconstruct one.
func Preview(plaintext string) string {
	if len(plaintext) < len(apiKeyPrefix)+8 {
		return plaintext
	}
	return plaintext[:len(apiKeyPrefix)+4] + "…" + plaintext[len(plaintext)-4:]
}
