// Package auth implements the tenant API key scheme. Keys are issued once,
// in plaintext, and persisted only as digests.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// KeyPrefix marks issued credentials so they are recognizable in configs
// and secret scanners.
const KeyPrefix = "fp_"

// GenerateKey issues a fresh API key: 32 random bytes, hex encoded behind
// the prefix. The plaintext is returned to the caller exactly once and
// never stored.
func GenerateKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(raw), nil
}

// HashKey returns the hex SHA-256 digest under which a key is persisted
// and looked up. Keys get pasted from terminals, so surrounding whitespace
// does not count.
func HashKey(key string) string {
	key = strings.TrimSpace(key)
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
