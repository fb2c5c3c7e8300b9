package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashString returns the hex SHA-256 of input.
func HashString(input string) string {
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}

// CacheKey hashes the parts joined by a separator that cannot appear in
// model names, so ("a", "bc") and ("ab", "c") never collide.
func CacheKey(parts ...string) string {
	return HashString(strings.Join(parts, "\x1f"))
}
