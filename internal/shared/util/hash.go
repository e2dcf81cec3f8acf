package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ContentHash returns a stable hex digest of normalized text.
// Whitespace runs and letter case do not change the digest.
func ContentHash(s string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(s), " "))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
