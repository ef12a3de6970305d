// Package checksum provides content fingerprints for change detection.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SumStrings fingerprints an ordered string set. Used to decide whether the
// vault-wide tag set actually changed between refresh cycles.
func SumStrings(items []string) string {
	return Sum([]byte(strings.Join(items, "\x00")))
}
