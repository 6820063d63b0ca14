package store

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the deterministic content id for a log text: the
// lowercase hex SHA-256 of its exact bytes. Equal texts always map to the
// same id across processes and restarts, which is what makes ingestion
// idempotent. A runtime-dependent hash would break exact-match lookups
// after a restart.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
