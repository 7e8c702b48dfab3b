package apikey

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher computes a one-way digest of a plaintext credential. The digest
// is deterministic so validation can look keys up by equality without ever
// storing plaintext.
type Hasher interface {
	// Hash returns the digest of plaintext.
	Hash(plaintext string) string
}

// SHA256Hasher hashes credentials with unsalted SHA-256.
//
// No salt is used deliberately: credentials come from a cryptographically
// secure generator with 256 bits of entropy, so rainbow-table attacks are
// not a concern and a deterministic digest enables constant-lookup
// validation. Do not reuse this for low-entropy secrets such as passwords.
type SHA256Hasher struct{}

// NewSHA256Hasher creates a new SHA256Hasher.
func NewSHA256Hasher() *SHA256Hasher {
	return &SHA256Hasher{}
}

// Hash returns the hex-encoded SHA-256 digest of plaintext.
func (h *SHA256Hasher) Hash(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// Ensure SHA256Hasher implements Hasher.
var _ Hasher = (*SHA256Hasher)(nil)
