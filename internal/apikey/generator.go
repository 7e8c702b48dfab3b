package apikey

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Plaintext credential format constants.
const (
	// SecretPrefix is the fixed human-readable tag identifying the key family.
	SecretPrefix = "sk_live_"

	// secretBytes is the number of random bytes in the secret suffix,
	// hex-encoded to twice as many characters.
	secretBytes = 32

	// DisplayPrefixLen is the number of leading plaintext characters
	// persisted for display and identification.
	DisplayPrefixLen = 12
)

// Generator produces plaintext API key credentials.
type Generator interface {
	// Generate returns a new high-entropy plaintext credential.
	Generate() (string, error)
}

// RandomGenerator generates credentials from a cryptographically secure
// random source. It holds no state; outputs are never predictable from
// prior outputs.
type RandomGenerator struct{}

// NewRandomGenerator creates a new RandomGenerator.
func NewRandomGenerator() *RandomGenerator {
	return &RandomGenerator{}
}

// Generate returns a plaintext credential of the form
// "sk_live_<64 hex chars>".
func (g *RandomGenerator) Generate() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return SecretPrefix + hex.EncodeToString(buf), nil
}

// DisplayPrefix returns the leading characters of a plaintext credential
// that are safe to persist for identification.
func DisplayPrefix(plaintext string) string {
	if len(plaintext) <= DisplayPrefixLen {
		return plaintext
	}
	return plaintext[:DisplayPrefixLen]
}

// Ensure RandomGenerator implements Generator.
var _ Generator = (*RandomGenerator)(nil)
