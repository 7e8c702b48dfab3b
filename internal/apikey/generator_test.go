package apikey

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomGenerator_Generate(t *testing.T) {
	t.Parallel()

	gen := NewRandomGenerator()

	plaintext, err := gen.Generate()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(plaintext, SecretPrefix))
	assert.Len(t, plaintext, len(SecretPrefix)+secretBytes*2)

	// The suffix must be valid lowercase hex.
	suffix := strings.TrimPrefix(plaintext, SecretPrefix)
	for _, r := range suffix {
		assert.True(t, (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f'),
			"unexpected character %q in secret suffix", r)
	}
}

func TestRandomGenerator_Uniqueness(t *testing.T) {
	t.Parallel()

	gen := NewRandomGenerator()
	seen := make(map[string]struct{})

	for i := 0; i < 100; i++ {
		plaintext, err := gen.Generate()
		require.NoError(t, err)

		_, dup := seen[plaintext]
		require.False(t, dup, "generator produced a duplicate credential")
		seen[plaintext] = struct{}{}
	}
}

func TestDisplayPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		plaintext string
		expected  string
	}{
		{
			name:      "full credential",
			plaintext: "sk_live_abcdef0123456789",
			expected:  "sk_live_abcd",
		},
		{
			name:      "exactly prefix length",
			plaintext: "sk_live_abcd",
			expected:  "sk_live_abcd",
		},
		{
			name:      "shorter than prefix length",
			plaintext: "sk_live_",
			expected:  "sk_live_",
		},
		{
			name:      "empty",
			plaintext: "",
			expected:  "",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, DisplayPrefix(tt.plaintext))
		})
	}
}

func TestDisplayPrefix_MatchesGeneratedCredential(t *testing.T) {
	t.Parallel()

	gen := NewRandomGenerator()
	plaintext, err := gen.Generate()
	require.NoError(t, err)

	prefix := DisplayPrefix(plaintext)
	assert.Len(t, prefix, DisplayPrefixLen)
	assert.True(t, strings.HasPrefix(plaintext, prefix))
}
