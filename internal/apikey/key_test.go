package apikey

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_IsExpiredAt(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name      string
		expiresAt *time.Time
		expected  bool
	}{
		{
			name:      "no expiry",
			expiresAt: nil,
			expected:  false,
		},
		{
			name:      "future expiry",
			expiresAt: &future,
			expected:  false,
		},
		{
			name:      "past expiry",
			expiresAt: &past,
			expected:  true,
		},
		{
			name:      "expiry exactly now",
			expiresAt: &now,
			expected:  false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			key := &Key{ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.expected, key.IsExpiredAt(now))
		})
	}
}

func TestKey_Clone(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	expires := now.Add(time.Hour)
	key := &Key{
		ID:          "key-1",
		Name:        "Test Key",
		TenantID:    "tenant-a",
		Digest:      "digest-1",
		Status:      StatusActive,
		ExpiresAt:   &expires,
		Permissions: []string{"read"},
		Metadata:    map[string]string{"env": "test"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	clone := key.Clone()
	require.NotSame(t, key, clone)
	assert.Equal(t, key, clone)

	// Mutating the clone leaves the original untouched.
	clone.Name = "mutated"
	*clone.ExpiresAt = now.Add(48 * time.Hour)
	clone.Permissions[0] = "admin"
	clone.Metadata["env"] = "mutated"

	assert.Equal(t, "Test Key", key.Name)
	assert.True(t, key.ExpiresAt.Equal(expires))
	assert.Equal(t, []string{"read"}, key.Permissions)
	assert.Equal(t, "test", key.Metadata["env"])
}

func TestKey_Clone_Nil(t *testing.T) {
	t.Parallel()

	var key *Key
	assert.Nil(t, key.Clone())
}

func TestKey_JSONExcludesDigest(t *testing.T) {
	t.Parallel()

	key := &Key{
		ID:        "key-1",
		Name:      "Test Key",
		TenantID:  "tenant-a",
		Digest:    "super-secret-digest",
		KeyPrefix: "sk_live_abcd",
		Status:    StatusActive,
	}

	data, err := json.Marshal(key)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "super-secret-digest")
	assert.NotContains(t, string(data), "digest")
	assert.Contains(t, string(data), "sk_live_abcd")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "key-1", decoded["id"])
	assert.Equal(t, "active", decoded["status"])
}
