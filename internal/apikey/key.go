package apikey

import "time"

// Status represents the lifecycle state of an API key.
type Status string

// Lifecycle states. Transitions are monotonic: active keys may become
// revoked (explicit) or expired (time-triggered); both are terminal.
const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

// Key is a stored API key record. The plaintext credential is never part
// of the record; only its digest and a short display prefix are kept.
type Key struct {
	// ID is the unique identifier for the key, assigned at creation.
	ID string `json:"id"`

	// Name is a human-readable label for the key.
	Name string `json:"name"`

	// TenantID is the owning tenant. It is immutable after creation and
	// is the sole basis for access scoping.
	TenantID string `json:"tenantId"`

	// Digest is the one-way hash of the plaintext credential. It is
	// globally unique and never serialized in responses.
	Digest string `json:"-"`

	// KeyPrefix is the first few characters of the plaintext, stored for
	// display only. It is never sufficient to authenticate.
	KeyPrefix string `json:"keyPrefix"`

	// Status is the lifecycle state of the key.
	Status Status `json:"status"`

	// ExpiresAt is the optional absolute expiry. Nil means never expires.
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`

	// LastUsedAt is updated best-effort on every successful validation.
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`

	// Permissions is the list of capability strings granted to the key.
	// Immutable after creation.
	Permissions []string `json:"permissions"`

	// Metadata is an open key-value bag, mutable via the safe-update path.
	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsExpiredAt reports whether the key's expiry is set and before now.
func (k *Key) IsExpiredAt(now time.Time) bool {
	if k.ExpiresAt == nil {
		return false
	}
	return k.ExpiresAt.Before(now)
}

// Clone returns a deep copy of the key. Stores hand out clones so callers
// can never mutate persisted state through a returned pointer.
func (k *Key) Clone() *Key {
	if k == nil {
		return nil
	}
	dup := *k
	if k.ExpiresAt != nil {
		t := *k.ExpiresAt
		dup.ExpiresAt = &t
	}
	if k.LastUsedAt != nil {
		t := *k.LastUsedAt
		dup.LastUsedAt = &t
	}
	if k.Permissions != nil {
		dup.Permissions = append([]string(nil), k.Permissions...)
	}
	if k.Metadata != nil {
		dup.Metadata = make(map[string]string, len(k.Metadata))
		for key, val := range k.Metadata {
			dup.Metadata[key] = val
		}
	}
	return &dup
}

// KeyInfo is the minimal identity returned by a successful validation.
// It deliberately carries neither the digest nor any plaintext material.
type KeyInfo struct {
	// ID is the unique identifier for the key.
	ID string `json:"id"`

	// Name is the human-readable name for the key.
	Name string `json:"name,omitempty"`

	// TenantID is the owning tenant.
	TenantID string `json:"tenantId"`

	// Permissions is the list of capability strings granted to the key.
	Permissions []string `json:"permissions,omitempty"`
}
