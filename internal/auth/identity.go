package auth

import "context"

// Identity is the authenticated caller attached to a request after a
// successful validation. It carries the minimal identifying fields only;
// neither the plaintext credential nor its digest ever reaches the
// request context.
type Identity struct {
	// KeyID is the identifier of the validated API key.
	KeyID string `json:"keyId"`

	// Name is the human-readable name of the key.
	Name string `json:"name,omitempty"`

	// TenantID is the owning tenant, the scoping basis for every
	// downstream operation.
	TenantID string `json:"tenantId"`

	// Permissions is the list of capability strings granted to the key.
	Permissions []string `json:"permissions,omitempty"`
}

// HasPermission checks if the identity carries a specific permission.
func (i *Identity) HasPermission(permission string) bool {
	for _, p := range i.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

type identityContextKey struct{}

// ContextWithIdentity adds an identity to the context.
func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext extracts the identity from the context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	return identity, ok && identity != nil
}

// TenantFromContext returns the tenant ID attached to the context, either
// by the authentication gate or by the tenant header middleware.
func TenantFromContext(ctx context.Context) (string, bool) {
	if identity, ok := IdentityFromContext(ctx); ok {
		return identity.TenantID, true
	}
	if tenantID, ok := ctx.Value(tenantContextKey{}).(string); ok && tenantID != "" {
		return tenantID, true
	}
	return "", false
}

type tenantContextKey struct{}

// ContextWithTenant adds a bare tenant ID to the context. Used by the
// tenant header middleware on routes that do not require a full identity.
func ContextWithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenantID)
}
