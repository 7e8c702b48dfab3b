// Package apikey implements the API key lifecycle for keygate.
//
// This package owns secret generation, one-way hashing, persistence, and
// the lifecycle state machine for tenant-scoped API keys.
//
// # Lifecycle
//
// A key starts in the active state. It moves to revoked through an explicit
// revocation and to expired when a validation attempt observes a past
// expiry timestamp. Both transitions are terminal; there is no background
// sweeper, expiry is detected lazily on the validation path.
//
// # Issuing and validating
//
// The Manager orchestrates all operations and is the only component that
// ever sees a plaintext credential:
//
//	mgr, err := apikey.NewManager(store)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	key, plaintext, err := mgr.Issue(ctx, apikey.IssueParams{
//	    Name:     "Production Key",
//	    TenantID: "tenant-123",
//	})
//	// plaintext is returned exactly once and never retrievable again.
//
//	info, err := mgr.Validate(ctx, plaintext)
//	if err == nil && info != nil {
//	    // authorized; use info.TenantID
//	}
//
// # Storage
//
// The Store interface abstracts persistence. Two backends are provided: an
// in-memory store for tests and development, and a Redis store for
// production deployments.
package apikey
