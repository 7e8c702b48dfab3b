package apikey

import (
	"context"
	"time"
)

// Fields is a partial field set for scoped updates. Nil members are left
// unchanged. TenantID and Digest are deliberately absent: both are
// immutable after creation.
type Fields struct {
	Name     *string
	Metadata map[string]string
	Status   *Status
}

// Store is the persistence abstraction for API key records.
//
// All tenant-scoped operations return ErrKeyNotFound both when the record
// does not exist and when it belongs to a different tenant, so callers can
// never probe for another tenant's keys. Implementations must return
// errors wrapped as StorageError for infrastructure failures.
type Store interface {
	// Insert persists a new record. It fails with ErrDuplicateDigest if a
	// record with the same digest already exists, regardless of tenant.
	Insert(ctx context.Context, key *Key) error

	// FindActiveByDigest returns the record matching digest with
	// status=active. Revoked and expired records behave as not found.
	FindActiveByDigest(ctx context.Context, digest string) (*Key, error)

	// FindByIDAndTenant returns the record matching both id and tenantID.
	FindByIDAndTenant(ctx context.Context, id, tenantID string) (*Key, error)

	// ListByTenant returns all records for tenantID, newest first.
	ListByTenant(ctx context.Context, tenantID string) ([]*Key, error)

	// UpdateByIDAndTenant applies fields to the record matching both id
	// and tenantID and returns the updated record.
	UpdateByIDAndTenant(ctx context.Context, id, tenantID string, fields Fields) (*Key, error)

	// DeleteByIDAndTenant permanently removes the record matching both id
	// and tenantID and returns it.
	DeleteByIDAndTenant(ctx context.Context, id, tenantID string) (*Key, error)

	// MarkExpired transitions the record to expired if it is still
	// active. The transition is monotonic: revoked and expired records
	// are left untouched. Not tenant-scoped; only the lifecycle manager
	// calls it, on the validation path.
	MarkExpired(ctx context.Context, id string, now time.Time) error

	// TouchLastUsed records a successful validation timestamp.
	// Best-effort telemetry; not tenant-scoped, same as MarkExpired.
	TouchLastUsed(ctx context.Context, id string, now time.Time) error

	// Close releases any resources held by the store.
	Close() error
}
