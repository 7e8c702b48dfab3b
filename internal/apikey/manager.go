package apikey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tenantsec/keygate/internal/observability"
)

// touchTimeout bounds the background lastUsedAt write so a slow store
// cannot leak goroutines indefinitely.
const touchTimeout = 3 * time.Second

// IssueParams are the inputs for issuing a new API key.
type IssueParams struct {
	Name        string
	TenantID    string
	ExpiresAt   *time.Time
	Permissions []string
	Metadata    map[string]string
}

// UpdateParams are the inputs for the safe-update path. Only Name and
// Metadata are updatable; the remaining fields exist so attempts to set
// them can be detected and rejected rather than silently dropped.
type UpdateParams struct {
	Name     *string           `json:"name"`
	Metadata map[string]string `json:"metadata"`

	// Status, ExpiresAt, and Permissions are immutable through this path.
	// Status changes go through Revoke; expiry and permissions are fixed
	// at creation.
	Status      json.RawMessage `json:"status"`
	ExpiresAt   json.RawMessage `json:"expiresAt"`
	Permissions json.RawMessage `json:"permissions"`
}

// Manager orchestrates the API key lifecycle: issuance, validation with
// lazy expiry, revocation, safe update, and deletion. It is the only
// component that handles plaintext credentials, and the only one that may
// bypass tenant scoping (for the expiry transition and usage tracking on
// the validation path).
type Manager struct {
	store   Store
	gen     Generator
	hasher  Hasher
	logger  observability.Logger
	metrics *Metrics
	now     func() time.Time
}

// ManagerOption is a functional option for the Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger for the manager.
func WithLogger(logger observability.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics sets the metrics for the manager.
func WithMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithGenerator sets the secret generator.
func WithGenerator(gen Generator) ManagerOption {
	return func(m *Manager) {
		m.gen = gen
	}
}

// WithHasher sets the credential hasher.
func WithHasher(hasher Hasher) ManagerOption {
	return func(m *Manager) {
		m.hasher = hasher
	}
}

// WithClock sets the time source. Used in tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a new lifecycle manager backed by store.
func NewManager(store Store, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}

	m := &Manager{
		store:  store,
		gen:    NewRandomGenerator(),
		hasher: NewSHA256Hasher(),
		logger: observability.NopLogger(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.metrics == nil {
		m.metrics = GetSharedMetrics()
	}

	return m, nil
}

// Issue generates a credential, persists its record, and returns the
// record together with the plaintext. The plaintext is revealed exactly
// here and is never retrievable again.
//
// A past ExpiresAt is accepted: the key is persisted active and will lapse
// on its first validation attempt.
func (m *Manager) Issue(ctx context.Context, params IssueParams) (*Key, string, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, "", NewValidationError("name is required and must be a non-empty string")
	}
	if params.TenantID == "" {
		return nil, "", NewValidationError("tenantId is required")
	}

	permissions := params.Permissions
	if permissions == nil {
		permissions = []string{}
	}
	metadata := params.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	// Digest collisions are negligible with 256 bits of entropy but must
	// be handled: regenerate once, then give up.
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		plaintext, err := m.gen.Generate()
		if err != nil {
			return nil, "", fmt.Errorf("failed to generate credential: %w", err)
		}

		now := m.now().UTC()
		key := &Key{
			ID:          uuid.NewString(),
			Name:        name,
			TenantID:    params.TenantID,
			Digest:      m.hasher.Hash(plaintext),
			KeyPrefix:   DisplayPrefix(plaintext),
			Status:      StatusActive,
			ExpiresAt:   params.ExpiresAt,
			Permissions: permissions,
			Metadata:    metadata,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if err := m.store.Insert(ctx, key); err != nil {
			if errors.Is(err, ErrDuplicateDigest) {
				lastErr = err
				continue
			}
			return nil, "", err
		}

		m.metrics.RecordIssued()
		m.logger.Info("API key issued",
			observability.String("key_id", key.ID),
			observability.String("tenant_id", key.TenantID),
			observability.String("key_prefix", key.KeyPrefix),
		)
		return key, plaintext, nil
	}

	return nil, "", lastErr
}

// Validate checks a presented plaintext credential and returns the key
// identity when it is valid. Every negative outcome (unknown, revoked,
// expired, empty) yields (nil, nil) so callers cannot distinguish them; a
// non-nil error is returned only for underlying storage failures.
//
// Expiry is enforced lazily: a validation that observes a past expiry
// transitions the record to expired before returning. The lastUsedAt
// update is fired asynchronously and never delays the decision.
func (m *Manager) Validate(ctx context.Context, plaintext string) (*KeyInfo, error) {
	start := time.Now()

	if plaintext == "" {
		m.metrics.RecordValidation("error", "empty_key", time.Since(start))
		return nil, nil
	}

	digest := m.hasher.Hash(plaintext)
	key, err := m.store.FindActiveByDigest(ctx, digest)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			m.metrics.RecordValidation("error", "not_found", time.Since(start))
			return nil, nil
		}
		m.metrics.RecordValidation("error", "store_error", time.Since(start))
		return nil, err
	}

	now := m.now()
	if key.IsExpiredAt(now) {
		if err := m.store.MarkExpired(ctx, key.ID, now.UTC()); err != nil && !errors.Is(err, ErrKeyNotFound) {
			// The key is denied either way; the transition will be
			// retried by the next validation attempt.
			m.logger.Warn("failed to mark API key expired",
				observability.String("key_id", key.ID),
				observability.Error(err),
			)
		}
		m.metrics.RecordValidation("error", "expired", time.Since(start))
		return nil, nil
	}

	go m.touchLastUsed(key.ID)

	m.metrics.RecordValidation("success", "valid", time.Since(start))
	m.logger.Debug("API key validated",
		observability.String("key_id", key.ID),
		observability.String("tenant_id", key.TenantID),
	)

	return &KeyInfo{
		ID:          key.ID,
		Name:        key.Name,
		TenantID:    key.TenantID,
		Permissions: key.Permissions,
	}, nil
}

// touchLastUsed records a usage timestamp in the background. Best-effort
// telemetry: failures are logged and never affect the authorization
// decision that already happened.
func (m *Manager) touchLastUsed(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
	defer cancel()

	if err := m.store.TouchLastUsed(ctx, id, m.now().UTC()); err != nil && !errors.Is(err, ErrKeyNotFound) {
		m.logger.Debug("failed to record API key usage",
			observability.String("key_id", id),
			observability.Error(err),
		)
	}
}

// List returns all key records owned by tenantID, newest first. Digests
// stay inside the records; serialization boundaries exclude them.
func (m *Manager) List(ctx context.Context, tenantID string) ([]*Key, error) {
	if tenantID == "" {
		return nil, NewValidationError("tenantId is required")
	}
	return m.store.ListByTenant(ctx, tenantID)
}

// Revoke sets the key's status to revoked. The assignment is terminal and
// idempotent: revoking an already revoked or expired key re-saves the
// revoked status. Fails with ErrKeyNotFound when the key does not exist
// or belongs to a different tenant.
func (m *Manager) Revoke(ctx context.Context, id, tenantID string) (*Key, error) {
	if tenantID == "" {
		return nil, NewValidationError("tenantId is required")
	}

	status := StatusRevoked
	key, err := m.store.UpdateByIDAndTenant(ctx, id, tenantID, Fields{Status: &status})
	if err != nil {
		return nil, err
	}

	m.metrics.RecordRevoked()
	m.logger.Info("API key revoked",
		observability.String("key_id", key.ID),
		observability.String("tenant_id", key.TenantID),
	)
	return key, nil
}

// Update applies the safe-update path: only name and metadata may change.
// Attempts to set status, expiresAt, or permissions are rejected outright
// and leave the record untouched, as does an update naming no recognized
// field.
func (m *Manager) Update(ctx context.Context, id, tenantID string, params UpdateParams) (*Key, error) {
	if tenantID == "" {
		return nil, NewValidationError("tenantId is required")
	}
	if params.Status != nil || params.ExpiresAt != nil || params.Permissions != nil {
		return nil, NewValidationError(
			"cannot update status, expiresAt, or permissions through this method; use dedicated methods")
	}

	fields := Fields{}
	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			return nil, NewValidationError("name must be a non-empty string")
		}
		fields.Name = &name
	}
	if params.Metadata != nil {
		fields.Metadata = params.Metadata
	}
	if fields.Name == nil && fields.Metadata == nil {
		return nil, NewValidationError("no valid fields to update")
	}

	key, err := m.store.UpdateByIDAndTenant(ctx, id, tenantID, fields)
	if err != nil {
		return nil, err
	}

	m.logger.Info("API key updated",
		observability.String("key_id", key.ID),
		observability.String("tenant_id", key.TenantID),
	)
	return key, nil
}

// Delete permanently removes the key record. Irreversible; fails with
// ErrKeyNotFound under the same scoping rule as Revoke.
func (m *Manager) Delete(ctx context.Context, id, tenantID string) (*Key, error) {
	if tenantID == "" {
		return nil, NewValidationError("tenantId is required")
	}

	key, err := m.store.DeleteByIDAndTenant(ctx, id, tenantID)
	if err != nil {
		return nil, err
	}

	m.logger.Info("API key deleted",
		observability.String("key_id", key.ID),
		observability.String("tenant_id", key.TenantID),
	)
	return key, nil
}
