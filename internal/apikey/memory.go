package apikey

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of the Store interface, used
// in tests and single-process development mode.
type MemoryStore struct {
	mu     sync.RWMutex
	keys   map[string]*Key   // id -> record
	digest map[string]string // digest -> id
	seq    map[string]uint64 // id -> insertion order, tie-break for listing
	nextSq uint64
}

// NewMemoryStore creates a new in-memory API key store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys:   make(map[string]*Key),
		digest: make(map[string]string),
		seq:    make(map[string]uint64),
	}
}

// Insert persists a new record.
func (s *MemoryStore) Insert(ctx context.Context, key *Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.digest[key.Digest]; exists {
		return ErrDuplicateDigest
	}

	s.nextSq++
	s.keys[key.ID] = key.Clone()
	s.digest[key.Digest] = key.ID
	s.seq[key.ID] = s.nextSq
	return nil
}

// FindActiveByDigest returns the active record matching digest.
func (s *MemoryStore) FindActiveByDigest(ctx context.Context, digest string) (*Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.digest[digest]
	if !ok {
		return nil, ErrKeyNotFound
	}
	key := s.keys[id]
	if key == nil || key.Status != StatusActive {
		return nil, ErrKeyNotFound
	}
	return key.Clone(), nil
}

// FindByIDAndTenant returns the record matching both id and tenantID.
func (s *MemoryStore) FindByIDAndTenant(ctx context.Context, id, tenantID string) (*Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := s.keys[id]
	if key == nil || key.TenantID != tenantID {
		return nil, ErrKeyNotFound
	}
	return key.Clone(), nil
}

// ListByTenant returns all records for tenantID, newest first.
func (s *MemoryStore) ListByTenant(ctx context.Context, tenantID string) ([]*Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]*Key, 0)
	for _, key := range s.keys {
		if key.TenantID == tenantID {
			keys = append(keys, key.Clone())
		}
	}

	sort.Slice(keys, func(i, j int) bool {
		if !keys[i].CreatedAt.Equal(keys[j].CreatedAt) {
			return keys[i].CreatedAt.After(keys[j].CreatedAt)
		}
		return s.seq[keys[i].ID] > s.seq[keys[j].ID]
	})

	return keys, nil
}

// UpdateByIDAndTenant applies fields to the scoped record.
func (s *MemoryStore) UpdateByIDAndTenant(ctx context.Context, id, tenantID string, fields Fields) (*Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.keys[id]
	if key == nil || key.TenantID != tenantID {
		return nil, ErrKeyNotFound
	}

	if fields.Name != nil {
		key.Name = *fields.Name
	}
	if fields.Metadata != nil {
		key.Metadata = fields.Metadata
	}
	if fields.Status != nil {
		key.Status = *fields.Status
	}
	key.UpdatedAt = time.Now().UTC()

	return key.Clone(), nil
}

// DeleteByIDAndTenant permanently removes the scoped record.
func (s *MemoryStore) DeleteByIDAndTenant(ctx context.Context, id, tenantID string) (*Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.keys[id]
	if key == nil || key.TenantID != tenantID {
		return nil, ErrKeyNotFound
	}

	delete(s.keys, id)
	delete(s.digest, key.Digest)
	delete(s.seq, id)
	return key, nil
}

// MarkExpired transitions an active record to expired.
func (s *MemoryStore) MarkExpired(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.keys[id]
	if key == nil {
		return ErrKeyNotFound
	}
	if key.Status != StatusActive {
		return nil
	}
	key.Status = StatusExpired
	key.UpdatedAt = now
	return nil
}

// TouchLastUsed records a successful validation timestamp.
func (s *MemoryStore) TouchLastUsed(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.keys[id]
	if key == nil {
		return ErrKeyNotFound
	}
	t := now
	key.LastUsedAt = &t
	return nil
}

// Close implements Store. It is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// Count returns the number of records in the store.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
