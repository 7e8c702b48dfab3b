package apikey

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/tenantsec/keygate/internal/observability"
)

// Prometheus metrics for Redis store operations.
var (
	redisStoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keygate_store_operations_total",
			Help: "Total number of Redis key store operations",
		},
		[]string{"operation", "status"},
	)

	redisStoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keygate_store_operation_duration_seconds",
			Help:    "Duration of Redis key store operations in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)
)

// markExpiredScript atomically transitions an active record to expired.
// Revoked and expired records are left untouched so the transition stays
// monotonic even when concurrent validations race near the expiry boundary.
// KEYS[1] = record key
// ARGV[1] = updated_at timestamp
// Returns 0 if the record does not exist, 1 if it was already terminal,
// 2 if the transition was applied.
var markExpiredScript = redis.NewScript(`
	local status = redis.call('HGET', KEYS[1], 'status')
	if status == false then
		return 0
	end
	if status ~= 'active' then
		return 1
	end
	redis.call('HSET', KEYS[1], 'status', 'expired', 'updated_at', ARGV[1])
	return 2
`)

// touchLastUsedScript records a validation timestamp if the record still
// exists. Last-writer-wins; no read-modify-write cycle is needed.
// KEYS[1] = record key
// ARGV[1] = last_used_at timestamp
var touchLastUsedScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then
		return 0
	end
	redis.call('HSET', KEYS[1], 'last_used_at', ARGV[1])
	return 1
`)

// RedisStore implements Store using Redis. Records are stored as hashes so
// single-field updates map to native atomic HSET operations; a string key
// per digest enforces global digest uniqueness via SETNX, and a sorted set
// per tenant keeps records ordered by creation time for listing.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger observability.Logger
	closed bool
	mu     sync.Mutex
}

// RedisConfig holds configuration for the Redis store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string

	PoolSize     int
	MinIdleConns int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Logger for the Redis store.
	Logger observability.Logger
}

// DefaultRedisConfig returns a RedisConfig with default values.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         "localhost:6379",
		Prefix:       "keygate:",
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// NewRedisStore creates a new Redis-backed key store and verifies
// connectivity with a ping.
func NewRedisStore(config *RedisConfig) (*RedisStore, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", config.Addr, err)
	}

	return &RedisStore{
		client: client,
		prefix: config.Prefix,
		logger: logger,
	}, nil
}

func (s *RedisStore) recordKey(id string) string {
	return s.prefix + "key:" + id
}

func (s *RedisStore) digestKey(digest string) string {
	return s.prefix + "digest:" + digest
}

func (s *RedisStore) tenantKey(tenantID string) string {
	return s.prefix + "tenant:" + tenantID
}

// Insert implements Store.
func (s *RedisStore) Insert(ctx context.Context, key *Key) error {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return NewStorageError("insert", err)
	}

	// SETNX on the digest index is the uniqueness guard: exactly one
	// record may ever claim a digest, regardless of tenant.
	ok, err := s.client.SetNX(ctx, s.digestKey(key.Digest), key.ID, 0).Result()
	if err != nil {
		s.recordOp("insert", "error", start)
		return NewStorageError("insert", err)
	}
	if !ok {
		s.recordOp("insert", "conflict", start)
		return ErrDuplicateDigest
	}

	fields, err := hashFields(key)
	if err != nil {
		s.recordOp("insert", "error", start)
		return NewStorageError("insert", err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.recordKey(key.ID), fields...)
	pipe.ZAdd(ctx, s.tenantKey(key.TenantID), redis.Z{
		Score:  float64(key.CreatedAt.UnixNano()),
		Member: key.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		// Release the digest claim so a retry is not blocked forever.
		_ = s.client.Del(context.WithoutCancel(ctx), s.digestKey(key.Digest)).Err()
		s.recordOp("insert", "error", start)
		return NewStorageError("insert", err)
	}

	s.recordOp("insert", "success", start)
	return nil
}

// FindActiveByDigest implements Store.
func (s *RedisStore) FindActiveByDigest(ctx context.Context, digest string) (*Key, error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, NewStorageError("find_active_by_digest", err)
	}

	id, err := s.client.Get(ctx, s.digestKey(digest)).Result()
	if err == redis.Nil {
		s.recordOp("find_active_by_digest", "not_found", start)
		return nil, ErrKeyNotFound
	}
	if err != nil {
		s.recordOp("find_active_by_digest", "error", start)
		return nil, NewStorageError("find_active_by_digest", err)
	}

	key, err := s.loadRecord(ctx, id)
	if err != nil {
		s.recordOp("find_active_by_digest", opStatus(err), start)
		return nil, err
	}
	if key.Status != StatusActive {
		s.recordOp("find_active_by_digest", "not_found", start)
		return nil, ErrKeyNotFound
	}

	s.recordOp("find_active_by_digest", "success", start)
	return key, nil
}

// FindByIDAndTenant implements Store.
func (s *RedisStore) FindByIDAndTenant(ctx context.Context, id, tenantID string) (*Key, error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, NewStorageError("find_by_id_and_tenant", err)
	}

	key, err := s.loadRecord(ctx, id)
	if err != nil {
		s.recordOp("find_by_id_and_tenant", opStatus(err), start)
		return nil, err
	}
	if key.TenantID != tenantID {
		s.recordOp("find_by_id_and_tenant", "not_found", start)
		return nil, ErrKeyNotFound
	}

	s.recordOp("find_by_id_and_tenant", "success", start)
	return key, nil
}

// ListByTenant implements Store.
func (s *RedisStore) ListByTenant(ctx context.Context, tenantID string) ([]*Key, error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, NewStorageError("list_by_tenant", err)
	}

	ids, err := s.client.ZRevRange(ctx, s.tenantKey(tenantID), 0, -1).Result()
	if err != nil {
		s.recordOp("list_by_tenant", "error", start)
		return nil, NewStorageError("list_by_tenant", err)
	}

	keys := make([]*Key, 0, len(ids))
	for _, id := range ids {
		key, err := s.loadRecord(ctx, id)
		if err == ErrKeyNotFound {
			// Dangling index entry from a concurrent delete.
			continue
		}
		if err != nil {
			s.recordOp("list_by_tenant", "error", start)
			return nil, err
		}
		keys = append(keys, key)
	}

	s.recordOp("list_by_tenant", "success", start)
	return keys, nil
}

// UpdateByIDAndTenant implements Store.
func (s *RedisStore) UpdateByIDAndTenant(ctx context.Context, id, tenantID string, fields Fields) (*Key, error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, NewStorageError("update_by_id_and_tenant", err)
	}

	key, err := s.loadRecord(ctx, id)
	if err != nil {
		s.recordOp("update_by_id_and_tenant", opStatus(err), start)
		return nil, err
	}
	if key.TenantID != tenantID {
		s.recordOp("update_by_id_and_tenant", "not_found", start)
		return nil, ErrKeyNotFound
	}

	now := time.Now().UTC()
	update := []any{"updated_at", formatTime(now)}
	key.UpdatedAt = now

	if fields.Name != nil {
		update = append(update, "name", *fields.Name)
		key.Name = *fields.Name
	}
	if fields.Metadata != nil {
		raw, err := json.Marshal(fields.Metadata)
		if err != nil {
			s.recordOp("update_by_id_and_tenant", "error", start)
			return nil, NewStorageError("update_by_id_and_tenant", err)
		}
		update = append(update, "metadata", string(raw))
		key.Metadata = fields.Metadata
	}
	if fields.Status != nil {
		update = append(update, "status", string(*fields.Status))
		key.Status = *fields.Status
	}

	if err := s.client.HSet(ctx, s.recordKey(id), update...).Err(); err != nil {
		s.recordOp("update_by_id_and_tenant", "error", start)
		return nil, NewStorageError("update_by_id_and_tenant", err)
	}

	s.recordOp("update_by_id_and_tenant", "success", start)
	return key, nil
}

// DeleteByIDAndTenant implements Store.
func (s *RedisStore) DeleteByIDAndTenant(ctx context.Context, id, tenantID string) (*Key, error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, NewStorageError("delete_by_id_and_tenant", err)
	}

	key, err := s.loadRecord(ctx, id)
	if err != nil {
		s.recordOp("delete_by_id_and_tenant", opStatus(err), start)
		return nil, err
	}
	if key.TenantID != tenantID {
		s.recordOp("delete_by_id_and_tenant", "not_found", start)
		return nil, ErrKeyNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.recordKey(id))
	pipe.Del(ctx, s.digestKey(key.Digest))
	pipe.ZRem(ctx, s.tenantKey(tenantID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		s.recordOp("delete_by_id_and_tenant", "error", start)
		return nil, NewStorageError("delete_by_id_and_tenant", err)
	}

	s.recordOp("delete_by_id_and_tenant", "success", start)
	return key, nil
}

// MarkExpired implements Store.
func (s *RedisStore) MarkExpired(ctx context.Context, id string, now time.Time) error {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return NewStorageError("mark_expired", err)
	}

	result, err := markExpiredScript.Run(ctx, s.client, []string{s.recordKey(id)}, formatTime(now)).Result()
	if err != nil {
		s.recordOp("mark_expired", "error", start)
		return NewStorageError("mark_expired", err)
	}
	if n, ok := result.(int64); ok && n == 0 {
		s.recordOp("mark_expired", "not_found", start)
		return ErrKeyNotFound
	}

	s.recordOp("mark_expired", "success", start)
	return nil
}

// TouchLastUsed implements Store.
func (s *RedisStore) TouchLastUsed(ctx context.Context, id string, now time.Time) error {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return NewStorageError("touch_last_used", err)
	}

	result, err := touchLastUsedScript.Run(ctx, s.client, []string{s.recordKey(id)}, formatTime(now)).Result()
	if err != nil {
		s.recordOp("touch_last_used", "error", start)
		return NewStorageError("touch_last_used", err)
	}
	if n, ok := result.(int64); ok && n == 0 {
		s.recordOp("touch_last_used", "not_found", start)
		return ErrKeyNotFound
	}

	s.recordOp("touch_last_used", "success", start)
	return nil
}

// Close implements Store. Close is idempotent.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

// Client returns the underlying Redis client.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// loadRecord fetches and decodes a record hash.
func (s *RedisStore) loadRecord(ctx context.Context, id string) (*Key, error) {
	raw, err := s.client.HGetAll(ctx, s.recordKey(id)).Result()
	if err != nil {
		return nil, NewStorageError("load_record", err)
	}
	if len(raw) == 0 {
		return nil, ErrKeyNotFound
	}
	return keyFromHash(raw)
}

func (s *RedisStore) recordOp(operation, status string, start time.Time) {
	redisStoreOperationsTotal.WithLabelValues(operation, status).Inc()
	redisStoreOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func opStatus(err error) string {
	if err == ErrKeyNotFound {
		return "not_found"
	}
	return "error"
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// hashFields flattens a record into HSET field pairs.
func hashFields(key *Key) ([]any, error) {
	permissions, err := json.Marshal(key.Permissions)
	if err != nil {
		return nil, err
	}
	metadata, err := json.Marshal(key.Metadata)
	if err != nil {
		return nil, err
	}

	fields := []any{
		"id", key.ID,
		"name", key.Name,
		"tenant_id", key.TenantID,
		"digest", key.Digest,
		"key_prefix", key.KeyPrefix,
		"status", string(key.Status),
		"permissions", string(permissions),
		"metadata", string(metadata),
		"created_at", formatTime(key.CreatedAt),
		"updated_at", formatTime(key.UpdatedAt),
	}
	if key.ExpiresAt != nil {
		fields = append(fields, "expires_at", formatTime(*key.ExpiresAt))
	}
	if key.LastUsedAt != nil {
		fields = append(fields, "last_used_at", formatTime(*key.LastUsedAt))
	}
	return fields, nil
}

// keyFromHash decodes a record from its HGETALL representation.
func keyFromHash(raw map[string]string) (*Key, error) {
	key := &Key{
		ID:        raw["id"],
		Name:      raw["name"],
		TenantID:  raw["tenant_id"],
		Digest:    raw["digest"],
		KeyPrefix: raw["key_prefix"],
		Status:    Status(raw["status"]),
	}

	var err error
	if key.CreatedAt, err = parseTime(raw["created_at"]); err != nil {
		return nil, NewStorageError("decode_record", err)
	}
	if key.UpdatedAt, err = parseTime(raw["updated_at"]); err != nil {
		return nil, NewStorageError("decode_record", err)
	}
	if v, ok := raw["expires_at"]; ok && v != "" {
		t, err := parseTime(v)
		if err != nil {
			return nil, NewStorageError("decode_record", err)
		}
		key.ExpiresAt = &t
	}
	if v, ok := raw["last_used_at"]; ok && v != "" {
		t, err := parseTime(v)
		if err != nil {
			return nil, NewStorageError("decode_record", err)
		}
		key.LastUsedAt = &t
	}
	if v, ok := raw["permissions"]; ok && v != "" {
		if err := json.Unmarshal([]byte(v), &key.Permissions); err != nil {
			return nil, NewStorageError("decode_record", err)
		}
	}
	if v, ok := raw["metadata"]; ok && v != "" {
		if err := json.Unmarshal([]byte(v), &key.Metadata); err != nil {
			return nil, NewStorageError("decode_record", err)
		}
	}

	return key, nil
}

func parseTime(v string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, v)
}

// Ensure RedisStore implements Store.
var _ Store = (*RedisStore)(nil)
