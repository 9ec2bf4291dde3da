package snapstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/netlens/netlens/internal/config"
	"github.com/netlens/netlens/internal/core"
	"github.com/netlens/netlens/internal/core/governor"
)

const defaultRedisPrefix = "netlens"

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix sets the key namespace for snapshot data.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix = strings.TrimSpace(prefix); prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTTL expires the snapshot key after the given duration. Zero means no
// expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// RedisStore persists the snapshot as one JSON document under a namespaced
// key, for deployments where limiter state is shared across hosts.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func openRedis(ctx context.Context, cfg config.StoreConfig) (*RedisStore, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis store: %w", err)
	}

	return NewRedisStore(client, WithPrefix(cfg.Redis.Prefix)), nil
}

func (s *RedisStore) key() string {
	return s.prefix + ":snapshot"
}

// Save writes the snapshot document. Redis SET replaces the value in one
// operation, so readers never observe a partial image.
func (s *RedisStore) Save(ctx context.Context, snap governor.Snapshot) error {
	if s == nil || s.client == nil {
		return errors.New("redis store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := s.client.Set(ctx, s.key(), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

// Load reads the persisted snapshot. A missing key returns nil without
// error; an undecodable value reports ErrSnapshotCorrupt.
func (s *RedisStore) Load(ctx context.Context) (*governor.Snapshot, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("redis store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	data, err := s.client.Get(ctx, s.key()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	snap := &governor.Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", s.key(), core.ErrSnapshotCorrupt)
	}
	if snap.Services == nil {
		snap.Services = make(map[string]governor.ServiceSnapshot)
	}
	return snap, nil
}

// List returns persisted state for services matching the query.
func (s *RedisStore) List(ctx context.Context, q Query) ([]Entry, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return listSnapshot(snap, q)
}

// Reset removes persisted state for services matching the query.
func (s *RedisStore) Reset(ctx context.Context, q Query) (int64, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return 0, err
	}
	snap, removed, err := resetSnapshot(snap, q)
	if err != nil || snap == nil || removed == 0 {
		return removed, err
	}
	return removed, s.Save(ctx, *snap)
}

// Close releases the Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
