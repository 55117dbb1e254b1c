package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/researchmesh/core"
)

// RedisStore implements core.MemoryStore on Redis. Each session's shared
// memory is one Redis hash keyed by session id; values are JSON-encoded
// SharedValue entries, so last write wins exactly as in the in-memory store.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix for all memory keys (default: "researchmesh:memory:").
	Prefix string
	// TTL is the session hash expiry duration (0 = never expire).
	TTL time.Duration
	// PoolSize is the connection pool size (default: 10).
	PoolSize int
}

// NewRedisStore creates a Redis-backed shared memory store, verifying the
// connection with a ping.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisStoreFromClient creates a Redis store from an existing client.
// This is useful for testing with miniredis.
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "researchmesh:memory:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (m *RedisStore) sessionKey(sessionID string) string { return m.prefix + sessionID }

// Put stores the value in the session's hash.
func (m *RedisStore) Put(ctx context.Context, sessionID, key string, value core.SharedValue) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal shared value: %w", err)
	}

	pipe := m.client.TxPipeline()
	pipe.HSet(ctx, m.sessionKey(sessionID), key, data)
	if m.ttl > 0 {
		pipe.Expire(ctx, m.sessionKey(sessionID), m.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put shared value: %w", err)
	}
	return nil
}

// Get returns the value and an existence flag. A missing key is not an error.
func (m *RedisStore) Get(ctx context.Context, sessionID, key string) (core.SharedValue, bool, error) {
	data, err := m.client.HGet(ctx, m.sessionKey(sessionID), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.SharedValue{}, false, nil
	}
	if err != nil {
		return core.SharedValue{}, false, fmt.Errorf("get shared value: %w", err)
	}

	var value core.SharedValue
	if err := json.Unmarshal(data, &value); err != nil {
		return core.SharedValue{}, false, fmt.Errorf("unmarshal shared value: %w", err)
	}
	return value, true, nil
}

// Snapshot returns a copy of the session's full key space.
func (m *RedisStore) Snapshot(ctx context.Context, sessionID string) (map[string]core.SharedValue, error) {
	entries, err := m.client.HGetAll(ctx, m.sessionKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("snapshot shared memory: %w", err)
	}

	snapshot := make(map[string]core.SharedValue, len(entries))
	for k, raw := range entries {
		var value core.SharedValue
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("unmarshal shared value %q: %w", k, err)
		}
		snapshot[k] = value
	}
	return snapshot, nil
}

// Clear removes the session's keys, keeping keys with the preserve prefix.
func (m *RedisStore) Clear(ctx context.Context, sessionID, preservePrefix string) error {
	if preservePrefix == "" {
		if err := m.client.Del(ctx, m.sessionKey(sessionID)).Err(); err != nil {
			return fmt.Errorf("clear shared memory: %w", err)
		}
		return nil
	}

	keys, err := m.client.HKeys(ctx, m.sessionKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("clear shared memory: %w", err)
	}

	var remove []string
	for _, k := range keys {
		if !strings.HasPrefix(k, preservePrefix) {
			remove = append(remove, k)
		}
	}
	if len(remove) == 0 {
		return nil
	}
	if err := m.client.HDel(ctx, m.sessionKey(sessionID), remove...).Err(); err != nil {
		return fmt.Errorf("clear shared memory: %w", err)
	}
	return nil
}

// Close releases the underlying client's connection pool.
func (m *RedisStore) Close() error { return m.client.Close() }
