package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/researchmesh/core"
)

// RedisStore implements core.SessionStore on Redis. It provides durable
// session storage that survives process restarts; records are stored as JSON
// under a configurable key prefix and indexed per user for listing.
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
	// Prefix is the key prefix for all session keys (default: "researchmesh:session:").
	Prefix string
	// TTL is the session record expiry duration (0 = never expire).
	TTL time.Duration
	// PoolSize is the connection pool size (default: 10).
	PoolSize int
}

// NewRedisStore creates a new Redis-backed session store, verifying the
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
		prefix = "researchmesh:session:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) recordKey(id string) string { return s.prefix + "record:" + id }

func (s *RedisStore) userIndexKey(userID string) string { return s.prefix + "user:" + userID }

// Create persists a new session record and indexes it under its owner.
func (s *RedisStore) Create(ctx context.Context, sess *core.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.recordKey(sess.ID), data, s.ttl)
	pipe.SAdd(ctx, s.userIndexKey(sess.UserID), sess.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Get loads a session record by id.
func (s *RedisStore) Get(ctx context.Context, id string) (*core.Session, error) {
	data, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, &core.NotFoundError{Kind: "session", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var sess core.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

// Update replaces an existing record, bumping the Updated timestamp.
func (s *RedisStore) Update(ctx context.Context, sess *core.Session) error {
	exists, err := s.client.Exists(ctx, s.recordKey(sess.ID)).Result()
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if exists == 0 {
		return &core.NotFoundError{Kind: "session", ID: sess.ID}
	}

	clone := sess.Clone()
	clone.Updated = time.Now().UTC()
	data, err := json.Marshal(clone)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.recordKey(sess.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// Delete removes the record and its user index entry. Deleting an absent
// record is not an error.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	var notFound *core.NotFoundError
	if errors.As(err, &notFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.recordKey(id))
	pipe.SRem(ctx, s.userIndexKey(sess.UserID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// List returns the sessions owned by the user. Sessions whose records expired
// are skipped and lazily removed from the index.
func (s *RedisStore) List(ctx context.Context, userID string) ([]*core.Session, error) {
	ids, err := s.client.SMembers(ctx, s.userIndexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	result := make([]*core.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		var notFound *core.NotFoundError
		if errors.As(err, &notFound) {
			_ = s.client.SRem(ctx, s.userIndexKey(userID), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, sess)
	}
	return result, nil
}

// Close releases the underlying client's connection pool.
func (s *RedisStore) Close() error { return s.client.Close() }
