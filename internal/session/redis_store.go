package session

import (
	"context"
	"errors"
	"time"

	"github.com/NoaSEED/juno-starknet-node-setup/pkg/redis"
)

// KV is the subset of the Redis client used for session records.
// Both redis.Client and redis.MetricsClient satisfy it.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisStore persists records as JSON strings. A zero ttl keeps records until logout.
type RedisStore struct {
	kv  KV
	ttl time.Duration
}

func NewRedisStore(kv KV, ttl time.Duration) *RedisStore {
	return &RedisStore{kv: kv, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return []byte(value), nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return s.kv.Set(ctx, key, string(value), s.ttl)
}

func (s *RedisStore) Clear(ctx context.Context, key string) error {
	return s.kv.Delete(ctx, key)
}
