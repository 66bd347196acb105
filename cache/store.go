package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Store is the key/value backend behind the video caches.
// Get returns (nil, nil) on a miss so callers can fall through to disk.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// RedisStore implements Store on a Redis client.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a RedisStore.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			// 缓存未命中，不算错误
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, data []byte, expiration time.Duration) error {
	return s.client.Set(ctx, key, data, expiration).Err()
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}
