package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ptitcal:token:"

// RedisStore keeps one key per service/username, for headless deployments
// that already run redis.
type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisStoreFromURL connects to redisURL and verifies the connection.
func NewRedisStoreFromURL(ctx context.Context, redisURL string) (*RedisStore, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis token store requires REDIS_URL")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisStore(client), nil
}

func (s *RedisStore) Get(ctx context.Context, service, username string) (string, error) {
	v, err := s.client.Get(ctx, redisKeyPrefix+key(service, username)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read redis token: %w", err)
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, service, username, value string) error {
	if err := s.client.Set(ctx, redisKeyPrefix+key(service, username), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write redis token: %w", err)
	}
	return nil
}
