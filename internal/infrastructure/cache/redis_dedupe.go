package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	appsync "github.com/meschain/marketsync/internal/application/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/config"
)

// DefaultKeyPrefix namespaces webhook dedupe keys
const DefaultKeyPrefix = "marketsync:webhook:"

// RedisDedupeStore shares webhook dedupe state between server instances
type RedisDedupeStore struct {
	client    redis.Cmdable
	keyPrefix string
}

// NewRedisClient connects to Redis and pings it
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisDedupeStore wraps an existing client
func NewRedisDedupeStore(client redis.Cmdable, keyPrefix string) *RedisDedupeStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisDedupeStore{client: client, keyPrefix: keyPrefix}
}

// Claim sets the key with SETNX and the given ttl
func (s *RedisDedupeStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim webhook key: %w", err)
	}
	return ok, nil
}

// Release deletes the key
func (s *RedisDedupeStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("release webhook key: %w", err)
	}
	return nil
}

var _ appsync.DedupeStore = (*RedisDedupeStore)(nil)
