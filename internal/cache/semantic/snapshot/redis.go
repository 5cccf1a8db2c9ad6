package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the snapshot under a single redis key.
type RedisStore struct {
	client redis.UniversalClient
	key    string
	owned  bool
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig, key string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.Addr, err)
	}
	return &RedisStore{client: client, key: key, owned: true}, nil
}

// NewRedisStoreFromClient wraps an existing client. Close leaves the
// client open.
func NewRedisStoreFromClient(client redis.UniversalClient, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

func (r *RedisStore) Name() string { return BackendRedis }

func (r *RedisStore) Save(ctx context.Context, data []byte) error {
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	return data, nil
}

// Ping checks the connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}
