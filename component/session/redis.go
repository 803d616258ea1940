package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces session keys in redis.
const DefaultKeyPrefix = "inspirer:session:"

// RedisBackend stores sessions in redis, shared by every replica. Expiry is
// left to redis.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend connects to the redis server at url, e.g.
// redis://:password@localhost:6379/0.
func NewRedisBackend(ctx context.Context, url string, poolSize int, prefix string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if poolSize > 0 {
		opts.PoolSize = poolSize
	}
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return &RedisBackend{client: client, prefix: prefix}, nil
}

func (s *RedisBackend) key(id string) string {
	return s.prefix + id
}

func (s *RedisBackend) Load(ctx context.Context, id string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, &notFoundError{fmt.Errorf("session %s not found", id)}
	}
	return data, err
}

func (s *RedisBackend) Save(ctx context.Context, id string, data []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(id), data, ttl).Err()
}

func (s *RedisBackend) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

func (s *RedisBackend) Close() error {
	return s.client.Close()
}
