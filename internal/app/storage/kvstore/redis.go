package kvstore

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"

	"github.com/shf-platform/credit_layer/internal/app/storage"
)

// RedisKV implements storage.KV on a Redis backend so multiple server
// instances observe the same persisted state.
type RedisKV struct {
	client *redis.Client
	prefix string
}

var _ storage.KV = (*RedisKV)(nil)

// NewRedisKV wraps a Redis client. The prefix namespaces every key.
func NewRedisKV(client *redis.Client, prefix string) *RedisKV {
	return &RedisKV{client: client, prefix: prefix}
}

func (r *RedisKV) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, r.key(key), value, 0).Err()
}

func (r *RedisKV) Remove(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}
