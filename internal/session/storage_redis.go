package session

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "cochera:session:"

type RedisEphemeralStore struct {
	client *redis.Client
}

func NewRedisEphemeralStore(client *redis.Client) *RedisEphemeralStore {
	return &RedisEphemeralStore{client: client}
}

func (r *RedisEphemeralStore) Get(ctx context.Context, key string) ([]byte, error) {
	blob, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return blob, nil
}

func (r *RedisEphemeralStore) Set(ctx context.Context, key string, blob []byte, ttl time.Duration) error {
	return r.client.Set(ctx, redisKeyPrefix+key, blob, ttl).Err()
}

func (r *RedisEphemeralStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, redisKeyPrefix+key).Err()
}
