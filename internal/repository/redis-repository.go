package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis_v9 "github.com/redis/go-redis/v9"
)

type RedisRepo struct {
	client *redis_v9.Client
}

func NewRedisRepo(client *redis_v9.Client) *RedisRepo {
	return &RedisRepo{client: client}
}

func (rr *RedisRepo) SaveStructCached(ctx context.Context, key string, model any, ttl time.Duration) error {
	val, err := json.Marshal(model)
	if err != nil {
		return fmt.Errorf("error saving struct to cache: %w", err)
	}
	if err := rr.client.Set(ctx, key, val, ttl).Err(); err != nil {
		return fmt.Errorf("error saving struct to cache: %w", err)
	}
	return nil
}

// GetStructCached decodes the cached value into model. A cache miss is
// reported as ErrNotFound so callers can fall through to the database.
func (rr *RedisRepo) GetStructCached(ctx context.Context, key string, model any) error {
	raw, err := rr.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis_v9.Nil) {
			return fmt.Errorf("cache key %s: %w", key, ErrNotFound)
		}
		return fmt.Errorf("error reading struct from cache: %w", err)
	}
	return json.Unmarshal(raw, model)
}

func (rr *RedisRepo) DeleteKey(ctx context.Context, key string) error {
	return rr.client.Del(ctx, key).Err()
}

func (rr *RedisRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	iter := rr.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := rr.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// SetFlag stores a boolean flag such as the maintenance switch.
func (rr *RedisRepo) SetFlag(ctx context.Context, key string, value bool, ttl time.Duration) error {
	v := "0"
	if value {
		v = "1"
	}
	return rr.client.Set(ctx, key, v, ttl).Err()
}

// GetFlag reads a boolean flag; a missing key reads as false.
func (rr *RedisRepo) GetFlag(ctx context.Context, key string) (bool, error) {
	raw, err := rr.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis_v9.Nil) {
			return false, nil
		}
		return false, err
	}
	return raw == "1", nil
}
