package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"pinturapos/backend/internal/domain"
)

type RedisNearestBranchCache struct {
	client *redis.Client
}

func NewRedisNearestBranchCache(addr string, password string, db int) *RedisNearestBranchCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisNearestBranchCache{client: client}
}

func (c *RedisNearestBranchCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisNearestBranchCache) Close() error {
	return c.client.Close()
}

func (c *RedisNearestBranchCache) Get(ctx context.Context, key string) (*domain.NearestBranch, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var resp domain.NearestBranch
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		return nil, false, err
	}
	return &resp, true, nil
}

func (c *RedisNearestBranchCache) Set(ctx context.Context, key string, value *domain.NearestBranch, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
