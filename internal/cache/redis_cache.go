package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"scanpos/internal/domain"
)

type RedisCompanyCache struct {
	client *redis.Client
}

func NewRedisCompanyCache(addr string, password string, db int) *RedisCompanyCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisCompanyCache{client: client}
}

func (c *RedisCompanyCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCompanyCache) Close() error {
	return c.client.Close()
}

func (c *RedisCompanyCache) Get(ctx context.Context, key string) ([]domain.Company, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var companies []domain.Company
	if err := json.Unmarshal([]byte(val), &companies); err != nil {
		return nil, false, err
	}
	return companies, true, nil
}

func (c *RedisCompanyCache) Set(ctx context.Context, key string, companies []domain.Company, ttl time.Duration) error {
	payload, err := json.Marshal(companies)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
