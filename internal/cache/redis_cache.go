package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"stocktrack/internal/domain"
)

type RedisAlertCache struct {
	client *redis.Client
}

func NewRedisAlertCache(addr string, password string, db int) *RedisAlertCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisAlertCache{client: client}
}

func (c *RedisAlertCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisAlertCache) Close() error {
	return c.client.Close()
}

func (c *RedisAlertCache) Get(ctx context.Context, key string) (*domain.StockAlerts, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var alerts domain.StockAlerts
	if err := json.Unmarshal([]byte(val), &alerts); err != nil {
		return nil, false, err
	}
	return &alerts, true, nil
}

func (c *RedisAlertCache) Set(ctx context.Context, key string, value *domain.StockAlerts, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
