package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"retailpos/backend/internal/domain"
)

type RedisReceiptCache struct {
	client *redis.Client
}

func NewRedisReceiptCache(addr string, password string, db int) *RedisReceiptCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisReceiptCache{client: client}
}

func (c *RedisReceiptCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReceiptCache) Close() error {
	return c.client.Close()
}

func (c *RedisReceiptCache) Get(ctx context.Context, receiptNumber string) (*domain.ReceiptLookup, bool, error) {
	val, err := c.client.Get(ctx, cacheKey(receiptNumber)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var lookup domain.ReceiptLookup
	if err := json.Unmarshal([]byte(val), &lookup); err != nil {
		return nil, false, err
	}
	return &lookup, true, nil
}

func (c *RedisReceiptCache) Set(ctx context.Context, receiptNumber string, value *domain.ReceiptLookup, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(receiptNumber), payload, ttl).Err()
}

func (c *RedisReceiptCache) Delete(ctx context.Context, receiptNumber string) error {
	return c.client.Del(ctx, cacheKey(receiptNumber)).Err()
}

func cacheKey(receiptNumber string) string {
	return "receipt:" + receiptNumber
}
