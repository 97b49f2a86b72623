// Package cache содержит кэш списка категорий.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmeshcher/storefront/internal/metrics"
)

// Cache хранит значения в виде JSON.
type Cache interface {
	// Get возвращает true при попадании и заполняет dest.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Redis хранит кэш в Redis.
type Redis struct {
	client  *redis.Client
	metrics *metrics.Metrics
}

// NewRedis подключается к Redis и проверяет соединение.
func NewRedis(ctx context.Context, addr, password string, m *metrics.Metrics) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: redis ping: %w", err)
	}

	return &Redis{client: client, metrics: m}, nil
}

// Get читает значение по ключу.
func (c *Redis) Get(ctx context.Context, key string, dest any) (bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.metrics.CacheLookup(false)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: get %s: %w", key, err)
	}

	if err := json.Unmarshal(val, dest); err != nil {
		c.metrics.CacheLookup(false)
		return false, fmt.Errorf("cache: decode %s: %w", key, err)
	}

	c.metrics.CacheLookup(true)
	return true, nil
}

// Set сохраняет значение на ttl.
func (c *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// Delete удаляет ключи.
func (c *Redis) Delete(ctx context.Context, keys ...string) error {
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache: delete: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis.
func (c *Redis) Close() error {
	return c.client.Close()
}

// Nop ничего не хранит. Используется, если Redis не настроен.
type Nop struct{}

func (Nop) Get(context.Context, string, any) (bool, error)        { return false, nil }
func (Nop) Set(context.Context, string, any, time.Duration) error { return nil }
func (Nop) Delete(context.Context, ...string) error               { return nil }
