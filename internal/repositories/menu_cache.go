package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cardapio/internal/models"

	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss is returned by MenuCache.Get when nothing is cached.
var ErrCacheMiss = errors.New("cache miss")

// MenuCache caches the full menu listing.
type MenuCache interface {
	Get(ctx context.Context) ([]models.MenuItem, error)
	Set(ctx context.Context, items []models.MenuItem) error
	Invalidate(ctx context.Context) error
}

const menuCacheKey = "cardapio:menu_items"

// RedisMenuCache stores the menu as one JSON value.
type RedisMenuCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisMenuCache creates a cache whose entries expire after ttl.
func NewRedisMenuCache(client *redis.Client, ttl time.Duration) *RedisMenuCache {
	return &RedisMenuCache{client: client, ttl: ttl}
}

func (c *RedisMenuCache) Get(ctx context.Context) ([]models.MenuItem, error) {
	data, err := c.client.Get(ctx, menuCacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var items []models.MenuItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("unmarshal menu failed: %w", err)
	}
	return items, nil
}

func (c *RedisMenuCache) Set(ctx context.Context, items []models.MenuItem) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal menu failed: %w", err)
	}
	if err := c.client.Set(ctx, menuCacheKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *RedisMenuCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, menuCacheKey).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// NopMenuCache never holds anything.
type NopMenuCache struct{}

func (NopMenuCache) Get(context.Context) ([]models.MenuItem, error) { return nil, ErrCacheMiss }
func (NopMenuCache) Set(context.Context, []models.MenuItem) error { return nil }
func (NopMenuCache) Invalidate(context.Context) error { return nil }
