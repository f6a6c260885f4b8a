package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Key layout: urgify:settings:{shop} holds the rendered widget settings the
// storefront embed fetches, urgify:products:{shop} the product snapshot the
// stock-alert widget reads.
const (
	settingsKeyFmt = "urgify:settings:%s"
	productsKeyFmt = "urgify:products:%s"
)

// RedisCache invalidates the storefront-facing cache entries. It only ever
// deletes keys; the storefront path repopulates them on the next read.
type RedisCache struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisCache creates a new redis storefront cache
func NewRedisCache(client *redis.Client, logger zerolog.Logger) *RedisCache {
	return &RedisCache{client: client, logger: logger}
}

// InvalidateProducts drops the shop's cached product snapshot.
func (c *RedisCache) InvalidateProducts(ctx context.Context, shop string) error {
	return c.del(ctx, fmt.Sprintf(productsKeyFmt, shop))
}

// InvalidateWidget drops the shop's cached widget settings.
func (c *RedisCache) InvalidateWidget(ctx context.Context, shop string) error {
	return c.del(ctx, fmt.Sprintf(settingsKeyFmt, shop))
}

// PurgeShop drops every cached key for the shop.
func (c *RedisCache) PurgeShop(ctx context.Context, shop string) error {
	return c.del(ctx,
		fmt.Sprintf(settingsKeyFmt, shop),
		fmt.Sprintf(productsKeyFmt, shop))
}

func (c *RedisCache) del(ctx context.Context, keys ...string) error {
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cache keys: %w", err)
	}
	c.logger.Debug().Strs("keys", keys).Msg("Invalidated storefront cache keys")
	return nil
}
