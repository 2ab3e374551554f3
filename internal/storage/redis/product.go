// Package redis caches product detail reads in Redis.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/domain/product"
)

// DefaultTTL bounds how long a cached product may be served after a write
// that failed to invalidate it.
const DefaultTTL = 5 * time.Minute

var (
	_ product.Repository       = (*ProductCache)(nil)
	_ product.CacheInvalidator = (*ProductCache)(nil)
)

// ProductCache serves GetBySlug from Redis and delegates every other read to
// the wrapped repository. Cache failures degrade to the repository.
type ProductCache struct {
	product.Repository
	client *redis.Client
	ttl    time.Duration
}

// NewProductCache wraps repo with a Redis-backed slug cache.
func NewProductCache(repo product.Repository, client *redis.Client, ttl time.Duration) *ProductCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ProductCache{Repository: repo, client: client, ttl: ttl}
}

func productKey(slug string) string {
	return "kart:product:" + slug
}

// GetBySlug returns the cached product or loads and caches it.
func (c *ProductCache) GetBySlug(ctx context.Context, slug string) (*product.Product, error) {
	lg := zctx.From(ctx)

	b, err := c.client.Get(ctx, productKey(slug)).Bytes()
	switch {
	case err == nil:
		var p product.Product
		if err := json.Unmarshal(b, &p); err == nil {
			return &p, nil
		}
		lg.Warn("Dropping undecodable cached product", zap.String("slug", slug))
	case !errors.Is(err, redis.Nil):
		lg.Warn("Product cache read failed", zap.String("slug", slug), zap.Error(err))
	}

	p, err := c.Repository.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(p); err == nil {
		if err := c.client.Set(ctx, productKey(slug), b, c.ttl).Err(); err != nil {
			lg.Warn("Product cache write failed", zap.String("slug", slug), zap.Error(err))
		}
	}
	return p, nil
}

// InvalidateProduct drops the cached entry of slug.
func (c *ProductCache) InvalidateProduct(ctx context.Context, slug string) error {
	if err := c.client.Del(ctx, productKey(slug)).Err(); err != nil {
		return errors.Wrapf(err, "invalidate product %q", slug)
	}
	return nil
}
