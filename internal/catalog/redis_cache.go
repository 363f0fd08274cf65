package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tandem-chat/backend/internal/llm"
	"github.com/tandem-chat/backend/internal/platform/logger"
)

const redisCatalogKey = "tandem:catalog:models"

// RedisCache shares a fetched catalog across processes. Cache failures are
// treated as misses; the catalog can always be re-fetched from the source.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *logger.Logger
}

var _ Cache = (*RedisCache)(nil)

func NewRedisCache(rdb *redis.Client, ttl time.Duration, log *logger.Logger) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl, log: log}
}

func (c *RedisCache) Get(ctx context.Context) ([]llm.ModelInfo, bool) {
	raw, err := c.rdb.Get(ctx, redisCatalogKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("catalog cache read failed", "error", err)
		}
		return nil, false
	}
	var models []llm.ModelInfo
	if err := json.Unmarshal(raw, &models); err != nil {
		c.log.Warn("catalog cache entry corrupt, discarding", "error", err)
		return nil, false
	}
	return models, true
}

func (c *RedisCache) Set(ctx context.Context, models []llm.ModelInfo) {
	raw, err := json.Marshal(models)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, redisCatalogKey, raw, c.ttl).Err(); err != nil {
		c.log.Warn("catalog cache write failed", "error", err)
	}
}
