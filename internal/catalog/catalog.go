// Package catalog serves the provider's model catalog and the image-input
// capability checks made against it.
package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tandem-chat/backend/internal/llm"
	"github.com/tandem-chat/backend/internal/platform/logger"
)

// Source fetches the live model catalog.
type Source interface {
	ListModels(ctx context.Context) ([]llm.ModelInfo, error)
}

// Cache stores a fetched catalog between requests.
type Cache interface {
	Get(ctx context.Context) ([]llm.ModelInfo, bool)
	Set(ctx context.Context, models []llm.ModelInfo)
}

// Provider layers a cache over a Source and collapses concurrent fetches.
type Provider struct {
	source Source
	cache  Cache
	group  singleflight.Group
	log    *logger.Logger
}

func NewProvider(source Source, cache Cache, log *logger.Logger) *Provider {
	return &Provider{source: source, cache: cache, log: log}
}

// Models returns the catalog, from cache when fresh.
func (p *Provider) Models(ctx context.Context) ([]llm.ModelInfo, error) {
	if models, ok := p.cache.Get(ctx); ok {
		return models, nil
	}
	v, err, _ := p.group.Do("models", func() (any, error) {
		models, err := p.source.ListModels(ctx)
		if err != nil {
			return nil, err
		}
		p.cache.Set(ctx, models)
		p.log.Debug("model catalog refreshed", "models", len(models))
		return models, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch model catalog: %w", err)
	}
	return v.([]llm.ModelInfo), nil
}

// MemoryCache is an in-process TTL cache for the catalog.
type MemoryCache struct {
	ttl time.Duration

	mu        sync.Mutex
	models    []llm.ModelInfo
	fetchedAt time.Time
}

var _ Cache = (*MemoryCache)(nil)

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl}
}

func (c *MemoryCache) Get(ctx context.Context) ([]llm.ModelInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.models == nil || time.Since(c.fetchedAt) > c.ttl {
		return nil, false
	}
	return c.models, true
}

func (c *MemoryCache) Set(ctx context.Context, models []llm.ModelInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models = models
	c.fetchedAt = time.Now()
}
