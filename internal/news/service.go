package news

import (
	"context"
	"strconv"
	"sync"
	"time"

	"eth-scalper/internal/api"
	"eth-scalper/internal/interfaces"
	"eth-scalper/internal/logger"
	"eth-scalper/internal/store"
	"eth-scalper/internal/trace"
	"eth-scalper/internal/types"
)

// Source is one headline provider.
type Source interface {
	Name() string
	Fetch(ctx context.Context, query string, count int) ([]types.NewsItem, error)
}

// WhaleSource reports large on-chain transfers.
type WhaleSource interface {
	LargeTransfers(ctx context.Context, minValue float64) ([]types.LargeTransfer, error)
}

// Service implements interfaces.Sentiment: cached headlines from the first source
// that returns any, plus whale transfers. Failures degrade to empty results.
type Service struct {
	sources []Source
	whales  WhaleSource
	cache   *headlineCache
	enabled bool
}

var _ interfaces.Sentiment = (*Service)(nil)

type ServiceConfig struct {
	Enabled       bool
	CacheDuration time.Duration
}

func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Enabled:       true,
		CacheDuration: time.Minute,
	}
}

type headlineCache struct {
	mu   sync.RWMutex
	data map[string]*cacheEntry
	ttl  time.Duration
	now  func() time.Time
}

type cacheEntry struct {
	items     []types.NewsItem
	timestamp time.Time
}

func newHeadlineCache(ttl time.Duration) *headlineCache {
	return &headlineCache{
		data: make(map[string]*cacheEntry),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (c *headlineCache) get(key string) ([]types.NewsItem, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[key]
	if !ok || c.now().Sub(entry.timestamp) > c.ttl {
		return nil, false
	}
	return entry.items, true
}

func (c *headlineCache) set(key string, items []types.NewsItem) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.data {
		if now.Sub(e.timestamp) > c.ttl {
			delete(c.data, k)
		}
	}
	c.data[key] = &cacheEntry{items: items, timestamp: now}
}

func NewService(serviceCfg *ServiceConfig, whales WhaleSource, sources ...Source) *Service {
	if serviceCfg == nil {
		serviceCfg = DefaultServiceConfig()
	}
	return &Service{
		sources: sources,
		whales:  whales,
		cache:   newHeadlineCache(serviceCfg.CacheDuration),
		enabled: serviceCfg.Enabled,
	}
}

// NewServiceFromConfig wires NewsAPI (when a key is present) ahead of the RSS fallback.
// opts are applied to the NewsAPI client after the rate limit.
func NewServiceFromConfig(cfg *store.Config, newsAPIKey string, whales WhaleSource, opts ...api.ClientOption) *Service {
	var sources []Source
	if newsAPIKey != "" {
		clientOpts := append([]api.ClientOption{api.WithRateLimit(cfg.News.RatePerMinute, 1)}, opts...)
		sources = append(sources, NewNewsAPI(newsAPIKey, clientOpts...))
	}
	if cfg.News.ScraperFallback {
		sources = append(sources, NewScraper(cfg.News.FeedURL, time.Duration(cfg.Exchange.TimeoutSeconds)*time.Second))
	}
	return NewService(&ServiceConfig{
		Enabled:       cfg.News.Enabled,
		CacheDuration: time.Duration(cfg.News.CacheSeconds) * time.Second,
	}, whales, sources...)
}

func (s *Service) Headlines(ctx context.Context, query string, count int) []types.NewsItem {
	if !s.enabled || len(s.sources) == 0 {
		return nil
	}
	ctx, span := trace.StartSpan(ctx, "news.Headlines")
	defer span.End()

	key := query + "|" + strconv.Itoa(count)
	if cached, ok := s.cache.get(key); ok {
		logger.Debug(ctx, "Using cached headlines", "query", query, "articles", len(cached))
		return cached
	}

	for _, src := range s.sources {
		items, err := src.Fetch(ctx, query, count)
		if err != nil {
			logger.Warn(ctx, "Headline source failed", "source", src.Name(), "error", err)
			continue
		}
		if len(items) == 0 {
			continue
		}
		if count > 0 && len(items) > count {
			items = items[:count]
		}
		s.cache.set(key, items)
		logger.Debug(ctx, "Fetched fresh headlines", "source", src.Name(), "articles", len(items))
		return items
	}
	return nil
}

func (s *Service) LargeTransfers(ctx context.Context, minValue float64) []types.LargeTransfer {
	if s.whales == nil {
		return nil
	}
	out, err := s.whales.LargeTransfers(ctx, minValue)
	if err != nil {
		logger.Warn(ctx, "Whale watch failed", "error", err)
		return nil
	}
	return out
}
