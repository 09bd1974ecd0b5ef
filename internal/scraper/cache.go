package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/bluele/gcache"

	"deep-researcher/internal/metrics"
)

// Caching memoizes search and scrape results of another backend so pages
// shared by several sub-agents are fetched once
type Caching struct {
	next  Backend
	cache gcache.Cache
	ttl   time.Duration
}

// NewCaching wraps next with an LRU cache of size entries expiring after ttl
func NewCaching(next Backend, size int, ttl time.Duration) *Caching {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Caching{
		next:  next,
		cache: gcache.New(size).LRU().Expiration(ttl).Build(),
		ttl:   ttl,
	}
}

// Name returns the wrapped backend name
func (c *Caching) Name() string { return c.next.Name() }

// Search returns cached results for the same query and limit
func (c *Caching) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	key := fmt.Sprintf("search:%d:%s", limit, query)
	if val, err := c.cache.Get(key); err == nil {
		if results, ok := val.([]SearchResult); ok {
			metrics.ScraperCacheTotal.WithLabelValues("hit").Inc()
			return results, nil
		}
	}
	metrics.ScraperCacheTotal.WithLabelValues("miss").Inc()

	results, err := c.next.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	c.put(key, results)
	return results, nil
}

// Scrape returns the cached page for url
func (c *Caching) Scrape(ctx context.Context, url string) (*Page, error) {
	key := "scrape:" + url
	if val, err := c.cache.Get(key); err == nil {
		if page, ok := val.(*Page); ok {
			metrics.ScraperCacheTotal.WithLabelValues("hit").Inc()
			copied := *page
			return &copied, nil
		}
	}
	metrics.ScraperCacheTotal.WithLabelValues("miss").Inc()

	page, err := c.next.Scrape(ctx, url)
	if err != nil {
		return nil, err
	}
	c.put(key, page)
	copied := *page
	return &copied, nil
}

func (c *Caching) put(key string, val interface{}) {
	if err := c.cache.SetWithExpire(key, val, c.ttl); err != nil {
		c.cache.Remove(key)
	}
}
