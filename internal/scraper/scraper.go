// Package scraper provides web search and page scraping backends used by
// the research tools.
package scraper

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"deep-researcher/internal/config"
	"deep-researcher/internal/transport"
)

// SearchResult is one hit returned by a web search
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Page is the readable content of a scraped URL
type Page struct {
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Backend searches the web and scrapes pages
type Backend interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	Scrape(ctx context.Context, url string) (*Page, error)
}

// Factory creates scraping backends
type Factory struct {
	limiters *transport.RateLimiter
	logger   zerolog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(limiters *transport.RateLimiter, logger zerolog.Logger) *Factory {
	if limiters == nil {
		limiters = transport.NewRateLimiter()
	}
	return &Factory{limiters: limiters, logger: logger}
}

// Create builds the configured backend, wrapped in a cache when enabled
func (f *Factory) Create(cfg config.ScraperConfig) (Backend, error) {
	limiter := f.limiters.GetLimiter("scraper", cfg.RequestsPerSecond, cfg.Burst)
	client := transport.NewHTTPClient(transport.ClientOptions{
		Timeout:  cfg.Timeout,
		RetryMax: cfg.RetryMax,
		Limiter:  limiter,
	})

	var backend Backend
	switch cfg.Provider {
	case "firecrawl":
		backend = NewFirecrawl(cfg.BaseURL, cfg.APIKey, cfg.MaxPageBytes, client)
	case "direct":
		pageClient := transport.NewHTTPClient(transport.ClientOptions{
			Timeout:    cfg.Timeout,
			RetryMax:   cfg.RetryMax,
			Limiter:    limiter,
			PublicOnly: true,
		})
		backend = NewDirect(cfg.SearchURL, cfg.MaxPageBytes, client, pageClient)
	default:
		return nil, fmt.Errorf("unsupported scraper provider: %s", cfg.Provider)
	}

	if cfg.CacheSize > 0 {
		backend = NewCaching(backend, cfg.CacheSize, cfg.CacheTTL)
	}

	f.logger.Debug().Str("provider", cfg.Provider).Int("cache_size", cfg.CacheSize).Msg("scraper backend created")
	return backend, nil
}

// truncate caps s at max bytes on a rune boundary
func truncate(s string, max int) (string, bool) {
	if max <= 0 || len(s) <= max {
		return s, false
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut]) + "\n[TRUNCATED]", true
}
