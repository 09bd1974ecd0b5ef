// Package scrapertest provides an in-memory scraper backend for tests.
package scrapertest

import (
	"context"
	"fmt"
	"sync"

	"deep-researcher/internal/scraper"
	"deep-researcher/pkg/interfaces"
)

// FakeBackend serves canned search results and pages
type FakeBackend struct {
	mu        sync.Mutex
	results   map[string][]scraper.SearchResult
	pages     map[string]*scraper.Page
	searchErr error
	scrapeErr error
	searches  []string
	scrapes   []string
}

// NewFakeBackend creates an empty fake backend
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		results: make(map[string][]scraper.SearchResult),
		pages:   make(map[string]*scraper.Page),
	}
}

// Name returns the backend name
func (f *FakeBackend) Name() string { return "fake" }

// AddResults sets the results returned for query. The query "*" matches
// any search without its own entry.
func (f *FakeBackend) AddResults(query string, results ...scraper.SearchResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[query] = results
}

// AddPage sets the page returned for url
func (f *FakeBackend) AddPage(url, title, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = &scraper.Page{URL: url, Title: title, Content: content}
}

// FailSearch makes every search return err
func (f *FakeBackend) FailSearch(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchErr = err
}

// FailScrape makes every scrape return err
func (f *FakeBackend) FailScrape(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrapeErr = err
}

// Search returns the canned results for query
func (f *FakeBackend) Search(ctx context.Context, query string, limit int) ([]scraper.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, query)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.searchErr != nil {
		return nil, f.searchErr
	}

	results, ok := f.results[query]
	if !ok {
		results = f.results["*"]
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return append([]scraper.SearchResult(nil), results...), nil
}

// Scrape returns the canned page for url
func (f *FakeBackend) Scrape(ctx context.Context, url string) (*scraper.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrapes = append(f.scrapes, url)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.scrapeErr != nil {
		return nil, f.scrapeErr
	}

	page, ok := f.pages[url]
	if !ok {
		return nil, &interfaces.ResearchError{Tool: "fake.scrape", Message: fmt.Sprintf("no page for %s", url)}
	}
	copied := *page
	return &copied, nil
}

// Searches returns the queries searched so far
func (f *FakeBackend) Searches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.searches...)
}

// Scrapes returns the URLs scraped so far
func (f *FakeBackend) Scrapes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.scrapes...)
}
