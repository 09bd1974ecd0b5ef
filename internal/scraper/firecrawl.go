package scraper

import (
	"context"
	"errors"
	"strings"

	"deep-researcher/internal/transport"
	"deep-researcher/pkg/interfaces"
)

// Firecrawl implements Backend over the Firecrawl REST API
type Firecrawl struct {
	baseURL  string
	maxBytes int
	client   *transport.HTTPClient
}

type firecrawlSearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type firecrawlSearchResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    []struct {
		URL         string `json:"url"`
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"data"`
}

type firecrawlScrapeRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
}

type firecrawlScrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    struct {
		Markdown string `json:"markdown"`
		Metadata struct {
			Title     string `json:"title"`
			SourceURL string `json:"sourceURL"`
		} `json:"metadata"`
	} `json:"data"`
}

// NewFirecrawl creates a Firecrawl backend. The API key is sent as a bearer
// token on every request.
func NewFirecrawl(baseURL, apiKey string, maxBytes int, client *transport.HTTPClient) *Firecrawl {
	if client == nil {
		client = transport.NewHTTPClient(transport.ClientOptions{})
	}
	return &Firecrawl{
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxBytes: maxBytes,
		client:   client.WithAPIKey(apiKey),
	}
}

// Name returns the backend name
func (f *Firecrawl) Name() string { return "firecrawl" }

// Search runs a web search
func (f *Firecrawl) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &interfaces.ResearchError{Tool: "firecrawl.search", Message: "query is empty"}
	}

	var resp firecrawlSearchResponse
	err := f.client.PostJSON(ctx, f.baseURL+"/v1/search", firecrawlSearchRequest{Query: query, Limit: limit}, &resp)
	if err != nil {
		return nil, &interfaces.ResearchError{Tool: "firecrawl.search", Message: "request failed", Err: err}
	}
	if !resp.Success {
		return nil, &interfaces.ResearchError{Tool: "firecrawl.search", Message: "search failed", Err: errors.New(resp.Error)}
	}

	results := make([]SearchResult, 0, len(resp.Data))
	for _, d := range resp.Data {
		if d.URL == "" {
			continue
		}
		results = append(results, SearchResult{Title: d.Title, URL: d.URL, Snippet: d.Description})
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, nil
}

// Scrape fetches a page as Markdown
func (f *Firecrawl) Scrape(ctx context.Context, url string) (*Page, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, &interfaces.ResearchError{Tool: "firecrawl.scrape", Message: "url is empty"}
	}

	var resp firecrawlScrapeResponse
	req := firecrawlScrapeRequest{URL: url, Formats: []string{"markdown"}, OnlyMainContent: true}
	if err := f.client.PostJSON(ctx, f.baseURL+"/v1/scrape", req, &resp); err != nil {
		return nil, &interfaces.ResearchError{Tool: "firecrawl.scrape", Message: "request failed", Err: err}
	}
	if !resp.Success {
		return nil, &interfaces.ResearchError{Tool: "firecrawl.scrape", Message: "scrape failed", Err: errors.New(resp.Error)}
	}

	content, truncated := truncate(strings.TrimSpace(resp.Data.Markdown), f.maxBytes)
	return &Page{
		URL:       url,
		Title:     resp.Data.Metadata.Title,
		Content:   content,
		Truncated: truncated,
	}, nil
}
