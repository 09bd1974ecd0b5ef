package tools

import (
	"context"
	"net/url"

	"deep-researcher/internal/scraper"
	"deep-researcher/pkg/interfaces"
)

// ScrapeURL reads a web page as Markdown or plain text
type ScrapeURL struct {
	backend scraper.Backend
}

// NewScrapeURL creates a new scrape tool
func NewScrapeURL(backend scraper.Backend) *ScrapeURL {
	return &ScrapeURL{backend: backend}
}

// Name returns the tool name
func (s *ScrapeURL) Name() string {
	return "scrape_url"
}

// Description returns the tool description
func (s *ScrapeURL) Description() string {
	return "Fetch a web page and return its main content as Markdown. Long pages are truncated."
}

// Schema returns the JSON schema for the tool arguments
func (s *ScrapeURL) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Absolute http(s) URL of the page to read",
			},
		},
		"required": []string{"url"},
	}
}

// Execute scrapes the page
func (s *ScrapeURL) Execute(ctx context.Context, input *ToolInput) (*ToolResult, error) {
	raw, ok := stringArg(input.Data, "url")
	if !ok {
		return failure("url field is required and must be a non-empty string"), nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return failure("url must be an absolute http or https URL"), nil
	}

	page, err := s.backend.Scrape(ctx, raw)
	if err != nil {
		return failure("scrape failed: %v", err), nil
	}

	return &ToolResult{
		Success: true,
		Data: map[string]any{
			"url":       page.URL,
			"title":     page.Title,
			"content":   page.Content,
			"truncated": page.Truncated,
		},
		Sources: []interfaces.Source{{Title: page.Title, URL: page.URL}},
	}, nil
}
