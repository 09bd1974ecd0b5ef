package tools

import (
	"context"

	"deep-researcher/internal/scraper"
	"deep-researcher/pkg/interfaces"
)

const maxSearchLimit = 20

// WebSearch searches the web through the configured scraper backend
type WebSearch struct {
	backend      scraper.Backend
	defaultLimit int
}

// NewWebSearch creates a new web search tool
func NewWebSearch(backend scraper.Backend, defaultLimit int) *WebSearch {
	if defaultLimit <= 0 {
		defaultLimit = 5
	}
	return &WebSearch{backend: backend, defaultLimit: defaultLimit}
}

// Name returns the tool name
func (w *WebSearch) Name() string {
	return "web_search"
}

// Description returns the tool description
func (w *WebSearch) Description() string {
	return "Search the web for current information. Returns a list of results with title, url and a short snippet. Use scrape_url afterwards to read the most relevant pages in full."
}

// Schema returns the JSON schema for the tool arguments
func (w *WebSearch) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query. Be specific and include key terms, places and dates.",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum number of results to return (1-20)",
				"minimum":     1,
				"maximum":     maxSearchLimit,
			},
		},
		"required": []string{"query"},
	}
}

// Execute runs the search
func (w *WebSearch) Execute(ctx context.Context, input *ToolInput) (*ToolResult, error) {
	query, ok := stringArg(input.Data, "query")
	if !ok {
		return failure("query field is required and must be a non-empty string"), nil
	}
	limit := intArg(input.Data, "limit", w.defaultLimit, 1, maxSearchLimit)

	results, err := w.backend.Search(ctx, query, limit)
	if err != nil {
		return failure("search failed: %v", err), nil
	}

	sources := make([]interfaces.Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, interfaces.Source{Title: r.Title, URL: r.URL})
	}

	return &ToolResult{
		Success: true,
		Data: map[string]any{
			"query":   query,
			"results": results,
		},
		Sources: sources,
	}, nil
}
