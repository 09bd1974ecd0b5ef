package tools

import (
	"context"

	"deep-researcher/pkg/interfaces"
)

// MaxArchiveTopK caps the number of archive hits per search
const MaxArchiveTopK = 50

// SearchArchive retrieves passages written by earlier research runs
type SearchArchive struct {
	archive interfaces.Archive
	topK    int
}

// NewSearchArchive creates a new archive search tool
func NewSearchArchive(archive interfaces.Archive, topK int) *SearchArchive {
	if topK <= 0 {
		topK = 5
	}
	return &SearchArchive{archive: archive, topK: topK}
}

// Name returns the tool name
func (s *SearchArchive) Name() string {
	return "search_archive"
}

// Description returns the tool description
func (s *SearchArchive) Description() string {
	return "Search findings from previous research runs by semantic similarity. Useful to reuse earlier work before searching the web."
}

// Schema returns the JSON schema for the tool arguments
func (s *SearchArchive) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "What to look for in earlier findings",
			},
			"top_k": map[string]any{
				"type":        "integer",
				"description": "Number of passages to return",
				"minimum":     1,
				"maximum":     MaxArchiveTopK,
			},
		},
		"required": []string{"query"},
	}
}

// Execute searches the archive
func (s *SearchArchive) Execute(ctx context.Context, input *ToolInput) (*ToolResult, error) {
	query, ok := stringArg(input.Data, "query")
	if !ok {
		return failure("query field is required and must be a non-empty string"), nil
	}
	topK := intArg(input.Data, "top_k", s.topK, 1, MaxArchiveTopK)

	hits, err := s.archive.Search(ctx, query, topK)
	if err != nil {
		return failure("archive search failed: %v", err), nil
	}

	var sources []interfaces.Source
	for _, hit := range hits {
		if hit.Source != "" {
			sources = append(sources, interfaces.Source{URL: hit.Source})
		}
	}

	return &ToolResult{
		Success: true,
		Data: map[string]any{
			"query":    query,
			"passages": hits,
		},
		Sources: sources,
	}, nil
}
