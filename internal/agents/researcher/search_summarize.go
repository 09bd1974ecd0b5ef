package researcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"deep-researcher/internal/config"
	"deep-researcher/internal/llm"
	"deep-researcher/internal/prompts"
	"deep-researcher/internal/scraper"
	"deep-researcher/internal/tools"
	"deep-researcher/pkg/interfaces"
)

const maxQueryWords = 32

// SearchSummarizeAgent gathers material with a fixed search then scrape
// sequence and summarizes it in a single LLM call. It serves models
// without tool calling support.
type SearchSummarizeAgent struct {
	base
	scrapeTopN int
}

// NewSearchSummarizeAgent creates a search and summarize sub-agent
func NewSearchSummarizeAgent(provider llm.Provider, cfg config.LLMConfig, scrapeTopN int, logger zerolog.Logger) *SearchSummarizeAgent {
	return &SearchSummarizeAgent{
		base: base{
			provider: provider,
			prompts:  prompts.Default(),
			cfg:      cfg,
			logger:   logger.With().Str("component", "subagent").Logger(),
		},
		scrapeTopN: scrapeTopN,
	}
}

// Research searches for subtask, scrapes the best results and summarizes
func (a *SearchSummarizeAgent) Research(ctx context.Context, subtask interfaces.Subtask, registry *tools.Registry) (*interfaces.Finding, error) {
	start := time.Now()
	logger := a.logger.With().Str("subtask_id", subtask.ID).Logger()
	sources := newSourceSet()

	args, _ := json.Marshal(map[string]any{"query": searchQuery(subtask)})
	search, err := registry.Execute(ctx, llm.ToolCall{ID: "search", Name: "web_search", Arguments: string(args)})
	if err != nil {
		return nil, err
	}
	if !search.Success {
		return nil, &interfaces.ResearchError{SubtaskID: subtask.ID, Tool: "web_search", Message: search.Error}
	}
	results, _ := search.Data["results"].([]scraper.SearchResult)
	if len(results) == 0 {
		return nil, &interfaces.ResearchError{SubtaskID: subtask.ID, Tool: "web_search", Message: "search returned no results"}
	}
	sources.add(search.Sources...)

	var material strings.Builder
	for i, r := range results {
		material.WriteString(fmt.Sprintf("### [%d] %s\nURL: %s\n", i+1, r.Title, r.URL))
		if r.Snippet != "" {
			material.WriteString(fmt.Sprintf("Snippet: %s\n", r.Snippet))
		}

		if i < a.scrapeTopN {
			args, _ := json.Marshal(map[string]string{"url": r.URL})
			page, err := registry.Execute(ctx, llm.ToolCall{ID: fmt.Sprintf("scrape-%d", i+1), Name: "scrape_url", Arguments: string(args)})
			if err != nil {
				return nil, err
			}
			if page.Success {
				if content, _ := page.Data["content"].(string); content != "" {
					material.WriteString("Content:\n")
					material.WriteString(content)
					material.WriteString("\n")
				}
			} else {
				logger.Debug().Str("url", r.URL).Str("error", page.Error).Msg("scrape failed, keeping snippet only")
			}
		}
		material.WriteString("\n")
	}

	prompt, err := a.prompts.Render(prompts.SearchSummarize, prompts.Fields{
		"Query":              subtask.Query,
		"Objective":          subtask.Objective,
		"SubtaskID":          subtask.ID,
		"SubtaskTitle":       subtask.Title,
		"SubtaskDescription": subtask.Description,
		"Material":           strings.TrimSpace(material.String()),
	})
	if err != nil {
		return nil, err
	}

	resp, err := a.complete(ctx, subtask, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, nil)
	if err != nil {
		return nil, err
	}

	finding, err := completedFinding(subtask, resp.Content, sources, resp.Usage.ToUsage())
	if err != nil {
		return nil, err
	}
	finding.Duration = time.Since(start)
	return finding, nil
}

// searchQuery derives a web search query from the subtask title and
// description, capped at a length search engines accept
func searchQuery(subtask interfaces.Subtask) string {
	words := strings.Fields(subtask.Title + " " + subtask.Description)
	if len(words) > maxQueryWords {
		words = words[:maxQueryWords]
	}
	return strings.Join(words, " ")
}
