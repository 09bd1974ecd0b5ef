package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deep-researcher/internal/llm"
	"deep-researcher/internal/scraper"
	"deep-researcher/internal/scraper/scrapertest"
	"deep-researcher/pkg/interfaces"
)

type fakeArchive struct {
	hits  []interfaces.ArchiveHit
	err   error
	topK  int
	query string
}

func (a *fakeArchive) Store(ctx context.Context, runID string, findings []*interfaces.Finding) error {
	return nil
}

func (a *fakeArchive) Search(ctx context.Context, query string, topK int) ([]interfaces.ArchiveHit, error) {
	a.query, a.topK = query, topK
	return a.hits, a.err
}

func (a *fakeArchive) Close() error { return nil }

func newBackend() *scrapertest.FakeBackend {
	backend := scrapertest.NewFakeBackend()
	backend.AddResults("remote work offices",
		scraper.SearchResult{Title: "Offices", URL: "https://a.example/offices", Snippet: "vacancy"},
		scraper.SearchResult{Title: "Housing", URL: "https://b.example/housing"},
	)
	backend.AddPage("https://a.example/offices", "Offices", "# Offices\nVacancy rose.")
	return backend
}

func TestResearchRegistryTools(t *testing.T) {
	r := NewResearchRegistry(newBackend(), nil, 5, 5)

	names := []string{}
	for _, tool := range r.List() {
		names = append(names, tool.Name())
	}
	assert.Equal(t, []string{"scrape_url", "web_search"}, names)

	r = NewResearchRegistry(newBackend(), &fakeArchive{}, 5, 5)
	defs := r.Definitions()
	require.Len(t, defs, 3)
	defNames := []string{}
	for _, def := range defs {
		defNames = append(defNames, def.Name)
		assert.Equal(t, "object", def.Parameters["type"])
	}
	assert.Equal(t, []string{"scrape_url", "search_archive", "web_search"}, defNames)

	_, err := r.Get("calculator")
	assert.Error(t, err)
}

func TestWebSearchExecute(t *testing.T) {
	r := NewResearchRegistry(newBackend(), nil, 5, 5)

	result, err := r.Execute(context.Background(), llm.ToolCall{
		ID:        "call_1",
		Name:      "web_search",
		Arguments: `{"query": "remote work offices", "limit": 1}`,
	})
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)

	results := result.Data["results"].([]scraper.SearchResult)
	require.Len(t, results, 1)
	assert.Equal(t, "https://a.example/offices", results[0].URL)
	assert.Equal(t, []interfaces.Source{{Title: "Offices", URL: "https://a.example/offices"}}, result.Sources)
	assert.GreaterOrEqual(t, int64(result.Stats.ExecutionTime), int64(0))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(result.Content()), &decoded))
	assert.Equal(t, "remote work offices", decoded["query"])
}

func TestScrapeURLExecute(t *testing.T) {
	r := NewResearchRegistry(newBackend(), nil, 5, 5)

	result, err := r.Execute(context.Background(), llm.ToolCall{
		Name:      "scrape_url",
		Arguments: `{"url": "https://a.example/offices"}`,
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "# Offices\nVacancy rose.", result.Data["content"])
	assert.Equal(t, "https://a.example/offices", result.Sources[0].URL)
}

func TestExecuteFailuresAreToolErrors(t *testing.T) {
	backend := newBackend()
	r := NewResearchRegistry(backend, nil, 5, 5)

	tests := []struct {
		name    string
		call    llm.ToolCall
		message string
	}{
		{"unknown tool", llm.ToolCall{Name: "calculator", Arguments: `{}`}, "tool not found"},
		{"malformed arguments", llm.ToolCall{Name: "web_search", Arguments: `{"query":`}, "invalid arguments"},
		{"missing query", llm.ToolCall{Name: "web_search", Arguments: `{"limit": 3}`}, "query field is required"},
		{"relative url", llm.ToolCall{Name: "scrape_url", Arguments: `{"url": "/offices"}`}, "absolute http"},
		{"unknown page", llm.ToolCall{Name: "scrape_url", Arguments: `{"url": "https://c.example"}`}, "scrape failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := r.Execute(context.Background(), tt.call)
			require.NoError(t, err)
			assert.False(t, result.Success)
			assert.Contains(t, result.Error, tt.message)
			assert.Contains(t, result.Content(), `"error"`)
		})
	}

	backend.FailSearch(errors.New("rate limited"))
	result, err := r.Execute(context.Background(), llm.ToolCall{Name: "web_search", Arguments: `{"query":"x"}`})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "rate limited")
}

func TestExecuteCanceledContext(t *testing.T) {
	r := NewResearchRegistry(newBackend(), nil, 5, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := r.Execute(ctx, llm.ToolCall{Name: "web_search", Arguments: `{"query":"remote work offices"}`})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, result.Success)
}

func TestSearchArchiveExecute(t *testing.T) {
	archive := &fakeArchive{hits: []interfaces.ArchiveHit{
		{RunID: "run-1", SubtaskID: "task-1", Text: "Vacancy rose", Source: "https://a.example", Score: 0.9},
		{RunID: "run-1", SubtaskID: "task-2", Text: "Rents flat"},
	}}
	r := NewResearchRegistry(newBackend(), archive, 5, 4)

	result, err := r.Execute(context.Background(), llm.ToolCall{Name: "search_archive", Arguments: `{"query":"vacancy"}`})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "vacancy", archive.query)
	assert.Equal(t, 4, archive.topK)
	assert.Len(t, result.Data["passages"], 2)
	assert.Equal(t, []interfaces.Source{{URL: "https://a.example"}}, result.Sources)

	result, err = r.Execute(context.Background(), llm.ToolCall{Name: "search_archive", Arguments: `{"query":"vacancy","top_k":500}`})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, MaxArchiveTopK, archive.topK)
}

func TestIntArg(t *testing.T) {
	data := map[string]any{"a": float64(3), "b": "x", "c": float64(-2), "d": json.Number("7")}
	assert.Equal(t, 3, intArg(data, "a", 5, 1, 10))
	assert.Equal(t, 5, intArg(data, "b", 5, 1, 10))
	assert.Equal(t, 1, intArg(data, "c", 5, 1, 10))
	assert.Equal(t, 7, intArg(data, "d", 5, 1, 10))
	assert.Equal(t, 5, intArg(data, "missing", 5, 1, 10))
}
