package coordinator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deep-researcher/internal/config"
	"deep-researcher/internal/llm"
	"deep-researcher/internal/llm/llmtest"
	"deep-researcher/internal/scraper"
	"deep-researcher/internal/scraper/scrapertest"
	"deep-researcher/pkg/interfaces"
)

const remoteWorkQuery = "Impact of remote work on urban real estate"

const planJSON = `{
	"objective": "I want to understand how remote work changed cities.",
	"topics": ["Office vacancy trends", "Residential demand shifts", "Municipal tax base effects"]
}`

const subtasksJSON = `{"subtasks": [
	{"id": "offices", "title": "Office vacancies", "description": "Vacancy rates 2019-2024", "topic_index": 1},
	{"id": "housing", "title": "Housing demand", "description": "Suburban demand", "topic_index": 2},
	{"id": "tax", "title": "Tax base", "description": "Property tax revenue", "topic_index": 3}
]}`

// fakeArchive records what the coordinator stores
type fakeArchive struct {
	mu       sync.Mutex
	runID    string
	stored   []*interfaces.Finding
	storeErr error
}

func (a *fakeArchive) Store(ctx context.Context, runID string, findings []*interfaces.Finding) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runID = runID
	a.stored = append(a.stored, findings...)
	return a.storeErr
}

func (a *fakeArchive) Search(ctx context.Context, query string, topK int) ([]interfaces.ArchiveHit, error) {
	return nil, nil
}

func (a *fakeArchive) Close() error { return nil }

func testConfig() *config.ResearcherConfig {
	cfg := config.DefaultConfig()
	cfg.Coordinator.MaxConcurrency = 3
	cfg.Coordinator.SubtaskTimeout = 5 * time.Second
	return cfg
}

func scriptedProvider() *llmtest.FakeProvider {
	provider := llmtest.NewFakeProvider()
	provider.AddContent(llm.StagePlanner, planJSON)
	provider.AddContent(llm.StageSplitter, subtasksJSON)
	provider.AddContent(llm.StageSynthesis, "# Remote work and cities\n\nOffices emptied.")
	return provider
}

func newBackend() *scrapertest.FakeBackend {
	backend := scrapertest.NewFakeBackend()
	backend.AddResults("*", scraper.SearchResult{Title: "Offices", URL: "https://a.example/offices"})
	backend.AddPage("https://a.example/offices", "Offices", "Vacancy rose to 20 percent.")
	return backend
}

func build(t *testing.T, cfg *config.ResearcherConfig, provider llm.Provider, archive interfaces.Archive) *Coordinator {
	t.Helper()
	c, err := Build(cfg, provider, newBackend(), archive, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func findingByID(r *interfaces.Report, id string) *interfaces.Finding {
	for _, f := range r.Findings {
		if f.SubtaskID == id {
			return f
		}
	}
	return nil
}

func TestRunHappyPath(t *testing.T) {
	provider := scriptedProvider()
	archive := &fakeArchive{}
	c := build(t, testConfig(), provider, archive)

	r, err := c.Run(context.Background(), "  "+remoteWorkQuery+"  ")
	require.NoError(t, err)

	assert.Equal(t, 1, provider.CallsForStage(llm.StagePlanner))
	assert.Equal(t, 1, provider.CallsForStage(llm.StageSplitter))
	assert.Equal(t, 3, provider.CallsForStage(llm.StageSubagent))
	assert.Equal(t, 1, provider.CallsForStage(llm.StageSynthesis))

	assert.NotEmpty(t, r.RunID)
	assert.Equal(t, remoteWorkQuery, r.Query)
	assert.True(t, r.Synthesized)
	assert.False(t, r.Incomplete)
	assert.Empty(t, r.FailedSubtasks)
	assert.Equal(t, "# Remote work and cities\n\nOffices emptied.", r.Content)

	require.Len(t, r.Findings, 3)
	for i, id := range []string{"offices", "housing", "tax"} {
		assert.Equal(t, id, r.Findings[i].SubtaskID)
		assert.True(t, r.Findings[i].Completed())
	}

	assert.Equal(t, 6, r.Usage.Calls)
	assert.Equal(t, 180, r.Usage.TotalTokens)
	assert.False(t, r.GeneratedAt.IsZero())

	fanOut := c.LastFanOut()
	assert.Equal(t, 3, fanOut.Total)
	assert.Equal(t, 3, fanOut.Completed)
	assert.Equal(t, 0, fanOut.Failed)
	assert.Greater(t, r.Duration, time.Duration(0))

	assert.Equal(t, r.RunID, archive.runID)
	assert.Len(t, archive.stored, 3)
}

func TestRunSubagentFailureIsolated(t *testing.T) {
	provider := scriptedProvider()
	provider.AddError(llmtest.Key(llm.StageSubagent, "tax"), errors.New("model overloaded"))
	archive := &fakeArchive{}
	c := build(t, testConfig(), provider, archive)

	r, err := c.Run(context.Background(), remoteWorkQuery)
	require.NoError(t, err)

	assert.True(t, r.Incomplete)
	assert.True(t, r.Synthesized)
	assert.Equal(t, []string{"tax"}, r.FailedSubtasks)

	tax := findingByID(r, "tax")
	require.NotNil(t, tax)
	assert.Equal(t, interfaces.FindingUnavailable, tax.Status)
	assert.Contains(t, tax.Error, "model overloaded")
	assert.True(t, findingByID(r, "offices").Completed())

	synthesisPrompt := provider.GetLastRequest().Messages[1].Content
	assert.Contains(t, synthesisPrompt, "UNAVAILABLE")

	assert.Len(t, archive.stored, 2, "only completed findings are archived")
}

func TestRunAllSubtasksFailStillReports(t *testing.T) {
	provider := scriptedProvider()
	provider.AddError(llm.StageSubagent, errors.New("service unavailable"))
	c := build(t, testConfig(), provider, nil)

	r, err := c.Run(context.Background(), remoteWorkQuery)
	require.NoError(t, err)

	assert.Equal(t, 1, provider.CallsForStage(llm.StageSynthesis))
	assert.True(t, r.Incomplete)
	assert.Len(t, r.FailedSubtasks, 3)
	for _, f := range r.Findings {
		assert.False(t, f.Completed())
	}
}

func TestRunSubtaskTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Coordinator.SubtaskTimeout = 100 * time.Millisecond

	provider := scriptedProvider()
	provider.AddDelay(llmtest.Key(llm.StageSubagent, "tax"), 5*time.Second)
	c := build(t, cfg, provider, nil)

	start := time.Now()
	r, err := c.Run(context.Background(), remoteWorkQuery)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 4*time.Second)

	tax := findingByID(r, "tax")
	require.NotNil(t, tax)
	assert.Equal(t, "timed out", tax.Error)
	assert.Equal(t, []string{"tax"}, r.FailedSubtasks)
	assert.True(t, r.Synthesized)
}

func TestRunSubagentPanicRecovered(t *testing.T) {
	provider := scriptedProvider()
	provider.AddPanic(llmtest.Key(llm.StageSubagent, "offices"), "boom")
	c := build(t, testConfig(), provider, nil)

	r, err := c.Run(context.Background(), remoteWorkQuery)
	require.NoError(t, err)

	offices := findingByID(r, "offices")
	require.NotNil(t, offices)
	assert.Equal(t, interfaces.FindingUnavailable, offices.Status)
	assert.Contains(t, offices.Error, "panicked: boom")
	assert.True(t, findingByID(r, "housing").Completed())
}

func TestRunSynthesisFallback(t *testing.T) {
	provider := scriptedProvider()
	provider.AddError(llm.StageSynthesis, errors.New("context length exceeded"))
	c := build(t, testConfig(), provider, nil)

	r, err := c.Run(context.Background(), remoteWorkQuery)
	require.NoError(t, err)

	assert.Equal(t, 1, provider.CallsForStage(llm.StageSynthesis))
	assert.Equal(t, 6, r.Usage.Calls)
	assert.False(t, r.Synthesized)
	assert.True(t, strings.HasPrefix(r.Content, "# Research Report: "+remoteWorkQuery))
	assert.Contains(t, r.Content, "Mock response for: subagent:offices")
}

func TestRunAbortsOnPlanningFailures(t *testing.T) {
	t.Run("planner", func(t *testing.T) {
		provider := scriptedProvider()
		provider.AddError(llm.StagePlanner, errors.New("unauthorized"))
		c := build(t, testConfig(), provider, nil)

		r, err := c.Run(context.Background(), remoteWorkQuery)
		assert.Nil(t, r)
		assert.True(t, interfaces.IsGenerationError(err))
		assert.Equal(t, 0, provider.CallsForStage(llm.StageSplitter))
	})

	t.Run("splitter", func(t *testing.T) {
		provider := scriptedProvider()
		provider.AddContent(llm.StageSplitter, "no json here")
		c := build(t, testConfig(), provider, nil)

		r, err := c.Run(context.Background(), remoteWorkQuery)
		assert.Nil(t, r)
		assert.True(t, interfaces.IsGenerationError(err))
		assert.Equal(t, 0, provider.CallsForStage(llm.StageSubagent))
	})

	t.Run("empty query", func(t *testing.T) {
		provider := scriptedProvider()
		c := build(t, testConfig(), provider, nil)

		_, err := c.Run(context.Background(), "   ")
		assert.ErrorIs(t, err, interfaces.ErrEmptyQuery)
		assert.Equal(t, 0, provider.GetCallCount())
	})
}

func TestRunCanceled(t *testing.T) {
	provider := scriptedProvider()
	provider.AddDelay(llm.StageSubagent, 5*time.Second)
	archive := &fakeArchive{}
	c := build(t, testConfig(), provider, archive)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	r, err := c.Run(ctx, remoteWorkQuery)
	assert.Nil(t, r)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.Equal(t, 0, provider.CallsForStage(llm.StageSynthesis))
	assert.Empty(t, archive.stored)
}

func TestRunArchiveFailureIgnored(t *testing.T) {
	provider := scriptedProvider()
	archive := &fakeArchive{storeErr: errors.New("milvus down")}
	c := build(t, testConfig(), provider, archive)

	r, err := c.Run(context.Background(), remoteWorkQuery)
	require.NoError(t, err)
	assert.True(t, r.Synthesized)
}

func TestPlanOnly(t *testing.T) {
	provider := scriptedProvider()
	c := build(t, testConfig(), provider, nil)

	plan, subtasks, err := c.PlanOnly(context.Background(), remoteWorkQuery)
	require.NoError(t, err)
	assert.Len(t, plan.Topics, 3)
	require.Len(t, subtasks, 3)
	assert.Equal(t, "Residential demand shifts", subtasks[1].Topic)
	assert.Equal(t, 2, provider.GetCallCount())
}

func TestBuildRejectsUnknownMode(t *testing.T) {
	cfg := testConfig()
	cfg.Coordinator.SubagentMode = "telepathy"
	_, err := Build(cfg, llmtest.NewFakeProvider(), newBackend(), nil, zerolog.Nop())
	assert.True(t, interfaces.IsConfigurationError(err))
}

func TestNewRequiresStages(t *testing.T) {
	_, err := New(config.DefaultConfig().Coordinator, Dependencies{}, zerolog.Nop())
	assert.Error(t, err)
}
