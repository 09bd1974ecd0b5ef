package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deep-researcher/internal/config"
	"deep-researcher/internal/coordinator"
	"deep-researcher/pkg/interfaces"
)

type fakeRunner struct {
	query string
	err   error
}

func (f *fakeRunner) Run(ctx context.Context, query string) (*interfaces.Report, error) {
	f.query = query
	if f.err != nil {
		return nil, f.err
	}
	return &interfaces.Report{
		RunID:       "run-1",
		Query:       query,
		Content:     "# Report\n\nBody.",
		Synthesized: true,
		Findings: []*interfaces.Finding{
			{SubtaskID: "offices", Title: "Offices", Status: interfaces.FindingCompleted, Content: "x"},
		},
		GeneratedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

func (f *fakeRunner) PlanOnly(ctx context.Context, query string) (*interfaces.Plan, []interfaces.Subtask, error) {
	f.query = query
	if f.err != nil {
		return nil, nil, f.err
	}
	return &interfaces.Plan{Query: query, Topics: []string{"Offices"}},
		[]interfaces.Subtask{{ID: "offices", Title: "Offices", TopicIndex: 1, Topic: "Offices"}}, nil
}

// reportingRunner also reports its last fan-out
type reportingRunner struct {
	fakeRunner
}

func (r *reportingRunner) LastFanOut() coordinator.EngineStats {
	return coordinator.EngineStats{Total: 3, Completed: 2, Failed: 1}
}

type fakeArchive struct {
	query string
	topK  int
}

func (a *fakeArchive) Store(ctx context.Context, runID string, findings []*interfaces.Finding) error {
	return nil
}

func (a *fakeArchive) Search(ctx context.Context, query string, topK int) ([]interfaces.ArchiveHit, error) {
	a.query, a.topK = query, topK
	return []interfaces.ArchiveHit{{RunID: "run-0", SubtaskID: "offices", Text: "Vacancy rose.", Score: 0.9}}, nil
}

func (a *fakeArchive) Close() error { return nil }

type decoded struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, decoded) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var resp decoded
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func newServer(runner Runner, archive interfaces.Archive) *Server {
	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = "secret-token"
	cfg.Scraper.APIKey = "fc-secret"
	return New(cfg, runner, archive, zerolog.Nop())
}

func TestHealth(t *testing.T) {
	rec, resp := do(t, newServer(&fakeRunner{}, nil), http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.Contains(t, string(resp.Data), `"status":"healthy"`)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotContains(t, string(resp.Data), "last_fan_out")
}

func TestHealthReportsLastFanOut(t *testing.T) {
	rec, resp := do(t, newServer(&reportingRunner{}, nil), http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(resp.Data), `"last_fan_out":{"total":3,"completed":2,"failed":1,"duration":0}`)
}

func TestResearch(t *testing.T) {
	runner := &fakeRunner{}
	rec, resp := do(t, newServer(runner, nil), http.MethodPost, "/api/v1/research", `{"query":"Impact of remote work"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Impact of remote work", runner.query)

	var data ResearchResponse
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "run-1", data.Report.RunID)
	assert.Contains(t, data.Markdown, "## Research Coverage")
	assert.Contains(t, data.Markdown, "| offices | Offices | completed | 0 sources |")
}

func TestResearchErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{name: "bad json", body: `{`, status: http.StatusBadRequest},
		{name: "missing query", body: `{}`, status: http.StatusBadRequest},
		{name: "blank query", body: `{"query":"  "}`, err: interfaces.ErrEmptyQuery, status: http.StatusBadRequest},
		{name: "planner failure", body: `{"query":"q"}`, err: &interfaces.GenerationError{Stage: "planner", Message: "no topics"}, status: http.StatusBadGateway},
		{name: "canceled", body: `{"query":"q"}`, err: context.Canceled, status: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := do(t, newServer(&fakeRunner{err: tt.err}, nil), http.MethodPost, "/api/v1/research", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestPlan(t *testing.T) {
	rec, resp := do(t, newServer(&fakeRunner{}, nil), http.MethodPost, "/api/v1/plan", `{"query":"Impact of remote work"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var data PlanResponse
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, []string{"Offices"}, data.Plan.Topics)
	require.Len(t, data.Subtasks, 1)
	assert.Equal(t, "offices", data.Subtasks[0].ID)
}

func TestArchiveSearch(t *testing.T) {
	rec, _ := do(t, newServer(&fakeRunner{}, nil), http.MethodGet, "/api/v1/archive/search?query=offices", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	archive := &fakeArchive{}
	s := newServer(&fakeRunner{}, archive)

	rec, _ = do(t, s, http.MethodGet, "/api/v1/archive/search", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp := do(t, s, http.MethodGet, "/api/v1/archive/search?query=offices&top_k=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "offices", archive.query)
	assert.Equal(t, 3, archive.topK)
	assert.Contains(t, string(resp.Data), "Vacancy rose.")

	do(t, s, http.MethodGet, "/api/v1/archive/search?query=offices&top_k=many", "")
	assert.Equal(t, config.DefaultConfig().Archive.TopK, archive.topK)

	for value, want := range map[string]int{"1000000": 50, "0": 1, "-4": 1, "50": 50} {
		rec, _ = do(t, s, http.MethodGet, "/api/v1/archive/search?query=offices&top_k="+value, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, want, archive.topK, "top_k=%s", value)
	}
}

func TestConfigIsMasked(t *testing.T) {
	rec, resp := do(t, newServer(&fakeRunner{}, nil), http.MethodGet, "/api/v1/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, string(resp.Data), "secret-token")
	assert.NotContains(t, string(resp.Data), "fc-secret")
	assert.Contains(t, string(resp.Data), `"***"`)
}

func TestCORSPreflight(t *testing.T) {
	rec, _ := do(t, newServer(&fakeRunner{}, nil), http.MethodOptions, "/api/v1/research", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestMetricsEndpoint(t *testing.T) {
	rec, _ := do(t, newServer(&fakeRunner{}, nil), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartStopsOnCancel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Address = "127.0.0.1:0"
	s := New(cfg, &fakeRunner{}, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
