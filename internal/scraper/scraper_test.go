package scraper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deep-researcher/internal/config"
	"deep-researcher/internal/transport"
	"deep-researcher/pkg/interfaces"
)

func testClient() *transport.HTTPClient {
	return transport.NewHTTPClient(transport.ClientOptions{RetryMax: 1, RetryBackoff: time.Millisecond})
}

func TestFirecrawlSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/search", r.URL.Path)
		assert.Equal(t, "Bearer fc_test", r.Header.Get("Authorization"))

		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "remote work real estate", req["query"])
		assert.Equal(t, float64(2), req["limit"])

		_, _ = w.Write([]byte(`{"success":true,"data":[
			{"url":"https://a.example/report","title":"Report A","description":"Office vacancies"},
			{"url":"","title":"skipped"},
			{"url":"https://b.example","title":"B","description":"Housing"}
		]}`))
	}))
	defer server.Close()

	fc := NewFirecrawl(server.URL, "fc_test", 1024, testClient())
	results, err := fc.Search(context.Background(), "remote work real estate", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "https://a.example/report", results[0].URL)
	assert.Equal(t, "Office vacancies", results[0].Snippet)
	assert.Equal(t, "https://b.example", results[1].URL)
}

func TestFirecrawlScrapeTruncates(t *testing.T) {
	long := strings.Repeat("word ", 1000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/scrape", r.URL.Path)
		var req firecrawlScrapeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"markdown"}, req.Formats)

		resp := map[string]any{
			"success": true,
			"data": map[string]any{
				"markdown": long,
				"metadata": map[string]any{"title": "Long page", "sourceURL": req.URL},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	fc := NewFirecrawl(server.URL+"/", "fc_test", 1024, testClient())
	page, err := fc.Scrape(context.Background(), "https://a.example/long")
	require.NoError(t, err)
	assert.Equal(t, "Long page", page.Title)
	assert.True(t, page.Truncated)
	assert.True(t, strings.HasSuffix(page.Content, "[TRUNCATED]"))
	assert.LessOrEqual(t, len(page.Content), 1024+len("\n[TRUNCATED]"))
}

func TestFirecrawlErrorsAreResearchErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/search" {
			_, _ = w.Write([]byte(`{"success":false,"error":"quota exceeded"}`))
			return
		}
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer server.Close()

	fc := NewFirecrawl(server.URL, "fc_test", 1024, testClient())

	_, err := fc.Search(context.Background(), "q", 3)
	require.Error(t, err)
	assert.True(t, interfaces.IsResearchError(err))
	assert.Contains(t, err.Error(), "quota exceeded")

	_, err = fc.Scrape(context.Background(), "https://a.example")
	var rerr *interfaces.ResearchError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "firecrawl.scrape", rerr.Tool)

	_, err = fc.Search(context.Background(), "   ", 3)
	assert.True(t, interfaces.IsResearchError(err))
}

const liteResults = `<html><body><table>
<tr><td>1.</td><td><a rel="nofollow" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fa.example%2Fremote&amp;rut=abc" class='result-link'>Remote work and offices</a></td></tr>
<tr><td></td><td class='result-snippet'>Vacancy rates  rose in <b>2023</b>.</td></tr>
<tr><td>2.</td><td><a rel="nofollow" href="https://b.example/housing" class='result-link'>Housing prices</a></td></tr>
<tr><td></td><td class='result-snippet'>Suburbs gained.</td></tr>
<tr><td>3.</td><td><a rel="nofollow" href="https://c.example" class='result-link'>Third</a></td></tr>
<tr><td></td><td class='result-snippet'>More.</td></tr>
</table></body></html>`

func TestDirectSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "remote work", r.Form.Get("q"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(liteResults))
	}))
	defer server.Close()

	d := NewDirect(server.URL, 1024, testClient(), nil)
	results, err := d.Search(context.Background(), "remote work", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "https://a.example/remote", results[0].URL)
	assert.Equal(t, "Remote work and offices", results[0].Title)
	assert.Equal(t, "Vacancy rates rose in 2023.", results[0].Snippet)
	assert.Equal(t, "https://b.example/housing", results[1].URL)
}

func TestDirectScrapeExtractsText(t *testing.T) {
	page := `<html><head><title>City Report</title><style>.x{}</style></head><body>
<nav><a href="/">Home</a></nav>
<main>
<h2>Offices</h2>
<p>Demand for   office space fell.</p>
<ul><li>Vacancy up</li><li>Rents flat</li></ul>
<script>var tracking = 1;</script>
</main>
<footer>Copyright</footer>
</body></html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	defer server.Close()

	d := NewDirect("", 4096, testClient(), nil)
	got, err := d.Scrape(context.Background(), server.URL+"/report")
	require.NoError(t, err)
	assert.Equal(t, "City Report", got.Title)
	assert.Equal(t, "## Offices\nDemand for office space fell.\n- Vacancy up\n- Rents flat", got.Content)
	assert.NotContains(t, got.Content, "tracking")
	assert.NotContains(t, got.Content, "Copyright")
	assert.False(t, got.Truncated)
}

func TestDirectScrapeStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	d := NewDirect("", 4096, testClient(), nil)
	_, err := d.Scrape(context.Background(), server.URL)
	assert.True(t, interfaces.IsResearchError(err))
}

func TestExtractTextFallsBackToBody(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><body><div>Just   some text</div></body></html>`))
	require.NoError(t, err)
	_, text := ExtractText(doc)
	assert.Equal(t, "Just some text", text)
}

func TestResolveResultURL(t *testing.T) {
	assert.Equal(t, "https://x.example/a", resolveResultURL("//duckduckgo.com/l/?uddg=https%3A%2F%2Fx.example%2Fa"))
	assert.Equal(t, "https://y.example", resolveResultURL("https://y.example"))
	assert.Equal(t, "", resolveResultURL("javascript:void(0)"))
	assert.Equal(t, "", resolveResultURL(""))
}

func TestTruncateRespectsRunes(t *testing.T) {
	s := strings.Repeat("é", 10) // 20 bytes
	out, truncated := truncate(s, 5)
	assert.True(t, truncated)
	assert.Equal(t, "éé\n[TRUNCATED]", out)

	out, truncated = truncate("short", 100)
	assert.False(t, truncated)
	assert.Equal(t, "short", out)
}

type countingBackend struct {
	searches int32
	scrapes  int32
}

func (c *countingBackend) Name() string { return "counting" }

func (c *countingBackend) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	atomic.AddInt32(&c.searches, 1)
	return []SearchResult{{Title: query, URL: "https://a.example"}}, nil
}

func (c *countingBackend) Scrape(ctx context.Context, url string) (*Page, error) {
	atomic.AddInt32(&c.scrapes, 1)
	return &Page{URL: url, Content: "content"}, nil
}

func TestCachingBackend(t *testing.T) {
	inner := &countingBackend{}
	cached := NewCaching(inner, 10, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := cached.Search(ctx, "q", 5)
		require.NoError(t, err)
		page, err := cached.Scrape(ctx, "https://a.example")
		require.NoError(t, err)
		page.Content = "mutated"
	}

	_, err := cached.Search(ctx, "q", 3)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&inner.searches))
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.scrapes))

	page, err := cached.Scrape(ctx, "https://a.example")
	require.NoError(t, err)
	assert.Equal(t, "content", page.Content)
}

func TestFactoryCreate(t *testing.T) {
	f := NewFactory(nil, zerolog.Nop())

	cfg := config.DefaultConfig().Scraper
	backend, err := f.Create(cfg)
	require.NoError(t, err)
	assert.Equal(t, "firecrawl", backend.Name())
	assert.IsType(t, &Caching{}, backend)

	cfg.Provider = "direct"
	cfg.CacheSize = 0
	backend, err = f.Create(cfg)
	require.NoError(t, err)
	assert.IsType(t, &Direct{}, backend)

	cfg.Provider = "bing"
	_, err = f.Create(cfg)
	assert.Error(t, err)
}

func TestDirectScrapeRefusesNonPublicHosts(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte("internal"))
	}))
	defer server.Close()

	guarded := transport.NewHTTPClient(transport.ClientOptions{PublicOnly: true})
	d := NewDirect("", 4096, testClient(), guarded)

	port := server.URL[strings.LastIndex(server.URL, ":")+1:]
	for _, target := range []string{server.URL, "http://localhost:" + port + "/admin"} {
		_, err := d.Scrape(context.Background(), target)
		require.Error(t, err, target)
		assert.True(t, interfaces.IsResearchError(err))
		assert.ErrorIs(t, err, transport.ErrBlockedAddress)
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))

	for _, target := range []string{"file:///etc/passwd", "ftp://files.example/report", "/relative/path"} {
		_, err := d.Scrape(context.Background(), target)
		require.Error(t, err, target)
		assert.Contains(t, err.Error(), "only absolute http and https urls")
	}
}
