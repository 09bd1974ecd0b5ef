package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"deep-researcher/internal/transport"
	"deep-researcher/pkg/interfaces"
)

const (
	defaultSearchURL = "https://lite.duckduckgo.com/lite/"
	browserUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxHTMLBytes     = 4 << 20
)

// Direct implements Backend without an external scraping service: search
// goes to the DuckDuckGo lite HTML page and pages are fetched and reduced
// to readable text locally
type Direct struct {
	searchURL  string
	maxBytes   int
	client     *transport.HTTPClient
	pageClient *transport.HTTPClient
}

// NewDirect creates a direct backend. client talks to the search page;
// pageClient fetches the URLs the model asks for and defaults to client.
func NewDirect(searchURL string, maxBytes int, client, pageClient *transport.HTTPClient) *Direct {
	if searchURL == "" {
		searchURL = defaultSearchURL
	}
	if client == nil {
		client = transport.NewHTTPClient(transport.ClientOptions{})
	}
	if pageClient == nil {
		pageClient = client
	}
	return &Direct{searchURL: searchURL, maxBytes: maxBytes, client: client, pageClient: pageClient}
}

// Name returns the backend name
func (d *Direct) Name() string { return "direct" }

// Search scrapes the DuckDuckGo lite result page
func (d *Direct) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &interfaces.ResearchError{Tool: "direct.search", Message: "query is empty"}
	}

	form := url.Values{}
	form.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.searchURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &interfaces.ResearchError{Tool: "direct.search", Message: "invalid request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := d.client.Do(ctx, req)
	if err != nil {
		return nil, &interfaces.ResearchError{Tool: "direct.search", Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &interfaces.ResearchError{Tool: "direct.search", Message: fmt.Sprintf("search returned status %d", resp.StatusCode)}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxHTMLBytes))
	if err != nil {
		return nil, &interfaces.ResearchError{Tool: "direct.search", Message: "failed to parse results", Err: err}
	}

	return parseSearchResults(doc, limit), nil
}

// parseSearchResults pairs result links with their snippets in document order
func parseSearchResults(doc *goquery.Document, limit int) []SearchResult {
	var snippets []string
	doc.Find("td.result-snippet").Each(func(i int, s *goquery.Selection) {
		snippets = append(snippets, collapseSpace(s.Text()))
	})

	var results []SearchResult
	seen := make(map[string]bool)
	doc.Find("a.result-link").EachWithBreak(func(i int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		target := resolveResultURL(href)
		title := collapseSpace(s.Text())
		if target == "" || title == "" || seen[target] {
			return true
		}
		seen[target] = true

		result := SearchResult{Title: title, URL: target}
		if i < len(snippets) {
			result.Snippet = snippets[i]
		}
		results = append(results, result)
		return limit <= 0 || len(results) < limit
	})
	return results
}

// resolveResultURL unwraps DuckDuckGo redirect links
func resolveResultURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

// Scrape fetches url and extracts its readable text
func (d *Direct) Scrape(ctx context.Context, pageURL string) (*Page, error) {
	pageURL = strings.TrimSpace(pageURL)
	if pageURL == "" {
		return nil, &interfaces.ResearchError{Tool: "direct.scrape", Message: "url is empty"}
	}

	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &interfaces.ResearchError{Tool: "direct.scrape", Message: "only absolute http and https urls can be scraped", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &interfaces.ResearchError{Tool: "direct.scrape", Message: "invalid url", Err: err}
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := d.pageClient.Do(ctx, req)
	if errors.Is(err, transport.ErrBlockedAddress) {
		return nil, &interfaces.ResearchError{Tool: "direct.scrape", Message: "refusing to fetch a non-public address", Err: err}
	}
	if err != nil {
		return nil, &interfaces.ResearchError{Tool: "direct.scrape", Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &interfaces.ResearchError{Tool: "direct.scrape", Message: fmt.Sprintf("fetch returned status %d", resp.StatusCode)}
	}

	body := io.LimitReader(resp.Body, maxHTMLBytes)
	contentType := resp.Header.Get("Content-Type")

	page := &Page{URL: pageURL}
	if strings.HasPrefix(contentType, "text/plain") || strings.HasPrefix(contentType, "text/markdown") {
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, &interfaces.ResearchError{Tool: "direct.scrape", Message: "failed to read page", Err: err}
		}
		page.Content = strings.TrimSpace(string(data))
	} else {
		doc, err := goquery.NewDocumentFromReader(body)
		if err != nil {
			return nil, &interfaces.ResearchError{Tool: "direct.scrape", Message: "failed to parse page", Err: err}
		}
		page.Title, page.Content = ExtractText(doc)
	}

	page.Content, page.Truncated = truncate(page.Content, d.maxBytes)
	return page, nil
}
