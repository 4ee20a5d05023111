package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	defaultSearchCount  = 5
	maxSearchCount      = 10
	searchTimeout       = 30 * time.Second
	duckDuckGoSearchURL = "https://html.duckduckgo.com/html/"
)

// WebSearchConfig holds configuration for the web search tool.
type WebSearchConfig struct {
	MaxResults int
	CacheTTL   time.Duration
	// Endpoint overrides the DuckDuckGo HTML endpoint (tests).
	Endpoint string
}

type searchResult struct {
	Title       string
	URL         string
	Description string
}

// WebSearchTool searches the web through DuckDuckGo's HTML endpoint, which
// needs no API key.
type WebSearchTool struct {
	endpoint   string
	maxResults int
	client     *http.Client
	cache      *webCache
}

func NewWebSearchTool(cfg WebSearchConfig) *WebSearchTool {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = duckDuckGoSearchURL
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 || maxResults > maxSearchCount {
		maxResults = defaultSearchCount
	}
	return &WebSearchTool{
		endpoint:   endpoint,
		maxResults: maxResults,
		client:     &http.Client{Timeout: searchTimeout},
		cache:      newWebCache(defaultCacheMaxEntries, cfg.CacheTTL),
	}
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Description() string {
	return "Search the web for information. Returns titles, URLs and snippets."
}

func (t *WebSearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search query string.",
			},
			"count": map[string]any{
				"type":        "number",
				"description": "Number of results to return (1-10).",
				"minimum":     1.0,
				"maximum":     float64(maxSearchCount),
			},
		},
		"required": []string{"query"},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]any) *Result {
	query := strings.TrimSpace(stringArg(args, "query"))
	if query == "" {
		return ErrorResult("query is required")
	}
	count := t.maxResults
	if c := intArg(args, "count", 0); c >= 1 && c <= maxSearchCount {
		count = c
	}

	cacheKey := fmt.Sprintf("search:%s:%d", query, count)
	if cached, ok := t.cache.get(cacheKey); ok {
		slog.Debug("web_search cache hit", "query", query)
		return NewResult(cached)
	}

	results, err := t.search(ctx, query, count)
	if err != nil {
		slog.Warn("web_search failed", "query", query, "error", err)
		return ErrorResult(fmt.Sprintf("search failed: %v", err))
	}

	wrapped := wrapExternalContent(formatSearchResults(query, results), "Web Search", false)
	t.cache.set(cacheKey, wrapped)
	return NewResult(wrapped)
}

func (t *WebSearchTool) search(ctx context.Context, query string, count int) ([]searchResult, error) {
	u := t.endpoint + "?" + url.Values{"q": {query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", webUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo returned HTTP %d", resp.StatusCode)
	}

	return parseDDGResults(io.LimitReader(resp.Body, 2<<20), count)
}

// parseDDGResults pulls result links (class result__a) and their snippets
// (class result__snippet) out of the DuckDuckGo HTML page.
func parseDDGResults(r io.Reader, count int) ([]searchResult, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var results []searchResult
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(results) > count {
			return
		}
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "result__a"):
				results = append(results, searchResult{
					Title: strings.TrimSpace(nodeText(n)),
					URL:   unwrapDDGRedirect(attr(n, "href")),
				})
				return
			case hasClass(n, "result__snippet") && len(results) > 0:
				last := &results[len(results)-1]
				if last.Description == "" {
					last.Description = strings.TrimSpace(nodeText(n))
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if len(results) > count {
		results = results[:count]
	}
	return results, nil
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// unwrapDDGRedirect extracts the target from "//duckduckgo.com/l/?uddg=<url>" links.
func unwrapDDGRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func formatSearchResults(query string, results []searchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for: %s", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for: %s\n\n", query)
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, r.Title, r.URL)
		if r.Description != "" {
			fmt.Fprintf(&sb, "   %s\n", r.Description)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
