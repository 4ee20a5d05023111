package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultWikipediaTopK     = 1
	defaultWikipediaMaxChars = 100
	wikipediaMaxQueryLen     = 300
	wikipediaTimeout         = 20 * time.Second

	noWikipediaResult = "No good Wikipedia Search Result was found"
)

// WikipediaConfig holds configuration for the wikipedia tool.
type WikipediaConfig struct {
	TopK     int    // number of search hits summarized (default 1)
	MaxChars int    // cap on the whole tool output (default 100)
	Lang     string // wiki language edition (default "en")
	// APIURL overrides the MediaWiki endpoint (tests).
	APIURL   string
	CacheTTL time.Duration
}

// WikipediaTool searches Wikipedia and returns the intro summary of the top hits.
type WikipediaTool struct {
	apiURL   string
	topK     int
	maxChars int
	client   *http.Client
	cache    *webCache
}

func NewWikipediaTool(cfg WikipediaConfig) *WikipediaTool {
	topK := cfg.TopK
	if topK <= 0 {
		topK = defaultWikipediaTopK
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = defaultWikipediaMaxChars
	}
	apiURL := cfg.APIURL
	if apiURL == "" {
		lang := cfg.Lang
		if lang == "" {
			lang = "en"
		}
		apiURL = fmt.Sprintf("https://%s.wikipedia.org/w/api.php", lang)
	}
	return &WikipediaTool{
		apiURL:   apiURL,
		topK:     topK,
		maxChars: maxChars,
		client:   &http.Client{Timeout: wikipediaTimeout},
		cache:    newWebCache(defaultCacheMaxEntries, cfg.CacheTTL),
	}
}

func (t *WikipediaTool) Name() string { return "wikipedia" }

func (t *WikipediaTool) Description() string {
	return "A wrapper around Wikipedia. Useful for when you need to answer general questions about " +
		"people, places, companies, facts, historical events, or other subjects. Input should be a search query."
}

func (t *WikipediaTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "query to look up on wikipedia",
			},
		},
		"required": []string{"query"},
	}
}

func (t *WikipediaTool) Execute(ctx context.Context, args map[string]any) *Result {
	query := strings.TrimSpace(stringArg(args, "query"))
	if query == "" {
		return ErrorResult("query is required")
	}
	query, _ = truncateRunes(query, wikipediaMaxQueryLen)

	if cached, ok := t.cache.get("wiki:" + query); ok {
		return NewResult(cached)
	}

	out, err := t.run(ctx, query)
	if err != nil {
		return ErrorResult(fmt.Sprintf("wikipedia lookup failed: %v", err)).WithError(err)
	}
	t.cache.set("wiki:"+query, out)
	return NewResult(out)
}

func (t *WikipediaTool) run(ctx context.Context, query string) (string, error) {
	titles, err := t.searchTitles(ctx, query)
	if err != nil {
		return "", err
	}

	// Summaries are fetched concurrently but keep search order.
	summaries := make([]string, len(titles))
	g, gctx := errgroup.WithContext(ctx)
	for i, title := range titles {
		g.Go(func() error {
			extract, err := t.fetchExtract(gctx, title)
			if err != nil {
				return err
			}
			if extract != "" {
				summaries[i] = fmt.Sprintf("Page: %s\nSummary: %s", title, extract)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var found []string
	for _, s := range summaries {
		if s != "" {
			found = append(found, s)
		}
	}
	if len(found) == 0 {
		return noWikipediaResult, nil
	}
	out, _ := truncateRunes(strings.Join(found, "\n\n"), t.maxChars)
	return out, nil
}

func (t *WikipediaTool) searchTitles(ctx context.Context, query string) ([]string, error) {
	var body struct {
		Query struct {
			Search []struct {
				Title string `json:"title"`
			} `json:"search"`
		} `json:"query"`
	}
	params := url.Values{
		"action":        {"query"},
		"list":          {"search"},
		"srsearch":      {query},
		"srlimit":       {fmt.Sprint(t.topK)},
		"format":        {"json"},
		"formatversion": {"2"},
	}
	if err := t.get(ctx, params, &body); err != nil {
		return nil, err
	}

	titles := make([]string, 0, len(body.Query.Search))
	for _, s := range body.Query.Search {
		titles = append(titles, s.Title)
	}
	if len(titles) > t.topK {
		titles = titles[:t.topK]
	}
	return titles, nil
}

// fetchExtract returns the plain-text intro of a page, or "" when the page is
// missing or is a disambiguation page.
func (t *WikipediaTool) fetchExtract(ctx context.Context, title string) (string, error) {
	var body struct {
		Query struct {
			Pages []struct {
				Title     string `json:"title"`
				Extract   string `json:"extract"`
				Missing   bool   `json:"missing"`
				PageProps struct {
					Disambiguation *string `json:"disambiguation"`
				} `json:"pageprops"`
			} `json:"pages"`
		} `json:"query"`
	}
	params := url.Values{
		"action":        {"query"},
		"prop":          {"extracts|pageprops"},
		"exintro":       {"1"},
		"explaintext":   {"1"},
		"redirects":     {"1"},
		"titles":        {title},
		"format":        {"json"},
		"formatversion": {"2"},
	}
	if err := t.get(ctx, params, &body); err != nil {
		return "", err
	}
	for _, p := range body.Query.Pages {
		if p.Missing || p.PageProps.Disambiguation != nil {
			continue
		}
		if extract := strings.TrimSpace(p.Extract); extract != "" {
			return extract, nil
		}
	}
	return "", nil
}

func (t *WikipediaTool) get(ctx context.Context, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", webUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("mediawiki returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode mediawiki response: %w", err)
	}
	return nil
}
