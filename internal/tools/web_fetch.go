package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	defaultFetchMaxChars    = 20000
	defaultFetchMaxRedirect = 3
	defaultErrorMaxChars    = 2000
	fetchTimeout            = 30 * time.Second
)

// WebFetchConfig holds configuration for the web fetch tool.
type WebFetchConfig struct {
	MaxChars int
	CacheTTL time.Duration
	// AllowPrivateHosts disables SSRF checks. Only for tests and trusted setups.
	AllowPrivateHosts bool
}

// WebFetchTool downloads a source URL and returns its readable text, so the
// model can check a citation before listing it under sources.
type WebFetchTool struct {
	maxChars     int
	allowPrivate bool
	cache        *webCache
	client       *http.Client
}

func NewWebFetchTool(cfg WebFetchConfig) *WebFetchTool {
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = defaultFetchMaxChars
	}
	t := &WebFetchTool{
		maxChars:     maxChars,
		allowPrivate: cfg.AllowPrivateHosts,
		cache:        newWebCache(defaultCacheMaxEntries, cfg.CacheTTL),
	}
	t.client = &http.Client{
		Timeout: fetchTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > defaultFetchMaxRedirect {
				return fmt.Errorf("stopped after %d redirects", defaultFetchMaxRedirect)
			}
			if t.allowPrivate {
				return nil
			}
			if err := checkSSRF(req.Context(), req.URL.String()); err != nil {
				return fmt.Errorf("redirect SSRF protection: %w", err)
			}
			return nil
		},
	}
	return t
}

func (t *WebFetchTool) Name() string { return "web_fetch" }

func (t *WebFetchTool) Description() string {
	return "Fetch a web page by URL and return its readable text. Use it to read a source before citing it."
}

func (t *WebFetchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "HTTP or HTTPS URL to fetch.",
			},
			"extract_mode": map[string]any{
				"type":        "string",
				"description": `Extraction mode ("markdown" or "text"). Default: "markdown".`,
				"enum":        []string{"markdown", "text"},
			},
			"max_chars": map[string]any{
				"type":        "number",
				"description": "Maximum characters to return (truncates when exceeded).",
				"minimum":     100.0,
			},
		},
		"required": []string{"url"},
	}
}

func (t *WebFetchTool) Execute(ctx context.Context, args map[string]any) *Result {
	rawURL := strings.TrimSpace(stringArg(args, "url"))
	if rawURL == "" {
		return ErrorResult("url is required")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ErrorResult(fmt.Sprintf("invalid URL: %v", err))
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ErrorResult("only http and https URLs are supported")
	}
	if parsed.Host == "" {
		return ErrorResult("missing hostname in URL")
	}

	if !t.allowPrivate {
		if err := checkSSRF(ctx, rawURL); err != nil {
			slog.Warn("security.ssrf_blocked", "url", rawURL, "error", err)
			return ErrorResult(fmt.Sprintf("SSRF protection: %v", err))
		}
	}

	mode := "markdown"
	if m := stringArg(args, "extract_mode"); m == "text" {
		mode = m
	}
	maxChars := t.maxChars
	if mc := intArg(args, "max_chars", 0); mc >= 100 {
		maxChars = mc
	}

	cacheKey := fmt.Sprintf("fetch:%s:%s:%d", rawURL, mode, maxChars)
	if cached, ok := t.cache.get(cacheKey); ok {
		slog.Debug("web_fetch cache hit", "url", rawURL)
		return NewResult(cached)
	}

	out, err := t.fetch(ctx, rawURL, mode, maxChars)
	if err != nil {
		msg, _ := truncateRunes(err.Error(), defaultErrorMaxChars)
		return ErrorResult("fetch failed: " + msg)
	}

	wrapped := wrapExternalContent(out, "Web Fetch", true)
	t.cache.set(cacheKey, wrapped)
	return NewResult(wrapped)
}

func (t *WebFetchTool) fetch(ctx context.Context, rawURL, mode string, maxChars int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", webUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,text/plain;q=0.8,*/*;q=0.5")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	// HTML markup roughly quadruples the byte count of its text.
	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxChars*4)))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	var text, extractor string
	switch {
	case strings.Contains(contentType, "application/json"):
		text, extractor = extractJSON(body)
	case strings.Contains(contentType, "text/html"), strings.Contains(contentType, "application/xhtml"):
		text, err = htmlToText(bytes.NewReader(body), mode == "markdown")
		if err != nil {
			return "", fmt.Errorf("parse html: %w", err)
		}
		extractor = "html-" + mode
	default:
		text, extractor = string(body), "raw"
	}

	text, truncated := truncateRunes(text, maxChars)

	var sb strings.Builder
	fmt.Fprintf(&sb, "URL: %s\n", resp.Request.URL)
	fmt.Fprintf(&sb, "Status: %d\n", resp.StatusCode)
	fmt.Fprintf(&sb, "Extractor: %s\n", extractor)
	if truncated {
		fmt.Fprintf(&sb, "Truncated: true (limit: %d chars)\n", maxChars)
	}
	sb.WriteByte('\n')
	sb.WriteString(text)
	return sb.String(), nil
}

func extractJSON(body []byte) (string, string) {
	var data any
	if err := json.Unmarshal(body, &data); err == nil {
		formatted, _ := json.MarshalIndent(data, "", "  ")
		return string(formatted), "json"
	}
	return string(body), "raw"
}

// --- HTML extraction ---

var (
	reMultiNL = regexp.MustCompile(`\n{3,}`)
	reMultiSP = regexp.MustCompile(`[ \t\f\r]+`)
)

var skippedElements = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true,
	atom.Nav: true, atom.Footer: true, atom.Header: true, atom.Aside: true,
	atom.Svg: true, atom.Iframe: true, atom.Form: true, atom.Head: true,
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true, atom.Main: true,
	atom.Br: true, atom.Hr: true, atom.Tr: true, atom.Table: true, atom.Ul: true, atom.Ol: true,
	atom.Li: true, atom.Pre: true, atom.Blockquote: true, atom.Figure: true, atom.Figcaption: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Dl: true, atom.Dt: true, atom.Dd: true,
}

var headingLevel = map[atom.Atom]int{
	atom.H1: 1, atom.H2: 2, atom.H3: 3, atom.H4: 4, atom.H5: 5, atom.H6: 6,
}

// htmlToText walks the parsed document and keeps readable text. In markdown
// mode headings, list items and links keep their structure.
func htmlToText(r io.Reader, markdown bool) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skippedElements[n.DataAtom] {
				return
			}
			if blockElements[n.DataAtom] {
				sb.WriteString("\n")
			}
			if markdown {
				if lvl, ok := headingLevel[n.DataAtom]; ok {
					sb.WriteString(strings.Repeat("#", lvl) + " ")
				}
				if n.DataAtom == atom.Li {
					sb.WriteString("- ")
				}
				if n.DataAtom == atom.A {
					if href := attr(n, "href"); strings.HasPrefix(href, "http") {
						text := strings.TrimSpace(nodeText(n))
						if text != "" {
							fmt.Fprintf(&sb, "[%s](%s)", text, href)
							return
						}
					}
				}
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.DataAtom] {
			sb.WriteString("\n")
		}
	}
	walk(doc)

	return cleanText(sb.String()), nil
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return reMultiSP.ReplaceAllString(sb.String(), " ")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func cleanText(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(reMultiSP.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = reMultiNL.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
