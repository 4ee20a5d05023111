package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const ddgPage = `<html><body>
<div class="result results_links">
  <h2 class="result__title"><a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2F&amp;rut=abc">The <b>Go</b> Programming Language</a></h2>
  <a class="result__snippet" href="#">Go is an open source programming language.</a>
</div>
<div class="result results_links">
  <h2 class="result__title"><a class="result__a" href="https://en.wikipedia.org/wiki/Go_(programming_language)">Go - Wikipedia</a></h2>
  <a class="result__snippet" href="#">Go is a statically typed, compiled language.</a>
</div>
<div class="result results_links">
  <h2 class="result__title"><a class="result__a" href="https://example.com/third">Third</a></h2>
</div>
</body></html>`

func TestParseDDGResults(t *testing.T) {
	results, err := parseDDGResults(strings.NewReader(ddgPage), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].URL != "https://go.dev/" {
		t.Errorf("redirect not unwrapped: %q", results[0].URL)
	}
	if results[0].Title != "The Go Programming Language" {
		t.Errorf("title = %q", results[0].Title)
	}
	if results[1].Description != "Go is a statically typed, compiled language." {
		t.Errorf("snippet = %q", results[1].Description)
	}
}

func TestWebSearchTool_Execute(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Write([]byte(ddgPage))
	}))
	defer srv.Close()

	tool := NewWebSearchTool(WebSearchConfig{Endpoint: srv.URL})
	res := tool.Execute(context.Background(), map[string]any{"query": "golang", "count": 1.0})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.ForLLM)
	}
	if gotQuery != "golang" {
		t.Errorf("query sent = %q", gotQuery)
	}
	if !strings.Contains(res.ForLLM, "1. The Go Programming Language") || strings.Contains(res.ForLLM, "Wikipedia") {
		t.Errorf("unexpected output:\n%s", res.ForLLM)
	}
}

func TestWebSearchTool_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>nothing</body></html>"))
	}))
	defer srv.Close()

	tool := NewWebSearchTool(WebSearchConfig{Endpoint: srv.URL})
	res := tool.Execute(context.Background(), map[string]any{"query": "zzzz"})
	if !strings.Contains(res.ForLLM, "No results found for: zzzz") {
		t.Errorf("unexpected output: %s", res.ForLLM)
	}
}

func TestWebSearchTool_RequiresQuery(t *testing.T) {
	tool := NewWebSearchTool(WebSearchConfig{})
	if res := tool.Execute(context.Background(), map[string]any{"query": "  "}); !res.IsError {
		t.Error("expected error for blank query")
	}
}
