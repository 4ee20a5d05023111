package http

import (
	"embed"
	"net/http"
)

//go:embed static/index.html
var staticFS embed.FS

// webHandler serves the single-page research client.
func webHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		http.ServeFileFS(w, r, staticFS, "static/index.html")
	})
}
