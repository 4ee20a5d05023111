// Package http is the researcher gateway: POST /agent, the /ws event stream,
// run history, health and the embedded web client.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/researcher/internal/agent"
	"github.com/nextlevelbuilder/researcher/internal/history"
	"github.com/nextlevelbuilder/researcher/pkg/protocol"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	shutdownTimeout    = 15 * time.Second
)

// Researcher is the agent service behind the gateway.
type Researcher interface {
	Research(ctx context.Context, req agent.RunRequest) (*agent.RunResult, error)
	Runs() *agent.RunTracker
	Model() string
}

// Config configures the gateway.
type Config struct {
	Addr           string
	Token          string // empty disables auth
	RateLimitRPM   int    // 0 disables rate limiting
	AllowedOrigins []string
	Provider       string
	Version        string
}

// Server serves the gateway endpoints.
type Server struct {
	cfg      Config
	svc      Researcher
	history  history.Store
	limiter  *RateLimiter
	upgrader websocket.Upgrader
	handler  http.Handler
}

// NewServer wires the routes. store may be nil, in which case the history
// endpoints return empty results.
func NewServer(cfg Config, svc Researcher, store history.Store) *Server {
	if store == nil {
		store = history.Nop{}
	}
	s := &Server{
		cfg:     cfg,
		svc:     svc,
		history: store,
		limiter: NewRateLimiter(cfg.RateLimitRPM, 5),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/agent", s.handleAgent)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /history", s.handleHistoryList)
	mux.HandleFunc("GET /history/{id}", s.handleHistoryGet)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /{$}", webHandler())

	var h http.Handler = mux
	h = cors(cfg.AllowedOrigins)(h)
	h = recoverPanics(h)
	h = logRequests(h)
	h = traceRequests(h)
	s.handler = h
	return s
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go s.limiter.RunCleanup(ctx)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gateway listening", "addr", ln.Addr().String(), "auth", s.cfg.Token != "", "rate_limit_rpm", s.cfg.RateLimitRPM)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("gateway shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// authorize checks the bearer token and the rate limit, writing the error
// response itself when the request may not proceed.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	if !tokenMatch(extractBearerToken(r), s.cfg.Token) {
		slog.Warn("security.unauthorized", "path", r.URL.Path, "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, protocol.ErrUnauthorized, "Invalid authentication")
		return false
	}
	if !s.limiter.Allow(rateLimitKey(r, s.cfg.Token)) {
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, protocol.ErrResourceExhausted, "Rate limit exceeded")
		return false
	}
	return true
}

// checkOrigin allows same-origin websocket upgrades plus configured origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if originAllowed(origin, s.cfg.AllowedOrigins) {
		return true
	}
	for _, scheme := range []string{"http://", "https://"} {
		if origin == scheme+r.Host {
			return true
		}
	}
	slog.Warn("security.ws_origin_rejected", "origin", origin)
	return false
}
