package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/researcher/internal/agent"
	"github.com/nextlevelbuilder/researcher/pkg/protocol"
)

const (
	maxWSMessageSize = 512 * 1024
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = 30 * time.Second
	wsWriteWait      = 10 * time.Second
	wsSendBuffer     = 256
)

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !tokenMatch(extractBearerToken(r), s.cfg.Token) {
		writeError(w, http.StatusUnauthorized, protocol.ErrUnauthorized, "Invalid authentication")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}
	c := newWSClient(conn, s, rateLimitKey(r, s.cfg.Token))
	slog.Info("websocket connected", "client", c.id, "remote", r.RemoteAddr)
	c.run(r.Context())
	slog.Info("websocket disconnected", "client", c.id)
}

// wsClient is a single websocket connection. Each request frame starts a run
// whose events are streamed back tagged with the request ID.
type wsClient struct {
	id       string
	conn     *websocket.Conn
	server   *Server
	limitKey string
	send     chan []byte

	mu     sync.Mutex
	closed bool
	runs   map[string]wsRun // request ID → in-flight run
	wg     sync.WaitGroup
}

// wsRun is one request of a connection. cancel ends this request even when
// it only waits on a run shared with another caller.
type wsRun struct {
	runID  string
	cancel context.CancelCauseFunc
}

func newWSClient(conn *websocket.Conn, s *Server, limitKey string) *wsClient {
	return &wsClient{
		id:       uuid.NewString(),
		conn:     conn,
		server:   s,
		limitKey: limitKey,
		send:     make(chan []byte, wsSendBuffer),
		runs:     make(map[string]wsRun),
	}
}

func (c *wsClient) sessionKey() string { return "ws:" + c.id }

func (c *wsClient) run(ctx context.Context) {
	go c.writePump()
	c.readPump(ctx)

	// Connection gone: cancel its requests and the runs it leads, wait for
	// them, then stop the writer.
	c.mu.Lock()
	for _, run := range c.runs {
		run.cancel(agent.ErrAborted)
	}
	c.mu.Unlock()
	if ids := c.server.svc.Runs().AbortSession(c.sessionKey()); len(ids) > 0 {
		slog.Info("websocket runs aborted on disconnect", "client", c.id, "runs", len(ids))
	}
	c.wg.Wait()
	c.mu.Lock()
	c.closed = true
	close(c.send)
	c.mu.Unlock()
}

func (c *wsClient) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxWSMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read error", "client", c.id, "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		c.handleFrame(ctx, data)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) handleFrame(ctx context.Context, data []byte) {
	frameType, err := protocol.ParseFrameType(data)
	if err != nil {
		c.sendFrame(protocol.NewErrorFrame("", protocol.ErrInvalidRequest, "invalid frame: "+err.Error()))
		return
	}
	var f protocol.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.sendFrame(protocol.NewErrorFrame("", protocol.ErrInvalidRequest, "malformed frame: "+err.Error()))
		return
	}

	switch frameType {
	case protocol.FrameTypeRequest:
		c.startRun(ctx, f)
	case protocol.FrameTypeAbort:
		c.mu.Lock()
		run, ok := c.runs[f.ID]
		c.mu.Unlock()
		if !ok {
			c.sendFrame(protocol.NewErrorFrame(f.ID, protocol.ErrNotFound, "no running request with this id"))
			return
		}
		// The request's own goroutine reports the abort. A request that
		// joined another caller's run holds no tracker entry.
		run.cancel(agent.ErrAborted)
		c.server.svc.Runs().Abort(run.runID, c.sessionKey())
	default:
		c.sendFrame(protocol.NewErrorFrame(f.ID, protocol.ErrInvalidRequest, "unexpected frame type: "+frameType))
	}
}

func (c *wsClient) startRun(ctx context.Context, f protocol.Frame) {
	if !c.server.limiter.Allow(c.limitKey) {
		c.sendFrame(protocol.NewErrorFrame(f.ID, protocol.ErrResourceExhausted, "Rate limit exceeded"))
		return
	}

	runID := uuid.NewString()
	reqCtx, cancel := context.WithCancelCause(ctx)
	c.mu.Lock()
	if _, busy := c.runs[f.ID]; busy && f.ID != "" {
		c.mu.Unlock()
		cancel(nil)
		c.sendFrame(protocol.NewErrorFrame(f.ID, protocol.ErrInvalidRequest, "request id already in use"))
		return
	}
	c.runs[f.ID] = wsRun{runID: runID, cancel: cancel}
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.runs, f.ID)
			c.mu.Unlock()
			cancel(nil)
		}()

		res, err := c.server.svc.Research(reqCtx, agent.RunRequest{
			Query:      f.Query,
			RunID:      runID,
			SessionKey: c.sessionKey(),
			OnEvent: func(ev protocol.AgentEvent) {
				c.sendFrame(protocol.NewEventFrame(f.ID, ev))
			},
		})
		if err != nil {
			c.sendFrame(protocol.NewErrorFrame(f.ID, agent.ErrorCode(err), agent.UserMessage(err)))
			return
		}
		c.sendFrame(protocol.NewResultFrame(f.ID, toAgentResponse(res)))
	}()
}

// sendFrame queues a frame. Events are dropped when the buffer is full.
func (c *wsClient) sendFrame(f *protocol.Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		slog.Error("marshal frame failed", "error", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		slog.Warn("client send buffer full, dropping frame", "client", c.id, "type", f.Type)
	}
}
