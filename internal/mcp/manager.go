package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/researcher/internal/config"
	"github.com/nextlevelbuilder/researcher/internal/tools"
)

const (
	clientName        = "researcher"
	initializeTimeout = 30 * time.Second
)

// Manager owns the connections to external MCP servers and keeps their tools
// registered while connected.
type Manager struct {
	registry *tools.Registry
	version  string

	mu      sync.Mutex
	servers map[string]*serverConn
}

type serverConn struct {
	client    *mcpclient.Client
	connected *atomic.Bool
	tools     []string
}

// NewManager creates a manager registering bridged tools into registry.
func NewManager(registry *tools.Registry, version string) *Manager {
	return &Manager{
		registry: registry,
		version:  version,
		servers:  make(map[string]*serverConn),
	}
}

// Start connects every enabled server. A server that fails to start is logged
// and skipped; the returned error joins all failures.
func (m *Manager) Start(ctx context.Context, servers map[string]config.MCPServerConfig) error {
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		cfg := servers[name]
		if cfg.Disabled {
			continue
		}
		if err := m.connect(ctx, name, cfg); err != nil {
			slog.Warn("mcp server unavailable", "server", name, "error", err)
			errs = append(errs, fmt.Errorf("mcp server %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) connect(ctx context.Context, name string, cfg config.MCPServerConfig) error {
	if cfg.Command == "" {
		return errors.New("command is required")
	}
	client, err := mcpclient.NewStdioMCPClient(cfg.Command, buildEnv(cfg.Env), cfg.Args...)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = config.NormalizeToolPrefix(name)
	}
	n, err := m.Attach(ctx, name, client, prefix, cfg.TimeoutSec)
	if err != nil {
		_ = client.Close()
		return err
	}
	slog.Info("mcp server connected", "server", name, "tools", n)
	return nil
}

// Attach initializes an already started client, lists its tools and registers
// them. It returns the number of tools registered.
func (m *Manager) Attach(ctx context.Context, name string, client *mcpclient.Client, prefix string, timeoutSec int) (int, error) {
	initCtx, cancel := context.WithTimeout(ctx, initializeTimeout)
	defer cancel()

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: clientName, Version: m.version}
	if _, err := client.Initialize(initCtx, initReq); err != nil {
		return 0, fmt.Errorf("initialize: %w", err)
	}

	listed, err := client.ListTools(initCtx, mcpgo.ListToolsRequest{})
	if err != nil {
		return 0, fmt.Errorf("list tools: %w", err)
	}

	connected := &atomic.Bool{}
	connected.Store(true)
	conn := &serverConn{client: client, connected: connected}
	for _, t := range listed.Tools {
		bt := NewBridgeTool(name, t, client, prefix, timeoutSec, connected)
		if _, exists := m.registry.Get(bt.Name()); exists {
			slog.Warn("mcp tool name collides with existing tool, skipped", "server", name, "tool", bt.Name())
			continue
		}
		m.registry.Register(bt)
		conn.tools = append(conn.tools, bt.Name())
	}

	m.mu.Lock()
	if old, ok := m.servers[name]; ok {
		m.dropLocked(old)
	}
	m.servers[name] = conn
	m.mu.Unlock()
	return len(conn.tools), nil
}

// ToolNames returns the registered tool names per server.
func (m *Manager) ToolNames() map[string][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]string, len(m.servers))
	for name, conn := range m.servers {
		out[name] = append([]string(nil), conn.tools...)
	}
	return out
}

// Close unregisters all bridged tools and stops every server.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for name, conn := range m.servers {
		if err := m.dropLocked(conn); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(m.servers, name)
	}
	return errors.Join(errs...)
}

func (m *Manager) dropLocked(conn *serverConn) error {
	conn.connected.Store(false)
	for _, t := range conn.tools {
		m.registry.Unregister(t)
	}
	return conn.client.Close()
}

// buildEnv layers the configured variables over the current environment.
func buildEnv(extra map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
