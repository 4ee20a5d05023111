package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Config is the root configuration for the researcher service and CLI.
type Config struct {
	Provider   ProviderConfig             `json:"provider" yaml:"provider"`
	Agent      AgentConfig                `json:"agent" yaml:"agent"`
	Tools      ToolsConfig                `json:"tools" yaml:"tools"`
	Gateway    GatewayConfig              `json:"gateway" yaml:"gateway"`
	Cache      CacheConfig                `json:"cache" yaml:"cache"`
	Database   DatabaseConfig             `json:"database" yaml:"database"`
	Telemetry  TelemetryConfig            `json:"telemetry" yaml:"telemetry"`
	Log        LogConfig                  `json:"log" yaml:"log"`
	MCPServers map[string]MCPServerConfig `json:"mcp_servers,omitempty" yaml:"mcp_servers,omitempty"`

	mu sync.RWMutex
}

// ProviderConfig selects the LLM backend.
type ProviderConfig struct {
	Kind        string  `json:"kind" yaml:"kind"` // gemini (default), openai, openrouter
	APIKey      string  `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	APIBase     string  `json:"api_base,omitempty" yaml:"api_base,omitempty"`
	Model       string  `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	MaxRetries  int     `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
}

// AgentConfig holds the tunables of the research loop. These are the fields
// hot reload applies to a running server.
type AgentConfig struct {
	MaxIterations   int    `json:"max_iterations" yaml:"max_iterations"`
	TimeoutSec      int    `json:"timeout_sec" yaml:"timeout_sec"`
	InjectionAction string `json:"injection_action" yaml:"injection_action"` // off, log, warn, block
}

// Timeout returns the per-run deadline.
func (a AgentConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSec) * time.Second
}

type ToolsConfig struct {
	Wikipedia        WikipediaConfig `json:"wikipedia" yaml:"wikipedia"`
	SaveFile         SaveFileConfig  `json:"save_file" yaml:"save_file"`
	WebSearch        WebSearchConfig `json:"web_search" yaml:"web_search"`
	WebFetch         WebFetchConfig  `json:"web_fetch" yaml:"web_fetch"`
	RateLimitPerHour int             `json:"rate_limit_per_hour,omitempty" yaml:"rate_limit_per_hour,omitempty"`
	CacheTTLSec      int             `json:"cache_ttl_sec,omitempty" yaml:"cache_ttl_sec,omitempty"`
	DisableScrubbing bool            `json:"disable_scrubbing,omitempty" yaml:"disable_scrubbing,omitempty"`
}

type WikipediaConfig struct {
	TopK     int    `json:"top_k" yaml:"top_k"`
	MaxChars int    `json:"max_chars" yaml:"max_chars"`
	Lang     string `json:"lang,omitempty" yaml:"lang,omitempty"`
}

type SaveFileConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Dir      string `json:"dir" yaml:"dir"`
	Filename string `json:"filename" yaml:"filename"`
}

type WebSearchConfig struct {
	Enabled    bool `json:"enabled" yaml:"enabled"`
	MaxResults int  `json:"max_results,omitempty" yaml:"max_results,omitempty"`
}

type WebFetchConfig struct {
	Enabled  bool `json:"enabled" yaml:"enabled"`
	MaxChars int  `json:"max_chars,omitempty" yaml:"max_chars,omitempty"`
}

// GatewayConfig configures the HTTP/websocket gateway.
type GatewayConfig struct {
	Host           string   `json:"host" yaml:"host"`
	Port           int      `json:"port" yaml:"port"`
	Token          string   `json:"token,omitempty" yaml:"token,omitempty"`
	RateLimitRPM   int      `json:"rate_limit_rpm,omitempty" yaml:"rate_limit_rpm,omitempty"`           // 0 = disabled
	MaxConcurrent  int      `json:"max_concurrent_runs,omitempty" yaml:"max_concurrent_runs,omitempty"` // 0 = unlimited
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
}

// CacheConfig selects the response cache backend.
type CacheConfig struct {
	Backend    string `json:"backend" yaml:"backend"` // memory (default), redis, none
	RedisURL   string `json:"redis_url,omitempty" yaml:"redis_url,omitempty"`
	TTLSec     int    `json:"ttl_sec" yaml:"ttl_sec"`
	MaxEntries int    `json:"max_entries,omitempty" yaml:"max_entries,omitempty"`
}

// DatabaseConfig selects the history store. A Postgres DSN wins over SQLite.
type DatabaseConfig struct {
	SQLitePath  string `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty"`
	PostgresDSN string `json:"postgres_dsn,omitempty" yaml:"postgres_dsn,omitempty"`
	Disabled    bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

type TelemetryConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Protocol    string `json:"protocol,omitempty" yaml:"protocol,omitempty"` // grpc (default), http
	Endpoint    string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Insecure    bool   `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	ServiceName string `json:"service_name,omitempty" yaml:"service_name,omitempty"`
}

type LogConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"` // text (default), json
}

// MCPServerConfig describes an external MCP server started over stdio whose
// tools are bridged into the agent.
type MCPServerConfig struct {
	Command    string            `json:"command" yaml:"command"`
	Args       []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env        map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Prefix     string            `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	TimeoutSec int               `json:"timeout_sec,omitempty" yaml:"timeout_sec,omitempty"`
	Disabled   bool              `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// Default returns a config with every default applied.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{Kind: "gemini", MaxRetries: 3},
		Agent: AgentConfig{
			MaxIterations:   10,
			TimeoutSec:      120,
			InjectionAction: "warn",
		},
		Tools: ToolsConfig{
			Wikipedia:        WikipediaConfig{TopK: 1, MaxChars: 100, Lang: "en"},
			SaveFile:         SaveFileConfig{Enabled: true, Dir: ".", Filename: "research_output.txt"},
			WebSearch:        WebSearchConfig{Enabled: false, MaxResults: 5},
			WebFetch:         WebFetchConfig{Enabled: false, MaxChars: 20000},
			RateLimitPerHour: 0,
			CacheTTLSec:      900,
		},
		Gateway: GatewayConfig{Host: "127.0.0.1", Port: 8000, RateLimitRPM: 60, MaxConcurrent: 4},
		Cache:   CacheConfig{Backend: "memory", TTLSec: 3600, MaxEntries: 256},
		Database: DatabaseConfig{
			SQLitePath: filepath.Join(DataDir(), "history.db"),
		},
		Telemetry: TelemetryConfig{Protocol: "grpc", ServiceName: "researcher"},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// DataDir is ~/.researcher, the home of the default config and history files.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".researcher"
	}
	return filepath.Join(home, ".researcher")
}

// AgentSettings returns a snapshot of the hot-reloadable agent settings.
func (c *Config) AgentSettings() AgentConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Agent
}

// ApplyAgentSettings replaces the hot-reloadable settings.
func (c *Config) ApplyAgentSettings(a AgentConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Agent = a
}

// Addr is the gateway listen address.
func (c *Config) Addr() string {
	return joinHostPort(c.Gateway.Host, c.Gateway.Port)
}
