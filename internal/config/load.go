package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the default config location.
const EnvConfigPath = "RESEARCHER_CONFIG"

// ResolvePath returns the config path: explicit flag, then $RESEARCHER_CONFIG,
// then ~/.researcher/config.json.
func ResolvePath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if v := os.Getenv(EnvConfigPath); v != "" {
		return v
	}
	return filepath.Join(DataDir(), "config.json")
}

// Load builds a Config from defaults, the file at path (if it exists) and
// environment overrides, then validates it. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decode(path, data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json5.Unmarshal(data, cfg)
	}
}

// applyEnv overlays environment variables onto file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("RESEARCHER_PROVIDER"); v != "" {
		c.Provider.Kind = v
	}
	if v := os.Getenv("RESEARCHER_MODEL"); v != "" {
		c.Provider.Model = v
	}
	if c.Provider.APIKey == "" {
		c.Provider.APIKey = envAPIKey(NormalizeProviderKind(c.Provider.Kind))
	}
	if v := os.Getenv("RESEARCHER_GATEWAY_TOKEN"); v != "" {
		c.Gateway.Token = v
	}
	if v := os.Getenv("RESEARCHER_POSTGRES_DSN"); v != "" {
		c.Database.PostgresDSN = v
	}
	if v := os.Getenv("RESEARCHER_REDIS_URL"); v != "" {
		c.Cache.RedisURL = v
		if c.Cache.Backend == "" || c.Cache.Backend == "memory" {
			c.Cache.Backend = "redis"
		}
	}
	if v := os.Getenv("RESEARCHER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Gateway.Port = p
		}
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" && c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = v
	}
}

// envAPIKey returns the provider key from the environment.
func envAPIKey(kind string) string {
	var names []string
	switch kind {
	case "openai":
		names = []string{"OPENAI_API_KEY"}
	case "openrouter":
		names = []string{"OPENROUTER_API_KEY"}
	default:
		names = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	}
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	switch c.Provider.Kind {
	case "gemini", "openai", "openrouter":
	default:
		return fmt.Errorf("provider.kind %q: must be gemini, openai or openrouter", c.Provider.Kind)
	}
	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent.max_iterations must be >= 1, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.TimeoutSec < 1 {
		return fmt.Errorf("agent.timeout_sec must be >= 1, got %d", c.Agent.TimeoutSec)
	}
	switch c.Agent.InjectionAction {
	case "off", "log", "warn", "block":
	default:
		return fmt.Errorf("agent.injection_action %q: must be off, log, warn or block", c.Agent.InjectionAction)
	}
	if c.Gateway.Port < 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port %d out of range", c.Gateway.Port)
	}
	if c.Gateway.MaxConcurrent < 0 {
		return fmt.Errorf("gateway.max_concurrent_runs must be >= 0, got %d", c.Gateway.MaxConcurrent)
	}
	switch c.Cache.Backend {
	case "memory", "none":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("cache.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend %q: must be memory, redis or none", c.Cache.Backend)
	}
	switch c.Telemetry.Protocol {
	case "grpc", "http":
	default:
		return fmt.Errorf("telemetry.protocol %q: must be grpc or http", c.Telemetry.Protocol)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q: must be text or json", c.Log.Format)
	}
	for name, s := range c.MCPServers {
		if s.Command == "" {
			return fmt.Errorf("mcp_servers.%s.command is required", name)
		}
	}
	return nil
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
