package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GEMINI_API_KEY", "GOOGLE_API_KEY", "OPENAI_API_KEY", "OPENROUTER_API_KEY",
		"RESEARCHER_PROVIDER", "RESEARCHER_MODEL", "RESEARCHER_GATEWAY_TOKEN",
		"RESEARCHER_POSTGRES_DSN", "RESEARCHER_REDIS_URL", "RESEARCHER_PORT",
		"OTEL_EXPORTER_OTLP_ENDPOINT", EnvConfigPath,
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.Kind != "gemini" || cfg.Agent.MaxIterations != 10 {
		t.Errorf("unexpected defaults: %+v", cfg.Provider)
	}
	if cfg.Tools.Wikipedia.TopK != 1 || cfg.Tools.Wikipedia.MaxChars != 100 {
		t.Errorf("wikipedia defaults = %+v", cfg.Tools.Wikipedia)
	}
	if cfg.Tools.SaveFile.Filename != "research_output.txt" || cfg.Tools.WebSearch.Enabled {
		t.Errorf("tool defaults = %+v", cfg.Tools)
	}
}

func TestLoad_JSON5(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.json", `{
		// trailing commas and comments are fine
		provider: { kind: "OpenRouter", model: "google/gemini-2.0-flash-001", },
		agent: { max_iterations: 4, timeout_sec: 30, injection_action: "block" },
		mcp_servers: { "My Files": { command: "mcp-files" } },
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.Kind != "openrouter" {
		t.Errorf("kind = %q", cfg.Provider.Kind)
	}
	if cfg.Agent.MaxIterations != 4 || cfg.Agent.InjectionAction != "block" {
		t.Errorf("agent = %+v", cfg.Agent)
	}
	if cfg.Gateway.Port != 8000 {
		t.Errorf("unset fields keep defaults, port = %d", cfg.Gateway.Port)
	}
	if got := cfg.MCPServers["My Files"].Prefix; got != "my_files" {
		t.Errorf("mcp prefix = %q", got)
	}
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", `
provider:
  kind: openai
  model: gpt-4o-mini
tools:
  web_search:
    enabled: true
cache:
  backend: none
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.Kind != "openai" || !cfg.Tools.WebSearch.Enabled || cfg.Cache.Backend != "none" {
		t.Errorf("yaml not applied: %+v %+v", cfg.Provider, cfg.Cache)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("RESEARCHER_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("GEMINI_API_KEY", "gemini-should-not-be-used")
	t.Setenv("RESEARCHER_GATEWAY_TOKEN", "tok")
	t.Setenv("RESEARCHER_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("RESEARCHER_POSTGRES_DSN", "postgres://u:p@localhost/db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.APIKey != "sk-env" {
		t.Errorf("api key = %q", cfg.Provider.APIKey)
	}
	if cfg.Gateway.Token != "tok" || cfg.Cache.Backend != "redis" || cfg.Database.PostgresDSN == "" {
		t.Errorf("env not applied: %+v %+v", cfg.Gateway, cfg.Cache)
	}
}

func TestLoad_FileKeyWinsOverEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "from-env")
	path := writeFile(t, "c.json", `{provider: {api_key: "from-file"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.APIKey != "from-file" {
		t.Errorf("api key = %q", cfg.Provider.APIKey)
	}
}

func TestLoad_GoogleKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOOGLE_API_KEY", "g-key")
	cfg, _ := Load("")
	if cfg.Provider.APIKey != "g-key" {
		t.Errorf("api key = %q", cfg.Provider.APIKey)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name, body, wantErr string
	}{
		{"provider", `{provider: {kind: "claude"}}`, "provider.kind"},
		{"iterations", `{agent: {max_iterations: 0, timeout_sec: 5}}`, "max_iterations"},
		{"injection", `{agent: {injection_action: "explode"}}`, "injection_action"},
		{"redis", `{cache: {backend: "redis"}}`, "redis_url"},
		{"logformat", `{log: {format: "xml"}}`, "log.format"},
		{"mcp", `{mcp_servers: {x: {args: ["a"]}}}`, "command"},
		{"syntax", `{provider: `, "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "c.json", tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/tmp/from-env.json")
	if got := ResolvePath("/x/flag.json"); got != "/x/flag.json" {
		t.Errorf("flag should win, got %s", got)
	}
	if got := ResolvePath(""); got != "/tmp/from-env.json" {
		t.Errorf("env should apply, got %s", got)
	}
	t.Setenv(EnvConfigPath, "")
	if got := ResolvePath(""); !strings.HasSuffix(got, filepath.Join(".researcher", "config.json")) {
		t.Errorf("default path = %s", got)
	}
}
