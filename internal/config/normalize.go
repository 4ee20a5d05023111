package config

import (
	"regexp"
	"strings"
)

var (
	validPrefixRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_]{0,31}$`)
	invalidChars  = regexp.MustCompile(`[^a-z0-9_]+`)
	edgeUnderline = regexp.MustCompile(`^_+|_+$`)
)

// NormalizeProviderKind lowercases the provider name and maps aliases.
// Empty and "google" select Gemini.
func NormalizeProviderKind(kind string) string {
	k := strings.ToLower(strings.TrimSpace(kind))
	switch k {
	case "", "google", "gemini":
		return "gemini"
	case "open_router":
		return "openrouter"
	}
	return k
}

// NormalizeToolPrefix turns an MCP server name into a tool name prefix:
//   - lowercase, at most 32 chars
//   - only [a-z0-9_]; other runs become "_"
//   - leading/trailing "_" stripped
//
// Tool names must match ^[a-zA-Z0-9_-]+$ for both providers, so a prefix that
// normalizes to nothing falls back to "mcp".
func NormalizeToolPrefix(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if validPrefixRe.MatchString(lower) {
		return lower
	}

	result := invalidChars.ReplaceAllString(lower, "_")
	result = edgeUnderline.ReplaceAllString(result, "")
	if len(result) > 32 {
		result = strings.TrimRight(result[:32], "_")
	}
	if result == "" {
		return "mcp"
	}
	return result
}

func (c *Config) normalize() {
	c.Provider.Kind = NormalizeProviderKind(c.Provider.Kind)
	c.Agent.InjectionAction = strings.ToLower(strings.TrimSpace(c.Agent.InjectionAction))
	if c.Agent.InjectionAction == "" {
		c.Agent.InjectionAction = "warn"
	}
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	c.Telemetry.Protocol = strings.ToLower(c.Telemetry.Protocol)
	if c.Telemetry.Protocol == "" {
		c.Telemetry.Protocol = "grpc"
	}
	c.Log.Format = strings.ToLower(c.Log.Format)
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	for name, s := range c.MCPServers {
		if s.Prefix == "" {
			s.Prefix = NormalizeToolPrefix(name)
		} else {
			s.Prefix = NormalizeToolPrefix(s.Prefix)
		}
		c.MCPServers[name] = s
	}
}
