package config

import "testing"

func TestNormalizeProviderKind(t *testing.T) {
	tests := map[string]string{
		"":            "gemini",
		"Google":      "gemini",
		" GEMINI ":    "gemini",
		"OpenAI":      "openai",
		"open_router": "openrouter",
		"openrouter":  "openrouter",
		"claude":      "claude",
	}
	for in, want := range tests {
		if got := NormalizeProviderKind(in); got != want {
			t.Errorf("NormalizeProviderKind(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeToolPrefix(t *testing.T) {
	tests := []struct{ in, want string }{
		{"files", "files"},
		{"My Files", "my_files"},
		{"  arxiv-search ", "arxiv_search"},
		{"__x__", "x"},
		{"!!!", "mcp"},
		{"", "mcp"},
		{"a-very-long-server-name-that-exceeds-the-limit", "a_very_long_server_name_that_exc"},
	}
	for _, tt := range tests {
		if got := NormalizeToolPrefix(tt.in); got != tt.want {
			t.Errorf("NormalizeToolPrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
