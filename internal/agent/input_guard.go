// Package agent runs the tool-calling research loop and the service that
// fronts it with the input guard, response cache and run history.
package agent

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Injection actions, set by agent.injection_action.
const (
	InjectionOff   = "off"
	InjectionLog   = "log"
	InjectionWarn  = "warn" // default
	InjectionBlock = "block"
)

// guardPattern pairs a human-readable name with a compiled regex.
type guardPattern struct {
	name    string
	pattern *regexp.Regexp
}

// InputGuard scans user input for known prompt injection patterns.
type InputGuard struct {
	patterns []guardPattern
}

// NewInputGuard creates an InputGuard with the default set of injection detection patterns.
func NewInputGuard() *InputGuard {
	return &InputGuard{
		patterns: defaultGuardPatterns(),
	}
}

// Scan checks a message against all known injection patterns.
// Returns the names of matched patterns (empty slice = no matches).
func (g *InputGuard) Scan(message string) []string {
	if message == "" {
		return nil
	}
	var matches []string
	for _, gp := range g.patterns {
		if gp.pattern.MatchString(message) {
			matches = append(matches, gp.name)
		}
	}
	return matches
}

// defaultGuardPatterns returns the built-in set of injection detection patterns.
// These are designed to detect common prompt injection techniques while
// minimizing false positives on legitimate user messages.
func defaultGuardPatterns() []guardPattern {
	return []guardPattern{
		{
			name:    "ignore_instructions",
			pattern: regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above|earlier|preceding)\s+(instructions?|rules?|prompts?|directives?|guidelines?)`),
		},
		{
			name:    "role_override",
			pattern: regexp.MustCompile(`(?i)(you are now|from now on you are|pretend you are|act as if you are|imagine you are)\s+`),
		},
		{
			name:    "system_tags",
			pattern: regexp.MustCompile(`(?i)</?system>|\[SYSTEM\]|\[INST\]|<<SYS>>|<\|im_start\|>system`),
		},
		{
			name:    "instruction_injection",
			pattern: regexp.MustCompile(`(?i)(new instructions?:|override:|system prompt:|<\|system\|>)`),
		},
		{
			name:    "null_bytes",
			pattern: regexp.MustCompile(`\x00`),
		},
		{
			name:    "delimiter_escape",
			pattern: regexp.MustCompile(`(?i)(end of system|begin user input|</?(instructions?|rules|prompt|context)>)`),
		},
	}
}

// Check scans query and applies action. Only "block" returns an error
// (wrapping ErrInputRejected); the other actions just log.
func (g *InputGuard) Check(query, action string) error {
	if action == InjectionOff || g == nil {
		return nil
	}
	matches := g.Scan(query)
	if len(matches) == 0 {
		return nil
	}
	patterns := strings.Join(matches, ",")
	preview := query
	if len(preview) > 200 {
		preview = preview[:200]
	}

	switch action {
	case InjectionLog:
		slog.Info("security.injection_detected", "patterns", patterns, "query_len", len(query))
	case InjectionBlock:
		slog.Warn("security.injection_blocked", "patterns", patterns, "preview", preview)
		return fmt.Errorf("%w: matched %s", ErrInputRejected, patterns)
	default:
		slog.Warn("security.injection_detected", "patterns", patterns, "preview", preview)
	}
	return nil
}

// PatternNames returns the names of all configured patterns.
func (g *InputGuard) PatternNames() []string {
	names := make([]string, len(g.patterns))
	for i, gp := range g.patterns {
		names[i] = gp.name
	}
	return names
}
