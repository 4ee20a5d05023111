package tools

import "regexp"

// Credential patterns scrubbed from tool output before it reaches the model
// or a streamed event.
var credentialPatterns = []*regexp.Regexp{
	// OpenRouter before OpenAI so the longer prefix wins
	regexp.MustCompile(`sk-or-v1-[a-f0-9]{32,}`),
	regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),
	// Google API keys (Gemini)
	regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),
	// GitHub tokens
	regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{36}`),
	// AWS access key IDs
	regexp.MustCompile(`AKIA[A-Z0-9]{16}`),
	// Connection strings with inline passwords
	regexp.MustCompile(`(?i)(postgres(?:ql)?|redis|rediss)://[^:\s/]*:[^@\s]+@`),
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password|bearer|authorization)\s*[:=]\s*["']?\S{8,}["']?`),
}

const redactedPlaceholder = "[REDACTED]"

// ScrubCredentials replaces known credential patterns in text with [REDACTED].
func ScrubCredentials(text string) string {
	for _, pat := range credentialPatterns {
		text = pat.ReplaceAllString(text, redactedPlaceholder)
	}
	return text
}
