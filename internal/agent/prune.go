package agent

import (
	"fmt"
	"unicode/utf8"

	"github.com/nextlevelbuilder/researcher/internal/providers"
)

// Tool-result pruning keeps long web_fetch bodies from crowding out the
// context window on later iterations.
const (
	defaultContextWindowTokens = 128000
	charsPerTokenEstimate      = 4
	softTrimRatio              = 0.3
	hardClearRatio             = 0.5
	softTrimMaxChars           = 4000
	softTrimHeadChars          = 1500
	softTrimTailChars          = 1500
	hardClearPlaceholder       = "[Old tool result content cleared]"
)

// pruneToolResults trims tool results older than the last assistant turn once
// the conversation exceeds a share of the context window.
//
//  1. Soft trim: keep head and tail of long results.
//  2. Hard clear: replace whole results with a placeholder.
//
// The input slice is never modified; a copy is returned when anything changes.
func pruneToolResults(msgs []providers.Message, contextWindowTokens int) []providers.Message {
	if contextWindowTokens <= 0 || len(msgs) == 0 {
		return msgs
	}
	charWindow := float64(contextWindowTokens * charsPerTokenEstimate)

	cutoff := lastAssistantIndex(msgs)
	if cutoff < 0 {
		return msgs
	}

	total := 0
	for _, m := range msgs {
		total += messageChars(m)
	}
	if float64(total)/charWindow < softTrimRatio {
		return msgs
	}

	var prunable []int
	for i := 0; i < cutoff; i++ {
		if msgs[i].Role == providers.RoleTool && msgs[i].Content != "" {
			prunable = append(prunable, i)
		}
	}
	if len(prunable) == 0 {
		return msgs
	}

	out := make([]providers.Message, len(msgs))
	copy(out, msgs)

	for _, idx := range prunable {
		n := messageChars(out[idx])
		if n <= softTrimMaxChars {
			continue
		}
		trimmed := fmt.Sprintf("%s\n...\n%s\n\n[Tool result trimmed: kept first %d chars and last %d chars of %d chars.]",
			takeHead(out[idx].Content, softTrimHeadChars), takeTail(out[idx].Content, softTrimTailChars),
			softTrimHeadChars, softTrimTailChars, n)
		out[idx].Content = trimmed
		total += messageChars(out[idx]) - n
	}

	for _, idx := range prunable {
		if float64(total)/charWindow < hardClearRatio {
			break
		}
		n := messageChars(out[idx])
		out[idx].Content = hardClearPlaceholder
		total += len(hardClearPlaceholder) - n
	}
	return out
}

// lastAssistantIndex returns the index of the newest assistant message, or -1.
func lastAssistantIndex(msgs []providers.Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == providers.RoleAssistant {
			return i
		}
	}
	return -1
}

func messageChars(m providers.Message) int {
	return utf8.RuneCountInString(m.Content)
}

// takeHead returns the first n runes of s.
func takeHead(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// takeTail returns the last n runes of s.
func takeTail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
