package tools

import (
	"fmt"
	"sync"
	"time"
)

// ToolRateLimiter is a sliding window limiter for tool executions, keyed by
// session (one gateway client or one CLI invocation).
type ToolRateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	max     int
	window  time.Duration
}

// NewToolRateLimiter allows max executions per window for each key.
// Returns nil (no limiting) when max <= 0. A zero window means one hour.
func NewToolRateLimiter(max int, window time.Duration) *ToolRateLimiter {
	if max <= 0 {
		return nil
	}
	if window <= 0 {
		window = time.Hour
	}
	return &ToolRateLimiter{
		windows: make(map[string][]time.Time),
		max:     max,
		window:  window,
	}
}

// Allow records one execution for key, or returns an error when the key
// already used its budget for the current window.
func (rl *ToolRateLimiter) Allow(key string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entries := pruneBefore(rl.windows[key], now.Add(-rl.window))

	if len(entries) >= rl.max {
		rl.windows[key] = entries
		return fmt.Errorf("tool rate limit exceeded: %d calls per %s for session %s", rl.max, rl.window, key)
	}

	rl.windows[key] = append(entries, now)
	return nil
}

// Cleanup drops keys whose entries have all expired. Call periodically.
func (rl *ToolRateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.window)
	for key, entries := range rl.windows {
		if rest := pruneBefore(entries, cutoff); len(rest) == 0 {
			delete(rl.windows, key)
		} else {
			rl.windows[key] = rest
		}
	}
}

func pruneBefore(entries []time.Time, cutoff time.Time) []time.Time {
	start := 0
	for start < len(entries) && entries[start].Before(cutoff) {
		start++
	}
	return entries[start:]
}
