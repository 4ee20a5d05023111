package tools

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/researcher/internal/providers"
)

// Registry manages tool registration and execution.
type Registry struct {
	tools       map[string]Tool
	mu          sync.RWMutex
	rateLimiter *ToolRateLimiter // nil = no rate limiting
	scrubbing   bool             // scrub credentials from output (default true)
}

func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]Tool),
		scrubbing: true,
	}
}

// SetRateLimiter enables per-session tool rate limiting.
func (r *Registry) SetRateLimiter(rl *ToolRateLimiter) {
	r.rateLimiter = rl
}

// SetScrubbing enables or disables credential scrubbing on tool output.
func (r *Registry) SetScrubbing(enabled bool) {
	r.scrubbing = enabled
}

// Register adds a tool, replacing any tool with the same name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Unregister removes a tool from the registry by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Execute runs a tool without a session key (no rate limiting).
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) *Result {
	return r.ExecuteWithContext(ctx, name, args, "")
}

// ExecuteWithContext runs a tool on behalf of sessionKey. The key is injected
// into ctx and used for rate limiting. Tool instances never hold per-call
// state, so concurrent calls are safe.
func (r *Registry) ExecuteWithContext(ctx context.Context, name string, args map[string]any, sessionKey string) *Result {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return ErrorResult("unknown tool: " + name)
	}
	if args == nil {
		args = map[string]any{}
	}

	if sessionKey != "" {
		ctx = WithSessionKey(ctx, sessionKey)
		if r.rateLimiter != nil {
			if err := r.rateLimiter.Allow(sessionKey); err != nil {
				slog.Warn("security.tool_rate_limited", "tool", name, "session", sessionKey)
				return ErrorResult(err.Error())
			}
		}
	}

	start := time.Now()
	result := tool.Execute(ctx, args)
	if result == nil {
		result = ErrorResult("tool returned no result")
	}
	duration := time.Since(start)

	if r.scrubbing {
		if result.ForLLM != "" {
			result.ForLLM = ScrubCredentials(result.ForLLM)
		}
		if result.ForUser != "" {
			result.ForUser = ScrubCredentials(result.ForUser)
		}
	}

	slog.Debug("tool executed",
		"tool", name,
		"run_id", RunIDFromCtx(ctx),
		"duration_ms", duration.Milliseconds(),
		"is_error", result.IsError,
	)

	return result
}

// ProviderDefs returns tool definitions for LLM provider APIs, sorted by name
// so prompts are stable across runs.
func (r *Registry) ProviderDefs() []providers.ToolDefinition {
	names := r.List()

	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]providers.ToolDefinition, 0, len(names))
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			defs = append(defs, ToProviderDef(t))
		}
	}
	return defs
}

// List returns all registered tool names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
