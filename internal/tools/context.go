package tools

import "context"

type toolContextKey string

const (
	ctxSessionKey toolContextKey = "tool_session_key"
	ctxRunID      toolContextKey = "tool_run_id"
)

// WithSessionKey attaches the caller's session key to ctx.
func WithSessionKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, ctxSessionKey, key)
}

func SessionKeyFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxSessionKey).(string)
	return v
}

// WithRunID attaches the agent run ID so tools can correlate their logs.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ctxRunID, runID)
}

func RunIDFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxRunID).(string)
	return v
}
