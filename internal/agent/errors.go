package agent

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/researcher/internal/providers"
	"github.com/nextlevelbuilder/researcher/pkg/protocol"
)

var (
	ErrEmptyQuery    = errors.New("query is empty")
	ErrInputRejected = errors.New("query rejected by input guard")
	ErrMaxIterations = errors.New("agent reached max iterations without a final answer")
	ErrRunTimeout    = errors.New("research run timed out")
	ErrAborted       = errors.New("research run aborted")
)

// ErrorCode maps a run error to a protocol error code. Only a structured
// upstream 429 counts as RESOURCE_EXHAUSTED; message text is never parsed.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrEmptyQuery):
		return protocol.ErrInvalidRequest
	case errors.Is(err, ErrInputRejected):
		return protocol.ErrInputRejected
	case errors.Is(err, ErrRunTimeout), errors.Is(err, context.DeadlineExceeded):
		return protocol.ErrAgentTimeout
	case errors.Is(err, ErrAborted), errors.Is(err, context.Canceled):
		return protocol.ErrUnavailable
	}
	if providers.StatusCode(err) == http.StatusTooManyRequests {
		return protocol.ErrResourceExhausted
	}
	return protocol.ErrInternal
}

const timeoutMessage = "Request timed out. Please try again."

// UserMessage classifies err into a message that is safe to show to users.
// Raw provider payloads are never exposed.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrEmptyQuery):
		return "Please enter a research query."
	case errors.Is(err, ErrInputRejected):
		return "Your query was rejected because it looks like a prompt injection attempt."
	case errors.Is(err, ErrMaxIterations):
		return "The research agent could not finish within its step limit. Try a narrower query."
	case errors.Is(err, ErrAborted):
		return "The research run was cancelled."
	case errors.Is(err, ErrRunTimeout), errors.Is(err, context.DeadlineExceeded):
		return timeoutMessage
	}

	raw := err.Error()
	lower := strings.ToLower(raw)

	if isContextOverflowError(lower) {
		return "The research context grew too large for this model. Try a narrower query."
	}
	if isRateLimitError(lower) {
		return "API rate limit reached. Please try again later."
	}
	if strings.Contains(lower, "overloaded") {
		return "The AI service is temporarily overloaded. Please try again in a moment."
	}
	if containsAny(lower, "billing", "insufficient credits", "credit balance", "payment required", "402") {
		return "API billing error. Your API key may have run out of credits."
	}
	if containsAny(lower, "invalid api key", "invalid_api_key", "api key not valid", "unauthorized", "forbidden", "authentication", "401", "403", "access denied") {
		return "Authentication error. Please check your API key configuration."
	}
	if containsAny(lower, "timeout", "timed out", "deadline exceeded") {
		return timeoutMessage
	}
	if containsAny(lower, "not a valid model", "model not found", "is not found for api version") {
		return "Model configuration error. Please check your config and restart."
	}

	slog.Warn("unclassified agent error", "error", raw)
	return "Sorry, something went wrong while researching. Please try again."
}

func isRateLimitError(lower string) bool {
	return containsAny(lower, "rate limit", "rate_limit", "too many requests", "429", "quota exceeded", "resource_exhausted")
}

func isContextOverflowError(lower string) bool {
	return containsAny(lower,
		"request_too_large",
		"context length exceeded",
		"maximum context length",
		"prompt is too long",
		"exceeds model context window",
		"request exceeds the maximum size",
	) || (strings.Contains(lower, "context") &&
		containsAny(lower, "overflow", "too large", "too long", "exceeded"))
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
