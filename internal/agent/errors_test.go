package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/nextlevelbuilder/researcher/internal/providers"
	"github.com/nextlevelbuilder/researcher/pkg/protocol"
)

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{ErrEmptyQuery, protocol.ErrInvalidRequest},
		{fmt.Errorf("%w: matched x", ErrInputRejected), protocol.ErrInputRejected},
		{fmt.Errorf("%w after 1s", ErrRunTimeout), protocol.ErrAgentTimeout},
		{context.DeadlineExceeded, protocol.ErrAgentTimeout},
		{ErrAborted, protocol.ErrUnavailable},
		{&providers.HTTPError{Provider: "openai", StatusCode: 429, Body: "Too Many Requests"}, protocol.ErrResourceExhausted},
		{fmt.Errorf("gemini generate content: %w", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}), protocol.ErrResourceExhausted},
		{&providers.HTTPError{Provider: "openai", StatusCode: 500, Body: "rate limit 429"}, protocol.ErrInternal},
		{errors.New("fetch https://example.com/page/429 failed"), protocol.ErrInternal},
		{errors.New("request id 4290: too many requests"), protocol.ErrInternal},
		{errors.New("boom"), protocol.ErrInternal},
	}
	for _, c := range cases {
		if got := ErrorCode(c.err); got != c.want {
			t.Errorf("ErrorCode(%v) = %s, want %s", c.err, got, c.want)
		}
	}
}

func TestUserMessage(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w after 2m0s", ErrRunTimeout), "timed out"},
		{fmt.Errorf("llm call: %w", context.DeadlineExceeded), "timed out"},
		{errors.New("gemini: Error 429, RESOURCE_EXHAUSTED"), "rate limit"},
		{errors.New("HTTP 401: invalid api key"), "Authentication"},
		{errors.New("model is overloaded"), "overloaded"},
		{errors.New("maximum context length is 8192 tokens"), "too large"},
		{fmt.Errorf("%w (10)", ErrMaxIterations), "step limit"},
		{errors.New(`{"raw":"payload"}`), "something went wrong"},
	}
	for _, c := range cases {
		got := UserMessage(c.err)
		if !strings.Contains(got, c.want) {
			t.Errorf("UserMessage(%v) = %q, want it to contain %q", c.err, got, c.want)
		}
		if strings.Contains(got, "payload") {
			t.Errorf("raw error leaked: %q", got)
		}
	}
}
