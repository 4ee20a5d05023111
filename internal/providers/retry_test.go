package providers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"google.golang.org/genai"
)

type scriptedProvider struct {
	errs  []error
	calls int
}

func (s *scriptedProvider) Name() string         { return "scripted" }
func (s *scriptedProvider) DefaultModel() string { return "m" }
func (s *scriptedProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	s.calls++
	if s.calls <= len(s.errs) && s.errs[s.calls-1] != nil {
		return nil, s.errs[s.calls-1]
	}
	return &ChatResponse{Content: "ok"}, nil
}

var fastRetry = RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

func TestChatWithRetry_SuccessAfterTransient(t *testing.T) {
	p := &scriptedProvider{errs: []error{
		&HTTPError{Provider: "x", StatusCode: 503},
		&HTTPError{Provider: "x", StatusCode: 429},
	}}
	resp, err := ChatWithRetry(context.Background(), p, ChatRequest{}, fastRetry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok" || p.calls != 3 {
		t.Errorf("content=%q calls=%d", resp.Content, p.calls)
	}
}

func TestChatWithRetry_NonRetryableStopsImmediately(t *testing.T) {
	p := &scriptedProvider{errs: []error{&HTTPError{Provider: "x", StatusCode: 401}}}
	_, err := ChatWithRetry(context.Background(), p, ChatRequest{}, fastRetry)
	if err == nil {
		t.Fatal("expected error")
	}
	if p.calls != 1 {
		t.Errorf("expected 1 call, got %d", p.calls)
	}
}

func TestChatWithRetry_AllFail(t *testing.T) {
	fail := fmt.Errorf("model overloaded")
	p := &scriptedProvider{errs: []error{fail, fail, fail, fail, fail}}
	_, err := ChatWithRetry(context.Background(), p, ChatRequest{}, RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	if !errors.Is(err, fail) {
		t.Fatalf("expected last error, got %v", err)
	}
	if p.calls != 3 {
		t.Errorf("expected 3 calls (1 + 2 retries), got %d", p.calls)
	}
}

func TestChatWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &scriptedProvider{errs: []error{&HTTPError{StatusCode: 500}}}
	_, err := ChatWithRetry(ctx, p, ChatRequest{}, fastRetry)
	if err == nil {
		t.Fatal("expected error")
	}
	if p.calls != 1 {
		t.Errorf("expected no retry after cancellation, got %d calls", p.calls)
	}
}

func TestBackoffWithJitter_Bounds(t *testing.T) {
	base, max := 100*time.Millisecond, time.Second
	for attempt := 0; attempt < 8; attempt++ {
		want := base << uint(attempt)
		if want > max {
			want = max
		}
		got := backoffWithJitter(base, max, attempt)
		lo, hi := want-want/4, want+want/4
		if got < lo || got > hi {
			t.Errorf("attempt %d: delay %v outside [%v, %v]", attempt, got, lo, hi)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{&HTTPError{StatusCode: 400}, false},
		{&HTTPError{StatusCode: 502}, true},
		{errors.New("RESOURCE_EXHAUSTED: quota"), true},
		{errors.New("invalid api key"), false},
		{fmt.Errorf("gemini generate content: %w", genai.APIError{Code: 429}), true},
		{genai.APIError{Code: 403, Message: "quota 503"}, false},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&HTTPError{Provider: "openai", StatusCode: 429}, 429},
		{fmt.Errorf("wrapped: %w", &HTTPError{StatusCode: 502}), 502},
		{fmt.Errorf("gemini generate content: %w", genai.APIError{Code: 429}), 429},
		{errors.New("upstream said 429"), 0},
	}
	for _, tt := range tests {
		if got := StatusCode(tt.err); got != tt.want {
			t.Errorf("StatusCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
