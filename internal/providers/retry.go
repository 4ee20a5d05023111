package providers

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"google.golang.org/genai"
)

// RetryConfig controls exponential backoff for transient provider failures.
type RetryConfig struct {
	MaxRetries int           // retry attempts after the first call (0 = no retry)
	BaseDelay  time.Duration // initial backoff delay
	MaxDelay   time.Duration // backoff ceiling
}

// DefaultRetryConfig returns the defaults used by the research agent.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// ChatWithRetry calls p.Chat, retrying transient failures with exponential
// backoff and jitter. Non-retryable errors and context cancellation return immediately.
func ChatWithRetry(ctx context.Context, p Provider, req ChatRequest, cfg RetryConfig) (*ChatResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		resp, err := p.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil || !IsRetryable(err) || attempt == cfg.MaxRetries {
			break
		}

		delay := backoffWithJitter(cfg.BaseDelay, cfg.MaxDelay, attempt)
		slog.Warn("provider call failed, retrying",
			"provider", p.Name(), "attempt", attempt+1, "delay", delay, "error", err)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return nil, lastErr
}

// IsRetryable reports whether err looks transient: rate limiting, 5xx,
// network timeouts or an overloaded backend.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	if code := StatusCode(err); code != 0 {
		return code == 429 || code >= 500
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	lower := strings.ToLower(err.Error())
	for _, s := range []string{"overloaded", "resource_exhausted", "unavailable", "429", "503", "connection reset"} {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// StatusCode returns the upstream HTTP status carried by err, or 0 when err
// is not a structured provider reply.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	var ae genai.APIError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return 0
}

// backoffWithJitter computes min(base * 2^attempt, max) ± 25%.
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt)
	if delay > max || delay <= 0 {
		delay = max
	}

	quarter := delay / 4
	if quarter > 0 {
		delay += time.Duration(rand.Int64N(int64(quarter*2))) - quarter
	}
	return delay
}
