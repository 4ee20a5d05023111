package cmd

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// providerVerifyError holds the result of a provider credential check.
type providerVerifyError struct {
	fatal   bool   // true = bad credentials
	message string // human-readable description
}

func (e *providerVerifyError) Error() string { return e.message }

var verifyHTTPClient = &http.Client{Timeout: 10 * time.Second}

// verifyProviderKey checks an API key with one cheap authenticated request.
//
// OpenAI-compatible providers get an empty POST to /chat/completions:
//   - 401/403 → invalid key (fatal)
//   - 400/422 → auth passed, body rejected (expected)
//   - 5xx     → transient
//
// Gemini lists models; an invalid key answers 400 or 403 there.
func verifyProviderKey(ctx context.Context, kind, apiBase, apiKey string) *providerVerifyError {
	if apiKey == "" {
		return &providerVerifyError{fatal: true, message: "no API key configured"}
	}

	var (
		req *http.Request
		err error
	)
	switch kind {
	case "gemini":
		base := apiBase
		if base == "" {
			base = "https://generativelanguage.googleapis.com"
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/v1beta/models?pageSize=1", nil)
		if err == nil {
			req.Header.Set("x-goog-api-key", apiKey)
		}
	default:
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(authCheckBase(kind, apiBase), "/")+"/chat/completions", strings.NewReader("{}"))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}
	}
	if err != nil {
		return &providerVerifyError{message: fmt.Sprintf("build request: %v", err)}
	}

	resp, err := verifyHTTPClient.Do(req)
	if err != nil {
		return &providerVerifyError{message: fmt.Sprintf("connectivity check failed (transient): %v", err)}
	}
	defer resp.Body.Close()

	code := resp.StatusCode
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &providerVerifyError{fatal: true, message: fmt.Sprintf("%s returned %d: invalid API key", kind, code)}
	case kind == "gemini" && code == http.StatusBadRequest:
		return &providerVerifyError{fatal: true, message: fmt.Sprintf("%s returned %d: invalid API key", kind, code)}
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return nil
	case code >= 200 && code < 300:
		return nil
	case code >= 500:
		return &providerVerifyError{message: fmt.Sprintf("%s returned %d (transient)", kind, code)}
	default:
		return &providerVerifyError{message: fmt.Sprintf("%s returned %d (unexpected)", kind, code)}
	}
}

func authCheckBase(kind, apiBase string) string {
	if apiBase != "" {
		return apiBase
	}
	if kind == "openrouter" {
		return "https://openrouter.ai/api/v1"
	}
	return "https://api.openai.com/v1"
}
