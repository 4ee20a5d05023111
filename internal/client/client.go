// Package client talks to a running researcher gateway.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nextlevelbuilder/researcher/pkg/protocol"
)

// FetchFailedMessage is what users see for any failed query.
const FetchFailedMessage = "Failed to fetch research results. Please try again."

// ErrFetchFailed matches every error returned by Query and Stream.
var ErrFetchFailed = errors.New("failed to fetch research results")

// FetchError describes why a query failed. Status is 0 when no HTTP response
// was received.
type FetchError struct {
	Status int
	Shape  *protocol.ErrorShape // gateway error body, when one was returned
	Err    error
}

func (e *FetchError) Error() string {
	switch {
	case e.Shape != nil:
		return fmt.Sprintf("%s: HTTP %d %s: %s", ErrFetchFailed, e.Status, e.Shape.Code, e.Shape.Message)
	case e.Status != 0:
		return fmt.Sprintf("%s: HTTP %d", ErrFetchFailed, e.Status)
	}
	return fmt.Sprintf("%s: %v", ErrFetchFailed, e.Err)
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFetchFailed}
	}
	return []error{ErrFetchFailed, e.Err}
}

// IsUnreachable reports whether err means no gateway answered at all.
func IsUnreachable(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Status != 0 {
		return false
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Client calls the gateway HTTP and websocket endpoints.
type Client struct {
	BaseURL    string // e.g. http://127.0.0.1:8000
	Token      string
	HTTPClient *http.Client
}

// New creates a client for baseURL with a generous timeout; research runs
// take a while.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Query issues one POST /agent.
func (c *Client) Query(ctx context.Context, query string) (*protocol.AgentResponse, error) {
	body, err := json.Marshal(protocol.AgentRequest{Query: query})
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/agent", bytes.NewReader(body))
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		slog.Debug("research request failed", "error", err)
		return nil, &FetchError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fe := &FetchError{Status: resp.StatusCode}
		var eb protocol.ErrorBody
		if json.Unmarshal(data, &eb) == nil && eb.Error.Code != "" {
			fe.Shape = &eb.Error
		}
		slog.Debug("research request rejected", "status", resp.StatusCode, "error", fe)
		return nil, fe
	}

	var out protocol.AgentResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &FetchError{Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return &out, nil
}

// Health fetches GET /health.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Status: resp.StatusCode}
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &FetchError{Status: resp.StatusCode, Err: err}
	}
	return out, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}

// wsURL maps the base URL to the /ws endpoint.
func (c *Client) wsURL() (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}
