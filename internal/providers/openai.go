package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	openAIDefaultBase      = "https://api.openai.com/v1"
	openAIDefaultModel     = "gpt-4o-mini"
	openRouterDefaultBase  = "https://openrouter.ai/api/v1"
	openRouterDefaultModel = "google/gemini-2.0-flash-001"
	openAITimeout          = 120 * time.Second
	maxErrorBody           = 2000
)

// OpenAIProvider talks to any OpenAI-compatible /chat/completions endpoint
// (OpenAI, OpenRouter, local gateways).
type OpenAIProvider struct {
	name         string
	apiKey       string
	apiBase      string
	defaultModel string
	client       *http.Client
}

// NewOpenAIProvider creates a provider. apiBase must not include /chat/completions.
func NewOpenAIProvider(name, apiKey, apiBase, defaultModel string) *OpenAIProvider {
	if apiBase == "" {
		apiBase = openAIDefaultBase
	}
	if defaultModel == "" {
		defaultModel = openAIDefaultModel
	}
	return &OpenAIProvider{
		name:         name,
		apiKey:       apiKey,
		apiBase:      strings.TrimRight(apiBase, "/"),
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: openAITimeout},
	}
}

// NewOpenRouterProvider is an OpenAIProvider preconfigured for OpenRouter.
func NewOpenRouterProvider(apiKey, apiBase, defaultModel string) *OpenAIProvider {
	if apiBase == "" {
		apiBase = openRouterDefaultBase
	}
	if defaultModel == "" {
		defaultModel = openRouterDefaultModel
	}
	return NewOpenAIProvider("openrouter", apiKey, apiBase, defaultModel)
}

func (p *OpenAIProvider) Name() string         { return p.name }
func (p *OpenAIProvider) DefaultModel() string { return p.defaultModel }

// --- wire types ---

type oaiMessage struct {
	Role       string        `json:"role"`
	Content    *string       `json:"content"`
	Name       string        `json:"name,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	ToolCalls  []oaiToolCall `json:"tool_calls,omitempty"`
}

type oaiToolCall struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function oaiCallFunction `json:"function"`
}

type oaiCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type oaiRequest struct {
	Model       string           `json:"model"`
	Messages    []oaiMessage     `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
}

type oaiResponse struct {
	Choices []struct {
		FinishReason string     `json:"finish_reason"`
		Message      oaiMessage `json:"message"`
	} `json:"choices"`
	Usage *Usage `json:"usage,omitempty"`
}

// Chat sends one non-streaming completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	body := oaiRequest{
		Model:     model,
		Messages:  toOpenAIMessages(req.Messages),
		Tools:     req.Tools,
		MaxTokens: req.Options.MaxTokens,
	}
	if req.Options.Temperature > 0 {
		t := req.Options.Temperature
		body.Temperature = &t
	}

	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/chat/completions", buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPError{Provider: p.name, StatusCode: resp.StatusCode, Body: string(b)}
	}

	var out oaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", p.name, err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", p.name)
	}

	choice := out.Choices[0]
	result := &ChatResponse{
		FinishReason: choice.FinishReason,
		Usage:        out.Usage,
	}
	if choice.Message.Content != nil {
		result.Content = *choice.Message.Content
	}
	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: decodeArguments(tc.Function.Name, tc.Function.Arguments),
		})
	}
	return result, nil
}

func toOpenAIMessages(msgs []Message) []oaiMessage {
	out := make([]oaiMessage, 0, len(msgs))
	for _, m := range msgs {
		content := m.Content
		om := oaiMessage{
			Role:       m.Role,
			Content:    &content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		// Assistant turns that only call tools carry content: null.
		if m.Role == RoleAssistant && len(m.ToolCalls) > 0 && m.Content == "" {
			om.Content = nil
		}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			om.ToolCalls = append(om.ToolCalls, oaiToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: oaiCallFunction{Name: tc.Name, Arguments: string(args)},
			})
		}
		out = append(out, om)
	}
	return out
}

// decodeArguments parses the JSON-encoded argument string. Malformed arguments
// yield an empty map so the tool can report its own validation error.
func decodeArguments(tool, raw string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		slog.Warn("provider: malformed tool arguments", "tool", tool, "error", err)
		return map[string]any{}
	}
	return args
}

// HTTPError is a non-2xx reply from a provider API.
type HTTPError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s API returned %d: %s", e.Provider, e.StatusCode, e.Body)
}
