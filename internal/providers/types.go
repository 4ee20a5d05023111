// Package providers adapts LLM chat APIs (Gemini, OpenAI-compatible endpoints) to a
// single tool-calling interface used by the research agent loop.
package providers

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Provider is a chat-completion backend that supports function calling.
type Provider interface {
	Name() string
	DefaultModel() string
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Message is one turn of the conversation sent to the model.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // assistant turns that requested tools
	ToolCallID string     `json:"tool_call_id,omitempty"` // tool turns: the call being answered
	Name       string     `json:"name,omitempty"`         // tool turns: the tool name
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`

	// ThoughtSignature is Gemini's opaque reasoning token for this call. It
	// must be sent back unchanged with the call in the next turn.
	ThoughtSignature []byte `json:"-"`
}

// ToolDefinition describes a callable tool in OpenAI function format.
type ToolDefinition struct {
	Type     string             `json:"type"`
	Function ToolFunctionSchema `json:"function"`
}

// ToolFunctionSchema is the function part of a ToolDefinition.
type ToolFunctionSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Options tune a single request. Zero values mean "provider default".
type Options struct {
	Temperature float64
	MaxTokens   int
}

// ChatRequest is a provider-agnostic chat request.
type ChatRequest struct {
	Messages []Message
	Tools    []ToolDefinition
	Model    string
	Options  Options
}

// Usage reports token accounting when the backend returns it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage report.
func (u *Usage) Add(o *Usage) {
	if o == nil {
		return
	}
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
	u.TotalTokens += o.TotalTokens
}

// ChatResponse is the model's reply: final text, tool calls, or both.
type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        *Usage
}

// HasToolCalls reports whether the model asked for tool execution.
func (r *ChatResponse) HasToolCalls() bool { return len(r.ToolCalls) > 0 }
