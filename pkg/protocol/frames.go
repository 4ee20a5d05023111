// Package protocol defines the wire format shared by the researcher gateway and its clients:
// the /agent request/response bodies and the /ws frame envelope.
package protocol

import (
	"encoding/json"

	"github.com/nextlevelbuilder/researcher/internal/research"
)

// ProtocolVersion is reported by /health so clients can detect incompatible gateways.
const ProtocolVersion = 1

// Frame types
const (
	FrameTypeRequest = "req"
	FrameTypeEvent   = "event"
	FrameTypeResult  = "result"
	FrameTypeError   = "error"
	FrameTypeAbort   = "abort" // client → server: cancel the run started by request ID
)

// AgentRequest is the body of POST /agent and of a /ws request frame.
type AgentRequest struct {
	Query string `json:"query"`
}

// AgentResponse is the body of a successful POST /agent.
// Response is either a plain string or a structured report.
type AgentResponse struct {
	Response  research.Response `json:"response"`
	RunID     string            `json:"run_id,omitempty"`
	ToolsUsed []string          `json:"tools_used,omitempty"`
	Cached    bool              `json:"cached,omitempty"`
}

// ErrorShape describes a protocol error.
type ErrorShape struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// ErrorBody is the JSON body of every non-2xx gateway response.
type ErrorBody struct {
	Error ErrorShape `json:"error"`
}

// Frame is a single /ws message. Clients send Type=req with Query set; the server
// answers with zero or more event frames followed by exactly one result or error frame.
// Type=abort with the same ID cancels a running request.
type Frame struct {
	Type   string         `json:"type"`
	ID     string         `json:"id,omitempty"`
	Query  string         `json:"query,omitempty"`
	Event  *AgentEvent    `json:"event,omitempty"`
	Result *AgentResponse `json:"result,omitempty"`
	Error  *ErrorShape    `json:"error,omitempty"`
}

// NewEventFrame wraps a progress event.
func NewEventFrame(id string, ev AgentEvent) *Frame {
	return &Frame{Type: FrameTypeEvent, ID: id, Event: &ev}
}

// NewResultFrame wraps a final response.
func NewResultFrame(id string, resp *AgentResponse) *Frame {
	return &Frame{Type: FrameTypeResult, ID: id, Result: resp}
}

// NewErrorFrame creates a terminal error frame.
func NewErrorFrame(id, code, message string) *Frame {
	return &Frame{Type: FrameTypeError, ID: id, Error: &ErrorShape{Code: code, Message: message}}
}

// ParseFrameType extracts the frame type from raw JSON bytes.
func ParseFrameType(data []byte) (string, error) {
	var raw struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", err
	}
	return raw.Type, nil
}
