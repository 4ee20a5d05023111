package protocol

// Agent event types streamed over /ws (EventFrame.Event).
const (
	EventRunStarted   = "run.started"
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
	EventToolCall     = "tool.call"
	EventToolResult   = "tool.result"
)

// AgentEvent is the payload of a progress event.
type AgentEvent struct {
	Type      string         `json:"type"`
	RunID     string         `json:"run_id"`
	Tool      string         `json:"tool,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
	Iteration int            `json:"iteration,omitempty"`
	Error     string         `json:"error,omitempty"`
}
