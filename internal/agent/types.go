package agent

import (
	"context"

	"github.com/nextlevelbuilder/researcher/internal/providers"
	"github.com/nextlevelbuilder/researcher/internal/research"
	"github.com/nextlevelbuilder/researcher/pkg/protocol"
)

// Agent is the research executor. Implemented by *Loop.
type Agent interface {
	Run(ctx context.Context, req RunRequest) (*RunResult, error)
	IsRunning() bool
	Model() string
}

// EventFunc receives progress events of a run. It is called from the run's
// goroutines and must not block.
type EventFunc func(protocol.AgentEvent)

// RunRequest is the input for one research run.
type RunRequest struct {
	Query         string
	RunID         string // generated when empty
	SessionKey    string // rate limiting and abort scope
	MaxIterations int    // 0 uses the loop default
	OnEvent       EventFunc
}

// RunResult is the outcome of a completed run.
type RunResult struct {
	RunID      string            `json:"run_id"`
	Output     string            `json:"output"` // raw final model text
	Response   research.Response `json:"response"`
	ToolsUsed  []string          `json:"tools_used"`
	Usage      providers.Usage   `json:"usage"`
	Iterations int               `json:"iterations"`
	Model      string            `json:"model"`
	Cached     bool              `json:"cached,omitempty"`
}

func (r RunRequest) emit(ev protocol.AgentEvent) {
	if r.OnEvent == nil {
		return
	}
	ev.RunID = r.RunID
	r.OnEvent(ev)
}
