package agent

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/researcher/internal/history"
	"github.com/nextlevelbuilder/researcher/internal/providers"
	"github.com/nextlevelbuilder/researcher/internal/tools"
	"github.com/nextlevelbuilder/researcher/pkg/protocol"
)

// scriptedProvider returns the scripted responses in order, repeating the last.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*providers.ChatResponse
	err       error
	requests  []providers.ChatRequest
	gate      chan struct{} // when set, Chat waits for it (or ctx)
}

func (p *scriptedProvider) Name() string         { return "scripted" }
func (p *scriptedProvider) DefaultModel() string { return "scripted-1" }

func (p *scriptedProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	n := len(p.requests)
	gate := p.gate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	idx := n - 1
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	return p.responses[idx], nil
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func (p *scriptedProvider) request(i int) providers.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[i]
}

func finalAnswer(content string) *providers.ChatResponse {
	return &providers.ChatResponse{Content: content, FinishReason: "stop", Usage: &providers.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}
}

func toolCalls(calls ...providers.ToolCall) *providers.ChatResponse {
	return &providers.ChatResponse{ToolCalls: calls, FinishReason: "tool_calls", Usage: &providers.Usage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10}}
}

// echoTool returns "<name>:<query>" and counts its invocations.
type echoTool struct {
	name  string
	calls atomic.Int32
}

func (t *echoTool) Name() string        { return t.name }
func (t *echoTool) Description() string { return "echoes its query" }
func (t *echoTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"query": map[string]any{"type": "string"}},
	}
}

func (t *echoTool) Execute(_ context.Context, args map[string]any) *tools.Result {
	t.calls.Add(1)
	q, _ := args["query"].(string)
	return tools.NewResult(t.name + ":" + q)
}

func newTestRegistry(names ...string) (*tools.Registry, map[string]*echoTool) {
	reg := tools.NewRegistry()
	byName := make(map[string]*echoTool, len(names))
	for _, n := range names {
		t := &echoTool{name: n}
		reg.Register(t)
		byName[n] = t
	}
	return reg, byName
}

// eventLog collects events from concurrent emitters.
type eventLog struct {
	mu     sync.Mutex
	events []protocol.AgentEvent
}

func (l *eventLog) add(ev protocol.AgentEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Type
	}
	return out
}

// memoryStore is an in-memory history.Store.
type memoryStore struct {
	history.Nop
	mu      sync.Mutex
	records []*history.Record
}

func (s *memoryStore) Save(_ context.Context, rec *history.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *memoryStore) Get(_ context.Context, id uuid.UUID) (*history.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, history.ErrNotFound
}

func (s *memoryStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
