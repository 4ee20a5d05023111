package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/researcher/internal/providers"
	"github.com/nextlevelbuilder/researcher/internal/research"
	"github.com/nextlevelbuilder/researcher/internal/tools"
	"github.com/nextlevelbuilder/researcher/internal/tracing"
	"github.com/nextlevelbuilder/researcher/pkg/protocol"
)

const (
	defaultMaxIterations = 10
	maxParallelTools     = 4
)

const systemPromptPrefix = "You are a research assistant that will help generate a research paper. " +
	"Answer the user query and use neccessary tools. " +
	"Wrap the output in this format and provide no other text\n"

// SystemPrompt is the instruction sent before every query.
func SystemPrompt() string {
	return systemPromptPrefix + research.FormatInstructions()
}

// LoopConfig configures a Loop.
type LoopConfig struct {
	Provider            providers.Provider
	Model               string // empty uses the provider default
	Tools               *tools.Registry
	MaxIterations       int
	Options             providers.Options
	Retry               providers.RetryConfig
	ContextWindowTokens int
}

// Loop is the tool-calling agent executor: it alternates model calls and
// tool executions until the model answers without requesting tools.
type Loop struct {
	provider      providers.Provider
	model         string
	tools         *tools.Registry
	maxIterations int
	options       providers.Options
	retry         providers.RetryConfig
	contextWindow int

	active atomic.Int32
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.Model == "" && cfg.Provider != nil {
		cfg.Model = cfg.Provider.DefaultModel()
	}
	if cfg.Tools == nil {
		cfg.Tools = tools.NewRegistry()
	}
	if cfg.ContextWindowTokens <= 0 {
		cfg.ContextWindowTokens = defaultContextWindowTokens
	}
	return &Loop{
		provider:      cfg.Provider,
		model:         cfg.Model,
		tools:         cfg.Tools,
		maxIterations: cfg.MaxIterations,
		options:       cfg.Options,
		retry:         cfg.Retry,
		contextWindow: cfg.ContextWindowTokens,
	}
}

func (l *Loop) Model() string   { return l.model }
func (l *Loop) IsRunning() bool { return l.active.Load() > 0 }

// Run executes one research run.
func (l *Loop) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	l.active.Add(1)
	defer l.active.Add(-1)

	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	maxIter := req.MaxIterations
	if maxIter <= 0 {
		maxIter = l.maxIterations
	}
	ctx = tools.WithRunID(ctx, req.RunID)

	req.emit(protocol.AgentEvent{Type: protocol.EventRunStarted})
	result, err := l.run(ctx, req, maxIter)
	if err != nil {
		req.emit(protocol.AgentEvent{Type: protocol.EventRunFailed, Error: err.Error()})
		return nil, err
	}
	req.emit(protocol.AgentEvent{Type: protocol.EventRunCompleted, Iteration: result.Iterations})
	return result, nil
}

func (l *Loop) run(ctx context.Context, req RunRequest, maxIter int) (*RunResult, error) {
	msgs := []providers.Message{
		{Role: providers.RoleSystem, Content: SystemPrompt()},
		{Role: providers.RoleUser, Content: req.Query},
	}
	defs := l.tools.ProviderDefs()

	var (
		usage providers.Usage
		used  []string
		seen  = make(map[string]bool)
	)

	for iter := 1; iter <= maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, context.Cause(ctx)
		}

		msgs = pruneToolResults(msgs, l.contextWindow)
		resp, err := l.chat(ctx, iter, msgs, defs)
		if err != nil {
			if c := context.Cause(ctx); c != nil && ctx.Err() != nil {
				return nil, fmt.Errorf("llm call (iteration %d): %w", iter, c)
			}
			return nil, fmt.Errorf("llm call (iteration %d): %w", iter, err)
		}
		usage.Add(resp.Usage)

		if !resp.HasToolCalls() {
			out := research.ParseOrRaw(resp.Content)
			if out.Report != nil {
				out.Report.MergeToolsUsed(used)
			}
			return &RunResult{
				RunID:      req.RunID,
				Output:     resp.Content,
				Response:   out,
				ToolsUsed:  nonNil(used),
				Usage:      usage,
				Iterations: iter,
				Model:      l.model,
			}, nil
		}

		msgs = append(msgs, providers.Message{
			Role:      providers.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		results := l.executeTools(ctx, req, iter, resp.ToolCalls)
		for i, tc := range resp.ToolCalls {
			if !seen[tc.Name] {
				seen[tc.Name] = true
				used = append(used, tc.Name)
			}
			msgs = append(msgs, providers.Message{
				Role:       providers.RoleTool,
				Content:    results[i].ForLLM,
				ToolCallID: tc.ID,
				Name:       tc.Name,
			})
		}
	}

	slog.Warn("agent hit max iterations", "run_id", req.RunID, "max", maxIter)
	return nil, fmt.Errorf("%w (%d)", ErrMaxIterations, maxIter)
}

func (l *Loop) chat(ctx context.Context, iter int, msgs []providers.Message, defs []providers.ToolDefinition) (*providers.ChatResponse, error) {
	ctx, span := tracing.Start(ctx, "llm.chat")
	span.SetAttributes(
		tracing.AttrSystem.String(l.provider.Name()),
		tracing.AttrModel.String(l.model),
		tracing.AttrIteration.Int(iter),
	)

	start := time.Now()
	resp, err := providers.ChatWithRetry(ctx, l.provider, providers.ChatRequest{
		Messages: msgs,
		Tools:    defs,
		Model:    l.model,
		Options:  l.options,
	}, l.retry)
	if err == nil {
		span.SetAttributes(tracing.AttrFinishReason.String(resp.FinishReason))
		if resp.Usage != nil {
			span.SetAttributes(
				tracing.AttrInputTokens.Int(resp.Usage.PromptTokens),
				tracing.AttrOutputTokens.Int(resp.Usage.CompletionTokens),
			)
		}
		slog.Debug("llm call done", "run_id", tools.RunIDFromCtx(ctx), "iteration", iter,
			"tool_calls", len(resp.ToolCalls), "duration_ms", time.Since(start).Milliseconds())
	}
	tracing.End(span, err)
	return resp, err
}

// executeTools runs the calls concurrently and returns results in call order.
func (l *Loop) executeTools(ctx context.Context, req RunRequest, iter int, calls []providers.ToolCall) []*tools.Result {
	results := make([]*tools.Result, len(calls))

	var g errgroup.Group
	g.SetLimit(maxParallelTools)
	for i, tc := range calls {
		g.Go(func() error {
			req.emit(protocol.AgentEvent{Type: protocol.EventToolCall, Tool: tc.Name, Arguments: tc.Arguments, Iteration: iter})

			tctx, span := tracing.Start(ctx, "tool."+tc.Name)
			span.SetAttributes(
				tracing.AttrToolName.String(tc.Name),
				tracing.AttrToolCallID.String(tc.ID),
				tracing.AttrIteration.Int(iter),
			)
			res := l.tools.ExecuteWithContext(tctx, tc.Name, tc.Arguments, req.SessionKey)
			span.SetAttributes(tracing.AttrOutput.String(tracing.Preview(res.ForLLM)))
			var spanErr error
			if res.IsError {
				spanErr = res.Err
				if spanErr == nil {
					spanErr = errors.New(tracing.Preview(res.ForLLM))
				}
			}
			tracing.End(span, spanErr)

			results[i] = res
			req.emit(protocol.AgentEvent{Type: protocol.EventToolResult, Tool: tc.Name, IsError: res.IsError, Iteration: iter})
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
