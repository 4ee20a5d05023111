package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/nextlevelbuilder/researcher/internal/cache"
	"github.com/nextlevelbuilder/researcher/internal/config"
	"github.com/nextlevelbuilder/researcher/internal/history"
	"github.com/nextlevelbuilder/researcher/internal/tracing"
	"github.com/nextlevelbuilder/researcher/pkg/protocol"
)

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Agent   Agent
	Cache   cache.Cache   // nil disables caching
	History history.Store // nil disables history
	Guard   *InputGuard   // nil uses NewInputGuard()

	// MaxConcurrentRuns caps agent runs executing at once; further runs wait
	// for a slot, and the wait counts against their timeout. 0 is unlimited.
	MaxConcurrentRuns int

	// Settings returns the current agent settings. It is consulted on every
	// run so hot-reloaded values apply without a restart.
	Settings func() config.AgentConfig
}

// Service is the entry point used by the gateway, the CLI and the MCP server.
type Service struct {
	agent    Agent
	cache    cache.Cache
	history  history.Store
	guard    *InputGuard
	settings func() config.AgentConfig

	group singleflight.Group
	runs  *RunTracker
	slots *semaphore.Weighted // nil when unlimited
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		agent:    cfg.Agent,
		cache:    cfg.Cache,
		history:  cfg.History,
		guard:    cfg.Guard,
		settings: cfg.Settings,
		runs:     NewRunTracker(),
	}
	if cfg.MaxConcurrentRuns > 0 {
		s.slots = semaphore.NewWeighted(int64(cfg.MaxConcurrentRuns))
	}
	if s.cache == nil {
		s.cache = cache.Nop{}
	}
	if s.history == nil {
		s.history = history.Nop{}
	}
	if s.guard == nil {
		s.guard = NewInputGuard()
	}
	if s.settings == nil {
		def := config.Default().Agent
		s.settings = func() config.AgentConfig { return def }
	}
	return s
}

// Model is the model answering queries.
func (s *Service) Model() string { return s.agent.Model() }

// Runs exposes the in-flight run registry.
func (s *Service) Runs() *RunTracker { return s.runs }

// History returns the run history store.
func (s *Service) History() history.Store { return s.history }

// Research answers one query. Identical concurrent queries share a single
// agent run; only the first caller receives progress events.
func (s *Service) Research(ctx context.Context, req RunRequest) (*RunResult, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}
	if req.RunID == "" {
		req.RunID = newRunID()
	}
	settings := s.settings()
	if req.MaxIterations <= 0 {
		req.MaxIterations = settings.MaxIterations
	}

	ctx, span := tracing.Start(ctx, "agent.run")
	span.SetAttributes(
		tracing.AttrRunID.String(req.RunID),
		tracing.AttrQuery.String(tracing.Preview(req.Query)),
	)

	res, err := s.research(ctx, req, settings)
	if err == nil {
		span.SetAttributes(
			tracing.AttrCached.Bool(res.Cached),
			tracing.AttrOutput.String(tracing.Preview(res.Response.Preview())),
		)
	}
	tracing.End(span, err)
	return res, err
}

func (s *Service) research(ctx context.Context, req RunRequest, settings config.AgentConfig) (*RunResult, error) {
	if err := s.guard.Check(req.Query, settings.InjectionAction); err != nil {
		return nil, err
	}

	key := cache.Key(req.Query)
	if resp, ok := s.cache.Get(ctx, key); ok {
		slog.Debug("research cache hit", "run_id", req.RunID)
		var used []string
		if resp.Report != nil {
			used = resp.Report.ToolsUsed
		}
		req.emit(protocol.AgentEvent{Type: protocol.EventRunCompleted})
		return &RunResult{
			RunID:     req.RunID,
			Response:  resp,
			ToolsUsed: nonNil(used),
			Model:     s.agent.Model(),
			Cached:    true,
		}, nil
	}

	ch := s.group.DoChan(key, func() (any, error) {
		return s.runShared(ctx, req, settings.Timeout())
	})
	select {
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := r.Val.(*RunResult)
		if r.Shared {
			cp := *res
			return &cp, nil
		}
		return res, nil
	}
}

// runShared executes the agent detached from the caller's cancellation, so a
// departing caller does not fail the others waiting on the same query. The
// run is bounded by timeout and can be aborted through the run tracker.
func (s *Service) runShared(ctx context.Context, req RunRequest, timeout time.Duration) (*RunResult, error) {
	runCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	defer cancel(nil)
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeoutCause(runCtx, timeout, fmt.Errorf("%w after %s", ErrRunTimeout, timeout))
		defer cancelTimeout()
	}

	s.runs.Register(req.RunID, req.SessionKey, req.Query, cancel)
	defer s.runs.Unregister(req.RunID)

	if s.slots != nil {
		if !s.slots.TryAcquire(1) {
			slog.Debug("research run waiting for a free slot", "run_id", req.RunID)
			if err := s.slots.Acquire(runCtx, 1); err != nil {
				return nil, context.Cause(runCtx)
			}
		}
		defer s.slots.Release(1)
	}

	start := time.Now()
	res, err := s.agent.Run(runCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrRunTimeout) {
			err = fmt.Errorf("%w: %w", ErrRunTimeout, err)
		}
		slog.Warn("research run failed", "run_id", req.RunID, "error", err)
		return nil, err
	}
	took := time.Since(start)

	// Persist with the original context values but without its deadline.
	saveCtx := context.WithoutCancel(ctx)
	if err := s.cache.Set(saveCtx, cache.Key(req.Query), res.Response); err != nil {
		slog.Warn("research cache store failed", "run_id", res.RunID, "error", err)
	}
	rec := history.NewRecord(req.Query, res.Response, res.ToolsUsed, res.Model, took)
	if id, perr := uuid.Parse(res.RunID); perr == nil {
		rec.ID = id
	}
	if err := s.history.Save(saveCtx, rec); err != nil {
		slog.Warn("research history save failed", "run_id", res.RunID, "error", err)
	}

	slog.Info("research run completed",
		"run_id", res.RunID,
		"iterations", res.Iterations,
		"tools", strings.Join(res.ToolsUsed, ","),
		"structured", res.Response.IsStructured(),
		"duration_ms", took.Milliseconds(),
	)
	return res, nil
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
