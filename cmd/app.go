package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/researcher/internal/agent"
	"github.com/nextlevelbuilder/researcher/internal/cache"
	"github.com/nextlevelbuilder/researcher/internal/config"
	"github.com/nextlevelbuilder/researcher/internal/history"
	"github.com/nextlevelbuilder/researcher/internal/mcp"
	"github.com/nextlevelbuilder/researcher/internal/providers"
	"github.com/nextlevelbuilder/researcher/internal/tools"
)

// app holds everything needed to run research in-process. serve, mcp and the
// standalone modes of ask and tui all build one.
type app struct {
	cfg      *config.Config
	provider providers.Provider
	tools    *tools.Registry
	cache    cache.Cache
	history  history.Store
	mcp      *mcp.Manager
	service  *agent.Service
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	// 1. Provider
	provider, err := providers.New(ctx, providers.Config{
		Kind:    cfg.Provider.Kind,
		APIKey:  cfg.Provider.APIKey,
		APIBase: cfg.Provider.APIBase,
		Model:   cfg.Provider.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: %w (run 'researcher init' to configure one)", err)
	}

	// 2. Tools
	reg := buildTools(cfg)

	// 3. Cache and history
	respCache, err := cache.New(ctx, cache.Options{
		Backend:    cfg.Cache.Backend,
		RedisURL:   cfg.Cache.RedisURL,
		TTL:        time.Duration(cfg.Cache.TTLSec) * time.Second,
		MaxEntries: cfg.Cache.MaxEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	store, err := history.Open(ctx, cfg.Database)
	if err != nil {
		respCache.Close()
		return nil, fmt.Errorf("history: %w", err)
	}

	a := &app{
		cfg:      cfg,
		provider: provider,
		tools:    reg,
		cache:    respCache,
		history:  store,
	}

	// 4. External MCP tools. A broken server must not keep the agent down.
	if len(cfg.MCPServers) > 0 {
		a.mcp = mcp.NewManager(reg, Version)
		if err := a.mcp.Start(ctx, cfg.MCPServers); err != nil {
			slog.Warn("some MCP servers failed to start", "error", err)
		}
	}

	// 5. Agent
	retry := providers.DefaultRetryConfig()
	retry.MaxRetries = cfg.Provider.MaxRetries
	loop := agent.NewLoop(agent.LoopConfig{
		Provider:      provider,
		Model:         cfg.Provider.Model,
		Tools:         reg,
		MaxIterations: cfg.Agent.MaxIterations,
		Options: providers.Options{
			Temperature: cfg.Provider.Temperature,
			MaxTokens:   cfg.Provider.MaxTokens,
		},
		Retry: retry,
	})
	a.service = agent.NewService(agent.ServiceConfig{
		Agent:    loop,
		Cache:    respCache,
		History:  store,
		Settings: cfg.AgentSettings,

		MaxConcurrentRuns: cfg.Gateway.MaxConcurrent,
	})

	slog.Debug("agent ready",
		"provider", provider.Name(),
		"model", loop.Model(),
		"tools", reg.List(),
	)
	return a, nil
}

// buildTools registers the built-in research tools enabled in cfg.
func buildTools(cfg *config.Config) *tools.Registry {
	reg := tools.NewRegistry()
	ttl := time.Duration(cfg.Tools.CacheTTLSec) * time.Second

	reg.Register(tools.NewWikipediaTool(tools.WikipediaConfig{
		TopK:     cfg.Tools.Wikipedia.TopK,
		MaxChars: cfg.Tools.Wikipedia.MaxChars,
		Lang:     cfg.Tools.Wikipedia.Lang,
		CacheTTL: ttl,
	}))
	if cfg.Tools.SaveFile.Enabled {
		reg.Register(tools.NewSaveFileTool(tools.SaveFileConfig{
			Dir:             cfg.Tools.SaveFile.Dir,
			DefaultFilename: cfg.Tools.SaveFile.Filename,
		}))
	}
	if cfg.Tools.WebSearch.Enabled {
		reg.Register(tools.NewWebSearchTool(tools.WebSearchConfig{
			MaxResults: cfg.Tools.WebSearch.MaxResults,
			CacheTTL:   ttl,
		}))
	}
	if cfg.Tools.WebFetch.Enabled {
		reg.Register(tools.NewWebFetchTool(tools.WebFetchConfig{
			MaxChars: cfg.Tools.WebFetch.MaxChars,
			CacheTTL: ttl,
		}))
	}

	if n := cfg.Tools.RateLimitPerHour; n > 0 {
		reg.SetRateLimiter(tools.NewToolRateLimiter(n, time.Hour))
	}
	reg.SetScrubbing(!cfg.Tools.DisableScrubbing)
	return reg
}

// Close releases the stores and stops MCP servers.
func (a *app) Close() error {
	var errs []error
	if a.mcp != nil {
		errs = append(errs, a.mcp.Close())
	}
	errs = append(errs, a.history.Close(), a.cache.Close())
	return errors.Join(errs...)
}
