package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nextlevelbuilder/researcher/internal/agent"
)

const (
	serverName   = "researcher"
	researchTool = "research"
)

// Researcher answers research queries.
type Researcher interface {
	Research(ctx context.Context, req agent.RunRequest) (*agent.RunResult, error)
}

// NewServer builds an MCP server exposing the "research" tool.
func NewServer(r Researcher, version string) *server.MCPServer {
	s := server.NewMCPServer(serverName, version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	s.AddTool(mcpgo.NewTool(researchTool,
		mcpgo.WithDescription("Research a topic with Wikipedia and the configured tools. Returns a JSON report with topic, summary, sources and tools_used."),
		mcpgo.WithString("query",
			mcpgo.Required(),
			mcpgo.Description("The research question or topic"),
		),
	), researchHandler(r))
	return s
}

// ServeStdio serves s on stdin/stdout until the input closes.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func researchHandler(r Researcher) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpgo.NewToolResultError(err.Error()), nil
		}

		res, err := r.Research(ctx, agent.RunRequest{Query: query, SessionKey: "mcp"})
		if err != nil {
			slog.Warn("mcp research failed", "error", err)
			return mcpgo.NewToolResultError(agent.UserMessage(err)), nil
		}

		if !res.Response.IsStructured() {
			return mcpgo.NewToolResultText(res.Response.Text), nil
		}
		out, err := json.MarshalIndent(res.Response, "", "  ")
		if err != nil {
			return mcpgo.NewToolResultError("failed to encode research result"), nil
		}
		return mcpgo.NewToolResultText(string(out)), nil
	}
}
