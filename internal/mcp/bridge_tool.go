// Package mcp bridges external MCP servers into the tool registry and serves
// the researcher itself as an MCP tool.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/researcher/internal/tools"
)

const defaultCallTimeoutSec = 60

// BridgeTool exposes one tool of a connected MCP server as a tools.Tool.
type BridgeTool struct {
	serverName     string
	toolName       string // name on the MCP server
	registeredName string // "{prefix}__{toolName}" when a prefix is set
	description    string
	inputSchema    map[string]any
	client         *mcpclient.Client
	timeoutSec     int
	connected      *atomic.Bool
}

// NewBridgeTool wraps mcpTool. connected is shared by every tool of the same
// server and flipped off when the server goes away.
func NewBridgeTool(serverName string, mcpTool mcpgo.Tool, client *mcpclient.Client, prefix string, timeoutSec int, connected *atomic.Bool) *BridgeTool {
	registered := mcpTool.Name
	if prefix != "" {
		registered = prefix + "__" + mcpTool.Name
	}
	if timeoutSec <= 0 {
		timeoutSec = defaultCallTimeoutSec
	}
	return &BridgeTool{
		serverName:     serverName,
		toolName:       mcpTool.Name,
		registeredName: registered,
		description:    describe(serverName, mcpTool.Description),
		inputSchema:    inputSchemaToMap(mcpTool.InputSchema),
		client:         client,
		timeoutSec:     timeoutSec,
		connected:      connected,
	}
}

func (t *BridgeTool) Name() string               { return t.registeredName }
func (t *BridgeTool) Description() string        { return t.description }
func (t *BridgeTool) Parameters() map[string]any { return t.inputSchema }

// ServerName returns the configured name of the owning server.
func (t *BridgeTool) ServerName() string { return t.serverName }

// OriginalName returns the tool name without prefix.
func (t *BridgeTool) OriginalName() string { return t.toolName }

func (t *BridgeTool) Execute(ctx context.Context, args map[string]any) *tools.Result {
	if t.client == nil || (t.connected != nil && !t.connected.Load()) {
		return tools.ErrorResult(fmt.Sprintf("MCP server %q is disconnected", t.serverName))
	}

	callCtx, cancel := context.WithTimeout(ctx, time.Duration(t.timeoutSec)*time.Second)
	defer cancel()

	req := mcpgo.CallToolRequest{}
	req.Params.Name = t.toolName
	req.Params.Arguments = args

	result, err := t.client.CallTool(callCtx, req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return tools.ErrorResult(fmt.Sprintf("MCP tool %q timeout after %ds", t.registeredName, t.timeoutSec)).WithError(err)
		}
		return tools.ErrorResult(fmt.Sprintf("MCP tool %q error: %v", t.registeredName, err)).WithError(err)
	}

	text := extractTextContent(result)
	if result.IsError {
		return tools.ErrorResult(text)
	}
	return tools.NewResult(text)
}

func describe(server, desc string) string {
	if desc == "" {
		return fmt.Sprintf("Tool provided by MCP server %q.", server)
	}
	return desc
}

// inputSchemaToMap converts the MCP input schema to the JSON Schema map the
// providers expect.
func inputSchemaToMap(schema mcpgo.ToolInputSchema) map[string]any {
	m := map[string]any{"type": schema.Type}
	if schema.Type == "" {
		m["type"] = "object"
	}
	if len(schema.Properties) > 0 {
		m["properties"] = schema.Properties
	}
	if len(schema.Required) > 0 {
		m["required"] = schema.Required
	}
	if schema.AdditionalProperties != nil {
		m["additionalProperties"] = schema.AdditionalProperties
	}
	return m
}

// extractTextContent joins the text parts of a tool result.
func extractTextContent(result *mcpgo.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	parts := make([]string, 0, len(result.Content))
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcpgo.TextContent:
			parts = append(parts, v.Text)
		case *mcpgo.TextContent:
			parts = append(parts, v.Text)
		default:
			parts = append(parts, fmt.Sprintf("[non-text content: %T]", c))
		}
	}
	return strings.Join(parts, "\n")
}
