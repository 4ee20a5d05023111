package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/researcher/internal/mcp"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the research tool over MCP (stdio)",
		Long: `Runs an MCP server on stdin/stdout exposing one tool, "research".
Add it to an MCP client, for example:

  {"mcpServers": {"researcher": {"command": "researcher", "args": ["mcp"]}}}

Logs go to stderr so they never corrupt the protocol stream.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return mcp.ServeStdio(mcp.NewServer(a.service, Version))
		},
	}
}
