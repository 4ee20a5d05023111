package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/researcher/internal/client"
	"github.com/nextlevelbuilder/researcher/internal/render"
	"github.com/nextlevelbuilder/researcher/internal/tui"
)

func tuiCmd() *cobra.Command {
	var (
		gatewayURL string
		standalone bool
	)
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Interactive terminal client",
		Long: `Opens the interactive research client. Queries go to the running gateway,
or to an in-process agent when no gateway is reachable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			base := gatewayURL
			if base == "" {
				base = gatewayBaseURL(cfg)
			}
			opts := render.Options{Hyperlinks: true}

			if !standalone && isGatewayRunning(hostOf(base)) {
				return tui.Run(ctx, client.New(base, cfg.Gateway.Token), opts)
			}

			fmt.Fprintln(os.Stderr, "Gateway not running, starting an in-process agent...")
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return tui.Run(ctx, localQuerier{svc: a.service, sessionKey: "tui"}, opts)
		},
	}
	cmd.Flags().StringVar(&gatewayURL, "gateway", "", "gateway base URL (default from gateway.host/port)")
	cmd.Flags().BoolVar(&standalone, "standalone", false, "always use an in-process agent")
	return cmd
}
