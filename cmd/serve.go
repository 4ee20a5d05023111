package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/researcher/internal/config"
	httpapi "github.com/nextlevelbuilder/researcher/internal/http"
	"github.com/nextlevelbuilder/researcher/internal/tracing"
)

func serveCmd() *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP/WebSocket gateway and the web client",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Gateway.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Gateway.Port = port
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides gateway.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides gateway.port)")
	return cmd
}

func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracingConfig(cfg))
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
	} else {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(sctx); err != nil {
				slog.Warn("tracing shutdown failed", "error", err)
			}
		}()
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	stopWatch := watchConfig(cfg)
	defer stopWatch()

	srv := httpapi.NewServer(httpapi.Config{
		Addr:           cfg.Addr(),
		Token:          cfg.Gateway.Token,
		RateLimitRPM:   cfg.Gateway.RateLimitRPM,
		AllowedOrigins: cfg.Gateway.AllowedOrigins,
		Provider:       a.provider.Name(),
		Version:        Version,
	}, a.service, a.history)

	fmt.Fprintf(os.Stderr, "researcher %s serving on http://%s\n", Version, cfg.Addr())
	return srv.ListenAndServe(ctx)
}

// watchConfig hot-reloads agent settings while the server runs. Without a
// config file on disk there is nothing to watch.
func watchConfig(cfg *config.Config) (stop func()) {
	noop := func() {}
	path := resolveConfigPath()
	if _, err := os.Stat(path); err != nil {
		slog.Debug("config hot reload off", "path", path, "reason", "no config file")
		return noop
	}
	w, err := config.NewWatcher(path)
	if err != nil {
		slog.Warn("config watcher unavailable", "error", err)
		return noop
	}
	w.OnChange(cfg.ApplyReload)
	if err := w.Start(); err != nil {
		slog.Warn("config watcher failed to start", "error", err)
		w.Stop()
		return noop
	}
	return w.Stop
}

func tracingConfig(cfg *config.Config) tracing.Config {
	return tracing.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		Protocol:    cfg.Telemetry.Protocol,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     Version,
	}
}
