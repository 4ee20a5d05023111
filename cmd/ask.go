package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/researcher/internal/agent"
	"github.com/nextlevelbuilder/researcher/internal/client"
	"github.com/nextlevelbuilder/researcher/internal/config"
	"github.com/nextlevelbuilder/researcher/internal/render"
	"github.com/nextlevelbuilder/researcher/pkg/protocol"
)

type askOptions struct {
	jsonOut    bool
	stream     bool
	plain      bool
	standalone bool
	gatewayURL string
}

func askCmd() *cobra.Command {
	var opts askOptions
	cmd := &cobra.Command{
		Use:   "ask [query]",
		Short: "Send one research query and print the result",
		Long: `Send a query to the running gateway and print the result.
Falls back to standalone mode (in-process agent) if the gateway is not running.

Examples:
  researcher ask "history of the printing press"
  researcher ask --stream "quantum error correction"   # show tool calls as they happen
  researcher ask --json "CRISPR" | jq .response.sources`,
		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()
			query := strings.Join(args, " ")
			if strings.TrimSpace(query) == "" {
				return
			}
			if err := runAsk(cfg, query, opts); err != nil {
				os.Exit(1)
			}
		},
	}
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "print the raw JSON response")
	cmd.Flags().BoolVar(&opts.stream, "stream", false, "stream agent events over the websocket")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "no colors or hyperlinks")
	cmd.Flags().BoolVar(&opts.standalone, "standalone", false, "run the agent in-process even if a gateway is up")
	cmd.Flags().StringVar(&opts.gatewayURL, "gateway", "", "gateway base URL (default from gateway.host/port)")
	return cmd
}

func runAsk(cfg *config.Config, query string, opts askOptions) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var onEvent func(protocol.AgentEvent)
	if opts.stream {
		onEvent = cliEventPrinter(os.Stderr)
	}

	base := opts.gatewayURL
	if base == "" {
		base = gatewayBaseURL(cfg)
	}

	var (
		resp *protocol.AgentResponse
		err  error
	)
	if !opts.standalone && isGatewayRunning(hostOf(base)) {
		fmt.Fprintf(os.Stderr, "Connected to gateway at %s\n", base)
		c := client.New(base, cfg.Gateway.Token)
		if opts.stream {
			resp, err = c.Stream(ctx, query, onEvent)
		} else {
			resp, err = c.Query(ctx, query)
		}
		if err != nil {
			slog.Debug("gateway query failed", "error", err)
			fmt.Fprintln(os.Stderr, client.FetchFailedMessage)
			if verbose {
				fmt.Fprintf(os.Stderr, "  cause: %v\n", err)
			}
			return err
		}
	} else {
		if !opts.standalone {
			fmt.Fprintln(os.Stderr, "Gateway not running, using standalone mode")
		}
		resp, err = askStandalone(ctx, cfg, query, onEvent)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", agent.UserMessage(err))
			return err
		}
	}

	return printResponse(os.Stdout, resp, opts.jsonOut, renderOptions(opts.plain))
}

func askStandalone(ctx context.Context, cfg *config.Config, query string, onEvent func(protocol.AgentEvent)) (*protocol.AgentResponse, error) {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	return localQuerier{svc: a.service, onEvent: onEvent, sessionKey: "cli"}.Query(ctx, query)
}

// localQuerier answers queries with an in-process agent service.
type localQuerier struct {
	svc        *agent.Service
	onEvent    func(protocol.AgentEvent)
	sessionKey string
}

func (q localQuerier) Query(ctx context.Context, query string) (*protocol.AgentResponse, error) {
	res, err := q.svc.Research(ctx, agent.RunRequest{
		Query:      query,
		SessionKey: q.sessionKey,
		OnEvent:    q.onEvent,
	})
	if err != nil {
		return nil, err
	}
	return &protocol.AgentResponse{
		Response:  res.Response,
		RunID:     res.RunID,
		ToolsUsed: res.ToolsUsed,
		Cached:    res.Cached,
	}, nil
}

func printResponse(w io.Writer, resp *protocol.AgentResponse, jsonOut bool, opts render.Options) error {
	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	out := render.Text(resp.Response, opts)
	if out == "" {
		return errors.New("empty response")
	}
	_, err := io.WriteString(w, out)
	return err
}

// renderOptions styles output only when stdout is a terminal.
func renderOptions(plain bool) render.Options {
	tty := isTerminal(os.Stdout)
	return render.Options{
		Plain:      plain || !tty,
		Hyperlinks: !plain && tty,
	}
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// cliEventPrinter displays agent progress on w.
func cliEventPrinter(w io.Writer) func(protocol.AgentEvent) {
	var mu sync.Mutex
	return func(ev protocol.AgentEvent) {
		mu.Lock()
		defer mu.Unlock()
		switch ev.Type {
		case protocol.EventToolCall:
			fmt.Fprintf(w, "  [tool] %s\n", ev.Tool)
		case protocol.EventToolResult:
			if ev.IsError {
				fmt.Fprintf(w, "  [tool] %s -> error\n", ev.Tool)
			}
		case protocol.EventRunFailed:
			fmt.Fprintf(w, "  [run] failed: %s\n", ev.Error)
		}
	}
}

// --- Gateway detection ---

func gatewayBaseURL(cfg *config.Config) string {
	host := cfg.Gateway.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, fmt.Sprint(cfg.Gateway.Port))
}

// hostOf returns host:port of a base URL, defaulting the port by scheme.
func hostOf(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return base
	}
	if u.Port() != "" {
		return u.Host
	}
	port := "80"
	if u.Scheme == "https" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}

func isGatewayRunning(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
