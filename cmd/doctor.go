package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/researcher/internal/cache"
	"github.com/nextlevelbuilder/researcher/internal/client"
	"github.com/nextlevelbuilder/researcher/internal/config"
	"github.com/nextlevelbuilder/researcher/internal/history"
	"github.com/nextlevelbuilder/researcher/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	var verifyKey bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check environment, configuration and backing services",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor(verifyKey)
		},
	}
	cmd.Flags().BoolVar(&verifyKey, "verify-key", false, "send one authenticated request to the provider")
	return cmd
}

func runDoctor(verifyKey bool) {
	fmt.Println("researcher doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// Provider
	fmt.Println()
	fmt.Println("  Provider:")
	fmt.Printf("    %-12s %s\n", "Kind:", cfg.Provider.Kind)
	fmt.Printf("    %-12s %s\n", "Model:", firstNonEmpty(cfg.Provider.Model, "(provider default)"))
	checkProvider("API key:", cfg.Provider.APIKey)
	if verifyKey && cfg.Provider.APIKey != "" {
		if verr := verifyProviderKey(ctx, cfg.Provider.Kind, cfg.Provider.APIBase, cfg.Provider.APIKey); verr != nil {
			fmt.Printf("    %-12s %s\n", "Verify:", verr.message)
		} else {
			fmt.Printf("    %-12s OK\n", "Verify:")
		}
	}

	// Tools
	fmt.Println()
	fmt.Println("  Tools:")
	for _, name := range buildTools(cfg).List() {
		fmt.Printf("    %s\n", name)
	}
	for name, s := range cfg.MCPServers {
		status := "enabled"
		if s.Disabled {
			status = "disabled"
		}
		fmt.Printf("    %-12s mcp %s (%s)\n", name+":", s.Command, status)
	}

	// Storage
	fmt.Println()
	fmt.Println("  Storage:")
	checkCache(ctx, cfg)
	checkHistory(ctx, cfg.Database)

	// Gateway
	fmt.Println()
	base := gatewayBaseURL(cfg)
	fmt.Printf("  Gateway:  %s", base)
	if h, err := client.New(base, cfg.Gateway.Token).Health(ctx); err != nil {
		fmt.Println(" (not running)")
	} else {
		fmt.Printf(" (running, model %v, %v active runs)\n", h["model"], h["active_runs"])
	}
	if cfg.Gateway.Token == "" {
		fmt.Println("            auth: none (any local client can query)")
	}
	if cfg.Telemetry.Enabled {
		fmt.Printf("  Tracing:  %s via %s\n", cfg.Telemetry.Endpoint, cfg.Telemetry.Protocol)
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkProvider(label, apiKey string) {
	if apiKey == "" {
		fmt.Printf("    %-12s (not configured)\n", label)
		return
	}
	fmt.Printf("    %-12s %s\n", label, maskSecret(apiKey))
}

func checkCache(ctx context.Context, cfg *config.Config) {
	c, err := cache.New(ctx, cache.Options{
		Backend:    cfg.Cache.Backend,
		RedisURL:   cfg.Cache.RedisURL,
		TTL:        time.Duration(cfg.Cache.TTLSec) * time.Second,
		MaxEntries: cfg.Cache.MaxEntries,
	})
	if err != nil {
		fmt.Printf("    %-12s %s: %v\n", "Cache:", cfg.Cache.Backend, err)
		return
	}
	c.Close()
	fmt.Printf("    %-12s %s (OK)\n", "Cache:", cfg.Cache.Backend)
}

func checkHistory(ctx context.Context, db config.DatabaseConfig) {
	backend := "sqlite " + db.SQLitePath
	switch {
	case db.Disabled:
		fmt.Printf("    %-12s disabled\n", "History:")
		return
	case db.PostgresDSN != "":
		backend = "postgres"
	}
	store, err := history.Open(ctx, db)
	if err != nil {
		fmt.Printf("    %-12s %s: %v\n", "History:", backend, err)
		return
	}
	defer store.Close()
	recs, err := store.List(ctx, 1)
	if err != nil {
		fmt.Printf("    %-12s %s: %v\n", "History:", backend, err)
		return
	}
	fmt.Printf("    %-12s %s (OK, %d recent)\n", "History:", backend, len(recs))
}
