package cmd

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/researcher/internal/config"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard: provider, model, API key, gateway, tools",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runInit(); err != nil {
				fmt.Fprintf(os.Stderr, "Setup cancelled: %v\n", err)
				os.Exit(1)
			}
		},
	}
}

type providerInfo struct {
	label     string
	envKey    string
	modelHint string
}

var providerMap = map[string]providerInfo{
	"gemini":     {"Google Gemini", "GEMINI_API_KEY", "gemini-1.5-flash"},
	"openai":     {"OpenAI", "OPENAI_API_KEY", "gpt-4o-mini"},
	"openrouter": {"OpenRouter", "OPENROUTER_API_KEY", "google/gemini-2.0-flash-001"},
}

var providerOrder = []string{"gemini", "openai", "openrouter"}

func runInit() error {
	fmt.Println("researcher setup")
	fmt.Println()

	cfgPath := resolveConfigPath()
	cfg := config.Default()
	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Printf("Found existing config at %s\n", cfgPath)
		useExisting, err := promptConfirm("Use existing config as base?", true)
		if err != nil {
			return err
		}
		if useExisting {
			loaded, err := config.Load(cfgPath)
			if err != nil {
				fmt.Printf("Warning: could not load existing config: %v\n", err)
			} else {
				cfg = loaded
			}
		}
	}

	// --- Provider ---
	opts := make([]SelectOption[string], 0, len(providerOrder))
	defaultIdx := 0
	for i, name := range providerOrder {
		opts = append(opts, SelectOption[string]{Label: providerMap[name].label, Value: name})
		if name == cfg.Provider.Kind {
			defaultIdx = i
		}
	}
	kind, err := promptSelect("LLM provider", opts, defaultIdx)
	if err != nil {
		return err
	}
	if kind != cfg.Provider.Kind {
		cfg.Provider.Model = ""
		cfg.Provider.APIKey = ""
	}
	cfg.Provider.Kind = kind
	pi := providerMap[kind]

	model, err := promptString("Model", "Leave empty for the provider default", firstNonEmpty(cfg.Provider.Model, pi.modelHint))
	if err != nil {
		return err
	}
	if model == pi.modelHint {
		model = ""
	}
	cfg.Provider.Model = model

	// --- API key ---
	existing := firstNonEmpty(cfg.Provider.APIKey, os.Getenv(pi.envKey))
	if existing == "" {
		existing, _ = config.LookupAPIKey(kind)
	}
	desc := fmt.Sprintf("Also read from $%s", pi.envKey)
	if existing != "" {
		desc = "Press Enter to keep the current key"
	}
	apiKey, err := promptPassword(pi.label+" API key", desc)
	if err != nil {
		return err
	}
	if apiKey == "" {
		apiKey = existing
	}

	if apiKey != "" {
		fmt.Print("  Checking API key... ")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		verr := verifyProviderKey(ctx, kind, cfg.Provider.APIBase, apiKey)
		cancel()
		switch {
		case verr == nil:
			fmt.Println("OK")
		case verr.fatal:
			fmt.Printf("FAILED (%s)\n", verr.message)
			keep, err := promptConfirm("Save this key anyway?", false)
			if err != nil {
				return err
			}
			if !keep {
				apiKey = ""
			}
		default:
			fmt.Printf("WARNING (%s)\n", verr.message)
		}
	}

	cfg.Provider.APIKey = ""
	if apiKey != "" && apiKey != os.Getenv(pi.envKey) {
		useKeyring, err := promptConfirm("Store the API key in the OS keyring? (No writes it to the config file)", true)
		if err != nil {
			return err
		}
		if useKeyring {
			if err := config.StoreAPIKey(kind, apiKey); err != nil {
				fmt.Printf("  Keyring unavailable (%v); writing the key to the config file.\n", err)
				cfg.Provider.APIKey = apiKey
			} else {
				fmt.Println("  Key stored in the OS keyring.")
			}
		} else {
			cfg.Provider.APIKey = apiKey
		}
	}

	// --- Gateway ---
	portStr, err := promptString("Gateway port", "", strconv.Itoa(cfg.Gateway.Port))
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %q", portStr)
	}
	cfg.Gateway.Port = port

	wantToken, err := promptConfirm("Require a bearer token for /agent and /ws?", cfg.Gateway.Token != "")
	if err != nil {
		return err
	}
	switch {
	case !wantToken:
		cfg.Gateway.Token = ""
	case cfg.Gateway.Token == "":
		cfg.Gateway.Token = generateToken(16)
	}

	// --- Tools ---
	toolOpts := []SelectOption[string]{
		{Label: "save_text_to_file: append results to a local file", Value: "save_file"},
		{Label: "web_search: DuckDuckGo search", Value: "web_search"},
		{Label: "web_fetch: read a source page", Value: "web_fetch"},
	}
	var enabled []string
	if cfg.Tools.SaveFile.Enabled {
		enabled = append(enabled, "save_file")
	}
	if cfg.Tools.WebSearch.Enabled {
		enabled = append(enabled, "web_search")
	}
	if cfg.Tools.WebFetch.Enabled {
		enabled = append(enabled, "web_fetch")
	}
	chosen, err := promptMultiSelect("Tools besides wikipedia", "Space to toggle, Enter to confirm", toolOpts, enabled)
	if err != nil {
		return err
	}
	cfg.Tools.SaveFile.Enabled = slices.Contains(chosen, "save_file")
	cfg.Tools.WebSearch.Enabled = slices.Contains(chosen, "web_search")
	cfg.Tools.WebFetch.Enabled = slices.Contains(chosen, "web_fetch")

	// --- Save ---
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println()
	fmt.Printf("Config saved to %s\n", cfgPath)
	fmt.Printf("  Provider:  %s\n", kind)
	fmt.Printf("  Model:     %s\n", firstNonEmpty(cfg.Provider.Model, pi.modelHint+" (default)"))
	fmt.Printf("  Gateway:   http://%s\n", cfg.Addr())
	if cfg.Gateway.Token != "" {
		fmt.Printf("  Token:     %s\n", cfg.Gateway.Token)
	}
	fmt.Println()
	fmt.Println("Start the gateway with:  researcher serve")
	return nil
}

func generateToken(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
