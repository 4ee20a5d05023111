package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{agent: {max_iterations: 3}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatal(err)
	}
	w.debounce = 10 * time.Millisecond

	got := make(chan *Config, 4)
	w.OnChange(func(cfg *Config) { got <- cfg })
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte(`{agent: {max_iterations: 7}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-got:
		if cfg.Agent.MaxIterations != 7 {
			t.Errorf("max_iterations = %d, want 7", cfg.Agent.MaxIterations)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}
}

func TestConfig_ApplyReload(t *testing.T) {
	cur := Default()
	next := Default()
	next.Agent.MaxIterations = 2
	next.Agent.InjectionAction = "block"
	next.Gateway.Port = 9999

	cur.ApplyReload(next)
	if got := cur.AgentSettings(); got.MaxIterations != 2 || got.InjectionAction != "block" {
		t.Errorf("agent settings not applied: %+v", got)
	}
	if cur.Gateway.Port != 8000 {
		t.Error("gateway settings must not hot reload")
	}
}
