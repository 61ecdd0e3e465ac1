package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	def := DefaultConfig()
	if cfg != def {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadOverridesOnlyNamedFields(t *testing.T) {
	dir := t.TempDir()
	contents := `
[coordinator]
max_agents = 10

[agent]
default_executor = "shell"
`
	if err := os.WriteFile(Path(dir), []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Coordinator.MaxAgents != 10 {
		t.Fatalf("expected max_agents override, got %d", cfg.Coordinator.MaxAgents)
	}
	if cfg.Agent.DefaultExecutor != "shell" {
		t.Fatalf("expected default_executor override, got %q", cfg.Agent.DefaultExecutor)
	}
	// Unspecified fields keep their defaults.
	if cfg.Coordinator.PollIntervalSeconds != DefaultConfig().Coordinator.PollIntervalSeconds {
		t.Fatalf("expected poll_interval_seconds to keep default, got %d", cfg.Coordinator.PollIntervalSeconds)
	}
}

func TestLoadMalformedTomlErrors(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(Path(dir), []byte("not valid [[[ toml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestPathAndExecutorsDir(t *testing.T) {
	dir := "/graphs/example"
	if got, want := Path(dir), filepath.Join(dir, "config.toml"); got != want {
		t.Fatalf("Path: got %q want %q", got, want)
	}
	if got, want := ExecutorsDir(dir), filepath.Join(dir, "executors"); got != want {
		t.Fatalf("ExecutorsDir: got %q want %q", got, want)
	}
}

func TestWatchDeliversInitialLoadAndReload(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan Config, 8)
	errs := make(chan error, 8)

	go Watch(ctx, dir, func(c Config) { updates <- c }, func(e error) { errs <- e })

	select {
	case cfg := <-updates:
		if cfg != DefaultConfig() {
			t.Fatalf("expected initial defaults, got %+v", cfg)
		}
	case err := <-errs:
		t.Fatalf("unexpected error on initial load: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial load")
	}

	if err := os.WriteFile(Path(dir), []byte("[coordinator]\nmax_agents = 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-updates:
		if cfg.Coordinator.MaxAgents != 7 {
			t.Fatalf("expected reloaded max_agents=7, got %d", cfg.Coordinator.MaxAgents)
		}
	case err := <-errs:
		t.Fatalf("unexpected error on reload: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
