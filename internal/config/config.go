// Package config loads and hot-reloads the coordinator's config.toml and
// locates the per-executor executors/<name>.toml files (internal/executor
// parses those). Neither file is required to
// exist: missing files fall back to documented defaults, matching the
// teacher's "degrade, don't fail startup" posture for optional config.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Coordinator holds [coordinator] section settings.
type Coordinator struct {
	PollIntervalSeconds   uint64 `toml:"poll_interval_seconds"`
	MaxAgents             uint64 `toml:"max_agents"`
	HeartbeatTimeoutSec   uint64 `toml:"heartbeat_timeout_seconds"`
	DeadAgentGraceSeconds uint64 `toml:"dead_agent_grace_seconds"`
}

// Agent holds [agent] section settings.
type Agent struct {
	DefaultExecutor           string `toml:"default_executor"`
	HeartbeatIntervalSeconds  uint64 `toml:"heartbeat_interval_seconds"`
}

// Config is the parsed contents of config.toml.
type Config struct {
	Coordinator Coordinator `toml:"coordinator"`
	Agent       Agent       `toml:"agent"`
}

// DefaultConfig returns the documented defaults used when config.toml is
// absent or leaves a field unset.
func DefaultConfig() Config {
	return Config{
		Coordinator: Coordinator{
			PollIntervalSeconds:   5,
			MaxAgents:             4,
			HeartbeatTimeoutSec:   30,
			DeadAgentGraceSeconds: 60,
		},
		Agent: Agent{
			DefaultExecutor:          "default",
			HeartbeatIntervalSeconds: 10,
		},
	}
}

// Path returns the expected location of config.toml under a graph directory.
func Path(graphDir string) string {
	return filepath.Join(graphDir, "config.toml")
}

// ExecutorsDir returns the expected location of per-executor config files.
func ExecutorsDir(graphDir string) string {
	return filepath.Join(graphDir, "executors")
}

// Load reads config.toml from graphDir, applying defaults for any field left
// unset and for the file itself being absent.
func Load(graphDir string) (Config, error) {
	cfg := DefaultConfig()
	path := Path(graphDir)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}

	var parsed Config
	if _, err := toml.Decode(string(data), &parsed); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}

	merge(&cfg, parsed)
	return cfg, nil
}

// merge overlays non-zero fields from parsed onto cfg (which starts from
// defaults), so an operator's config.toml only needs to name what it wants
// to override.
func merge(cfg *Config, parsed Config) {
	if parsed.Coordinator.PollIntervalSeconds != 0 {
		cfg.Coordinator.PollIntervalSeconds = parsed.Coordinator.PollIntervalSeconds
	}
	if parsed.Coordinator.MaxAgents != 0 {
		cfg.Coordinator.MaxAgents = parsed.Coordinator.MaxAgents
	}
	if parsed.Coordinator.HeartbeatTimeoutSec != 0 {
		cfg.Coordinator.HeartbeatTimeoutSec = parsed.Coordinator.HeartbeatTimeoutSec
	}
	if parsed.Coordinator.DeadAgentGraceSeconds != 0 {
		cfg.Coordinator.DeadAgentGraceSeconds = parsed.Coordinator.DeadAgentGraceSeconds
	}
	if parsed.Agent.DefaultExecutor != "" {
		cfg.Agent.DefaultExecutor = parsed.Agent.DefaultExecutor
	}
	if parsed.Agent.HeartbeatIntervalSeconds != 0 {
		cfg.Agent.HeartbeatIntervalSeconds = parsed.Agent.HeartbeatIntervalSeconds
	}
}
