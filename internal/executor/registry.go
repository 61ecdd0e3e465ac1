package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/swarmguard/workgraph/internal/graph"
)

// Executor spawns an agent to work a task, given a resolved configuration
// and template variables.
type Executor interface {
	Name() string
	Spawn(task *graph.Task, cfg *Config, vars TemplateVars) (*AgentHandle, error)
}

// DefaultExecutor runs the configured command directly with piped stdio.
type DefaultExecutor struct{}

// NewDefaultExecutor constructs the built-in "default" executor.
func NewDefaultExecutor() *DefaultExecutor { return &DefaultExecutor{} }

// Name implements Executor.
func (DefaultExecutor) Name() string { return "default" }

// Spawn implements Executor.
func (DefaultExecutor) Spawn(_ *graph.Task, cfg *Config, vars TemplateVars) (*AgentHandle, error) {
	settings := cfg.ApplyTemplates(vars)

	cmd := exec.Command(settings.Command, settings.Args...)
	if settings.WorkingDir != nil {
		cmd.Dir = *settings.WorkingDir
	}
	if len(settings.Env) > 0 {
		env := os.Environ()
		for k, v := range settings.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("executor: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("executor: stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("executor: spawn %q: %w", settings.Command, err)
	}

	return newAgentHandle(cmd, stdin, stdout), nil
}

// Registry holds every available Executor plus the directory their
// per-name TOML configs live under.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
	configDir string
}

// NewRegistry creates a registry rooted at <graphDir>/executors, with the
// built-in "default" executor pre-registered.
func NewRegistry(graphDir string) *Registry {
	r := &Registry{
		executors: make(map[string]Executor),
		configDir: filepath.Join(graphDir, "executors"),
	}
	r.Register(NewDefaultExecutor())
	return r
}

// Register adds or replaces an executor under its own name.
func (r *Registry) Register(e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[e.Name()] = e
}

// Get looks up an executor by name.
func (r *Registry) Get(name string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[name]
	return e, ok
}

// Available lists every registered executor name, sorted.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.executors))
	for name := range r.executors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadConfig loads <configDir>/<name>.toml, falling back to a built-in
// default for "claude"/"shell"/"default" when no file is present.
func (r *Registry) LoadConfig(name string) (*Config, error) {
	path := filepath.Join(r.configDir, name+".toml")
	if _, err := os.Stat(path); err == nil {
		return LoadConfig(path)
	}
	return defaultConfig(name)
}

func defaultConfig(name string) (*Config, error) {
	switch name {
	case "claude":
		return &Config{Executor: ExecutorSettings{
			Type:    "claude",
			Command: "claude",
			Args:    []string{"--permission-mode", "bypassPermissions"},
			PromptTemplate: &PromptTemplate{Template: `You are working on task: {{task_id}}
Title: {{task_title}}
Description: {{task_description}}

Context from dependencies:
{{task_context}}

When done, run: wg done {{task_id}}
If blocked, run: wg fail {{task_id}} --reason "..."`},
		}}, nil
	case "shell":
		return &Config{Executor: ExecutorSettings{
			Type:    "shell",
			Command: "bash",
			Args:    []string{"-lc", "{{task_context}}"},
		}}, nil
	case "default":
		return &Config{Executor: ExecutorSettings{Type: "default", Command: "true"}}, nil
	default:
		return nil, fmt.Errorf("executor: no config found and no built-in default for %q", name)
	}
}

// SpawnWithRetry spawns via e, retrying transient failures (the command
// exists but the fork/exec briefly fails — e.g. resource exhaustion) with
// exponential backoff bounded by maxElapsed. A command-not-found failure is
// not retried, since retrying cannot fix it.
func SpawnWithRetry(ctx context.Context, e Executor, task *graph.Task, cfg *Config, vars TemplateVars, maxElapsed time.Duration) (*AgentHandle, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxElapsed

	var handle *AgentHandle
	op := func() error {
		h, err := e.Spawn(task, cfg, vars)
		if err != nil {
			if isPermanentSpawnError(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		handle = h
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return handle, nil
}

func isPermanentSpawnError(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist)
}
