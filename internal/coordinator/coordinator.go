// Package coordinator implements the coordinator loop (spec §4.6): the
// single long-running process that reaps finished agents, computes the
// ready set, dispatches new agents up to a configured budget, re-activates
// structural cycles, and persists graph/registry/tick state every tick.
//
// Grounded on services/orchestrator/scheduler.go's Scheduler for the
// cron-driven wakeup model and services/orchestrator/main.go for daemon
// bootstrap/shutdown shape; the tick body itself has no teacher analogue
// (the teacher's DAG engine runs a workflow to completion in one HTTP
// request rather than ticking a long-lived graph) and is built directly
// from spec §4.6's six-step list.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/swarmguard/workgraph/internal/check"
	"github.com/swarmguard/workgraph/internal/config"
	"github.com/swarmguard/workgraph/internal/cycle"
	"github.com/swarmguard/workgraph/internal/executor"
	"github.com/swarmguard/workgraph/internal/graph"
	"github.com/swarmguard/workgraph/internal/oplog"
	"github.com/swarmguard/workgraph/internal/otelinit"
	"github.com/swarmguard/workgraph/internal/registry"
	"github.com/swarmguard/workgraph/internal/resilience"
	"github.com/swarmguard/workgraph/internal/store"
)

// Coordinator owns exclusive write access to one graph directory's graph,
// registry, and operation log.
type Coordinator struct {
	graphDir  string
	graphPath string

	wg      *graph.WorkGraph
	reg     *registry.Registry
	execReg *executor.Registry
	oplog   *oplog.Log
	cache   *store.Store

	metrics otelinit.Metrics
	tracer  trace.Tracer
	breaker *resilience.CircuitBreaker

	settingsMu sync.RWMutex
	settings   config.Config

	handlesMu sync.Mutex
	handles   map[string]*executor.AgentHandle

	tickMu sync.Mutex
	ticks  uint64

	cycleAnalysis *cycle.Analysis
}

// Open loads (or initializes) every piece of on-disk state under graphDir
// and returns a ready-to-run Coordinator.
func Open(graphDir string, metrics otelinit.Metrics) (*Coordinator, error) {
	graphPath := filepath.Join(graphDir, "graph.jsonl")
	wg, err := graph.Load(graphPath)
	if err != nil {
		return nil, fmt.Errorf("coordinator: load graph: %w", err)
	}

	reg, err := registry.Open(filepath.Join(graphDir, "service", "registry.json"))
	if err != nil {
		return nil, fmt.Errorf("coordinator: open registry: %w", err)
	}

	ol, err := oplog.Open(filepath.Join(graphDir, "log"), oplog.DefaultThreshold)
	if err != nil {
		return nil, fmt.Errorf("coordinator: open oplog: %w", err)
	}

	cacheDB, err := store.Open(filepath.Join(graphDir, "service", "cache.db"), otel.GetMeterProvider().Meter("workgraph"))
	if err != nil {
		ol.Close()
		return nil, fmt.Errorf("coordinator: open cache store: %w", err)
	}

	cfg, err := config.Load(graphDir)
	if err != nil {
		cacheDB.Close()
		ol.Close()
		return nil, fmt.Errorf("coordinator: load config: %w", err)
	}

	c := &Coordinator{
		graphDir:  graphDir,
		graphPath: graphPath,
		wg:        wg,
		reg:       reg,
		execReg:   executor.NewRegistry(graphDir),
		oplog:     ol,
		cache:     cacheDB,
		metrics:   metrics,
		tracer:    otel.Tracer("workgraph"),
		breaker:   resilience.NewCircuitBreakerAdaptive(30*time.Second, 6, 4, 0.5, 10*time.Second, 2, metrics),
		settings:  cfg,
		handles:   make(map[string]*executor.AgentHandle),
	}
	return c, nil
}

// Close releases on-disk handles (oplog file, cache db). The graph and
// registry have no open handles to release — they're plain files rewritten
// atomically on each Save.
func (c *Coordinator) Close() error {
	var firstErr error
	if err := c.cache.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.oplog.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// ApplySettings swaps in a freshly (re)loaded config — called from a
// config.Watch callback so max_agents/poll_interval take effect without a
// restart.
func (c *Coordinator) ApplySettings(cfg config.Config) {
	c.settingsMu.Lock()
	defer c.settingsMu.Unlock()
	c.settings = cfg
}

func (c *Coordinator) currentSettings() config.Config {
	c.settingsMu.RLock()
	defer c.settingsMu.RUnlock()
	return c.settings
}

// Ticks returns the number of ticks executed so far.
func (c *Coordinator) Ticks() uint64 {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()
	return c.ticks
}

// ReadyCount reports how many tasks are currently ready to dispatch — used
// by the IPC "status" command.
func (c *Coordinator) ReadyCount() int {
	return len(check.ReadySet(c.wg, time.Now().UTC()))
}

// AgentCountsByStatus reports the registry's per-status agent counts.
func (c *Coordinator) AgentCountsByStatus() map[string]int {
	counts := make(map[string]int)
	for _, s := range []registry.Status{
		registry.StatusSpawning, registry.StatusRunning,
		registry.StatusCompleted, registry.StatusFailed, registry.StatusDead,
	} {
		counts[string(s)] = c.reg.CountByStatus(s)
	}
	return counts
}

// Graph exposes the underlying work graph for IPC command handlers
// (add_task, query_task) that need direct read/write access.
func (c *Coordinator) Graph() *graph.WorkGraph { return c.wg }

// PersistGraph saves the graph and appends an operation-log entry in one
// call — used by IPC command handlers that mutate the graph outside of a
// tick (add_task).
func (c *Coordinator) PersistGraph(ctx context.Context, entry oplog.Entry) error {
	if err := c.wg.Save(c.graphPath); err != nil {
		return fmt.Errorf("coordinator: persist graph: %w", err)
	}
	if err := c.oplog.Append(ctx, entry); err != nil {
		return fmt.Errorf("coordinator: append operation log: %w", err)
	}
	return nil
}

// Tick runs one full coordinator iteration (spec §4.6): reap, apply
// dead-agent consequences, compute the ready set, dispatch, run cycle
// maintenance, persist. Tick serializes against concurrent callers (the
// fast path and the poll fallback can both fire close together) so the
// six-step sequence is never interleaved with itself.
func (c *Coordinator) Tick(ctx context.Context) error {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	ctx, span := c.tracer.Start(ctx, "coordinator.tick")
	defer span.End()

	now := time.Now().UTC()
	settings := c.currentSettings()
	heartbeatTimeout := time.Duration(settings.Coordinator.HeartbeatTimeoutSec) * time.Second
	maxAgents := int(settings.Coordinator.MaxAgents)

	doneThisTick, err := c.reapAndApplyConsequences(ctx, now, heartbeatTimeout)
	if err != nil {
		return err
	}

	dispatched, err := c.dispatch(ctx, now, maxAgents)
	if err != nil {
		return err
	}

	reactivated := c.runCycleMaintenance(ctx, doneThisTick)

	c.ticks++
	if err := c.persist(ctx); err != nil {
		return err
	}

	if c.metrics.TicksTotal != nil {
		c.metrics.TicksTotal.Add(ctx, 1)
	}
	if len(dispatched) > 0 && c.metrics.DispatchesTotal != nil {
		c.metrics.DispatchesTotal.Add(ctx, int64(len(dispatched)))
	}

	slog.Debug("coordinator tick complete",
		"tick", c.ticks, "dispatched", len(dispatched),
		"done", len(doneThisTick), "reactivated", len(reactivated))
	return nil
}

// persist saves the graph, registry, tick counter, and refreshes the
// derived read cache — in that order, so a crash mid-persist never leaves
// the registry referencing a graph state that was never written.
func (c *Coordinator) persist(ctx context.Context) error {
	if err := c.wg.Save(c.graphPath); err != nil {
		return fmt.Errorf("coordinator: persist graph: %w", err)
	}
	if err := c.reg.Save(); err != nil {
		return fmt.Errorf("coordinator: persist registry: %w", err)
	}
	if err := writeTickState(c.graphDir, c.ticks); err != nil {
		return fmt.Errorf("coordinator: persist tick state: %w", err)
	}

	gen, err := store.Generation(c.graphPath)
	if err != nil {
		return fmt.Errorf("coordinator: compute cache generation: %w", err)
	}
	if err := c.cache.EnsureFresh(ctx, c.wg, gen); err != nil {
		return fmt.Errorf("coordinator: refresh cache: %w", err)
	}
	return nil
}

// dependencyContext builds the ordered concatenation of a task's `after`
// dependencies' deliverables, artifacts, and trailing log snippets (spec
// §4.6 step 4), in `after` list order.
func dependencyContext(g *graph.WorkGraph, t *graph.Task) string {
	var lines []string
	for _, depID := range t.After {
		dep := g.GetTask(depID)
		if dep == nil {
			continue
		}
		if len(dep.Deliverables) > 0 {
			lines = append(lines, fmt.Sprintf("[%s] deliverables: %v", dep.ID, dep.Deliverables))
		}
		if len(dep.Artifacts) > 0 {
			lines = append(lines, fmt.Sprintf("[%s] artifacts: %v", dep.ID, dep.Artifacts))
		}
		if n := len(dep.Log); n > 0 {
			tail := dep.Log[n-1]
			lines = append(lines, fmt.Sprintf("[%s] log: %s", dep.ID, tail.Message))
		}
	}
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

func newAgentID() string {
	return uuid.NewString()
}

// Shutdown implements spec §4.6's "Cancellation & shutdown" paragraph:
// optionally SIGTERM every agent this process still tracks, wait up to
// gracePeriod for them to exit on their own, then persist graph, registry,
// and tick state so they are left loadable. Shutdown does not itself stop
// later Ticks from dispatching; the daemon stops its Loop before calling it.
func (c *Coordinator) Shutdown(ctx context.Context, gracePeriod time.Duration, signalAgents bool) error {
	c.handlesMu.Lock()
	handles := make(map[string]*executor.AgentHandle, len(c.handles))
	for id, h := range c.handles {
		handles[id] = h
	}
	c.handlesMu.Unlock()

	if signalAgents {
		for agentID, h := range handles {
			if err := h.Terminate(); err != nil {
				slog.WarnContext(ctx, "shutdown: signal agent failed", "agent_id", agentID, "error", err)
			}
		}
	}

	deadline := time.Now().Add(gracePeriod)
	for agentID, h := range handles {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		done := make(chan struct{})
		go func() { h.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(remaining):
			slog.WarnContext(ctx, "shutdown: agent still running at grace deadline", "agent_id", agentID)
		}
	}

	return c.persist(ctx)
}
