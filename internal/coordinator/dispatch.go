package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/swarmguard/workgraph/internal/check"
	"github.com/swarmguard/workgraph/internal/executor"
	"github.com/swarmguard/workgraph/internal/graph"
	"github.com/swarmguard/workgraph/internal/oplog"
	"github.com/swarmguard/workgraph/internal/registry"
)

// defaultSpawnRetryBudget bounds how long SpawnWithRetry keeps retrying a
// transient spawn failure before giving up on this tick's dispatch slot.
const defaultSpawnRetryBudget = 5 * time.Second

// dispatch implements spec §4.6 step 4: while the registry holds fewer
// than maxAgents Running (+ Spawning) agents, pop ready tasks FIFO and
// spawn an executor for each. Returns the ids of tasks dispatched this
// tick.
func (c *Coordinator) dispatch(ctx context.Context, now time.Time, maxAgents int) ([]string, error) {
	if !c.breaker.Allow() {
		slog.DebugContext(ctx, "dispatch skipped: circuit breaker open")
		return nil, nil
	}

	inFlight := c.reg.CountByStatus(registry.StatusRunning) + c.reg.CountByStatus(registry.StatusSpawning)
	budget := maxAgents - inFlight
	if budget <= 0 {
		return nil, nil
	}

	ready := check.ReadySet(c.wg, now)
	var dispatched []string

	for _, task := range ready {
		if budget <= 0 {
			break
		}

		if err := c.dispatchOne(ctx, task, now); err != nil {
			c.breaker.RecordResult(false)
			return dispatched, fmt.Errorf("coordinator: dispatch %s: %w", task.ID, err)
		}
		c.breaker.RecordResult(true)
		dispatched = append(dispatched, task.ID)
		budget--
	}

	return dispatched, nil
}

func (c *Coordinator) dispatchOne(ctx context.Context, task *graph.Task, now time.Time) error {
	ctx, span := c.tracer.Start(ctx, "coordinator.dispatch")
	defer span.End()

	agentID := newAgentID()

	settings := c.currentSettings()
	executorName := settings.Agent.DefaultExecutor
	if task.Exec != nil && *task.Exec != "" {
		executorName = *task.Exec
	}

	ex, ok := c.execReg.Get(executorName)
	if !ok {
		return fmt.Errorf("unknown executor %q", executorName)
	}
	cfg, err := c.execReg.LoadConfig(executorName)
	if err != nil {
		return fmt.Errorf("load executor config %q: %w", executorName, err)
	}

	desc := ""
	if task.Description != nil {
		desc = *task.Description
	}
	vars := executor.TemplateVars{
		TaskID:          task.ID,
		TaskTitle:       task.Title,
		TaskDescription: desc,
		TaskContext:     dependencyContext(c.wg, task),
	}

	// Transition, register, and append the dispatch log entry before
	// spawning, so a task is never observed InProgress without a matching
	// registry entry (spec §4.6 ordering guarantee), and the dispatch log
	// entry precedes the agent's first heartbeat. Graph and registry files
	// are saved by the tick's persist step.
	task.Status = graph.StatusInProgress
	task.StartedAt = &now
	assigned := agentID
	task.Assigned = &assigned

	entry := c.reg.Spawn(agentID, task.ID, now)

	if err := c.oplog.Append(ctx, oplog.Entry{
		Op:      "dispatch",
		TaskID:  task.ID,
		AgentID: agentID,
		Message: fmt.Sprintf("dispatched via executor %q", executorName),
	}); err != nil {
		return fmt.Errorf("append dispatch oplog entry: %w", err)
	}

	handle, err := executor.SpawnWithRetry(ctx, ex, task, cfg, vars, defaultSpawnRetryBudget)
	if err != nil {
		// Spawn failed outright: reopen the task rather than leaving it
		// wedged InProgress with no live agent.
		task.Status = graph.StatusOpen
		task.Assigned = nil
		_ = c.reg.MarkDead(agentID)
		return fmt.Errorf("spawn: %w", err)
	}

	pid := handle.PID
	entry.PID = &pid

	c.handlesMu.Lock()
	c.handles[agentID] = handle
	c.handlesMu.Unlock()

	if c.metrics.DispatchTotal != nil {
		c.metrics.DispatchTotal.Add(ctx, 1)
	}
	return nil
}
