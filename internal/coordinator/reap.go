package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/swarmguard/workgraph/internal/graph"
	"github.com/swarmguard/workgraph/internal/oplog"
	"github.com/swarmguard/workgraph/internal/registry"
)

// reapAndApplyConsequences implements spec §4.6 steps 1-2: check every
// tracked agent's liveness, transition Completed/Failed/Dead as
// appropriate, and for any transition to Dead/Failed on a task still
// InProgress, reset the task to Open and clear its assignment. Returns the
// ids of tasks observed Done during this reap pass, for cycle maintenance.
func (c *Coordinator) reapAndApplyConsequences(ctx context.Context, now time.Time, heartbeatTimeout time.Duration) ([]string, error) {
	var doneTasks []string

	for _, entry := range c.reg.All() {
		if entry.Status != registry.StatusRunning && entry.Status != registry.StatusSpawning {
			continue
		}

		c.handlesMu.Lock()
		handle := c.handles[entry.ID]
		c.handlesMu.Unlock()

		if handle == nil {
			// The agent was registered by an earlier coordinator process
			// (registry.json survives restarts; in-memory handles do not).
			// Liveness can only be judged by heartbeat staleness.
			if registry.StaleHeartbeat(entry, now, heartbeatTimeout) {
				if err := c.markDeadAndApplyConsequence(ctx, entry.ID, entry.TaskID, now); err != nil {
					return nil, err
				}
			}
			continue
		}

		if !handle.IsRunning() {
			if _, err := c.observeExit(ctx, entry.ID, entry.TaskID, handle, &doneTasks); err != nil {
				return nil, err
			}
			continue
		}

		// Still alive: successful liveness observation doubles as a
		// heartbeat (agents report no separate ping in this deployment).
		if err := c.reg.ObserveHeartbeat(entry.ID, now); err != nil {
			return nil, fmt.Errorf("coordinator: observe heartbeat: %w", err)
		}
		if registry.StaleHeartbeat(c.reg.Get(entry.ID), now, heartbeatTimeout) {
			_ = handle.Terminate()
			if err := c.markDeadAndApplyConsequence(ctx, entry.ID, entry.TaskID, now); err != nil {
				return nil, err
			}
		}
	}

	return doneTasks, nil
}

func (c *Coordinator) observeExit(ctx context.Context, agentID, taskID string, handle interface {
	ExitCode() int
}, doneTasks *[]string) (bool, error) {
	task := c.wg.GetTask(taskID)
	taskDone := task != nil && task.Status == graph.StatusDone
	exitCode := handle.ExitCode()

	if err := c.reg.ObserveExit(agentID, exitCode, taskDone); err != nil {
		return false, fmt.Errorf("coordinator: observe exit: %w", err)
	}

	c.handlesMu.Lock()
	delete(c.handles, agentID)
	c.handlesMu.Unlock()

	entry := c.reg.Get(agentID)
	if entry == nil {
		return taskDone, nil
	}

	if entry.Status == registry.StatusCompleted {
		c.reg.Remove(agentID)
		if err := c.oplog.Append(ctx, oplog.Entry{
			Op:      "apply",
			TaskID:  taskID,
			AgentID: agentID,
			Message: "agent completed",
			Detail:  map[string]interface{}{"action": "agent_completed"},
		}); err != nil {
			return taskDone, fmt.Errorf("coordinator: append oplog: %w", err)
		}
		if taskDone {
			*doneTasks = append(*doneTasks, taskID)
		}
		return taskDone, nil
	}

	// Failed: retained per policy (§4.4), and if the task is still
	// InProgress the coordinator reopens it for redispatch.
	return taskDone, c.applyDeadConsequence(ctx, taskID, agentID, "agent exited without completing task")
}

func (c *Coordinator) markDeadAndApplyConsequence(ctx context.Context, agentID, taskID string, now time.Time) error {
	if err := c.reg.MarkDead(agentID); err != nil {
		return fmt.Errorf("coordinator: mark dead: %w", err)
	}
	c.handlesMu.Lock()
	delete(c.handles, agentID)
	c.handlesMu.Unlock()
	if c.metrics.AgentsReapedDead != nil {
		c.metrics.AgentsReapedDead.Add(ctx, 1)
	}
	return c.applyDeadConsequence(ctx, taskID, agentID, "agent heartbeat stale; marked dead")
}

// applyDeadConsequence implements spec §4.6 step 2: if the task is still
// InProgress, reset it to Open, clear its assignment, and record both a
// task log entry and an operation-log "agent_died" entry.
func (c *Coordinator) applyDeadConsequence(ctx context.Context, taskID, agentID, reason string) error {
	task := c.wg.GetTask(taskID)
	if task == nil || task.Status != graph.StatusInProgress {
		return nil
	}

	task.Status = graph.StatusOpen
	task.Assigned = nil
	task.Log = append(task.Log, graph.LogEntry{
		Timestamp: time.Now().UTC(),
		Message:   reason,
	})

	return c.oplog.Append(ctx, oplog.Entry{
		Op:      "agent_died",
		TaskID:  taskID,
		AgentID: agentID,
		Message: reason,
	})
}
