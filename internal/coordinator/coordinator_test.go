package coordinator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/swarmguard/workgraph/internal/graph"
	"github.com/swarmguard/workgraph/internal/oplog"
	"github.com/swarmguard/workgraph/internal/otelinit"
	"github.com/swarmguard/workgraph/internal/registry"
)

func openTestCoordinator(t *testing.T) (*Coordinator, string) {
	t.Helper()
	dir := t.TempDir()
	c, err := Open(dir, otelinit.Metrics{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, dir
}

// TestTickDispatchesReadyTask exercises spec §4.6 step 4: an Open task with
// no pending dependencies is popped off the ready set, transitioned to
// InProgress with started_at and an assigned agent, and a registry entry
// appears before Tick returns.
func TestTickDispatchesReadyTask(t *testing.T) {
	c, _ := openTestCoordinator(t)

	task := &graph.Task{ID: "t1", Title: "t1", Status: graph.StatusOpen}
	if err := c.wg.AddNode(task); err != nil {
		t.Fatalf("AddNode: %v", err)
	}

	if err := c.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if task.Status != graph.StatusInProgress {
		t.Fatalf("expected task InProgress, got %s", task.Status)
	}
	if task.StartedAt == nil {
		t.Fatal("expected started_at to be set")
	}
	if task.Assigned == nil {
		t.Fatal("expected assigned agent id to be set")
	}

	entries := c.reg.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one registry entry, got %d", len(entries))
	}
	if entries[0].TaskID != "t1" {
		t.Fatalf("expected registry entry for t1, got %s", entries[0].TaskID)
	}
	if c.Ticks() != 1 {
		t.Fatalf("expected 1 tick recorded, got %d", c.Ticks())
	}
}

// TestTickReopensTaskWhenAgentExitsWithoutCompleting exercises spec §4.6
// steps 1-2: an agent process that exits while its task is still
// InProgress (never transitioned to Done) causes the task to be reopened
// and reassigned on the very next tick — spec §8 scenario 5's dead-agent
// recovery, compressed into two ticks instead of a wall-clock wait.
func TestTickReopensTaskWhenAgentExitsWithoutCompleting(t *testing.T) {
	c, _ := openTestCoordinator(t)

	task := &graph.Task{ID: "t1", Title: "t1", Status: graph.StatusOpen}
	if err := c.wg.AddNode(task); err != nil {
		t.Fatalf("AddNode: %v", err)
	}

	if err := c.Tick(context.Background()); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	firstEntries := c.reg.All()
	if len(firstEntries) != 1 {
		t.Fatalf("expected one registry entry after tick 1, got %d", len(firstEntries))
	}
	firstAgentID := firstEntries[0].ID

	c.handlesMu.Lock()
	handle := c.handles[firstAgentID]
	c.handlesMu.Unlock()
	if handle == nil {
		t.Fatal("expected an in-memory handle for the dispatched agent")
	}
	// Block until the "true" child actually exits, so tick 2's reap step
	// deterministically observes it as dead rather than racing the reaper
	// goroutine.
	_ = handle.Wait()

	if err := c.Tick(context.Background()); err != nil {
		t.Fatalf("tick 2: %v", err)
	}

	firstEntry := c.reg.Get(firstAgentID)
	if firstEntry == nil {
		t.Fatal("expected the original agent entry to still exist (Failed, retained)")
	}
	if firstEntry.Status != registry.StatusFailed {
		t.Fatalf("expected original agent entry Failed, got %s", firstEntry.Status)
	}

	// The task was reopened and immediately redispatched within the same
	// tick, so it ends tick 2 InProgress again under a different agent.
	if task.Status != graph.StatusInProgress {
		t.Fatalf("expected task reopened and redispatched to InProgress, got %s", task.Status)
	}
	if task.Assigned == nil || *task.Assigned == firstAgentID {
		t.Fatalf("expected a new agent id distinct from %s, got %v", firstAgentID, task.Assigned)
	}

	entries, err := oplog.ReadAll(filepath.Join(c.graphDir, "log"))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	var sawDied bool
	for _, e := range entries {
		if e.Op == "agent_died" && e.TaskID == "t1" {
			sawDied = true
		}
	}
	if !sawDied {
		t.Fatal("expected an agent_died oplog entry for t1")
	}
}

// TestTickCompletesTaskMarkedDoneExternally exercises the reap step's
// "apply" bookkeeping path: once some out-of-band writer (a CLI, an
// agent's direct-file fallback) marks the task Done while its agent is
// still tracked, the next tick observes the exited process, completes the
// registry entry, removes it, and logs completion.
func TestTickCompletesTaskMarkedDoneExternally(t *testing.T) {
	c, _ := openTestCoordinator(t)

	task := &graph.Task{ID: "t1", Title: "t1", Status: graph.StatusOpen}
	if err := c.wg.AddNode(task); err != nil {
		t.Fatalf("AddNode: %v", err)
	}

	if err := c.Tick(context.Background()); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	entry := c.reg.All()[0]

	c.handlesMu.Lock()
	handle := c.handles[entry.ID]
	c.handlesMu.Unlock()
	_ = handle.Wait()

	// Simulate an external writer completing the task out of band.
	task.Status = graph.StatusDone

	if err := c.Tick(context.Background()); err != nil {
		t.Fatalf("tick 2: %v", err)
	}

	if c.reg.Get(entry.ID) != nil {
		t.Fatal("expected the completed agent entry to be removed from the registry")
	}

	entries, err := oplog.ReadAll(filepath.Join(c.graphDir, "log"))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	var sawApply bool
	for _, e := range entries {
		if e.Op == "apply" && e.TaskID == "t1" {
			sawApply = true
		}
	}
	if !sawApply {
		t.Fatal("expected an apply oplog entry recording agent completion")
	}
}

// TestDispatchRespectsMaxAgentsBudget exercises spec §4.6 step 4's bounded
// worker budget: with max_agents set to 1, only one of two ready tasks is
// dispatched per tick.
func TestDispatchRespectsMaxAgentsBudget(t *testing.T) {
	c, _ := openTestCoordinator(t)
	c.settings.Coordinator.MaxAgents = 1

	t1 := &graph.Task{ID: "a1", Title: "a1", Status: graph.StatusOpen}
	t2 := &graph.Task{ID: "a2", Title: "a2", Status: graph.StatusOpen}
	if err := c.wg.AddNode(t1); err != nil {
		t.Fatalf("AddNode t1: %v", err)
	}
	if err := c.wg.AddNode(t2); err != nil {
		t.Fatalf("AddNode t2: %v", err)
	}

	if err := c.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	inProgress := 0
	if t1.Status == graph.StatusInProgress {
		inProgress++
	}
	if t2.Status == graph.StatusInProgress {
		inProgress++
	}
	if inProgress != 1 {
		t.Fatalf("expected exactly one task dispatched under max_agents=1, got %d", inProgress)
	}
}

// TestShutdownPersistsLoadableState confirms spec §4.6's "state always left
// loadable" guarantee: after Shutdown, the graph file parses back cleanly
// with its task intact.
func TestShutdownPersistsLoadableState(t *testing.T) {
	c, dir := openTestCoordinator(t)

	task := &graph.Task{ID: "t1", Title: "t1", Status: graph.StatusOpen}
	if err := c.wg.AddNode(task); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if err := c.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if err := c.Shutdown(context.Background(), 0, false); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	reloaded, err := graph.Load(filepath.Join(dir, "graph.jsonl"))
	if err != nil {
		t.Fatalf("reload graph: %v", err)
	}
	if reloaded.GetTask("t1") == nil {
		t.Fatal("expected t1 to survive reload")
	}
}
