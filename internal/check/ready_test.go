package check

import (
	"testing"
	"time"

	"github.com/swarmguard/workgraph/internal/graph"
)

func floatPtr(f float64) *float64 { return &f }

func TestReadyOpenWithNoDeps(t *testing.T) {
	g := graph.New()
	t1 := task("t1")
	_ = g.AddNode(t1)

	if !Ready(g, t1, time.Now()) {
		t.Fatal("expected an unblocked open task with no deps to be ready")
	}
}

func TestReadyFalseWhenPaused(t *testing.T) {
	t1 := task("t1")
	t1.Paused = true
	if Ready(graph.New(), t1, time.Now()) {
		t.Fatal("expected a paused task to never be ready")
	}
}

func TestReadyFalseWhenTerminal(t *testing.T) {
	t1 := task("t1")
	t1.Status = graph.StatusDone
	if Ready(graph.New(), t1, time.Now()) {
		t.Fatal("expected a done task to never be ready")
	}
}

func TestReadyFalseWhenInProgress(t *testing.T) {
	t1 := task("t1")
	t1.Status = graph.StatusInProgress
	if Ready(graph.New(), t1, time.Now()) {
		t.Fatal("expected an in-progress task to never be ready")
	}
}

func TestReadyFalseWhenDepNotTerminal(t *testing.T) {
	g := graph.New()
	dep := task("dep")
	t1 := task("t1")
	t1.After = []string{"dep"}
	_ = g.AddNode(dep)
	_ = g.AddNode(t1)

	if Ready(g, t1, time.Now()) {
		t.Fatal("expected task with an open dependency to not be ready")
	}
}

func TestReadyFalseWhenDepMissing(t *testing.T) {
	g := graph.New()
	t1 := task("t1")
	t1.After = []string{"ghost"}
	_ = g.AddNode(t1)

	if Ready(g, t1, time.Now()) {
		t.Fatal("expected task with a missing dependency to not be ready")
	}
}

func TestReadyTrueWhenDepTerminal(t *testing.T) {
	g := graph.New()
	dep := task("dep")
	dep.Status = graph.StatusFailed
	t1 := task("t1")
	t1.After = []string{"dep"}
	_ = g.AddNode(dep)
	_ = g.AddNode(t1)

	if !Ready(g, t1, time.Now()) {
		t.Fatal("expected task with a failed (terminal) dependency to be ready")
	}
}

func TestReadyFalseWhenResourceMissing(t *testing.T) {
	g := graph.New()
	t1 := task("t1")
	t1.Requires = []string{"gpu"}
	_ = g.AddNode(t1)

	if Ready(g, t1, time.Now()) {
		t.Fatal("expected task requiring a missing resource to not be ready")
	}
}

func TestReadyTrueWhenResourcePresent(t *testing.T) {
	g := graph.New()
	t1 := task("t1")
	t1.Requires = []string{"gpu"}
	_ = g.AddNode(t1)
	_ = g.AddNode(&graph.Resource{ID: "gpu"})

	if !Ready(g, t1, time.Now()) {
		t.Fatal("expected task with its required resource present to be ready")
	}
}

func TestReadyFalseWhenNotBeforeInFuture(t *testing.T) {
	t1 := task("t1")
	future := time.Now().Add(time.Hour)
	t1.NotBefore = &future
	if Ready(graph.New(), t1, time.Now()) {
		t.Fatal("expected a future not_before to block readiness")
	}
}

func TestReadyTrueWhenNotBeforePast(t *testing.T) {
	t1 := task("t1")
	past := time.Now().Add(-time.Hour)
	t1.NotBefore = &past
	if !Ready(graph.New(), t1, time.Now()) {
		t.Fatal("expected a past not_before to allow readiness")
	}
}

func TestReadyFalseWhenReadyAfterInFuture(t *testing.T) {
	t1 := task("t1")
	future := time.Now().Add(time.Hour)
	t1.ReadyAfter = &future
	if Ready(graph.New(), t1, time.Now()) {
		t.Fatal("expected a future ready_after to block readiness")
	}
}

func TestReadySetSortsByIDAndFiltersUnready(t *testing.T) {
	g := graph.New()
	_ = g.AddNode(task("c"))
	_ = g.AddNode(task("a"))
	blocked := task("b")
	blocked.Status = graph.StatusInProgress
	_ = g.AddNode(blocked)

	ready := ReadySet(g, time.Now())
	if len(ready) != 2 || ready[0].ID != "a" || ready[1].ID != "c" {
		t.Fatalf("expected [a c] sorted and b excluded, got %v", ready)
	}
}

func TestCostRollupSumsMatchingTasks(t *testing.T) {
	g := graph.New()
	t1 := task("t1")
	t1.Estimate = &graph.Estimate{Cost: floatPtr(10)}
	t2 := task("t2")
	t2.Estimate = &graph.Estimate{Cost: floatPtr(5)}
	t3 := task("t3") // no estimate
	_ = g.AddNode(t1)
	_ = g.AddNode(t2)
	_ = g.AddNode(t3)

	total := CostRollup(g, nil)
	if total != 15 {
		t.Fatalf("expected total cost 15, got %v", total)
	}
}

func TestCostRollupHonorsPredicate(t *testing.T) {
	g := graph.New()
	t1 := task("t1")
	t1.Estimate = &graph.Estimate{Cost: floatPtr(10)}
	t1.Status = graph.StatusDone
	t2 := task("t2")
	t2.Estimate = &graph.Estimate{Cost: floatPtr(5)}
	_ = g.AddNode(t1)
	_ = g.AddNode(t2)

	total := CostRollup(g, func(t *graph.Task) bool { return t.Status == graph.StatusDone })
	if total != 10 {
		t.Fatalf("expected only done tasks counted, got %v", total)
	}
}

func TestHoursRollupSumsMatchingTasks(t *testing.T) {
	g := graph.New()
	t1 := task("t1")
	t1.Estimate = &graph.Estimate{Hours: floatPtr(2.5)}
	t2 := task("t2")
	t2.Estimate = &graph.Estimate{Hours: floatPtr(1.5)}
	_ = g.AddNode(t1)
	_ = g.AddNode(t2)

	total := HoursRollup(g, nil)
	if total != 4 {
		t.Fatalf("expected total hours 4, got %v", total)
	}
}
