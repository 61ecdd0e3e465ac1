package cycle

import (
	"testing"

	"github.com/swarmguard/workgraph/internal/graph"
)

func buildCycleGraph(maxIter uint32, guard *graph.Guard) *graph.WorkGraph {
	g := graph.New()
	write := buildTask("write")
	review := buildTask("review", "write")
	revise := buildTask("revise", "review")
	write.After = []string{"revise"}
	write.Status = graph.StatusDone
	review.Status = graph.StatusDone
	revise.Status = graph.StatusDone
	write.CycleConfig = &graph.CycleConfig{MaxIterations: maxIter, Guard: guard}

	_ = g.AddNode(write)
	_ = g.AddNode(review)
	_ = g.AddNode(revise)
	return g
}

func TestEvaluateCycleIterationReactivatesAllMembers(t *testing.T) {
	g := buildCycleGraph(3, nil)
	analysis := FromGraph(g)

	reactivated := EvaluateCycleIteration(g, "revise", analysis)
	if len(reactivated) != 3 {
		t.Fatalf("expected all 3 members reactivated, got %v", reactivated)
	}
	for _, id := range []string{"write", "review", "revise"} {
		task := g.GetTask(id)
		if task.Status != graph.StatusOpen {
			t.Fatalf("expected %s reopened, got status %q", id, task.Status)
		}
		if task.LoopIteration != 1 {
			t.Fatalf("expected %s loop_iteration=1, got %d", id, task.LoopIteration)
		}
	}
}

func TestEvaluateCycleIterationStopsAtMaxIterations(t *testing.T) {
	g := buildCycleGraph(1, nil)
	g.GetTask("write").LoopIteration = 1 // already at max
	analysis := FromGraph(g)

	reactivated := EvaluateCycleIteration(g, "revise", analysis)
	if len(reactivated) != 0 {
		t.Fatalf("expected no reactivation at max_iterations, got %v", reactivated)
	}
}

func TestEvaluateCycleIterationStopsOnConvergedTag(t *testing.T) {
	g := buildCycleGraph(5, nil)
	g.GetTask("write").Tags = []string{"converged"}
	analysis := FromGraph(g)

	reactivated := EvaluateCycleIteration(g, "revise", analysis)
	if len(reactivated) != 0 {
		t.Fatalf("expected no reactivation once converged, got %v", reactivated)
	}
}

func TestEvaluateCycleIterationIterationLessThanGuard(t *testing.T) {
	guard := &graph.Guard{Kind: graph.GuardIterationLessThan, N: 1}
	g := buildCycleGraph(10, guard)
	g.GetTask("write").LoopIteration = 1 // not less than 1
	analysis := FromGraph(g)

	reactivated := EvaluateCycleIteration(g, "revise", analysis)
	if len(reactivated) != 0 {
		t.Fatalf("expected guard to block reactivation, got %v", reactivated)
	}
}

func TestEvaluateCycleIterationNotAllMembersDone(t *testing.T) {
	g := buildCycleGraph(3, nil)
	g.GetTask("review").Status = graph.StatusOpen
	analysis := FromGraph(g)

	reactivated := EvaluateCycleIteration(g, "revise", analysis)
	if len(reactivated) != 0 {
		t.Fatalf("expected no reactivation while a member is not done, got %v", reactivated)
	}
}

func TestEvaluateCycleIterationNoConfigNoIteration(t *testing.T) {
	g := graph.New()
	a := buildTask("a")
	b := buildTask("b", "a")
	a.After = []string{"b"}
	a.Status, b.Status = graph.StatusDone, graph.StatusDone
	_ = g.AddNode(a)
	_ = g.AddNode(b)
	analysis := FromGraph(g)

	reactivated := EvaluateCycleIteration(g, "b", analysis)
	if len(reactivated) != 0 {
		t.Fatalf("expected no iteration without a CycleConfig owner, got %v", reactivated)
	}
}

func TestEvaluateCycleIterationTaskNotInCycle(t *testing.T) {
	g := graph.New()
	_ = g.AddNode(buildTask("solo"))
	analysis := FromGraph(g)

	reactivated := EvaluateCycleIteration(g, "solo", analysis)
	if reactivated != nil {
		t.Fatalf("expected nil for a task outside any cycle, got %v", reactivated)
	}
}
