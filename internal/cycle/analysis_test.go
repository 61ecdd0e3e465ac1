package cycle

import (
	"testing"

	"github.com/swarmguard/workgraph/internal/graph"
)

func buildTask(id string, after ...string) *graph.Task {
	return &graph.Task{ID: id, Title: id, Status: graph.StatusOpen, After: after}
}

func TestFromGraphDetectsReviewReviseCycle(t *testing.T) {
	g := graph.New()
	write := buildTask("write")
	review := buildTask("review", "write")
	revise := buildTask("revise", "review")
	write.After = []string{"revise"} // write depends on revise: closes the loop

	_ = g.AddNode(write)
	_ = g.AddNode(review)
	_ = g.AddNode(revise)

	analysis := FromGraph(g)
	if len(analysis.Cycles) != 1 {
		t.Fatalf("expected one cycle, got %v", analysis.Cycles)
	}
	if len(analysis.Cycles[0].Members) != 3 {
		t.Fatalf("expected 3 cycle members, got %v", analysis.Cycles[0].Members)
	}
	for _, id := range []string{"write", "review", "revise"} {
		if _, ok := analysis.TaskToCycle[id]; !ok {
			t.Fatalf("expected %s to be mapped to a cycle", id)
		}
	}
}

func TestFromGraphNoCycleOnDAG(t *testing.T) {
	g := graph.New()
	_ = g.AddNode(buildTask("a"))
	_ = g.AddNode(buildTask("b", "a"))
	_ = g.AddNode(buildTask("c", "b"))

	analysis := FromGraph(g)
	if len(analysis.Cycles) != 0 {
		t.Fatalf("expected no cycles in a DAG, got %v", analysis.Cycles)
	}
}
