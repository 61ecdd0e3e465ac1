package graph

import (
	"errors"
	"testing"
)

func mustTask(id string) *Task {
	return &Task{ID: id, Title: id, Status: StatusOpen}
}

func TestAddNodeDuplicateIsConflict(t *testing.T) {
	g := New()
	if err := g.AddNode(mustTask("a")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := g.AddNode(mustTask("a"))
	if err == nil {
		t.Fatal("expected conflict error on duplicate id")
	}
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindConflict {
		t.Fatalf("expected KindConflict, got %v", err)
	}
}

func TestAddNodeSyncsSymmetry(t *testing.T) {
	g := New()
	a := mustTask("a")
	b := mustTask("b")
	a.After = []string{"b"} // a depends on b; b.Before should gain "a"
	if err := g.AddNode(b); err != nil {
		t.Fatal(err)
	}
	if err := g.AddNode(a); err != nil {
		t.Fatal(err)
	}
	if !contains(g.GetTask("b").Before, "a") {
		t.Fatalf("expected b.Before to contain a, got %v", g.GetTask("b").Before)
	}
}

func TestRemoveNodeCleansReferences(t *testing.T) {
	g := New()
	a := mustTask("a")
	b := mustTask("b")
	a.After = []string{"b"}
	b.Requires = []string{"res"}
	_ = g.AddNode(b)
	_ = g.AddNode(a)
	_ = g.AddNode(&Resource{ID: "res"})

	if err := g.RemoveNode("b"); err != nil {
		t.Fatal(err)
	}
	if contains(g.GetTask("a").After, "b") {
		t.Fatalf("expected a.After to no longer contain b, got %v", g.GetTask("a").After)
	}
}

func TestRemoveNodeMissingIsNotFound(t *testing.T) {
	g := New()
	err := g.RemoveNode("missing")
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindNotFound {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}

func TestGetTaskOrErrSuggestsTypo(t *testing.T) {
	g := New()
	_ = g.AddNode(mustTask("implement-auth"))

	_, err := g.GetTaskOrErr("implement-atuh")
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindNotFound {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
	if e.Suggestion != "implement-auth" {
		t.Fatalf("expected suggestion 'implement-auth', got %q", e.Suggestion)
	}
}

func TestAdjacencyFollowsBeforeEdges(t *testing.T) {
	g := New()
	write := mustTask("write")
	review := mustTask("review")
	write.Before = []string{"review"}
	_ = g.AddNode(write)
	_ = g.AddNode(review)

	ids, adj := g.Adjacency()
	idx := make(map[string]int, len(ids))
	for i, id := range ids {
		idx[id] = i
	}
	neighbors := adj[idx["write"]]
	if len(neighbors) != 1 || neighbors[0] != idx["review"] {
		t.Fatalf("expected write -> review edge, got %v", neighbors)
	}
}

func TestEmptyGraphBoundary(t *testing.T) {
	g := New()
	if len(g.Tasks()) != 0 || len(g.Resources()) != 0 || len(g.Nodes()) != 0 {
		t.Fatal("expected empty graph to report zero nodes")
	}
	ids, adj := g.Adjacency()
	if len(ids) != 0 || len(adj) != 0 {
		t.Fatal("expected empty adjacency on empty graph")
	}
}
