package store

import (
	"context"
	"path/filepath"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/swarmguard/workgraph/internal/graph"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "store.db")
	s, err := Open(dbPath, otel.GetMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func cost(v float64) *float64 { return &v }

func TestEnsureFreshRebuildsOnNewGeneration(t *testing.T) {
	s := openTestStore(t)

	wg := graph.New()
	if err := wg.AddNode(&graph.Task{ID: "t1", Title: "one", Status: graph.StatusOpen}); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := s.EnsureFresh(ctx, wg, "gen-1"); err != nil {
		t.Fatalf("EnsureFresh: %v", err)
	}
	if !s.IsReady("t1") {
		t.Fatal("expected t1 to be ready after rebuild")
	}

	// Same generation: no rebuild, cache should still report ready.
	if err := s.EnsureFresh(ctx, wg, "gen-1"); err != nil {
		t.Fatalf("EnsureFresh (cached): %v", err)
	}
	if !s.IsReady("t1") {
		t.Fatal("expected t1 still ready from cached snapshot")
	}
}

func TestEnsureFreshReflectsGraphChangesOnNewGeneration(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	wg := graph.New()
	if err := wg.AddNode(&graph.Task{ID: "t1", Title: "one", Status: graph.StatusOpen}); err != nil {
		t.Fatal(err)
	}
	if err := s.EnsureFresh(ctx, wg, "gen-1"); err != nil {
		t.Fatal(err)
	}
	if !s.IsReady("t1") {
		t.Fatal("expected t1 ready")
	}

	task := wg.GetTask("t1")
	task.Status = graph.StatusDone

	if err := s.EnsureFresh(ctx, wg, "gen-2"); err != nil {
		t.Fatal(err)
	}
	if s.IsReady("t1") {
		t.Fatal("expected t1 no longer ready after completion and rebuild")
	}
}

func TestRollupsReflectEstimates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	wg := graph.New()
	if err := wg.AddNode(&graph.Task{ID: "t1", Title: "one", Status: graph.StatusOpen, Estimate: &graph.Estimate{Cost: cost(10), Hours: cost(2)}}); err != nil {
		t.Fatal(err)
	}
	if err := wg.AddNode(&graph.Task{ID: "t2", Title: "two", Status: graph.StatusOpen, Estimate: &graph.Estimate{Cost: cost(5), Hours: cost(1)}}); err != nil {
		t.Fatal(err)
	}

	if err := s.Rebuild(ctx, wg, "gen-1"); err != nil {
		t.Fatal(err)
	}
	r := s.CurrentRollups()
	if r.TotalCost != 15 {
		t.Fatalf("expected total cost 15, got %v", r.TotalCost)
	}
	if r.TotalHours != 3 {
		t.Fatalf("expected total hours 3, got %v", r.TotalHours)
	}
}

func TestLoadSnapshotSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "store.db")
	s, err := Open(dbPath, otel.GetMeterProvider().Meter("test"))
	if err != nil {
		t.Fatal(err)
	}

	wg := graph.New()
	if err := wg.AddNode(&graph.Task{ID: "t1", Title: "one", Status: graph.StatusOpen}); err != nil {
		t.Fatal(err)
	}
	if err := s.Rebuild(context.Background(), wg, "gen-1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(dbPath, otel.GetMeterProvider().Meter("test"))
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	if !reopened.IsReady("t1") {
		t.Fatal("expected ready index to survive reopen")
	}
	if len(reopened.ReadyIDs()) != 1 {
		t.Fatalf("expected exactly one ready id, got %v", reopened.ReadyIDs())
	}
}

func TestGenerationOfMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.jsonl")

	g1, err := Generation(path)
	if err != nil {
		t.Fatal(err)
	}
	if g1 != "empty" {
		t.Fatalf("expected 'empty' generation for missing file, got %q", g1)
	}
}
