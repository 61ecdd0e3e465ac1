package graph

import (
	"encoding/json"
	"testing"
)

func TestTaskUnmarshalModern(t *testing.T) {
	data := []byte(`{"kind":"task","id":"t1","title":"Do thing","status":"open","after":["t0"]}`)
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatal(err)
	}
	if task.Status != StatusOpen || task.Visibility != VisibilityInternal {
		t.Fatalf("unexpected task: %+v", task)
	}
	if len(task.After) != 1 || task.After[0] != "t0" {
		t.Fatalf("expected after=[t0], got %v", task.After)
	}
}

func TestTaskUnmarshalLegacyAliases(t *testing.T) {
	data := []byte(`{"id":"t1","title":"Legacy","blocked_by":["t0"],"blocks":["t2"]}`)
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatal(err)
	}
	if len(task.After) != 1 || task.After[0] != "t0" {
		t.Fatalf("expected blocked_by to migrate into after, got %v", task.After)
	}
	if len(task.Before) != 1 || task.Before[0] != "t2" {
		t.Fatalf("expected blocks to migrate into before, got %v", task.Before)
	}
}

func TestTaskUnmarshalPendingReviewMapsToDone(t *testing.T) {
	data := []byte(`{"id":"t1","title":"Old","status":"pending-review"}`)
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatal(err)
	}
	if task.Status != StatusDone {
		t.Fatalf("expected pending-review to map to done, got %q", task.Status)
	}
}

func TestTaskUnmarshalEmptyStatusDefaultsOpen(t *testing.T) {
	data := []byte(`{"id":"t1","title":"New"}`)
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatal(err)
	}
	if task.Status != StatusOpen {
		t.Fatalf("expected default status open, got %q", task.Status)
	}
}

func TestTaskUnmarshalUnknownStatusRejected(t *testing.T) {
	data := []byte(`{"id":"t1","title":"Bad","status":"not-a-real-status"}`)
	var task Task
	err := json.Unmarshal(data, &task)
	if err == nil {
		t.Fatal("expected an error for an unknown status")
	}
	werr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *graph.Error, got %T (%v)", err, err)
	}
	if werr.Kind != KindInvalidArgument {
		t.Fatalf("expected KindInvalidArgument, got %s", werr.Kind)
	}
}

func TestTaskUnmarshalIdentityMigratesToAgentHash(t *testing.T) {
	data := []byte(`{"id":"t1","title":"Legacy agent","identity":{"role_id":"reviewer","motivation_id":"quality"}}`)
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatal(err)
	}
	if task.Agent == nil || len(*task.Agent) != 16 {
		t.Fatalf("expected 16-hex-digit agent hash, got %v", task.Agent)
	}
}

func TestTaskUnmarshalExplicitAgentWinsOverIdentity(t *testing.T) {
	data := []byte(`{"id":"t1","title":"Both","agent":"explicit-agent","identity":{"role_id":"r","motivation_id":"m"}}`)
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatal(err)
	}
	if task.Agent == nil || *task.Agent != "explicit-agent" {
		t.Fatalf("expected explicit agent to win, got %v", task.Agent)
	}
}

func TestTaskMarshalOmitsDefaultVisibility(t *testing.T) {
	task := Task{ID: "t1", Title: "T", Status: StatusOpen, Visibility: VisibilityInternal}
	out, err := json.Marshal(task)
	if err != nil {
		t.Fatal(err)
	}
	var generic map[string]any
	if err := json.Unmarshal(out, &generic); err != nil {
		t.Fatal(err)
	}
	if _, present := generic["visibility"]; present {
		t.Fatalf("expected default visibility to be omitted, got %v", generic["visibility"])
	}
	if generic["kind"] != "task" {
		t.Fatalf("expected kind discriminator 'task', got %v", generic["kind"])
	}
}

func TestTaskMarshalRoundTrip(t *testing.T) {
	desc := "desc"
	orig := Task{
		ID: "t1", Title: "Round trip", Description: &desc, Status: StatusInProgress,
		After: []string{"t0"}, Visibility: VisibilityPeer,
	}
	out, err := json.Marshal(orig)
	if err != nil {
		t.Fatal(err)
	}
	var decoded Task
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.ID != orig.ID || decoded.Status != orig.Status || decoded.Visibility != orig.Visibility {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, orig)
	}
}
