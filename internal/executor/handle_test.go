package executor

import (
	"testing"
	"time"

	"github.com/swarmguard/workgraph/internal/graph"
)

func TestAgentHandleTerminateStopsProcess(t *testing.T) {
	ex := NewDefaultExecutor()
	cfg := &Config{Executor: ExecutorSettings{Command: "sleep", Args: []string{"30"}}}

	handle, err := ex.Spawn(&graph.Task{ID: "t1"}, cfg, TemplateVars{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if !handle.IsRunning() {
		t.Fatal("expected process to be running right after spawn")
	}

	if err := handle.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	_ = handle.Wait()
	if handle.IsRunning() {
		t.Fatal("expected process to have exited after SIGTERM")
	}
}

func TestAgentHandleKillStopsProcess(t *testing.T) {
	ex := NewDefaultExecutor()
	cfg := &Config{Executor: ExecutorSettings{Command: "sleep", Args: []string{"30"}}}

	handle, err := ex.Spawn(&graph.Task{ID: "t1"}, cfg, TemplateVars{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- handle.Wait() }()

	if err := handle.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("expected Kill to make Wait return promptly")
	}
}

func TestAgentHandleWriteToStdin(t *testing.T) {
	ex := NewDefaultExecutor()
	cfg := &Config{Executor: ExecutorSettings{Command: "cat"}}

	handle, err := ex.Spawn(&graph.Task{ID: "t1"}, cfg, TemplateVars{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	if err := handle.Write([]byte("ping\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	line, ok, err := handle.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if !ok || line != "ping\n" {
		t.Fatalf("expected echoed line %q, got %q (ok=%v)", "ping\n", line, ok)
	}

	_ = handle.Kill()
	_ = handle.Wait()
}
