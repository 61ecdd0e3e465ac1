package ipc

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/swarmguard/workgraph/internal/graph"
	"github.com/swarmguard/workgraph/internal/oplog"
)

// dispatch routes one decoded request to its command handler (spec §4.7).
func (s *Server) dispatch(ctx context.Context, req Request) Response {
	switch req.Cmd {
	case "graph_changed":
		return s.handleGraphChanged()
	case "status":
		return s.handleStatus()
	case "add_task":
		return s.handleAddTask(ctx, req)
	case "query_task":
		return s.handleQueryTask(req)
	default:
		return errResponse("unknown command %q", req.Cmd)
	}
}

// handleGraphChanged acknowledges and schedules a tick via the IPC fast
// path. It never blocks on the tick itself completing — the coordinator
// loop coalesces notifications (spec §4.6 "Wakeup").
func (s *Server) handleGraphChanged() Response {
	s.loop.Notify()
	return Response{OK: true}
}

func (s *Server) handleStatus() Response {
	return Response{
		OK:         true,
		Ticks:      s.coordinator.Ticks(),
		Agents:     s.coordinator.AgentCountsByStatus(),
		ReadyCount: s.coordinator.ReadyCount(),
	}
}

// handleAddTask creates a task, validates its `after` references, appends
// an add_task operation-log entry, and acknowledges with the assigned id
// (spec §4.7).
func (s *Server) handleAddTask(ctx context.Context, req Request) Response {
	if req.Title == "" {
		return errResponse("title is required")
	}

	g := s.coordinator.Graph()

	id := req.ID
	if id == "" {
		id = generateTaskID(req.Title, g)
	} else if g.GetNode(id) != nil {
		return errResponse("task with id %q already exists", id)
	}

	for _, depID := range req.After {
		if depID == id {
			return errResponse("task %q cannot block itself", id)
		}
		if g.GetTask(depID) == nil {
			return errResponse("after references unknown task %q", depID)
		}
	}

	now := time.Now().UTC()
	task := &graph.Task{
		ID:           id,
		Title:        req.Title,
		Status:       graph.StatusOpen,
		After:        req.After,
		Tags:         req.Tags,
		Skills:       req.Skills,
		Deliverables: req.Deliverables,
		CreatedAt:    &now,
		Visibility:   graph.VisibilityInternal,
	}
	if req.Description != "" {
		task.Description = &req.Description
	}
	if req.Model != "" {
		task.Model = &req.Model
	}
	if req.Verify != "" {
		task.Verify = &req.Verify
	}

	if err := g.AddNode(task); err != nil {
		return errResponse("add task: %v", err)
	}

	entry := oplog.Entry{
		Op:      "add_task",
		TaskID:  id,
		Message: fmt.Sprintf("task %q added via ipc", req.Title),
	}
	if req.Origin != "" {
		entry.Actor = req.Origin
	}

	if err := s.coordinator.PersistGraph(ctx, entry); err != nil {
		return errResponse("persist: %v", err)
	}

	s.loop.Notify()
	return Response{OK: true, ID: id}
}

// generateTaskID derives an id from title the same way
// original_source/src/commands/add.rs's generate_id does: lowercase,
// non-alphanumeric runs become '-', take the first three non-empty
// segments, and disambiguate against existing node ids with a numeric
// suffix, falling back to a unix-timestamp id if 998 suffixes collide.
// Alphanumeric is judged with unicode.IsLetter/IsDigit, matching Rust's
// is_alphanumeric() rather than an ASCII-only a-z/0-9 filter, so titles
// with non-Latin scripts still contribute segments instead of collapsing
// to "task".
func generateTaskID(title string, g *graph.WorkGraph) string {
	lower := strings.ToLower(title)
	var segments []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			segments = append(segments, current.String())
			current.Reset()
		}
	}
	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()

	if len(segments) > 3 {
		segments = segments[:3]
	}
	base := strings.Join(segments, "-")
	if base == "" {
		base = "task"
	}

	if g.GetNode(base) == nil {
		return base
	}
	for i := 2; i < 1000; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if g.GetNode(candidate) == nil {
			return candidate
		}
	}
	return fmt.Sprintf("task-%d", time.Now().UTC().Unix())
}

func (s *Server) handleQueryTask(req Request) Response {
	if req.TaskID == "" {
		return errResponse("task_id is required")
	}
	task := s.coordinator.Graph().GetTask(req.TaskID)
	if task == nil {
		return errResponse("task %q not found", req.TaskID)
	}
	return Response{OK: true, Task: task}
}
