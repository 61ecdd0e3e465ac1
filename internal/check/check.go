// Package check implements the diagnostic sweep over a work graph: cycle
// detection via after-edges, orphan reference detection, stale-assignment
// and stuck-blocked-task heuristics, and the aggregate validity verdict.
package check

import "github.com/swarmguard/workgraph/internal/graph"

// OrphanRef is a reference (after/before/requires) to a node that does not
// exist in the graph.
type OrphanRef struct {
	From     string
	To       string
	Relation string // "after", "before", or "requires"
}

// StaleAssignment is a task with status=open but an agent still assigned,
// which may indicate a dead agent that never released its claim.
type StaleAssignment struct {
	TaskID   string
	Assigned string
}

// StuckBlocked is a task with status=blocked whose after-dependencies have
// all reached a terminal status. It should have transitioned to open but
// didn't — likely a coordinator bug or a missed transition.
type StuckBlocked struct {
	TaskID   string
	AfterIDs []string
}

// Result is the aggregate outcome of running every check.
type Result struct {
	Cycles           [][]string
	OrphanRefs       []OrphanRef
	StaleAssignments []StaleAssignment
	StuckBlocked     []StuckBlocked
	OK               bool
}

// Cycles detects structural cycles by following each task's After edges (A
// after B means A depends on B). Unlike the cycle package's SCC-based
// analysis, this is a direct recursive DFS matching the diagnostic's own
// traversal order, used purely for reporting — not for gating iteration.
func Cycles(g *graph.WorkGraph) [][]string {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	var path []string
	var cycles [][]string

	tasks := g.Tasks()
	for _, t := range tasks {
		if !visited[t.ID] {
			findCycles(g, t.ID, visited, recStack, &path, &cycles)
		}
	}
	return cycles
}

func findCycles(g *graph.WorkGraph, nodeID string, visited, recStack map[string]bool, path *[]string, cycles *[][]string) {
	visited[nodeID] = true
	recStack[nodeID] = true
	*path = append(*path, nodeID)

	if task := g.GetTask(nodeID); task != nil {
		for _, depID := range task.After {
			if !visited[depID] {
				findCycles(g, depID, visited, recStack, path, cycles)
			} else if recStack[depID] {
				for i, id := range *path {
					if id == depID {
						cycle := append([]string(nil), (*path)[i:]...)
						*cycles = append(*cycles, cycle)
						break
					}
				}
			}
		}
	}

	*path = (*path)[:len(*path)-1]
	delete(recStack, nodeID)
}

// StaleAssignments returns every open task that still has an agent assigned.
func StaleAssignments(g *graph.WorkGraph) []StaleAssignment {
	var stale []StaleAssignment
	for _, t := range g.Tasks() {
		if t.Status == graph.StatusOpen && t.Assigned != nil {
			stale = append(stale, StaleAssignment{TaskID: t.ID, Assigned: *t.Assigned})
		}
	}
	return stale
}

// StuckBlockedTasks returns every blocked task whose after-dependencies have
// all reached a terminal status but which was never reopened.
func StuckBlockedTasks(g *graph.WorkGraph) []StuckBlocked {
	var stuck []StuckBlocked
	for _, t := range g.Tasks() {
		if t.Status != graph.StatusBlocked || len(t.After) == 0 {
			continue
		}
		allTerminal := true
		for _, depID := range t.After {
			dep := g.GetTask(depID)
			if dep == nil || !dep.Status.IsTerminal() {
				allTerminal = false
				break
			}
		}
		if allTerminal {
			stuck = append(stuck, StuckBlocked{TaskID: t.ID, AfterIDs: append([]string(nil), t.After...)})
		}
	}
	return stuck
}

// OrphanRefs returns every after/before/requires reference to a node absent
// from the graph. `before` is checked against any node (a Resource id there
// is valid); `requires` is checked specifically against resources, so a
// Task id in `requires` is itself an orphan.
func OrphanRefs(g *graph.WorkGraph) []OrphanRef {
	var orphans []OrphanRef
	for _, t := range g.Tasks() {
		for _, after := range t.After {
			if g.GetNode(after) == nil {
				orphans = append(orphans, OrphanRef{From: t.ID, To: after, Relation: "after"})
			}
		}
		for _, before := range t.Before {
			if g.GetNode(before) == nil {
				orphans = append(orphans, OrphanRef{From: t.ID, To: before, Relation: "before"})
			}
		}
		for _, requires := range t.Requires {
			if g.GetResource(requires) == nil {
				orphans = append(orphans, OrphanRef{From: t.ID, To: requires, Relation: "requires"})
			}
		}
	}
	return orphans
}

// All runs every check and returns the aggregate result. Cycles, stale
// assignments, and stuck-blocked tasks are warnings; only orphan references
// make the graph invalid.
func All(g *graph.WorkGraph) Result {
	orphanRefs := OrphanRefs(g)
	return Result{
		Cycles:           Cycles(g),
		OrphanRefs:       orphanRefs,
		StaleAssignments: StaleAssignments(g),
		StuckBlocked:     StuckBlockedTasks(g),
		OK:               len(orphanRefs) == 0,
	}
}
