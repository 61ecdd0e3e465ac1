package check

import (
	"sort"
	"time"

	"github.com/swarmguard/workgraph/internal/graph"
)

// Ready reports whether a task satisfies every precondition for dispatch
// (spec §4.6 step 3): not paused, not terminal, not already in progress;
// every after-dependency exists and has reached a terminal status; every
// required resource exists; and not_before/ready_after, if set, have
// already passed.
func Ready(g *graph.WorkGraph, t *graph.Task, now time.Time) bool {
	if t.Paused || t.Status.IsTerminal() || t.Status == graph.StatusInProgress {
		return false
	}
	for _, depID := range t.After {
		dep := g.GetTask(depID)
		if dep == nil || !dep.Status.IsTerminal() {
			return false
		}
	}
	for _, resID := range t.Requires {
		if g.GetResource(resID) == nil {
			return false
		}
	}
	if t.NotBefore != nil && t.NotBefore.After(now) {
		return false
	}
	if t.ReadyAfter != nil && t.ReadyAfter.After(now) {
		return false
	}
	return true
}

// ReadySet returns every ready task, in discovery order (ascending id) so
// dispatch has a deterministic FIFO to pop from.
func ReadySet(g *graph.WorkGraph, now time.Time) []*graph.Task {
	tasks := g.Tasks()
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })

	var ready []*graph.Task
	for _, t := range tasks {
		if Ready(g, t, now) {
			ready = append(ready, t)
		}
	}
	return ready
}

// CostRollup sums the Estimate.Cost of every task matching the predicate
// (nil predicate sums over the whole graph). Tasks without an estimate
// contribute zero.
func CostRollup(g *graph.WorkGraph, include func(*graph.Task) bool) float64 {
	var total float64
	for _, t := range g.Tasks() {
		if include != nil && !include(t) {
			continue
		}
		if t.Estimate != nil && t.Estimate.Cost != nil {
			total += *t.Estimate.Cost
		}
	}
	return total
}

// HoursRollup sums the Estimate.Hours of every task matching the predicate,
// the same way CostRollup sums cost.
func HoursRollup(g *graph.WorkGraph, include func(*graph.Task) bool) float64 {
	var total float64
	for _, t := range g.Tasks() {
		if include != nil && !include(t) {
			continue
		}
		if t.Estimate != nil && t.Estimate.Hours != nil {
			total += *t.Estimate.Hours
		}
	}
	return total
}
