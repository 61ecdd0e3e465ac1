package cycle

import (
	"fmt"
	"math"
	"time"

	"github.com/swarmguard/workgraph/internal/graph"
)

// evaluateGuard evaluates a guard condition against current graph state.
// IterationLessThan is not resolved here — the caller additionally checks
// the numeric threshold once the cycle's current iteration is known.
func evaluateGuard(guard *graph.Guard, g *graph.WorkGraph) bool {
	if guard == nil {
		return true
	}
	switch guard.Kind {
	case graph.GuardAlways, graph.GuardIterationLessThan:
		return true
	case graph.GuardTaskStatus:
		t := g.GetTask(guard.Task)
		return t != nil && t.Status == guard.Status
	default:
		return false
	}
}

// EvaluateCycleIteration runs after a task transitions to Done. If the
// completed task belongs to a structural cycle, and every member of that
// cycle is now Done, evaluates whether to re-open the cycle for another
// iteration:
//
//  1. locate the cycle member carrying CycleConfig (the configured owner,
//     which may differ from the SCC's structural header)
//  2. require every member Done
//  3. stop if the owner carries a "converged" tag
//  4. stop at max_iterations
//  5. evaluate the guard condition (plus the IterationLessThan(n) numeric
//     check, which is not part of evaluateGuard itself)
//
// On success, re-opens every cycle member, increments loop_iteration, and —
// only on the configured owner — sets ready_after from the configured delay.
// Returns the ids of every task that was re-activated.
func EvaluateCycleIteration(g *graph.WorkGraph, completedTaskID string, analysis *Analysis) []string {
	cycleIdx, ok := analysis.TaskToCycle[completedTaskID]
	if !ok {
		return nil
	}
	cyc := analysis.Cycles[cycleIdx]

	var configOwnerID string
	var cycleConfig *graph.CycleConfig
	for _, memberID := range cyc.Members {
		if t := g.GetTask(memberID); t != nil && t.CycleConfig != nil {
			configOwnerID = memberID
			cycleConfig = t.CycleConfig
			break
		}
	}
	if cycleConfig == nil {
		return nil
	}

	for _, memberID := range cyc.Members {
		t := g.GetTask(memberID)
		if t == nil || t.Status != graph.StatusDone {
			return nil
		}
	}

	owner := g.GetTask(configOwnerID)
	for _, tag := range owner.Tags {
		if tag == "converged" {
			return nil
		}
	}

	currentIter := owner.LoopIteration
	if uint32(currentIter) >= cycleConfig.MaxIterations {
		return nil
	}

	if !evaluateGuard(cycleConfig.Guard, g) {
		return nil
	}
	if cycleConfig.Guard != nil && cycleConfig.Guard.Kind == graph.GuardIterationLessThan {
		if uint32(currentIter) >= cycleConfig.Guard.N {
			return nil
		}
	}

	newIteration := currentIter + 1

	var readyAfter *time.Time
	if cycleConfig.Delay != "" {
		if secs, ok := ParseDelay(cycleConfig.Delay); ok && secs <= math.MaxInt64 {
			t := time.Now().UTC().Add(time.Duration(secs) * time.Second)
			readyAfter = &t
		}
	}

	reactivated := make([]string, 0, len(cyc.Members))
	for _, memberID := range cyc.Members {
		t := g.GetTask(memberID)
		if t == nil {
			continue
		}
		t.Status = graph.StatusOpen
		t.Assigned = nil
		t.StartedAt = nil
		t.CompletedAt = nil
		t.LoopIteration = newIteration
		if memberID == configOwnerID {
			t.ReadyAfter = readyAfter
		}

		t.Log = append(t.Log, graph.LogEntry{
			Timestamp: time.Now().UTC(),
			Message: fmt.Sprintf("Re-activated by cycle iteration (iteration %d/%d)",
				newIteration, cycleConfig.MaxIterations),
		})

		reactivated = append(reactivated, memberID)
	}

	return reactivated
}
