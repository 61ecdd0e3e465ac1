package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/swarmguard/workgraph/internal/cycle"
	"github.com/swarmguard/workgraph/internal/oplog"
)

// runCycleMaintenance implements spec §4.6 step 5: for each task that just
// transitioned to Done this tick, evaluate structural cycle re-activation
// (§4.2.4) and log every reactivated task. The operation-log entry for
// reactivation is appended strictly after the entries already written for
// this tick's Done observations, satisfying the ordering guarantee that
// reactivation entries follow their triggering Done entry.
func (c *Coordinator) runCycleMaintenance(ctx context.Context, doneThisTick []string) []string {
	if len(doneThisTick) == 0 {
		return nil
	}

	ctx, span := c.tracer.Start(ctx, "coordinator.cycle_maintenance")
	defer span.End()
	start := time.Now()
	defer func() {
		if c.metrics.CycleAnalysisDuration != nil {
			c.metrics.CycleAnalysisDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
		}
	}()

	if !c.wg.CycleCacheValid() || c.cycleAnalysis == nil {
		c.cycleAnalysis = cycle.FromGraph(c.wg)
		c.wg.MarkCycleCacheValid()
	}

	var reactivated []string
	for _, taskID := range doneThisTick {
		ids := cycle.EvaluateCycleIteration(c.wg, taskID, c.cycleAnalysis)
		if len(ids) == 0 {
			continue
		}
		reactivated = append(reactivated, ids...)
		if err := c.oplog.Append(ctx, oplog.Entry{
			Op:      "apply",
			TaskID:  taskID,
			Message: "structural cycle re-activated",
			Detail:  map[string]interface{}{"action": "cycle_reactivate", "members": ids},
		}); err != nil {
			slog.ErrorContext(ctx, "append cycle_reactivate oplog entry failed", "error", err, "task_id", taskID)
		}
	}
	return reactivated
}
