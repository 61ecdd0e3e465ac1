package cycle

import (
	"sort"

	"github.com/swarmguard/workgraph/internal/graph"
)

// DetectedCycle is a strongly connected component in the task graph,
// reported with string task ids.
type DetectedCycle struct {
	Members   []string
	Header    string
	Reducible bool
}

// Analysis is cycle analysis derived from a WorkGraph's after edges.
// Never persisted — recomputed lazily whenever the graph store's cycle
// cache is invalidated (see graph.WorkGraph.CycleCacheValid).
type Analysis struct {
	Cycles      []DetectedCycle
	TaskToCycle map[string]int
	BackEdges   map[[2]string]bool
}

// FromGraph computes cycle analysis from a WorkGraph. Edges are built from
// each task's After list (dep→dependent), the same direction used by the
// graph store's disposable adjacency builder, so incremental edge checks
// and full recomputation agree on cycle membership.
func FromGraph(g *graph.WorkGraph) *Analysis {
	named := NewNamedGraph()
	tasks := g.Tasks()
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })

	for _, t := range tasks {
		named.AddNode(t.ID)
	}
	for _, t := range tasks {
		for _, depID := range t.After {
			if g.GetTask(depID) != nil {
				named.AddEdge(depID, t.ID)
			}
		}
	}

	metadata := named.AnalyzeCycles()

	a := &Analysis{
		TaskToCycle: make(map[string]int),
		BackEdges:   make(map[[2]string]bool),
	}

	for idx, meta := range metadata {
		members := make([]string, len(meta.Members))
		for i, nid := range meta.Members {
			members[i] = named.GetName(nid)
		}
		header := named.GetName(meta.Header)

		for _, m := range members {
			a.TaskToCycle[m] = idx
		}
		for _, be := range meta.BackEdges {
			a.BackEdges[[2]string{named.GetName(be[0]), named.GetName(be[1])}] = true
		}

		a.Cycles = append(a.Cycles, DetectedCycle{
			Members:   members,
			Header:    header,
			Reducible: meta.Reducible,
		})
	}

	return a
}
