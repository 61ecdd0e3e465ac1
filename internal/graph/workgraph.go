package graph

import (
	"sort"
	"sync"
)

// WorkGraph is a keyed collection of Task and Resource nodes maintaining
// invariants I1-I6 (see spec §3).
type WorkGraph struct {
	mu    sync.RWMutex
	nodes map[string]Node

	// cycleCacheValid tracks whether a cached CycleAnalysis (owned by the
	// cycle package) is still valid. The graph package only flips this flag;
	// it does not itself compute cycle analysis (that is internal/cycle's
	// job, operating on a disposable numeric adjacency per §9).
	cycleCacheValid bool
}

// New creates an empty work graph.
func New() *WorkGraph {
	return &WorkGraph{nodes: make(map[string]Node)}
}

// AddNode inserts a node. Returns a Conflict error if the id is already
// present (I1). Invalidates the cached cycle analysis.
func (g *WorkGraph) AddNode(n Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[n.NodeID()]; exists {
		return newConflict("duplicate node id '" + n.NodeID() + "'")
	}
	g.nodes[n.NodeID()] = n
	g.cycleCacheValid = false

	if t, ok := n.(*Task); ok {
		g.syncSymmetryLocked(t)
	}
	return nil
}

// syncSymmetryLocked ensures I2: every a in t.After has t.ID in its Before,
// and every b in t.Before has t.ID in its After. Called with mu held.
func (g *WorkGraph) syncSymmetryLocked(t *Task) {
	for _, a := range t.After {
		if other, ok := g.nodes[a].(*Task); ok {
			if !contains(other.Before, t.ID) {
				other.Before = append(other.Before, t.ID)
			}
		}
	}
	for _, b := range t.Before {
		if other, ok := g.nodes[b].(*Task); ok {
			if !contains(other.After, t.ID) {
				other.After = append(other.After, t.ID)
			}
		}
	}
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

func removeString(ss []string, s string) []string {
	out := ss[:0:0]
	for _, x := range ss {
		if x != s {
			out = append(out, x)
		}
	}
	return out
}

// GetNode returns the node with the given id, or nil if absent.
func (g *WorkGraph) GetNode(id string) Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// GetTask returns the task with the given id, or nil on miss or type
// mismatch.
func (g *WorkGraph) GetTask(id string) *Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if t, ok := g.nodes[id].(*Task); ok {
		return t
	}
	return nil
}

// GetResource returns the resource with the given id, or nil on miss or
// type mismatch.
func (g *WorkGraph) GetResource(id string) *Resource {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if r, ok := g.nodes[id].(*Resource); ok {
		return r
	}
	return nil
}

// GetTaskOrErr returns the task or a NotFound error carrying at most one
// "did you mean?" suggestion (spec §4.1, §7, scenario 2).
func (g *WorkGraph) GetTaskOrErr(id string) (*Task, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if t, ok := g.nodes[id].(*Task); ok {
		return t, nil
	}

	candidates := make([]string, 0, len(g.nodes))
	for k, n := range g.nodes {
		if _, ok := n.(*Task); ok {
			candidates = append(candidates, k)
		}
	}
	sort.Strings(candidates)
	suggestion := suggestFor(id, candidates)
	return nil, newNotFound("task '"+id+"' not found", suggestion)
}

// RemoveNode removes a node and cleans every incoming reference from other
// tasks (I3): after, before, requires.
func (g *WorkGraph) RemoveNode(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[id]; !ok {
		return newNotFound("node '"+id+"' not found", "")
	}
	delete(g.nodes, id)

	for _, n := range g.nodes {
		t, ok := n.(*Task)
		if !ok {
			continue
		}
		t.After = removeString(t.After, id)
		t.Before = removeString(t.Before, id)
		t.Requires = removeString(t.Requires, id)
	}
	g.cycleCacheValid = false
	return nil
}

// Tasks returns all task nodes in unspecified order.
func (g *WorkGraph) Tasks() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Task, 0, len(g.nodes))
	for _, n := range g.nodes {
		if t, ok := n.(*Task); ok {
			out = append(out, t)
		}
	}
	return out
}

// Resources returns all resource nodes in unspecified order.
func (g *WorkGraph) Resources() []*Resource {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Resource, 0, len(g.nodes))
	for _, n := range g.nodes {
		if r, ok := n.(*Resource); ok {
			out = append(out, r)
		}
	}
	return out
}

// Nodes returns every node in unspecified order.
func (g *WorkGraph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	return out
}

// InvalidateCycleCache marks the cached cycle analysis stale. Exposed
// publicly because some callers perform batched mutations and want to defer
// reanalysis until the batch completes.
func (g *WorkGraph) InvalidateCycleCache() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cycleCacheValid = false
}

// CycleCacheValid reports whether the cached analysis is still considered
// fresh. The cycle package flips this back to true after recomputing.
func (g *WorkGraph) CycleCacheValid() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cycleCacheValid
}

// MarkCycleCacheValid is called by the cycle analyzer after a recompute.
func (g *WorkGraph) MarkCycleCacheValid() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cycleCacheValid = true
}

// Adjacency builds a disposable numeric adjacency list (id→index) suitable
// for the cycle package, per the design note in spec §9: "cycle analysis
// operates on a disposable numeric adjacency built by mapping id→index".
func (g *WorkGraph) Adjacency() (ids []string, adj [][]int) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids = make([]string, 0, len(g.nodes))
	for _, n := range g.nodes {
		if t, ok := n.(*Task); ok {
			ids = append(ids, t.ID)
		}
	}
	sort.Strings(ids)

	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	adj = make([][]int, len(ids))
	for i, id := range ids {
		t := g.nodes[id].(*Task)
		for _, before := range t.Before {
			if j, ok := index[before]; ok {
				adj[i] = append(adj[i], j)
			}
		}
	}
	return ids, adj
}
