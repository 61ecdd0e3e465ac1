package cycle

import "sort"

// Metadata describes a detected cycle in a form suitable for work-graph
// integration: which node is its entry point, whether it is reducible, its
// back edges, and its nesting depth.
type Metadata struct {
	Members      []NodeID
	Header       NodeID
	Reducible    bool
	BackEdges    [][2]NodeID
	NestingDepth int
}

// ExtractCycleMetadata computes, for each non-trivial SCC:
//   - the header: the node with external predecessors, if exactly one such
//     node exists (reducible); the smallest node id if no member has an
//     external predecessor (isolated cycle, reducible); or the smallest
//     among multiple external-predecessor nodes (irreducible)
//   - back edges: SCC-internal edges pointing at the header
//   - nesting depth: the number of other SCCs whose members contain the
//     header
func ExtractCycleMetadata(sccs []SCC, numNodes int, adj [][]int) []Metadata {
	revAdj := make([][]NodeID, numNodes)
	for u, succs := range adj {
		for _, v := range succs {
			revAdj[v] = append(revAdj[v], u)
		}
	}

	result := make([]Metadata, 0, len(sccs))

	for sccIdx, scc := range sccs {
		memberSet := make(map[NodeID]bool, len(scc.Members))
		for _, n := range scc.Members {
			memberSet[n] = true
		}

		var entryNodes []NodeID
		for _, node := range scc.Members {
			for _, pred := range revAdj[node] {
				if !memberSet[pred] {
					entryNodes = append(entryNodes, node)
					break
				}
			}
		}

		var header NodeID
		reducible := true
		switch len(entryNodes) {
		case 0:
			sorted := append([]NodeID(nil), scc.Members...)
			sort.Ints(sorted)
			header = sorted[0]
		case 1:
			header = entryNodes[0]
		default:
			sort.Ints(entryNodes)
			header = entryNodes[0]
			reducible = false
		}

		var backEdges [][2]NodeID
		for _, pred := range revAdj[header] {
			if memberSet[pred] {
				backEdges = append(backEdges, [2]NodeID{pred, header})
			}
		}

		nestingDepth := 0
		for otherIdx, other := range sccs {
			if otherIdx == sccIdx {
				continue
			}
			for _, n := range other.Members {
				if n == header {
					nestingDepth++
					break
				}
			}
		}

		members := append([]NodeID(nil), scc.Members...)
		sort.Ints(members)

		result = append(result, Metadata{
			Members:      members,
			Header:       header,
			Reducible:    reducible,
			BackEdges:    backEdges,
			NestingDepth: nestingDepth,
		})
	}

	return result
}

// AnalyzeGraphCycles runs Tarjan's SCC, filters to cycles, and extracts
// metadata for each, in one call.
func AnalyzeGraphCycles(numNodes int, adj [][]int) []Metadata {
	sccs := FindCycles(numNodes, adj, false)
	return ExtractCycleMetadata(sccs, numNodes, adj)
}

// NamedGraph bridges workgraph's string task ids and the numeric ids the
// cycle algorithms operate on.
type NamedGraph struct {
	names    []string
	nameToID map[string]NodeID
	adj      [][]int
}

// NewNamedGraph creates an empty named graph.
func NewNamedGraph() *NamedGraph {
	return &NamedGraph{nameToID: make(map[string]NodeID)}
}

// AddNode adds a node by name, returning its existing id if already present.
func (g *NamedGraph) AddNode(name string) NodeID {
	if id, ok := g.nameToID[name]; ok {
		return id
	}
	id := len(g.names)
	g.names = append(g.names, name)
	g.nameToID[name] = id
	g.adj = append(g.adj, nil)
	return id
}

// AddEdge adds a directed edge from→to by name, creating nodes as needed.
func (g *NamedGraph) AddEdge(from, to string) {
	fromID := g.AddNode(from)
	toID := g.AddNode(to)
	g.adj[fromID] = append(g.adj[fromID], toID)
}

// GetID returns the numeric id for a name, if present.
func (g *NamedGraph) GetID(name string) (NodeID, bool) {
	id, ok := g.nameToID[name]
	return id, ok
}

// GetName returns the name for a numeric id.
func (g *NamedGraph) GetName(id NodeID) string { return g.names[id] }

// NumNodes returns the number of nodes.
func (g *NamedGraph) NumNodes() int { return len(g.names) }

// Adjacency returns the graph's adjacency list.
func (g *NamedGraph) Adjacency() [][]int { return g.adj }

// AnalyzeCycles runs full cycle analysis and returns metadata.
func (g *NamedGraph) AnalyzeCycles() []Metadata {
	return AnalyzeGraphCycles(g.NumNodes(), g.adj)
}
