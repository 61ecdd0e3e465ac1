// Package cycle implements cycle detection and loop-nesting analysis over
// directed graphs, plus the structural cycle iteration evaluator that drives
// review/revise loops in the work graph. Algorithms operate on a disposable
// numeric adjacency list (id→index, built by internal/graph) so they stay
// independent of the graph's string-keyed task model.
package cycle

// NodeID indexes into an adjacency list; callers map their own ids.
type NodeID = int

// SCC is a strongly connected component: a maximal set of nodes where every
// node is reachable from every other.
type SCC struct {
	Members []NodeID
}

// frame is an explicit call-stack entry for the iterative Tarjan DFS.
type frame struct {
	node         NodeID
	nextNeighbor int
}

// TarjanSCC finds all strongly connected components of a directed graph.
// adj[u] lists the successors of u. Uses an iterative DFS (explicit call
// stack) to avoid recursion-depth limits on large graphs.
//
// Returns SCCs in reverse topological order of the condensation DAG. Each
// SCC with more than one member contains at least one cycle; single-node
// SCCs may or may not have a self-loop.
func TarjanSCC(numNodes int, adj [][]int) []SCC {
	const undefined = -1
	index := make([]int, numNodes)
	lowlink := make([]int, numNodes)
	onStack := make([]bool, numNodes)
	for i := range index {
		index[i] = undefined
	}

	var stack []NodeID
	currentIndex := 0
	var result []SCC

	for start := 0; start < numNodes; start++ {
		if index[start] != undefined {
			continue
		}

		callStack := []frame{{node: start, nextNeighbor: 0}}
		index[start] = currentIndex
		lowlink[start] = currentIndex
		currentIndex++
		stack = append(stack, start)
		onStack[start] = true

		for len(callStack) > 0 {
			top := &callStack[len(callStack)-1]
			v := top.node

			if top.nextNeighbor < len(adj[v]) {
				w := adj[v][top.nextNeighbor]
				top.nextNeighbor++

				if index[w] == undefined {
					index[w] = currentIndex
					lowlink[w] = currentIndex
					currentIndex++
					stack = append(stack, w)
					onStack[w] = true
					callStack = append(callStack, frame{node: w, nextNeighbor: 0})
				} else if onStack[w] {
					if index[w] < lowlink[v] {
						lowlink[v] = index[w]
					}
				}
				continue
			}

			if lowlink[v] == index[v] {
				var members []NodeID
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					members = append(members, w)
					if w == v {
						break
					}
				}
				result = append(result, SCC{Members: members})
			}

			callStack = callStack[:len(callStack)-1]
			if len(callStack) > 0 {
				parent := &callStack[len(callStack)-1]
				if lowlink[v] < lowlink[parent.node] {
					lowlink[parent.node] = lowlink[v]
				}
			}
		}
	}

	return result
}

// FindCycles returns only the non-trivial SCCs (size > 1), which represent
// actual cycles. Single-node SCCs are included when includeSelfLoops is true
// and the node has an edge to itself.
func FindCycles(numNodes int, adj [][]int, includeSelfLoops bool) []SCC {
	sccs := TarjanSCC(numNodes, adj)
	var out []SCC
	for _, scc := range sccs {
		if len(scc.Members) > 1 {
			out = append(out, scc)
			continue
		}
		if includeSelfLoops && len(scc.Members) == 1 {
			n := scc.Members[0]
			for _, w := range adj[n] {
				if w == n {
					out = append(out, scc)
					break
				}
			}
		}
	}
	return out
}
