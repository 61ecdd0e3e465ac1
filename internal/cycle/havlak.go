package cycle

import "sort"

// LoopNode is one loop in the nesting forest.
type LoopNode struct {
	Header    NodeID
	Body      []NodeID
	BackEdges [][2]NodeID // (tail, head) pairs, head == Header
	Reducible bool
	Depth     int
	Parent    *NodeID
	Children  []NodeID
}

// LoopNestingForest is the loop nesting forest for a directed graph.
type LoopNestingForest struct {
	Loops      map[NodeID]*LoopNode
	NodeToLoop map[NodeID]NodeID
	Roots      []NodeID
}

// dfsStackEntry is an explicit-stack frame for the iterative DFS used to
// classify back edges: (node, next neighbor index, returning).
type dfsStackEntry struct {
	node      NodeID
	nextIdx   int
	returning bool
}

// BuildLoopNestingForest builds the loop nesting forest for a directed graph
// via Havlak's algorithm (1997) with Ramalingam's complexity fix (1999).
// Discovers loops by DFS from entry; nodes unreachable from entry are not
// analyzed. Handles both reducible loops (single entry) and irreducible
// loops (multiple entries).
func BuildLoopNestingForest(numNodes int, adj [][]int, entry NodeID) *LoopNestingForest {
	dfsNum := make([]int, numNodes)
	dfsEnd := make([]int, numNodes)
	for i := range dfsNum {
		dfsNum[i] = -1
		dfsEnd[i] = -1
	}
	counter, postCounter := 0, 0
	var backEdges [][2]NodeID

	// Step 1: iterative DFS, classify back edges (edges to a node still on
	// the active path — no post-order assigned yet).
	stack := []dfsStackEntry{{node: entry}}
	dfsNum[entry] = counter
	counter++

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		v := top.node

		if top.returning {
			dfsEnd[v] = postCounter
			postCounter++
			stack = stack[:len(stack)-1]
			continue
		}

		if top.nextIdx < len(adj[v]) {
			w := adj[v][top.nextIdx]
			top.nextIdx++

			if dfsNum[w] == -1 {
				dfsNum[w] = counter
				counter++
				stack = append(stack, dfsStackEntry{node: w})
			} else if dfsEnd[w] == -1 {
				backEdges = append(backEdges, [2]NodeID{v, w})
			}
			continue
		}

		top.returning = true
	}

	// Step 2: group back edges by header (target).
	headerBackEdges := make(map[NodeID][]NodeID)
	var headersByDFS []NodeID
	for _, be := range backEdges {
		tail, head := be[0], be[1]
		if _, seen := headerBackEdges[head]; !seen {
			headersByDFS = append(headersByDFS, head)
		}
		headerBackEdges[head] = append(headerBackEdges[head], tail)
	}
	sort.Slice(headersByDFS, func(i, j int) bool {
		return dfsNum[headersByDFS[j]] < dfsNum[headersByDFS[i]] // reverse DFS order
	})

	// Build reverse adjacency restricted to DFS-reached nodes.
	revAdj := make([][]NodeID, numNodes)
	for u, succs := range adj {
		if dfsNum[u] == -1 {
			continue
		}
		for _, v := range succs {
			if dfsNum[v] != -1 {
				revAdj[v] = append(revAdj[v], u)
			}
		}
	}

	nodeToLoop := make(map[NodeID]NodeID)
	loops := make(map[NodeID]*LoopNode)

	for _, header := range headersByDFS {
		tails := headerBackEdges[header]
		body := map[NodeID]bool{header: true}
		headerDFS := dfsNum[header]

		var queue []NodeID
		for _, tail := range tails {
			if tail != header && !body[tail] {
				body[tail] = true
				queue = append(queue, tail)
			}
		}
		for len(queue) > 0 {
			node := queue[0]
			queue = queue[1:]
			for _, pred := range revAdj[node] {
				if dfsNum[pred] >= headerDFS && !body[pred] && pred != header {
					body[pred] = true
					queue = append(queue, pred)
				}
			}
		}

		// Step 4: irreducibility — a non-header body node with a
		// predecessor outside the body means another entry point exists.
		reducible := true
		for node := range body {
			if node == header {
				continue
			}
			for _, pred := range revAdj[node] {
				if !body[pred] {
					reducible = false
					break
				}
			}
			if !reducible {
				break
			}
		}

		backEdgeList := make([][2]NodeID, 0, len(tails))
		for _, t := range tails {
			backEdgeList = append(backEdgeList, [2]NodeID{t, header})
		}

		bodyVec := make([]NodeID, 0, len(body))
		for n := range body {
			bodyVec = append(bodyVec, n)
		}
		sort.Ints(bodyVec)

		for _, n := range bodyVec {
			if _, assigned := nodeToLoop[n]; !assigned {
				nodeToLoop[n] = header
			}
		}

		loops[header] = &LoopNode{
			Header:    header,
			Body:      bodyVec,
			BackEdges: backEdgeList,
			Reducible: reducible,
		}
	}

	// Step 5: nesting hierarchy — the smallest enclosing body is the parent.
	allHeaders := make([]NodeID, 0, len(loops))
	for h := range loops {
		allHeaders = append(allHeaders, h)
	}
	sort.Ints(allHeaders)

	for _, h1 := range allHeaders {
		var bestParent *NodeID
		bestSize := int(^uint(0) >> 1)
		for _, h2 := range allHeaders {
			if h1 == h2 {
				continue
			}
			l2 := loops[h2]
			if containsInt(l2.Body, h1) && len(l2.Body) < bestSize {
				h2Copy := h2
				bestParent = &h2Copy
				bestSize = len(l2.Body)
			}
		}
		if bestParent != nil {
			loops[h1].Parent = bestParent
			loops[*bestParent].Children = append(loops[*bestParent].Children, h1)
		}
	}

	var roots []NodeID
	for _, h := range allHeaders {
		if loops[h].Parent == nil {
			roots = append(roots, h)
		}
	}
	sort.Ints(roots)

	for _, root := range roots {
		computeDepth(root, loops)
	}

	return &LoopNestingForest{Loops: loops, NodeToLoop: nodeToLoop, Roots: roots}
}

func computeDepth(header NodeID, loops map[NodeID]*LoopNode) {
	for _, child := range loops[header].Children {
		loops[child].Depth = loops[header].Depth + 1
		computeDepth(child, loops)
	}
}

func containsInt(ss []NodeID, n NodeID) bool {
	for _, s := range ss {
		if s == n {
			return true
		}
	}
	return false
}
