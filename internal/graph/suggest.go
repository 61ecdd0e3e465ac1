package graph

// levenshtein computes the classic edit distance between a and b.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			curr[j] = m
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

// isSimilar reports whether candidate is close enough to target to be offered
// as a "did you mean" suggestion: either is a prefix of the other, or their
// Levenshtein distance is at most 2.
func isSimilar(target, candidate string) bool {
	if hasPrefixEither(target, candidate) {
		return true
	}
	return levenshtein(target, candidate) <= 2
}

func hasPrefixEither(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	n := len(ra)
	if len(rb) < n {
		n = len(rb)
	}
	if n == 0 {
		return false
	}
	for i := 0; i < n; i++ {
		if ra[i] != rb[i] {
			return false
		}
	}
	return true
}

// suggestFor scans candidates for the closest match to id by Levenshtein
// distance among those passing isSimilar, returning "" if none qualify.
func suggestFor(id string, candidates []string) string {
	best := ""
	bestDist := -1
	for _, c := range candidates {
		if c == id || !isSimilar(id, c) {
			continue
		}
		d := levenshtein(id, c)
		if bestDist == -1 || d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}
