package graph

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// kindProbe reads just the discriminator field of a JSONL record.
type kindProbe struct {
	Kind string `json:"kind"`
}

// Load reads a graph.jsonl file: one JSON object per line, tagged by "kind".
// A parse failure on any record fails the whole load (no silent partial
// loads, per §4.1's failure-mode contract). Missing file yields an empty
// graph (first run).
func Load(path string) (*WorkGraph, error) {
	g := New()

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return g, nil
	}
	if err != nil {
		return nil, wrapIoError("open graph file", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue // tolerant of a trailing newline
		}

		var probe kindProbe
		if err := json.Unmarshal(line, &probe); err != nil {
			return nil, wrapCorruption(fmt.Sprintf("graph.jsonl line %d: malformed record", lineNo), err)
		}

		var n Node
		switch probe.Kind {
		case "task":
			var t Task
			if err := json.Unmarshal(line, &t); err != nil {
				return nil, wrapCorruption(fmt.Sprintf("graph.jsonl line %d: malformed task", lineNo), err)
			}
			n = &t
		case "resource":
			var r Resource
			if err := json.Unmarshal(line, &r); err != nil {
				return nil, wrapCorruption(fmt.Sprintf("graph.jsonl line %d: malformed resource", lineNo), err)
			}
			n = &r
		default:
			return nil, wrapCorruption(fmt.Sprintf("graph.jsonl line %d: unknown kind %q", lineNo, probe.Kind), nil)
		}
		g.nodes[n.NodeID()] = n
	}
	if err := scanner.Err(); err != nil {
		return nil, wrapIoError("read graph file", err)
	}

	// Restore symmetry (I2) for legacy files that only recorded one
	// direction, or that predate an edge migration.
	for _, n := range g.nodes {
		if t, ok := n.(*Task); ok {
			g.syncSymmetryLocked(t)
		}
	}

	return g, nil
}

// Save performs an atomic rewrite-and-rename: write to a sibling temp file,
// fsync, rename over the original. On failure the original file is left
// untouched (§4.1, §7 IoError contract).
func (g *WorkGraph) Save(path string) error {
	g.mu.RLock()
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	// Deterministic order keeps diffs small across saves of an unchanged
	// graph, aiding the round-trip testable property.
	sort.Strings(ids)

	var buf bytes.Buffer
	for _, id := range ids {
		line, err := json.Marshal(g.nodes[id])
		if err != nil {
			g.mu.RUnlock()
			return wrapIoError("marshal node", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	g.mu.RUnlock()

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".graph-*.tmp")
	if err != nil {
		return wrapIoError("create temp graph file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return wrapIoError("write temp graph file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return wrapIoError("fsync temp graph file", err)
	}
	if err := tmp.Close(); err != nil {
		return wrapIoError("close temp graph file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return wrapIoError("rename graph file into place", err)
	}
	return nil
}

