// Package oplog implements the append-only operation log (spec §4.3): one
// JSON record per line under log/operations.jsonl, rotating to a
// zstd-compressed timestamped segment once the current file crosses a size
// threshold. Writers may span multiple processes, so every append and
// rotation is guarded by an advisory file lock; readers see rotated
// segments followed by the current file, oldest first.
package oplog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	currentName = "operations.jsonl"
	lockName    = ".operations.lock"
	// DefaultThreshold is the rotation size used when a Log is opened with
	// threshold <= 0: roughly 10 MiB, per spec §4.3.
	DefaultThreshold = 10 * 1024 * 1024
)

// Entry is one operation-log record. Op is one of the closed set from spec
// §6 ("add_task", "edit", "done", "fail", "abandon", "retry", "claim",
// "unclaim", "pause", "resume", "archive", "gc", "apply", "graph_changed",
// "agent_died", "dispatch"); TaskID/AgentID/Actor are set when relevant to
// that event; Detail carries event-specific structured payload.
type Entry struct {
	Timestamp time.Time              `json:"timestamp"`
	Op        string                 `json:"op"`
	TaskID    string                 `json:"task_id,omitempty"`
	AgentID   string                 `json:"agent_id,omitempty"`
	Actor     string                 `json:"actor,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
}

// Log is a handle on one graph directory's operation log.
type Log struct {
	dir       string
	threshold int64

	mu       sync.Mutex
	lockFile *os.File
	current  *os.File

	tracer    trace.Tracer
	rotations metric.Int64Counter
}

// Open opens (creating if necessary) the operation log rooted at dir
// (typically <graph-dir>/log). threshold <= 0 uses DefaultThreshold.
func Open(dir string, threshold int64) (*Log, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("oplog: create dir: %w", err)
	}
	lf, err := os.OpenFile(filepath.Join(dir, lockName), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("oplog: open lock file: %w", err)
	}
	rotations, _ := otel.GetMeterProvider().Meter("workgraph").Int64Counter("workgraph_oplog_rotations_total")
	l := &Log{
		dir:       dir,
		threshold: threshold,
		lockFile:  lf,
		tracer:    otel.Tracer("workgraph"),
		rotations: rotations,
	}
	if err := l.openCurrent(); err != nil {
		lf.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) openCurrent() error {
	f, err := os.OpenFile(filepath.Join(l.dir, currentName), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("oplog: open current segment: %w", err)
	}
	l.current = f
	return nil
}

func (l *Log) lock() error {
	return syscall.Flock(int(l.lockFile.Fd()), syscall.LOCK_EX)
}

func (l *Log) unlock() error {
	return syscall.Flock(int(l.lockFile.Fd()), syscall.LOCK_UN)
}

// Append writes one record to the current segment, rotating first if the
// segment has crossed the size threshold. The write (JSON + newline) reaches
// disk as a single fsync'd operation, or the append fails outright.
func (l *Log) Append(ctx context.Context, e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("oplog: marshal entry: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.lock(); err != nil {
		return fmt.Errorf("oplog: lock: %w", err)
	}
	defer l.unlock()

	if err := l.rotateIfNeededLocked(ctx); err != nil {
		return err
	}

	if _, err := l.current.Write(line); err != nil {
		return fmt.Errorf("oplog: write entry: %w", err)
	}
	if err := l.current.Sync(); err != nil {
		return fmt.Errorf("oplog: fsync: %w", err)
	}
	return nil
}

// rotateIfNeededLocked must be called with l.mu held and the advisory file
// lock acquired.
func (l *Log) rotateIfNeededLocked(ctx context.Context) error {
	info, err := l.current.Stat()
	if err != nil {
		return fmt.Errorf("oplog: stat current segment: %w", err)
	}
	if info.Size() < l.threshold {
		return nil
	}

	ctx, span := l.tracer.Start(ctx, "oplog.rotate")
	defer span.End()

	if err := l.current.Close(); err != nil {
		return fmt.Errorf("oplog: close current segment before rotation: %w", err)
	}

	stamp := rotationStamp(time.Now().UTC())
	rotatedPath := filepath.Join(l.dir, fmt.Sprintf("operations-%s.jsonl", stamp))
	currentPath := filepath.Join(l.dir, currentName)
	if err := os.Rename(currentPath, rotatedPath); err != nil {
		return fmt.Errorf("oplog: rename segment: %w", err)
	}

	if err := compressSegment(rotatedPath); err != nil {
		return fmt.Errorf("oplog: compress segment: %w", err)
	}

	if err := l.openCurrent(); err != nil {
		return err
	}
	if l.rotations != nil {
		l.rotations.Add(ctx, 1)
	}
	return nil
}

func rotationStamp(t time.Time) string {
	return strings.ReplaceAll(t.Format("20060102T150405.000000000Z"), ":", "-")
}

func compressSegment(path string) error {
	raw, err := os.Open(path)
	if err != nil {
		return err
	}
	defer raw.Close()

	zstPath := path + ".zst"
	out, err := os.OpenFile(zstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	w, err := zstd.NewWriter(out)
	if err != nil {
		return err
	}
	if _, err := w.ReadFrom(raw); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	if err := out.Sync(); err != nil {
		return err
	}
	return os.Remove(path)
}

// Close flushes and releases the current segment and lock file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	if l.current != nil {
		if err := l.current.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := l.current.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if l.lockFile != nil {
		if err := l.lockFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ReadAll returns every entry in the log, oldest first: rotated segments in
// ascending filename order (decompressed), then the current file. A parse
// failure on any line fails the whole read.
func ReadAll(dir string) ([]Entry, error) {
	segments, err := rotatedSegments(dir)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, seg := range segments {
		segEntries, err := readCompressedSegment(seg)
		if err != nil {
			return nil, fmt.Errorf("oplog: read segment %s: %w", filepath.Base(seg), err)
		}
		entries = append(entries, segEntries...)
	}

	currentEntries, err := readPlainFile(filepath.Join(dir, currentName))
	if err != nil {
		return nil, err
	}
	entries = append(entries, currentEntries...)
	return entries, nil
}

func rotatedSegments(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "operations-*.jsonl.zst"))
	if err != nil {
		return nil, fmt.Errorf("oplog: glob segments: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

func readCompressedSegment(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(dec); err != nil {
		return nil, err
	}
	return parseLines(&buf)
}

func readPlainFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("oplog: open current segment: %w", err)
	}
	defer f.Close()
	return parseLines(f)
}

func parseLines(r interface{ Read([]byte) (int, error) }) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var entries []Entry
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("oplog: parse entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("oplog: scan: %w", err)
	}
	return entries, nil
}
