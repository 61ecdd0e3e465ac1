// Package store provides a derived, rebuildable bbolt cache over the
// authoritative graph.jsonl work graph. It exists purely to serve the
// Check/query component's ready-task index and cost/hours rollups without
// re-scanning and re-evaluating every task's readiness predicate on every
// query; graph.jsonl (via internal/graph) remains the system of record, and
// EnsureFresh rebuilds the cache whenever its generation stamp is stale. A
// cache file that cannot be read makes Open fail; it is not rebuilt.
//
// Grounded on services/orchestrator/persistence.go's WorkflowStore: bbolt
// buckets for the derived records, an in-memory snapshot for read-mostly
// access, and latency/hit/miss metrics recorded the same way.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.etcd.io/bbolt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/swarmguard/workgraph/internal/check"
	"github.com/swarmguard/workgraph/internal/graph"
)

var (
	bucketMeta    = []byte("meta")
	bucketReady   = []byte("ready_tasks")
	bucketRollups = []byte("rollups")
)

const generationKey = "graph_generation"

// Rollups holds the cost/hours aggregates computed from the full task set
// at rebuild time.
type Rollups struct {
	TotalCost  float64 `json:"total_cost"`
	TotalHours float64 `json:"total_hours"`
}

// Store is the derived read cache.
type Store struct {
	db   *bbolt.DB
	path string

	mu      sync.RWMutex
	ready   map[string]struct{}
	rollups Rollups

	rebuildLatency metric.Float64Histogram
	cacheHits      metric.Int64Counter
	cacheMisses    metric.Int64Counter
}

// Open opens (creating if absent) the bbolt-backed cache at dbPath. It does
// not rebuild automatically — call EnsureFresh with the current graph state
// and its generation stamp once per caller's own load cycle.
func Open(dbPath string, meter metric.Meter) (*Store, error) {
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketMeta, bucketReady, bucketRollups} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create store buckets: %w", err)
	}

	rebuildLatency, _ := meter.Float64Histogram("workgraph_store_rebuild_ms")
	cacheHits, _ := meter.Int64Counter("workgraph_store_cache_hits_total")
	cacheMisses, _ := meter.Int64Counter("workgraph_store_cache_misses_total")

	s := &Store{
		db:             db,
		path:           dbPath,
		ready:          make(map[string]struct{}),
		rebuildLatency: rebuildLatency,
		cacheHits:      cacheHits,
		cacheMisses:    cacheMisses,
	}
	if err := s.loadSnapshot(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Generation fingerprints a graph.jsonl file's on-disk state (mtime + size)
// well enough to detect "has this file changed since the cache was built"
// without hashing its contents on every query.
func Generation(graphFilePath string) (string, error) {
	fi, err := os.Stat(graphFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "empty", nil
		}
		return "", fmt.Errorf("stat graph file: %w", err)
	}
	return fmt.Sprintf("%d:%d", fi.Size(), fi.ModTime().UnixNano()), nil
}

// EnsureFresh rebuilds the cache from wg if the stored generation stamp
// doesn't match currentGeneration (or no stamp is stored yet).
func (s *Store) EnsureFresh(ctx context.Context, wg *graph.WorkGraph, currentGeneration string) error {
	stored, err := s.storedGeneration()
	if err != nil {
		return err
	}
	if stored == currentGeneration {
		s.cacheHits.Add(ctx, 1)
		return nil
	}
	s.cacheMisses.Add(ctx, 1)
	return s.Rebuild(ctx, wg, currentGeneration)
}

func (s *Store) storedGeneration() (string, error) {
	var gen string
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get([]byte(generationKey))
		if v != nil {
			gen = string(v)
		}
		return nil
	})
	return gen, err
}

// Rebuild recomputes the ready-task index and cost/hours rollups from wg
// and persists them, tagged with generation.
func (s *Store) Rebuild(ctx context.Context, wg *graph.WorkGraph, generation string) error {
	start := time.Now()

	tasks := wg.Tasks()
	now := time.Now()
	readySet := check.ReadySet(wg, now)
	totalCost := check.CostRollup(wg, nil)
	totalHours := check.HoursRollup(wg, nil)

	readyIDs := make(map[string]struct{}, len(readySet))
	for _, t := range readySet {
		readyIDs[t.ID] = struct{}{}
	}
	rollups := Rollups{TotalCost: totalCost, TotalHours: totalHours}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		readyBucket := tx.Bucket(bucketReady)
		// Clear and repopulate the ready-task bucket.
		c := readyBucket.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if err := readyBucket.Delete(k); err != nil {
				return err
			}
		}
		for id := range readyIDs {
			if err := readyBucket.Put([]byte(id), []byte{1}); err != nil {
				return err
			}
		}

		data, err := json.Marshal(rollups)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketRollups).Put([]byte("current"), data); err != nil {
			return err
		}

		return tx.Bucket(bucketMeta).Put([]byte(generationKey), []byte(generation))
	})
	if err != nil {
		return fmt.Errorf("rebuild store: %w", err)
	}

	s.mu.Lock()
	s.ready = readyIDs
	s.rollups = rollups
	s.mu.Unlock()

	s.rebuildLatency.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.Int("task_count", len(tasks))))
	return nil
}

// loadSnapshot populates the in-memory view from whatever is currently
// persisted (used at Open, before any EnsureFresh call).
func (s *Store) loadSnapshot() error {
	ready := make(map[string]struct{})
	var rollups Rollups

	err := s.db.View(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketReady).ForEach(func(k, _ []byte) error {
			ready[string(k)] = struct{}{}
			return nil
		}); err != nil {
			return err
		}
		if data := tx.Bucket(bucketRollups).Get([]byte("current")); data != nil {
			if err := json.Unmarshal(data, &rollups); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("load store snapshot: %w", err)
	}

	s.mu.Lock()
	s.ready = ready
	s.rollups = rollups
	s.mu.Unlock()
	return nil
}

// IsReady reports whether id was in the ready-task index as of the last
// rebuild.
func (s *Store) IsReady(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ready[id]
	return ok
}

// ReadyIDs returns a snapshot of all ready task ids.
func (s *Store) ReadyIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.ready))
	for id := range s.ready {
		ids = append(ids, id)
	}
	return ids
}

// CurrentRollups returns the cost/hours rollups as of the last rebuild.
func (s *Store) CurrentRollups() Rollups {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rollups
}
