package coordinator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DaemonState is the content of service/state.json: the coordinator's pid
// and the IPC socket path, so other processes can find (or detect the
// absence of) a running daemon.
type DaemonState struct {
	PID        int    `json:"pid"`
	SocketPath string `json:"socket_path"`
}

// TickState is the content of service/coordinator-state.json: a tick
// counter observers and tests can poll to confirm the coordinator is
// making progress.
type TickState struct {
	Ticks uint64 `json:"ticks"`
}

func statePath(graphDir string) string {
	return filepath.Join(graphDir, "service", "state.json")
}

func tickStatePath(graphDir string) string {
	return filepath.Join(graphDir, "service", "coordinator-state.json")
}

// writeJSONAtomic marshals v and rewrites path via a temp-file-then-rename,
// the same atomic-write idiom internal/graph and internal/registry use.
func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	return os.Rename(tmpPath, path)
}

// WriteDaemonState persists service/state.json.
func WriteDaemonState(graphDir string, s DaemonState) error {
	return writeJSONAtomic(statePath(graphDir), s)
}

// ReadDaemonState reads service/state.json. A missing file is not an error:
// it means no coordinator has ever run here.
func ReadDaemonState(graphDir string) (*DaemonState, error) {
	data, err := os.ReadFile(statePath(graphDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state.json: %w", err)
	}
	var s DaemonState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse state.json: %w", err)
	}
	return &s, nil
}

// IsRunning reports whether the daemon state file names a pid that is
// currently alive. A stale state file (process no longer exists) is treated
// as "not running", per spec §5's single-writer detection contract.
func IsRunning(graphDir string) (bool, *DaemonState, error) {
	s, err := ReadDaemonState(graphDir)
	if err != nil || s == nil {
		return false, s, err
	}
	proc, err := os.FindProcess(s.PID)
	if err != nil {
		return false, s, nil
	}
	// On Unix, FindProcess always succeeds; signal 0 probes liveness
	// without affecting the process.
	if err := proc.Signal(processProbeSignal); err != nil {
		return false, s, nil
	}
	return true, s, nil
}

func writeTickState(graphDir string, ticks uint64) error {
	return writeJSONAtomic(tickStatePath(graphDir), TickState{Ticks: ticks})
}
