package graph

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spaolacci/murmur3"
)

// Status is a task's lifecycle state.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
	StatusFailed     Status = "failed"
	StatusAbandoned  Status = "abandoned"
)

// IsTerminal reports whether the status is one of the terminal states.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusAbandoned
}

// validStatus reports whether s is one of the closed set of lifecycle
// states. Anything else is rejected by UnmarshalJSON rather than silently
// accepted, mirroring original_source/src/graph.rs's custom Deserialize
// (serde::de::Error::unknown_variant) and spec §4.1's "no silent partial
// loads" rule.
func validStatus(s Status) bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusDone, StatusBlocked, StatusFailed, StatusAbandoned:
		return true
	default:
		return false
	}
}

// Visibility controls whether a task is exposed to federation peers. The
// core never acts on this beyond default/omission bookkeeping; peer/public
// propagation is a federation concern out of core scope.
type Visibility string

const (
	VisibilityInternal Visibility = "internal"
	VisibilityPeer     Visibility = "peer"
	VisibilityPublic   Visibility = "public"
)

// GuardKind discriminates a cycle-iteration guard expression.
type GuardKind string

const (
	GuardAlways            GuardKind = "always"
	GuardIterationLessThan GuardKind = "iteration_less_than"
	GuardTaskStatus        GuardKind = "task_status"
)

// Guard gates whether a structural cycle may run another iteration (§4.2.4).
type Guard struct {
	Kind   GuardKind `json:"kind"`
	N      uint32    `json:"n,omitempty"`
	Task   string    `json:"task,omitempty"`
	Status Status    `json:"status,omitempty"`
}

// CycleConfig is present on exactly one member of a structural cycle: the
// cycle owner (I4).
type CycleConfig struct {
	MaxIterations uint32 `json:"max_iterations"`
	Guard         *Guard `json:"guard,omitempty"`
	Delay         string `json:"delay,omitempty"`
}

// Estimate is an optional effort/cost projection for a task (supplemented
// from original_source/src/graph.rs; not present in the distilled spec's
// field list but rolled up by the Check/query "cost rollups" diagnostic).
type Estimate struct {
	Hours *float64 `json:"hours,omitempty"`
	Cost  *float64 `json:"cost,omitempty"`
}

// LogEntry is one line of a task's activity log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Actor     *string   `json:"actor,omitempty"`
	Message   string    `json:"message"`
}

// Task is the central work-graph entity.
type Task struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Status      Status  `json:"status"`

	After    []string `json:"after,omitempty"`
	Before   []string `json:"before,omitempty"`
	Requires []string `json:"requires,omitempty"`

	Assigned *string `json:"assigned,omitempty"`

	Tags         []string `json:"tags,omitempty"`
	Skills       []string `json:"skills,omitempty"`
	Inputs       []string `json:"inputs,omitempty"`
	Deliverables []string `json:"deliverables,omitempty"`
	Artifacts    []string `json:"artifacts,omitempty"`

	Exec *string `json:"exec,omitempty"`

	CreatedAt   *time.Time `json:"created_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	NotBefore   *time.Time `json:"not_before,omitempty"`
	ReadyAfter  *time.Time `json:"ready_after,omitempty"`

	Log []LogEntry `json:"log,omitempty"`

	RetryCount    int     `json:"retry_count,omitempty"`
	MaxRetries    *int    `json:"max_retries,omitempty"`
	FailureReason *string `json:"failure_reason,omitempty"`

	Model  *string `json:"model,omitempty"`
	Verify *string `json:"verify,omitempty"`
	Agent  *string `json:"agent,omitempty"`

	LoopIteration int          `json:"loop_iteration,omitempty"`
	CycleConfig   *CycleConfig `json:"cycle_config,omitempty"`

	Paused     bool       `json:"paused,omitempty"`
	Visibility Visibility `json:"visibility,omitempty"`

	Estimate *Estimate `json:"estimate,omitempty"`
}

// Kind implements Node.
func (t *Task) Kind() string { return "task" }

// NodeID implements Node.
func (t *Task) NodeID() string { return t.ID }

// legacyIdentity supports the deprecated identity{role_id,motivation_id}
// field, migrated to Agent by content-hashing the pair (§4.1).
type legacyIdentity struct {
	RoleID       string `json:"role_id"`
	MotivationID string `json:"motivation_id"`
}

// UnmarshalJSON accepts both the modern schema and legacy aliases/migrations
// documented in spec §4.1: blocked_by→after, blocks→before,
// identity→agent (content hash, explicit agent wins), pending-review→Done,
// loops_to (string or array) discarded.
func (t *Task) UnmarshalJSON(data []byte) error {
	type plain Task // avoid recursive UnmarshalJSON
	var raw struct {
		plain
		Status    json.RawMessage `json:"status"`
		BlockedBy []string        `json:"blocked_by,omitempty"`
		Blocks    []string        `json:"blocks,omitempty"`
		Identity  *legacyIdentity `json:"identity,omitempty"`
		LoopsTo   json.RawMessage `json:"loops_to,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = Task(raw.plain)

	if len(raw.Status) > 0 {
		var s string
		if err := json.Unmarshal(raw.Status, &s); err != nil {
			return err
		}
		if s == "pending-review" {
			s = string(StatusDone)
		}
		if s != "" && !validStatus(Status(s)) {
			return newInvalidArgument(fmt.Sprintf("unknown status %q", s))
		}
		t.Status = Status(s)
	}
	if t.Status == "" {
		t.Status = StatusOpen
	}

	if len(t.After) == 0 && len(raw.BlockedBy) > 0 {
		t.After = raw.BlockedBy
	}
	if len(t.Before) == 0 && len(raw.Blocks) > 0 {
		t.Before = raw.Blocks
	}

	if t.Agent == nil && raw.Identity != nil {
		h := murmur3.Sum64([]byte(raw.Identity.RoleID + "\x00" + raw.Identity.MotivationID))
		hash := hexify(h)
		t.Agent = &hash
	}

	if t.Visibility == "" {
		t.Visibility = VisibilityInternal
	}

	return nil
}

// MarshalJSON omits default/empty optionals, per §4.1's "serialization never
// emits removed fields; it omits empty optionals and default values".
func (t Task) MarshalJSON() ([]byte, error) {
	type wire struct {
		ID          string     `json:"id"`
		Kind        string     `json:"kind"`
		Title       string     `json:"title"`
		Description *string    `json:"description,omitempty"`
		Status      Status     `json:"status"`

		After    []string `json:"after,omitempty"`
		Before   []string `json:"before,omitempty"`
		Requires []string `json:"requires,omitempty"`

		Assigned *string `json:"assigned,omitempty"`

		Tags         []string `json:"tags,omitempty"`
		Skills       []string `json:"skills,omitempty"`
		Inputs       []string `json:"inputs,omitempty"`
		Deliverables []string `json:"deliverables,omitempty"`
		Artifacts    []string `json:"artifacts,omitempty"`

		Exec *string `json:"exec,omitempty"`

		CreatedAt   *time.Time `json:"created_at,omitempty"`
		StartedAt   *time.Time `json:"started_at,omitempty"`
		CompletedAt *time.Time `json:"completed_at,omitempty"`
		NotBefore   *time.Time `json:"not_before,omitempty"`
		ReadyAfter  *time.Time `json:"ready_after,omitempty"`

		Log []LogEntry `json:"log,omitempty"`

		RetryCount    int     `json:"retry_count,omitempty"`
		MaxRetries    *int    `json:"max_retries,omitempty"`
		FailureReason *string `json:"failure_reason,omitempty"`

		Model  *string `json:"model,omitempty"`
		Verify *string `json:"verify,omitempty"`
		Agent  *string `json:"agent,omitempty"`

		LoopIteration int          `json:"loop_iteration,omitempty"`
		CycleConfig   *CycleConfig `json:"cycle_config,omitempty"`

		Paused     bool       `json:"paused,omitempty"`
		Visibility Visibility `json:"visibility,omitempty"`

		Estimate *Estimate `json:"estimate,omitempty"`
	}

	w := wire{
		ID: t.ID, Kind: "task", Title: t.Title, Description: t.Description, Status: t.Status,
		After: t.After, Before: t.Before, Requires: t.Requires,
		Assigned: t.Assigned,
		Tags: t.Tags, Skills: t.Skills, Inputs: t.Inputs, Deliverables: t.Deliverables, Artifacts: t.Artifacts,
		Exec: t.Exec,
		CreatedAt: t.CreatedAt, StartedAt: t.StartedAt, CompletedAt: t.CompletedAt, NotBefore: t.NotBefore, ReadyAfter: t.ReadyAfter,
		Log: t.Log,
		RetryCount: t.RetryCount, MaxRetries: t.MaxRetries, FailureReason: t.FailureReason,
		Model: t.Model, Verify: t.Verify, Agent: t.Agent,
		LoopIteration: t.LoopIteration, CycleConfig: t.CycleConfig,
		Paused: t.Paused, Estimate: t.Estimate,
	}
	if t.Visibility != VisibilityInternal {
		w.Visibility = t.Visibility
	}
	return json.Marshal(w)
}

const hexDigits = "0123456789abcdef"

func hexify(v uint64) string {
	b := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		b[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(b)
}
