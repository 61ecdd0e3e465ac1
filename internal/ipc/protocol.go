// Package ipc implements the coordinator's IPC surface (spec §4.7):
// connection-per-request, newline-delimited JSON over a Unix-domain
// socket. No example repo in the retrieval pack implements a Unix-domain
// socket server, so the wire format below follows spec §4.7 directly; the
// accept-loop/goroutine-per-connection shape is grounded on
// services/orchestrator/main.go's HTTP listener-plus-graceful-shutdown
// idiom, translated from net/http to net.Listener.
package ipc

import (
	"fmt"

	"github.com/swarmguard/workgraph/internal/graph"
)

// Request is the single wire shape for every command: one JSON object per
// line carrying the `cmd` discriminator (spec §4.7) plus whatever fields
// that command's argument list uses. Unused fields for a given command are
// simply absent.
type Request struct {
	Cmd string `json:"cmd"`

	// add_task. ID is optional (supplementing spec §4.7 from
	// original_source's `wg add --id`): when absent, the server generates
	// one from title, the same three-word-slug-plus-uniqueness-suffix
	// algorithm original_source/src/commands/add.rs uses.
	ID           string   `json:"id,omitempty"`
	Title        string   `json:"title,omitempty"`
	Description  string   `json:"description,omitempty"`
	After        []string `json:"after,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Skills       []string `json:"skills,omitempty"`
	Deliverables []string `json:"deliverables,omitempty"`
	Model        string   `json:"model,omitempty"`
	Verify       string   `json:"verify,omitempty"`
	Origin       string   `json:"origin,omitempty"`

	// query_task
	TaskID string `json:"task_id,omitempty"`
}

// Response is the single wire shape for every reply.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`

	// add_task
	ID string `json:"id,omitempty"`

	// status
	Ticks      uint64         `json:"ticks,omitempty"`
	Agents     map[string]int `json:"agents,omitempty"`
	ReadyCount int            `json:"ready_count,omitempty"`

	// query_task
	Task *graph.Task `json:"task,omitempty"`
}

func errResponse(format string, args ...interface{}) Response {
	return Response{OK: false, Error: fmt.Sprintf(format, args...)}
}
