package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/swarmguard/workgraph/internal/registry"
)

// notifyBacklog is intentionally 1: a coordinator tick already re-evaluates
// the whole ready set, so a second pending GraphChanged notification adds
// nothing — coalescing is correct, not lossy.
const notifyBacklog = 1

// Loop drives Coordinator.Tick from two independent wakeup sources (spec
// §4.6 "Wakeup"): the IPC fast path via Notify, and a cron-scheduled poll
// fallback that must keep working even if every fast-path notification is
// dropped. Grounded on services/orchestrator/scheduler.go's
// cron.WithSeconds() scheduling idiom.
type Loop struct {
	coordinator *Coordinator
	notifyCh    chan struct{}
	cron        *cron.Cron
	entryID     cron.EntryID
}

// NewLoop wires a Loop around c. The poll interval is read from c's
// settings when Start is called.
func NewLoop(c *Coordinator) *Loop {
	return &Loop{
		coordinator: c,
		notifyCh:    make(chan struct{}, notifyBacklog),
		cron:        cron.New(cron.WithSeconds()),
	}
}

// Notify requests a tick as soon as possible (the IPC graph_changed fast
// path). Never blocks: a pending notification already covers this one.
func (l *Loop) Notify() {
	select {
	case l.notifyCh <- struct{}{}:
	default:
	}
}

// Start registers the poll-fallback cron entry and the dead-agent-entry GC
// housekeeping job, then starts the cron scheduler. It does not block.
func (l *Loop) Start() error {
	pollSeconds := l.coordinator.currentSettings().Coordinator.PollIntervalSeconds
	if pollSeconds == 0 {
		pollSeconds = 5
	}
	spec := fmt.Sprintf("@every %ds", pollSeconds)

	id, err := l.cron.AddFunc(spec, func() {
		if err := l.coordinator.Tick(context.Background()); err != nil {
			slog.Error("poll-path tick failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("coordinator: schedule poll tick: %w", err)
	}
	l.entryID = id

	if _, err := l.cron.AddFunc("@every 60s", func() {
		l.coordinator.gcDeadAgents()
	}); err != nil {
		return fmt.Errorf("coordinator: schedule dead-agent gc: %w", err)
	}

	l.cron.Start()
	return nil
}

// Run blocks, driving ticks from the notify channel until ctx is
// cancelled. The poll fallback (started separately via Start) keeps firing
// regardless of whether any notification ever arrives.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.notifyCh:
			if err := l.coordinator.Tick(ctx); err != nil {
				slog.Error("fast-path tick failed", "error", err)
			}
		}
	}
}

// Stop halts the cron scheduler, waiting up to the given timeout for any
// in-flight scheduled job to finish.
func (l *Loop) Stop(timeout time.Duration) {
	stopCtx := l.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(timeout):
	}
}

// Rebuild re-registers the poll entry at a new interval after a config
// hot-reload changes poll_interval_seconds.
func (l *Loop) Rebuild(pollSeconds uint64) error {
	l.cron.Remove(l.entryID)
	if pollSeconds == 0 {
		pollSeconds = 5
	}
	spec := fmt.Sprintf("@every %ds", pollSeconds)
	id, err := l.cron.AddFunc(spec, func() {
		if err := l.coordinator.Tick(context.Background()); err != nil {
			slog.Error("poll-path tick failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("coordinator: reschedule poll tick: %w", err)
	}
	l.entryID = id
	return nil
}

// gcDeadAgents drops Dead registry entries older than the configured
// dead-agent grace period — spec §4.4 says Dead entries are "retained for
// observability", not forever; the grace window bounds that retention.
func (c *Coordinator) gcDeadAgents() {
	grace := time.Duration(c.currentSettings().Coordinator.DeadAgentGraceSeconds) * time.Second
	if grace <= 0 {
		return
	}
	now := time.Now().UTC()
	for _, e := range c.reg.All() {
		if e.Status != registry.StatusDead {
			continue
		}
		last := e.StartedAt
		if e.LastHeartbeat != nil {
			last = *e.LastHeartbeat
		}
		if now.Sub(last) > grace {
			c.reg.Remove(e.ID)
		}
	}
	if err := c.reg.Save(); err != nil {
		slog.Error("dead-agent gc: persist registry failed", "error", err)
	}
}
