// Command coordinatord is the coordinator daemon (spec §4.6): one process
// per graph directory, ticking on a poll interval and an IPC fast path
// until told to shut down.
//
// Grounded on services/orchestrator/main.go's signal.NotifyContext +
// otelinit bootstrap + graceful-shutdown shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/swarmguard/workgraph/internal/config"
	"github.com/swarmguard/workgraph/internal/coordinator"
	"github.com/swarmguard/workgraph/internal/ipc"
	"github.com/swarmguard/workgraph/internal/logging"
	"github.com/swarmguard/workgraph/internal/otelinit"
)

const shutdownGrace = 10 * time.Second

func main() {
	graphDir := flag.String("graph-dir", ".", "graph directory to serve")
	signalAgents := flag.Bool("signal-agents", true, "send SIGTERM to running agents on shutdown")
	flag.Parse()

	logging.Init("coordinatord")

	if running, state, err := coordinator.IsRunning(*graphDir); err != nil {
		slog.Error("check existing daemon state failed", "error", err)
		os.Exit(1)
	} else if running {
		slog.Error("coordinator already running", "pid", state.PID, "socket", state.SocketPath)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTrace := otelinit.InitTracer(ctx, "coordinatord")
	shutdownMetrics, metrics := otelinit.InitMetrics(ctx, "coordinatord")

	if err := run(ctx, *graphDir, *signalAgents, metrics); err != nil {
		slog.Error("coordinatord exited with error", "error", err)
		otelinit.Flush(context.Background(), shutdownTrace)
		_ = shutdownMetrics(context.Background())
		os.Exit(1)
	}

	otelinit.Flush(context.Background(), shutdownTrace)
	_ = shutdownMetrics(context.Background())
}

func run(ctx context.Context, graphDir string, signalAgents bool, metrics otelinit.Metrics) error {
	c, err := coordinator.Open(graphDir, metrics)
	if err != nil {
		return fmt.Errorf("open coordinator: %w", err)
	}
	defer c.Close()

	loop := coordinator.NewLoop(c)

	server, err := ipc.New(graphDir, c, loop)
	if err != nil {
		return fmt.Errorf("start ipc server: %w", err)
	}
	defer server.Close()

	if err := coordinator.WriteDaemonState(graphDir, coordinator.DaemonState{
		PID:        os.Getpid(),
		SocketPath: server.SocketPath(),
	}); err != nil {
		return fmt.Errorf("write daemon state: %w", err)
	}

	if err := loop.Start(); err != nil {
		return fmt.Errorf("start tick loop: %w", err)
	}

	go config.Watch(ctx, graphDir, func(cfg config.Config) {
		c.ApplySettings(cfg)
		if err := loop.Rebuild(cfg.Coordinator.PollIntervalSeconds); err != nil {
			slog.Warn("reschedule poll tick failed", "error", err)
		}
	}, func(err error) {
		slog.Warn("config watch error", "error", err)
	})

	ipcErrCh := make(chan error, 1)
	go func() {
		ipcErrCh <- server.Serve(ctx)
	}()

	// Run the initial tick synchronously so a freshly started daemon has
	// dispatched whatever was already ready before it starts waiting on
	// wakeups.
	if err := c.Tick(ctx); err != nil {
		slog.Error("initial tick failed", "error", err)
	}

	slog.Info("coordinatord started", "graph_dir", graphDir, "socket", server.SocketPath(), "pid", os.Getpid())

	loop.Run(ctx)

	slog.Info("shutdown initiated")
	loop.Stop(shutdownGrace)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := c.Shutdown(shutdownCtx, shutdownGrace, signalAgents); err != nil {
		slog.Error("coordinator shutdown failed", "error", err)
	}

	select {
	case err := <-ipcErrCh:
		if err != nil {
			slog.Warn("ipc server stopped with error", "error", err)
		}
	case <-time.After(2 * time.Second):
	}

	slog.Info("shutdown complete")
	return nil
}
