// Package main implements the skirmish master process: it validates the
// configuration, forks the worker fleet, serves the status endpoints, and
// coordinates graceful shutdown.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│               Master                     │
//	├─────────────────────────────────────────┤
//	│  Status API (separate port):            │
//	│    /status       - Cluster snapshot     │
//	│    /health       - 200 while workers up │
//	│    /metrics      - Prometheus text      │
//	│    /matchmaking  - Scatter-gather stats │
//	├─────────────────────────────────────────┤
//	│  Components:                            │
//	│    cluster.Manager   - Worker fleet     │
//	│    matchmaker        - Room discovery   │
//	│    ipc over stdio    - Worker link      │
//	└─────────────────────────────────────────┘
//
// Configuration is environment driven with the SKIRMISH_ prefix; see
// internal/config for the full surface. Invalid configuration aborts before
// the first worker is forked.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"pkt.systems/pslog"

	"github.com/lowline/skirmish/internal/cluster"
	"github.com/lowline/skirmish/internal/config"
	"github.com/lowline/skirmish/internal/matchmaker"
	"github.com/lowline/skirmish/internal/status"
)

func main() {
	cfg := config.Load()

	logger := pslog.NewStructured(os.Stderr).With("app", "skirmish-master")
	if level, ok := pslog.ParseLevel(cfg.LogLevel); ok {
		logger = logger.LogLevel(level)
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	spawner := &cluster.ExecSpawner{
		Binary: workerBinary(),
		Logger: logger,
	}
	manager := cluster.NewManager(cfg, spawner, logger)
	mm := matchmaker.New(manager, cfg.IPCTimeout, cfg.MaxRoomsPerWorker, cfg.MaxPlayersPerWorker, logger)
	manager.OnResponse(mm.HandleResponse)

	if err := manager.Start(); err != nil {
		logger.Error("cluster start failed", "error", err)
		os.Exit(1)
	}
	logger.Info("cluster started", "workers", cfg.NumWorkers, "status_addr", cfg.StatusAddr)

	statusSrv := status.NewServer(cfg, manager, mm, logger)
	statusSrv.Start()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("signal received, shutting down")
	manager.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = statusSrv.Shutdown(ctx)
	logger.Info("master stopped")
}

// workerBinary resolves the worker executable: an explicit override wins,
// otherwise the sibling binary next to the master.
func workerBinary() string {
	if p := os.Getenv("SKIRMISH_WORKER_BINARY"); p != "" {
		return p
	}
	exe, err := os.Executable()
	if err != nil {
		return "skirmish-worker"
	}
	return filepath.Join(filepath.Dir(exe), "skirmish-worker")
}
