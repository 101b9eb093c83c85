// Package main implements the skirmish worker process. A worker owns a set
// of game rooms, serves gameplay websockets on its slot port, and speaks
// newline-delimited JSON with the master over stdin/stdout. Logs go to
// stderr so they pass through the master untouched.
//
// Workers are normally forked by the master, which sets:
//   - SKIRMISH_WORKER_ID:   cluster-unique worker id
//   - SKIRMISH_WORKER_SLOT: stable slot, fixes the listen port
//   - SKIRMISH_WORKER_PORT: websocket listen port
//
// Run standalone (no master on stdio) with SKIRMISH_STANDALONE=1 for local
// development against a single worker.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"pkt.systems/pslog"

	"github.com/lowline/skirmish/internal/config"
	"github.com/lowline/skirmish/internal/ipc"
	"github.com/lowline/skirmish/internal/worker"
)

func main() {
	cfg := config.Load()

	workerID := intEnv("SKIRMISH_WORKER_ID", 1)
	slot := intEnv("SKIRMISH_WORKER_SLOT", 0)
	port := intEnv("SKIRMISH_WORKER_PORT", cfg.WorkerPort(slot))
	standalone := os.Getenv("SKIRMISH_STANDALONE") == "1"

	logger := pslog.NewStructured(os.Stderr).
		With("app", "skirmish-worker", "worker", workerID)
	if level, ok := pslog.ParseLevel(cfg.LogLevel); ok {
		logger = logger.LogLevel(level)
	}

	var masterConn *ipc.Conn
	var out worker.IPCSender
	if !standalone {
		masterConn = ipc.NewConn(os.Stdin, os.Stdout, logger)
		out = masterConn
	}

	runtime := worker.NewRuntime(cfg, workerID, out, logger)
	gate := worker.NewBanGate(cfg.BanCheckURL, cfg.BanCheckTimeout, logger)
	server := worker.NewServer(runtime, gate, port, logger)

	server.Start()
	go runtime.Run()

	if masterConn != nil {
		// Master frames arrive on stdin; stdin closing means the master is
		// gone and the worker should go with it.
		go func() {
			err := masterConn.ReadLoop(func(msg ipc.Message) {
				runtime.Dispatch(func() { runtime.HandleIPC(msg) })
			})
			if err != nil {
				logger.Warn("master link failed", "error", err)
			}
			runtime.Stop()
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("signal received, shutting down")
		runtime.Dispatch(func() {
			runtime.HandleIPC(ipc.New(ipc.TypeShutdown, ipc.MasterID, nil))
		})
		select {
		case <-runtime.Done():
		case <-time.After(5 * time.Second):
		}
	case <-runtime.Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctx)
	logger.Info("worker stopped")
}

func intEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
