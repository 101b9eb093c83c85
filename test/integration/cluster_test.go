// Package integration wires the real master-side components (cluster
// manager, matchmaker, status server) to real worker runtimes over an
// in-process IPC bridge and exercises full cluster scenarios: cross-worker
// room discovery, partial scatter-gather, crash replacement, and graceful
// shutdown. No child processes or sockets are involved, so the suite runs
// anywhere go test does.
package integration

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/pslog"

	"github.com/lowline/skirmish/internal/cluster"
	"github.com/lowline/skirmish/internal/config"
	"github.com/lowline/skirmish/internal/ipc"
	"github.com/lowline/skirmish/internal/matchmaker"
	"github.com/lowline/skirmish/internal/protocol"
	"github.com/lowline/skirmish/internal/status"
	"github.com/lowline/skirmish/internal/worker"
)

type nullConn struct{}

func (nullConn) Send([]byte) error { return nil }
func (nullConn) Close() error      { return nil }

// masterLink feeds worker IPC frames straight into the manager's message
// handler, standing in for the stdout pipe.
type masterLink struct {
	fn func(ipc.Message)
}

func (l *masterLink) Send(msg ipc.Message) error {
	l.fn(msg)
	return nil
}

// inprocWorker hosts one real worker.Runtime behind the cluster.Process
// interface. All runtime access is serialized through mu, taking the place
// of the runtime's event goroutine.
type inprocWorker struct {
	id   int
	port int

	mu      sync.Mutex
	runtime *worker.Runtime

	silent bool // drop master frames to simulate a hung worker

	exitOnce sync.Once
	onExit   func(err error)
}

func (w *inprocWorker) PID() int { return 40000 + w.id }

func (w *inprocWorker) Send(msg ipc.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.silent {
		return nil
	}
	w.runtime.HandleIPC(msg)
	return nil
}

func (w *inprocWorker) Kill() error {
	w.exit(errors.New("killed"))
	return nil
}

func (w *inprocWorker) exit(err error) {
	w.exitOnce.Do(func() {
		w.runtime.Stop()
		w.onExit(err)
	})
}

func (w *inprocWorker) setSilent(v bool) {
	w.mu.Lock()
	w.silent = v
	w.mu.Unlock()
}

// joinPlayer connects a client and runs it through matchmaking, returning
// the assigned player id.
func (w *inprocWorker) joinPlayer(t *testing.T, name string) string {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.runtime.Connect(nullConn{}, name)
	data, err := json.Marshal(protocol.LobbyRequest{Action: protocol.ActionMatchmaking, Name: name})
	if err != nil {
		t.Fatalf("marshal lobby request: %v", err)
	}
	w.runtime.HandleFrame(id, protocol.Envelope{Type: protocol.MsgLobby, Data: data}, time.Now())
	return id
}

// inprocSpawner satisfies cluster.Spawner by building runtimes in-process.
type inprocSpawner struct {
	cfg config.Config

	mu      sync.Mutex
	workers map[int]*inprocWorker
}

func newInprocSpawner(cfg config.Config) *inprocSpawner {
	return &inprocSpawner{cfg: cfg, workers: make(map[int]*inprocWorker)}
}

func (s *inprocSpawner) Spawn(id, slot, port int, onMessage func(ipc.Message), onExit func(err error)) (cluster.Process, error) {
	rt := worker.NewRuntime(s.cfg, id, &masterLink{fn: onMessage}, pslog.NoopLogger())
	w := &inprocWorker{id: id, port: port, runtime: rt, onExit: onExit}
	go func() {
		<-rt.Done()
		w.exit(nil)
	}()

	s.mu.Lock()
	s.workers[id] = w
	s.mu.Unlock()
	return w, nil
}

func (s *inprocSpawner) byID(id int) *inprocWorker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workers[id]
}

func testConfig() config.Config {
	return config.Config{
		NumWorkers:          2,
		MaxRoomsPerWorker:   50,
		MaxPlayersPerWorker: 200,
		MetricsInterval:     time.Hour,
		HeartbeatInterval:   time.Hour,
		RestartDelay:        20 * time.Millisecond,
		ShutdownTimeout:     500 * time.Millisecond,
		IPCTimeout:          100 * time.Millisecond,
		MemoryWarnThreshold: 0.8,
		RoomIdleTimeout:     time.Hour,
		TickRate:            20,
		RespawnDelay:        3 * time.Second,
		HealDuration:        2 * time.Second,
		DashRecharge:        5 * time.Second,
		WorkerBasePort:      18100,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, desc string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func TestCluster(t *testing.T) {
	cfg := testConfig()
	spawner := newInprocSpawner(cfg)
	manager := cluster.NewManager(cfg, spawner, pslog.NoopLogger())
	mm := matchmaker.New(manager, cfg.IPCTimeout, cfg.MaxRoomsPerWorker, cfg.MaxPlayersPerWorker, pslog.NoopLogger())
	manager.OnResponse(mm.HandleResponse)

	if err := manager.Start(); err != nil {
		t.Fatalf("cluster start: %v", err)
	}

	statusSrv := status.NewServer(cfg, manager, mm, pslog.NoopLogger())
	web := httptest.NewServer(statusSrv.Handler())
	defer web.Close()

	t.Run("StatusEndpoints", func(t *testing.T) {
		resp, err := http.Get(web.URL + "/health")
		if err != nil {
			t.Fatalf("health: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("health = %d, want 200", resp.StatusCode)
		}

		resp, err = http.Get(web.URL + "/status")
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		defer resp.Body.Close()
		var view struct {
			Phase string `json:"phase"`
			Stats struct {
				TotalWorkers  int `json:"totalWorkers"`
				ActiveWorkers int `json:"activeWorkers"`
			} `json:"stats"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		if view.Phase != "running" {
			t.Errorf("phase = %q, want running", view.Phase)
		}
		if view.Stats.ActiveWorkers != 2 {
			t.Errorf("active workers = %d, want 2", view.Stats.ActiveWorkers)
		}
	})

	t.Run("CrossWorkerDiscovery", func(t *testing.T) {
		// One player on worker 1, two on worker 2 sharing a room.
		spawner.byID(1).joinPlayer(t, "solo")
		spawner.byID(2).joinPlayer(t, "duo-a")
		spawner.byID(2).joinPlayer(t, "duo-b")

		best := mm.FindBestRoom()
		if best == nil {
			t.Fatal("no room found across the cluster")
		}
		if best.WorkerID != 2 || best.Players != 2 {
			t.Errorf("best room = worker %d with %d players, want worker 2 with 2",
				best.WorkerID, best.Players)
		}

		rooms := mm.QueryAllRooms()
		if len(rooms) != 2 {
			t.Errorf("cluster rooms = %d, want 2", len(rooms))
		}
	})

	t.Run("PlayerCountsReachMaster", func(t *testing.T) {
		total := 0
		for _, w := range manager.Workers() {
			total += w.PlayerCount
		}
		if total != 3 {
			t.Errorf("master player count = %d, want 3", total)
		}
	})

	t.Run("PlacementEndpoints", func(t *testing.T) {
		// /join resolves to the fullest joinable public room in the cluster.
		resp, err := http.Get(web.URL + "/join")
		if err != nil {
			t.Fatalf("join: %v", err)
		}
		defer resp.Body.Close()
		var p struct {
			WorkerID int    `json:"workerId"`
			Port     int    `json:"port"`
			Code     string `json:"code"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
			t.Fatalf("decode join: %v", err)
		}
		if p.WorkerID != 2 || p.Port != cfg.WorkerPort(1) {
			t.Errorf("join placement = %+v, want worker 2 on port %d", p, cfg.WorkerPort(1))
		}
		if len(p.Code) != 6 {
			t.Errorf("join code = %q, want a 6-char room code", p.Code)
		}

		// /route is sticky for a fixed client id.
		var firstWorker int
		for i := 0; i < 3; i++ {
			resp, err := http.Get(web.URL + "/route?client=client-77")
			if err != nil {
				t.Fatalf("route: %v", err)
			}
			var rp struct {
				WorkerID int `json:"workerId"`
			}
			err = json.NewDecoder(resp.Body).Decode(&rp)
			resp.Body.Close()
			if err != nil {
				t.Fatalf("decode route: %v", err)
			}
			if i == 0 {
				firstWorker = rp.WorkerID
			} else if rp.WorkerID != firstWorker {
				t.Fatalf("routing not sticky: %d then %d", firstWorker, rp.WorkerID)
			}
		}
	})

	t.Run("PartialQuery", func(t *testing.T) {
		spawner.byID(1).setSilent(true)
		defer spawner.byID(1).setSilent(false)

		start := time.Now()
		rooms := mm.QueryAllRooms()
		elapsed := time.Since(start)

		// Only worker 2's room can answer, and the query must wait out the
		// doubled IPC timeout for the silent worker.
		if len(rooms) != 1 || rooms[0].WorkerID != 2 {
			t.Errorf("rooms = %+v, want exactly worker 2's", rooms)
		}
		if elapsed < 2*cfg.IPCTimeout {
			t.Errorf("query resolved in %v, want >= %v", elapsed, 2*cfg.IPCTimeout)
		}
		if mm.Stats().PartialQueries == 0 {
			t.Error("partial query not counted")
		}
	})

	t.Run("CrashReplacement", func(t *testing.T) {
		old := spawner.byID(2)
		old.exit(errors.New("simulated crash"))

		waitFor(t, time.Second, func() bool {
			for _, w := range manager.Workers() {
				if w.Slot == 1 && w.ID > 2 {
					return true
				}
			}
			return false
		}, "replacement worker in slot 1")

		replacement := manager.Workers()
		var found *cluster.WorkerRecord
		for i := range replacement {
			if replacement[i].Slot == 1 {
				found = &replacement[i]
			}
		}
		if found == nil {
			t.Fatal("slot 1 empty after replacement")
		}
		if found.ID <= 2 {
			t.Errorf("replacement reused id %d", found.ID)
		}
		if got := spawner.byID(found.ID).port; got != cfg.WorkerPort(1) {
			t.Errorf("replacement port = %d, want %d", got, cfg.WorkerPort(1))
		}
	})

	t.Run("GracefulShutdown", func(t *testing.T) {
		manager.Shutdown()
		if got := manager.Phase(); got != cluster.PhaseExited {
			t.Errorf("phase = %s, want %s", got, cluster.PhaseExited)
		}
		if len(manager.Workers()) != 0 {
			t.Errorf("%d workers survive shutdown", len(manager.Workers()))
		}

		resp, err := http.Get(web.URL + "/health")
		if err != nil {
			t.Fatalf("health: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("health after shutdown = %d, want 503", resp.StatusCode)
		}
	})
}

// TestClusterMetricsExposition spins a one-worker cluster and checks the
// Prometheus endpoint reflects live state.
func TestClusterMetricsExposition(t *testing.T) {
	cfg := testConfig()
	cfg.NumWorkers = 1
	spawner := newInprocSpawner(cfg)
	manager := cluster.NewManager(cfg, spawner, pslog.NoopLogger())
	mm := matchmaker.New(manager, cfg.IPCTimeout, cfg.MaxRoomsPerWorker, cfg.MaxPlayersPerWorker, pslog.NoopLogger())
	manager.OnResponse(mm.HandleResponse)
	if err := manager.Start(); err != nil {
		t.Fatalf("cluster start: %v", err)
	}
	defer manager.Shutdown()

	spawner.byID(1).joinPlayer(t, "p1")

	statusSrv := status.NewServer(cfg, manager, mm, pslog.NoopLogger())
	web := httptest.NewServer(statusSrv.Handler())
	defer web.Close()

	resp, err := http.Get(web.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics body: %v", err)
	}
	body := string(raw)

	for _, want := range []string{
		"skirmish_workers_active 1",
		"skirmish_rooms_total 1",
		"skirmish_players_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
