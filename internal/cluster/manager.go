// Package cluster implements the master side of the process tree: forking
// and supervising worker processes, tracking their load through IPC metric
// and event messages, and the 4-phase graceful shutdown. The worker registry
// has a single writer (the manager's own handlers); the mutex exists only so
// read-side collaborators can take consistent snapshots.
package cluster

import (
	"errors"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/lowline/skirmish/internal/config"
	"github.com/lowline/skirmish/internal/ipc"
)

// Phase is the master lifecycle. Transitions only move forward.
type Phase string

const (
	PhaseRunning      Phase = "running"
	PhaseShuttingDown Phase = "shutting_down" // shutdown broadcast in flight
	PhaseDraining     Phase = "draining"      // waiting for workers to exit
	PhaseForceKill    Phase = "force_kill"    // timeout hit, killing stragglers
	PhaseExited       Phase = "exited"
)

// ErrNoSuchWorker is returned when sending to a worker id that is no longer
// registered.
var ErrNoSuchWorker = errors.New("no such worker")

// Manager supervises the worker fleet.
type Manager struct {
	cfg     config.Config
	log     pslog.Logger
	spawner Spawner

	mu      sync.RWMutex
	workers map[int]*WorkerRecord
	procs   map[int]Process
	nextID  int
	phase   Phase

	restarts  int
	startedAt time.Time

	// onResponse receives scatter-gather response frames (rooms/status)
	// that belong to the matchmaker rather than the registry.
	onResponse func(ipc.Message)

	wg       sync.WaitGroup // one count per live worker process
	stopSnap chan struct{}
}

func NewManager(cfg config.Config, spawner Spawner, log pslog.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		log:      log,
		spawner:  spawner,
		workers:  make(map[int]*WorkerRecord),
		procs:    make(map[int]Process),
		phase:    PhaseRunning,
		stopSnap: make(chan struct{}),
	}
}

// OnResponse registers the handler for rooms/status response frames. Must be
// set before Start.
func (m *Manager) OnResponse(fn func(ipc.Message)) { m.onResponse = fn }

// Start forks the full worker fleet and begins the periodic metrics
// snapshot. Worker slots 0..NumWorkers-1 map to contiguous listen ports.
func (m *Manager) Start() error {
	m.startedAt = time.Now()
	for slot := 0; slot < m.cfg.NumWorkers; slot++ {
		if err := m.spawnWorker(slot); err != nil {
			return err
		}
	}
	go m.snapshotLoop()
	return nil
}

// spawnWorker forks one worker into the given slot. The record and the
// WaitGroup count are registered before Spawn so the exit callback always
// finds a matching registration, even when the process dies before Spawn
// returns.
func (m *Manager) spawnWorker(slot int) error {
	m.mu.Lock()
	if m.phase != PhaseRunning {
		m.mu.Unlock()
		return nil
	}
	m.nextID++
	id := m.nextID
	m.workers[id] = &WorkerRecord{
		ID:            id,
		Slot:          slot,
		Status:        Active,
		LastHeartbeat: time.Now(),
		StartedAt:     time.Now(),
	}
	m.mu.Unlock()
	m.wg.Add(1)

	proc, err := m.spawner.Spawn(id, slot, m.cfg.WorkerPort(slot),
		func(msg ipc.Message) { m.handleMessage(msg) },
		func(err error) { m.handleExit(id, slot, err) },
	)
	if err != nil {
		// Spawn failed without starting the process, so no exit callback
		// will ever fire for this id.
		m.mu.Lock()
		delete(m.workers, id)
		m.mu.Unlock()
		m.wg.Done()
		return err
	}

	m.mu.Lock()
	if w, ok := m.workers[id]; ok {
		w.PID = proc.PID()
		m.procs[id] = proc
	}
	m.mu.Unlock()

	m.log.Info("worker started", "worker", id, "slot", slot, "pid", proc.PID())
	return nil
}

// handleExit flags the record Dead, removes it, and schedules a replacement
// into the same slot unless a shutdown is in progress. A dead worker's id is
// never reused. The WaitGroup is decremented only for a registered worker so
// a stray callback can never drive the counter negative.
func (m *Manager) handleExit(id, slot int, err error) {
	m.mu.Lock()
	w, ok := m.workers[id]
	if ok {
		w.Status = Dead
		delete(m.workers, id)
		delete(m.procs, id)
	}
	shuttingDown := m.phase != PhaseRunning
	m.mu.Unlock()
	if !ok {
		return
	}
	defer m.wg.Done()

	if shuttingDown {
		m.log.Info("worker exited", "worker", id, "slot", slot)
		return
	}

	if err != nil {
		m.log.Error("worker crashed", "worker", id, "slot", slot, "error", err)
	} else {
		m.log.Warn("worker exited unexpectedly", "worker", id, "slot", slot)
	}

	m.mu.Lock()
	m.restarts++
	m.mu.Unlock()

	time.AfterFunc(m.cfg.RestartDelay, func() {
		if err := m.spawnWorker(slot); err != nil {
			m.log.Error("worker replacement failed", "slot", slot, "error", err)
		}
	})
}

// handleMessage dispatches one inbound worker frame. Registry-shaped
// messages mutate the matching WorkerRecord; scatter-gather responses are
// forwarded to the matchmaker.
func (m *Manager) handleMessage(msg ipc.Message) {
	switch msg.Type {
	case ipc.TypeMetrics:
		payload, err := ipc.DecodePayload[ipc.MetricsPayload](msg)
		if err != nil {
			m.log.Warn("bad metrics payload", "worker", msg.WorkerID, "error", err)
			return
		}
		m.mu.Lock()
		if w, ok := m.workers[msg.WorkerID]; ok {
			w.RoomCount = payload.Rooms
			w.PlayerCount = payload.Players
			w.MemoryUsagePercent = payload.MemoryPercent
			w.LastHeartbeat = time.Now()
		}
		m.mu.Unlock()

	case ipc.TypeRoomCreated, ipc.TypeRoomDeleted:
		delta := 1
		if msg.Type == ipc.TypeRoomDeleted {
			delta = -1
		}
		m.mu.Lock()
		if w, ok := m.workers[msg.WorkerID]; ok {
			w.RoomCount += delta
			if w.RoomCount < 0 {
				w.RoomCount = 0
			}
		}
		m.mu.Unlock()

	case ipc.TypePlayerJoined, ipc.TypePlayerLeft:
		delta := 1
		if msg.Type == ipc.TypePlayerLeft {
			delta = -1
		}
		m.mu.Lock()
		if w, ok := m.workers[msg.WorkerID]; ok {
			w.PlayerCount += delta
			if w.PlayerCount < 0 {
				w.PlayerCount = 0
			}
		}
		m.mu.Unlock()

	case ipc.TypeRoomsResponse, ipc.TypeStatusResponse:
		if m.onResponse != nil {
			m.onResponse(msg)
		}

	default:
		m.log.Debug("unhandled ipc message", "type", msg.Type, "worker", msg.WorkerID)
	}
}

// SendTo delivers one message to a single worker.
func (m *Manager) SendTo(workerID int, msg ipc.Message) error {
	m.mu.RLock()
	proc, ok := m.procs[workerID]
	m.mu.RUnlock()
	if !ok {
		return ErrNoSuchWorker
	}
	return proc.Send(msg)
}

// Broadcast sends one message to every live worker, logging and skipping
// failures.
func (m *Manager) Broadcast(msg ipc.Message) {
	m.mu.RLock()
	procs := make(map[int]Process, len(m.procs))
	for id, p := range m.procs {
		procs[id] = p
	}
	m.mu.RUnlock()

	for id, p := range procs {
		if err := p.Send(msg); err != nil {
			m.log.Warn("broadcast send failed", "worker", id, "error", err)
		}
	}
}

// Workers returns a snapshot copy of every record.
func (m *Manager) Workers() []WorkerRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]WorkerRecord, 0, len(m.workers))
	for _, w := range m.workers {
		out = append(out, *w)
	}
	return out
}

// ActiveWorkerIDs returns the ids of workers in Active status.
func (m *Manager) ActiveWorkerIDs() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int, 0, len(m.workers))
	for id, w := range m.workers {
		if w.Status == Active {
			out = append(out, id)
		}
	}
	return out
}

// Stats aggregates the registry for the status endpoint.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Stats{
		TotalWorkers: len(m.workers),
		Restarts:     m.restarts,
		StartedAt:    m.startedAt,
	}
	for _, w := range m.workers {
		if w.Status == Active {
			s.ActiveWorkers++
		}
		s.TotalRooms += w.RoomCount
		s.TotalPlayers += w.PlayerCount
	}
	return s
}

// Phase returns the current lifecycle phase.
func (m *Manager) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// snapshotLoop logs a periodic cluster snapshot and flags workers above the
// memory threshold. Observability only; nothing is killed for memory.
func (m *Manager) snapshotLoop() {
	ticker := time.NewTicker(m.cfg.MetricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			stats := m.Stats()
			m.log.Info("cluster snapshot",
				"workers", stats.TotalWorkers,
				"active", stats.ActiveWorkers,
				"rooms", stats.TotalRooms,
				"players", stats.TotalPlayers,
				"restarts", stats.Restarts)
			for _, w := range m.Workers() {
				if w.MemoryUsagePercent > m.cfg.MemoryWarnThreshold {
					m.log.Warn("worker memory above threshold",
						"worker", w.ID,
						"memory", w.MemoryUsagePercent,
						"threshold", m.cfg.MemoryWarnThreshold)
				}
			}
		case <-m.stopSnap:
			return
		}
	}
}

// Shutdown runs the graceful sequence: mark every worker Draining, broadcast
// the shutdown message, wait for the fleet to exit, and force-kill anything
// still alive when the timeout fires. Calling it again while one is in
// progress is a no-op.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.phase != PhaseRunning {
		m.mu.Unlock()
		return
	}
	m.phase = PhaseShuttingDown
	for _, w := range m.workers {
		w.Status = Draining
	}
	m.mu.Unlock()

	close(m.stopSnap)
	m.log.Info("shutdown started", "timeout", m.cfg.ShutdownTimeout)
	m.Broadcast(ipc.New(ipc.TypeShutdown, ipc.MasterID, nil))

	m.mu.Lock()
	m.phase = PhaseDraining
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.log.Info("all workers exited cleanly")
	case <-time.After(m.cfg.ShutdownTimeout):
		m.mu.Lock()
		m.phase = PhaseForceKill
		stragglers := make(map[int]Process, len(m.procs))
		for id, p := range m.procs {
			stragglers[id] = p
		}
		m.mu.Unlock()

		for id, p := range stragglers {
			m.log.Warn("force killing worker", "worker", id)
			if err := p.Kill(); err != nil {
				m.log.Error("kill failed", "worker", id, "error", err)
			}
		}
		<-done
	}

	m.mu.Lock()
	m.phase = PhaseExited
	m.mu.Unlock()
	m.log.Info("shutdown complete")
}
