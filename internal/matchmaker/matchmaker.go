// Package matchmaker implements the master-side scatter-gather room query
// and cluster-wide placement decisions. A query fans a rooms_request out to
// every active worker and gathers whatever answers arrive before the
// deadline; slow or dead workers shrink the result, they never fail it.
package matchmaker

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"pkt.systems/pslog"

	"github.com/lowline/skirmish/internal/cluster"
	"github.com/lowline/skirmish/internal/ipc"
)

// Cluster is the slice of the cluster manager the matchmaker needs.
type Cluster interface {
	ActiveWorkerIDs() []int
	Workers() []cluster.WorkerRecord
	SendTo(workerID int, msg ipc.Message) error
}

// Stats counts matchmaker activity for the /matchmaking endpoint.
type Stats struct {
	Queries         int `json:"queries"`
	PartialQueries  int `json:"partialQueries"`
	EmptyQueries    int `json:"emptyQueries"`
	OutstandingReqs int `json:"outstandingRequests"`
}

// Matchmaker coordinates distributed room discovery.
type Matchmaker struct {
	cluster    Cluster
	pending    *ipc.Pending
	log        pslog.Logger
	ipcTimeout time.Duration

	maxRoomsPerWorker   int
	maxPlayersPerWorker int

	mu       sync.Mutex
	queries  int
	partials int
	empties  int
}

func New(cl Cluster, ipcTimeout time.Duration, maxRooms, maxPlayers int, log pslog.Logger) *Matchmaker {
	return &Matchmaker{
		cluster:             cl,
		pending:             ipc.NewPending(),
		log:                 log,
		ipcTimeout:          ipcTimeout,
		maxRoomsPerWorker:   maxRooms,
		maxPlayersPerWorker: maxPlayers,
	}
}

// HandleResponse feeds a rooms_response frame into the pending table. Wired
// to the cluster manager's response forwarding.
func (m *Matchmaker) HandleResponse(msg ipc.Message) {
	if msg.Type != ipc.TypeRoomsResponse {
		return
	}
	payload, err := ipc.DecodePayload[ipc.RoomsResponsePayload](msg)
	if err != nil {
		m.log.Warn("bad rooms_response", "worker", msg.WorkerID, "error", err)
		return
	}
	m.pending.Deliver(payload.RequestID, msg.Data)
}

// QueryAllRooms scatter-gathers the room list from every active worker. The
// deadline is double the standard IPC timeout; workers that miss it are
// simply absent from the result. Sending to an unreachable worker forfeits
// its slot immediately so the query can still resolve early. Never returns
// an error: an unreachable cluster yields an empty list.
func (m *Matchmaker) QueryAllRooms() []ipc.RoomInfo {
	ids := m.cluster.ActiveWorkerIDs()

	m.mu.Lock()
	m.queries++
	m.mu.Unlock()

	if len(ids) == 0 {
		m.mu.Lock()
		m.empties++
		m.mu.Unlock()
		return nil
	}

	reqID := uuid.NewString()
	done := m.pending.Open(reqID, len(ids), 2*m.ipcTimeout)

	req := ipc.New(ipc.TypeRoomsRequest, ipc.MasterID, ipc.RoomsRequestPayload{RequestID: reqID})
	for _, id := range ids {
		if err := m.cluster.SendTo(id, req); err != nil {
			m.log.Warn("rooms_request send failed", "worker", id, "error", err)
			m.pending.Forfeit(reqID)
		}
	}

	raws := <-done

	var rooms []ipc.RoomInfo
	for _, raw := range raws {
		payload, err := ipc.DecodePayload[ipc.RoomsResponsePayload](ipc.Message{Type: ipc.TypeRoomsResponse, Data: raw})
		if err != nil {
			m.log.Warn("undecodable rooms_response payload", "error", err)
			continue
		}
		rooms = append(rooms, payload.Rooms...)
	}

	if len(raws) < len(ids) {
		m.mu.Lock()
		m.partials++
		m.mu.Unlock()
		m.log.Warn("partial rooms query", "answered", len(raws), "asked", len(ids))
	}
	return rooms
}

// FindBestRoom returns the joinable public room with the most players across
// the whole cluster, ties broken by first-encountered order. Nil means the
// cluster currently has no eligible room and the caller should create one.
func (m *Matchmaker) FindBestRoom() *ipc.RoomInfo {
	var best *ipc.RoomInfo
	for _, room := range m.QueryAllRooms() {
		room := room
		if room.Visibility != "public" || room.Players >= room.MaxPlayers {
			continue
		}
		if best == nil || room.Players > best.Players {
			best = &room
		}
	}
	return best
}

// OptimalWorkerForNewRoom picks the placement target for a fresh room:
// fewest rooms among Active workers under both caps, lowest id on ties.
// Purely local, no IPC round-trip.
func (m *Matchmaker) OptimalWorkerForNewRoom() (cluster.WorkerRecord, bool) {
	available := cluster.Available(m.cluster.Workers(), m.maxRoomsPerWorker, m.maxPlayersPerWorker)
	return cluster.WorkerWithFewestRooms(available)
}

// Stats returns a snapshot of the query counters.
func (m *Matchmaker) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Queries:         m.queries,
		PartialQueries:  m.partials,
		EmptyQueries:    m.empties,
		OutstandingReqs: m.pending.Outstanding(),
	}
}
