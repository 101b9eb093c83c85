// Package status serves the master's HTTP surface on a port separate from
// gameplay traffic: a JSON cluster snapshot, a liveness probe, Prometheus
// metrics, matchmaking counters, and the placement endpoints clients use to
// find their worker before opening a gameplay socket.
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"pkt.systems/pslog"

	"github.com/lowline/skirmish/internal/cluster"
	"github.com/lowline/skirmish/internal/config"
	"github.com/lowline/skirmish/internal/ipc"
	"github.com/lowline/skirmish/internal/matchmaker"
)

// ClusterSource is the read-only slice of the cluster manager the status
// server consumes.
type ClusterSource interface {
	Stats() cluster.Stats
	Workers() []cluster.WorkerRecord
	Phase() cluster.Phase
}

// MatchmakerSource exposes matchmaking counters and the cluster-wide
// placement decisions behind /join.
type MatchmakerSource interface {
	Stats() matchmaker.Stats
	FindBestRoom() *ipc.RoomInfo
	OptimalWorkerForNewRoom() (cluster.WorkerRecord, bool)
}

// Server is the status HTTP listener.
type Server struct {
	cfg     config.Config
	cluster ClusterSource
	mm      MatchmakerSource
	log     pslog.Logger

	httpSrv  *http.Server
	registry *prometheus.Registry
}

func NewServer(cfg config.Config, cl ClusterSource, mm MatchmakerSource, log pslog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		cluster:  cl,
		mm:       mm,
		log:      log,
		registry: prometheus.NewRegistry(),
	}
	s.registerMetrics()

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/matchmaking", s.handleMatchmaking)
	mux.HandleFunc("/route", s.handleRoute)
	mux.HandleFunc("/join", s.handleJoin)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.httpSrv = &http.Server{
		Addr:              cfg.StatusAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info("status server listening", "addr", s.cfg.StatusAddr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("status server failed", "error", err)
		}
	}()
}

// Shutdown stops the listener, waiting up to the context deadline for
// in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// registerMetrics publishes cluster gauges through a private registry so the
// exposition carries exactly our series and nothing global.
func (s *Server) registerMetrics() {
	gauge := func(name, help string, value func() float64) {
		s.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "skirmish",
			Name:      name,
			Help:      help,
		}, value))
	}
	gauge("workers_total", "Workers currently registered.", func() float64 {
		return float64(s.cluster.Stats().TotalWorkers)
	})
	gauge("workers_active", "Workers in active status.", func() float64 {
		return float64(s.cluster.Stats().ActiveWorkers)
	})
	gauge("rooms_total", "Rooms across the cluster.", func() float64 {
		return float64(s.cluster.Stats().TotalRooms)
	})
	gauge("players_total", "Players across the cluster.", func() float64 {
		return float64(s.cluster.Stats().TotalPlayers)
	})
	gauge("worker_restarts_total", "Worker replacements since start.", func() float64 {
		return float64(s.cluster.Stats().Restarts)
	})
	gauge("matchmaking_queries_total", "Scatter-gather room queries.", func() float64 {
		return float64(s.mm.Stats().Queries)
	})
	gauge("matchmaking_partial_queries_total", "Queries resolved with missing workers.", func() float64 {
		return float64(s.mm.Stats().PartialQueries)
	})
}

type workerView struct {
	ID            int     `json:"id"`
	Slot          int     `json:"slot"`
	PID           int     `json:"pid"`
	Status        string  `json:"status"`
	Rooms         int     `json:"rooms"`
	Players       int     `json:"players"`
	MemoryPercent float64 `json:"memoryPercent"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

type statusView struct {
	Phase   string        `json:"phase"`
	Stats   cluster.Stats `json:"stats"`
	Workers []workerView  `json:"workers"`
	Config  configView    `json:"config"`
}

type configView struct {
	NumWorkers          int     `json:"numWorkers"`
	MaxRoomsPerWorker   int     `json:"maxRoomsPerWorker"`
	MaxPlayersPerWorker int     `json:"maxPlayersPerWorker"`
	TickRate            int     `json:"tickRate"`
	MemoryWarnThreshold float64 `json:"memoryWarnThreshold"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	view := statusView{
		Phase: string(s.cluster.Phase()),
		Stats: s.cluster.Stats(),
		Config: configView{
			NumWorkers:          s.cfg.NumWorkers,
			MaxRoomsPerWorker:   s.cfg.MaxRoomsPerWorker,
			MaxPlayersPerWorker: s.cfg.MaxPlayersPerWorker,
			TickRate:            s.cfg.TickRate,
			MemoryWarnThreshold: s.cfg.MemoryWarnThreshold,
		},
	}
	for _, wr := range s.cluster.Workers() {
		view.Workers = append(view.Workers, workerView{
			ID:            wr.ID,
			Slot:          wr.Slot,
			PID:           wr.PID,
			Status:        string(wr.Status),
			Rooms:         wr.RoomCount,
			Players:       wr.PlayerCount,
			MemoryPercent: wr.MemoryUsagePercent,
			UptimeSeconds: now.Sub(wr.StartedAt).Seconds(),
		})
	}
	writeJSON(w, view)
}

// handleHealth reports 200 while at least one worker is active, 503
// otherwise. Load balancers key on this during rollout and drain.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.cluster.Stats().ActiveWorkers > 0 {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}
	http.Error(w, "no active workers", http.StatusServiceUnavailable)
}

func (s *Server) handleMatchmaking(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.mm.Stats())
}

// placement tells a client which worker to open its gameplay socket against,
// and, for matchmaking, which room it will land in.
type placement struct {
	WorkerID int    `json:"workerId"`
	Port     int    `json:"port"`
	RoomID   string `json:"roomId,omitempty"`
	Code     string `json:"code,omitempty"`
}

// handleRoute resolves a connection id to a worker by sticky hashing over
// the currently available set. Same id, same worker, as long as membership
// holds.
func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	connID := r.URL.Query().Get("client")
	if connID == "" {
		http.Error(w, "missing client id", http.StatusBadRequest)
		return
	}
	available := cluster.Available(s.cluster.Workers(), s.cfg.MaxRoomsPerWorker, s.cfg.MaxPlayersPerWorker)
	target, ok := cluster.WorkerForConnection(connID, available)
	if !ok {
		http.Error(w, "no available worker", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, placement{WorkerID: target.ID, Port: s.cfg.WorkerPort(target.Slot)})
}

// handleJoin answers a matchmaking request: the fullest joinable public room
// anywhere in the cluster, or the least loaded worker when no such room
// exists and the client's lobby request will create one.
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	if best := s.mm.FindBestRoom(); best != nil {
		for _, wr := range s.cluster.Workers() {
			if wr.ID == best.WorkerID {
				writeJSON(w, placement{
					WorkerID: wr.ID,
					Port:     s.cfg.WorkerPort(wr.Slot),
					RoomID:   best.RoomID,
					Code:     best.Code,
				})
				return
			}
		}
		// The room's worker died between query and answer; place fresh.
	}
	target, ok := s.mm.OptimalWorkerForNewRoom()
	if !ok {
		http.Error(w, "no available worker", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, placement{WorkerID: target.ID, Port: s.cfg.WorkerPort(target.Slot)})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
