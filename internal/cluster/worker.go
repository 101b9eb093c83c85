package cluster

import "time"

// Status is the lifecycle state of one worker process.
type Status string

const (
	// Active workers accept new rooms and players.
	Active Status = "active"
	// Draining workers are being shut down and take no new placements.
	Draining Status = "draining"
	// Dead is a terminal marker set just before the record is removed. A
	// dead worker is never resurrected; a replacement gets a fresh record.
	Dead Status = "dead"
)

// WorkerRecord is the master's view of one live worker. Records are owned
// exclusively by the Manager: created on fork, mutated by IPC metric and
// event handlers, removed on process exit.
type WorkerRecord struct {
	ID   int // monotonic, unique for the cluster's lifetime
	Slot int // 0..numWorkers-1, reused by replacements; fixes the listen port
	PID  int

	Status      Status
	RoomCount   int
	PlayerCount int

	// MemoryUsagePercent is the last reported heap ratio in [0,1].
	MemoryUsagePercent float64
	LastHeartbeat      time.Time
	StartedAt          time.Time
}

// Stats is the read-only aggregate exposed to the status server and the
// matchmaker.
type Stats struct {
	TotalWorkers  int       `json:"totalWorkers"`
	ActiveWorkers int       `json:"activeWorkers"`
	TotalRooms    int       `json:"totalRooms"`
	TotalPlayers  int       `json:"totalPlayers"`
	Restarts      int       `json:"restarts"`
	StartedAt     time.Time `json:"startedAt"`
}
