package ipc

// Payload structs for the closed message enum. Each type carries exactly one
// of these; the dispatch switch on Message.Type decides which to decode.

// MetricsPayload is reported by a worker on every heartbeat interval.
type MetricsPayload struct {
	Rooms         int     `json:"rooms"`
	Players       int     `json:"players"`
	MemoryPercent float64 `json:"memoryPercent"`
}

// RoomEventPayload accompanies room_created and room_deleted.
type RoomEventPayload struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}

// PlayerEventPayload accompanies player_joined and player_left.
type PlayerEventPayload struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

// RoomsRequestPayload asks a worker for its current room list. The request id
// correlates the eventual rooms_response in the master's pending table.
type RoomsRequestPayload struct {
	RequestID string `json:"requestId"`
}

// RoomInfo is one room as seen by the cluster matchmaker.
type RoomInfo struct {
	WorkerID   int    `json:"workerId"`
	RoomID     string `json:"roomId"`
	Code       string `json:"code"`
	Visibility string `json:"visibility"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"maxPlayers"`
	State      string `json:"state"`
}

// RoomsResponsePayload answers a rooms_request.
type RoomsResponsePayload struct {
	RequestID string     `json:"requestId"`
	Rooms     []RoomInfo `json:"rooms"`
}

// StatusRequestPayload asks a worker for a point-in-time status snapshot.
type StatusRequestPayload struct {
	RequestID string `json:"requestId"`
}

// StatusResponsePayload answers a status_request.
type StatusResponsePayload struct {
	RequestID     string  `json:"requestId"`
	Rooms         int     `json:"rooms"`
	Players       int     `json:"players"`
	MemoryPercent float64 `json:"memoryPercent"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}
