package worker

import (
	"time"

	"github.com/lowline/skirmish/internal/ipc"
	"github.com/lowline/skirmish/internal/session"
)

// HandleIPC processes one frame from the master. Runs on the event
// goroutine like everything else; the IPC read loop hands frames over via
// Dispatch.
func (r *Runtime) HandleIPC(msg ipc.Message) {
	switch msg.Type {
	case ipc.TypeRoomsRequest:
		req, err := ipc.DecodePayload[ipc.RoomsRequestPayload](msg)
		if err != nil {
			r.log.Warn("bad rooms_request", "error", err)
			return
		}
		r.sendIPC(ipc.TypeRoomsResponse, ipc.RoomsResponsePayload{
			RequestID: req.RequestID,
			Rooms:     r.roomInfos(),
		})

	case ipc.TypeStatusRequest:
		req, err := ipc.DecodePayload[ipc.StatusRequestPayload](msg)
		if err != nil {
			r.log.Warn("bad status_request", "error", err)
			return
		}
		r.sendIPC(ipc.TypeStatusResponse, ipc.StatusResponsePayload{
			RequestID:     req.RequestID,
			Rooms:         r.registry.RoomCount(),
			Players:       r.registry.PlayerCount(),
			MemoryPercent: r.memoryPercent(),
			UptimeSeconds: time.Since(r.startedAt).Seconds(),
		})

	case ipc.TypeShutdown:
		r.log.Info("shutdown received, closing clients", "clients", len(r.clients))
		for id := range r.clients {
			r.Disconnect(id, time.Now())
		}
		r.Stop()

	default:
		r.log.Debug("unhandled master frame", "type", msg.Type)
	}
}

// roomInfos renders the registry for a rooms_response.
func (r *Runtime) roomInfos() []ipc.RoomInfo {
	rooms := r.registry.Rooms()
	out := make([]ipc.RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, ipc.RoomInfo{
			WorkerID:   r.id,
			RoomID:     room.ID,
			Code:       room.Code,
			Visibility: string(room.Visibility),
			Players:    room.PlayerCount(),
			MaxPlayers: room.MaxPlayers,
			State:      string(room.State),
		})
	}
	return out
}

// roomForClient resolves the room a client currently occupies.
func (r *Runtime) roomForClient(clientID string) *session.Room {
	c, ok := r.clients[clientID]
	if !ok || c.roomID == "" {
		return nil
	}
	return r.registry.Room(c.roomID)
}
