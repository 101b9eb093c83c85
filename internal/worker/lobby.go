package worker

import (
	"errors"
	"time"

	"github.com/lowline/skirmish/internal/protocol"
	"github.com/lowline/skirmish/internal/session"
)

// handleLobby executes one lobby action and answers with a lobbyResponse.
// Successful joins additionally push a welcome frame and announce the player
// to the rest of the room.
func (r *Runtime) handleLobby(c *client, env protocol.Envelope, now time.Time) {
	req, err := protocol.DecodePayload[protocol.LobbyRequest](env)
	if err != nil {
		r.log.Warn("bad lobby payload", "player", c.id, "error", err)
		r.sendTo(c.id, protocol.MsgLobbyResponse, protocol.LobbyResponse{
			OK: false, Reason: protocol.ReasonUnknownAction,
		})
		return
	}
	if req.Name != "" {
		c.name = req.Name
	}

	switch req.Action {
	case protocol.ActionMatchmaking:
		room := r.registry.Matchmake(c.id, c.name, now)
		r.completeJoin(c, room, req.Action, now)

	case protocol.ActionCreatePrivate:
		room := r.registry.CreateRoom(session.Private, req.Password, now)
		if _, err := r.registry.Join(room.Code, req.Password, c.id, c.name, now); err != nil {
			// A freshly created room only fails on capacity zero, which is a
			// config problem; report it as full rather than lying.
			r.sendTo(c.id, protocol.MsgLobbyResponse, protocol.LobbyResponse{
				Action: req.Action, OK: false, Reason: joinReason(err),
			})
			return
		}
		r.completeJoin(c, room, req.Action, now)

	case protocol.ActionJoinPrivate:
		room, err := r.registry.Join(req.Code, req.Password, c.id, c.name, now)
		if err != nil {
			r.sendTo(c.id, protocol.MsgLobbyResponse, protocol.LobbyResponse{
				Action: req.Action, OK: false, Reason: joinReason(err),
			})
			return
		}
		r.completeJoin(c, room, req.Action, now)

	case protocol.ActionListRooms:
		rooms := make([]protocol.RoomInfo, 0)
		for _, room := range r.registry.AvailablePublicRooms() {
			rooms = append(rooms, protocol.RoomInfo{
				Code:       room.Code,
				Players:    room.PlayerCount(),
				MaxPlayers: room.MaxPlayers,
				State:      string(room.State),
			})
		}
		r.sendTo(c.id, protocol.MsgLobbyResponse, protocol.LobbyResponse{
			Action: req.Action, OK: true, Rooms: rooms,
		})

	default:
		r.sendTo(c.id, protocol.MsgLobbyResponse, protocol.LobbyResponse{
			Action: req.Action, OK: false, Reason: protocol.ReasonUnknownAction,
		})
	}
}

// completeJoin finalizes room entry: response, welcome, and the join
// announcement to everyone already there.
func (r *Runtime) completeJoin(c *client, room *session.Room, action string, now time.Time) {
	if c.roomID != "" && c.roomID != room.ID {
		// Joining a new room implicitly leaves the old one. The registry
		// fires the player_left event toward the master.
		if old := r.registry.Room(c.roomID); old != nil && old.Has(c.id) {
			old.Leave(c.id, now)
			r.sendIPCPlayerLeft(old, c.id)
		}
	}
	c.roomID = room.ID

	r.sendTo(c.id, protocol.MsgLobbyResponse, protocol.LobbyResponse{
		Action: action, OK: true, RoomID: room.ID, Code: room.Code,
	})

	var others []protocol.PlayerView
	for _, p := range room.Session.Players() {
		if p.ID != c.id {
			others = append(others, playerView(p, room))
		}
	}
	self := room.Session.Player(c.id)
	r.sendTo(c.id, protocol.MsgWelcome, protocol.Welcome{
		PlayerID: c.id,
		RoomID:   room.ID,
		Code:     room.Code,
		TickRate: r.cfg.TickRate,
		Self:     playerView(self, room),
		Players:  others,
	})

	r.broadcastExcept(room, c.id, protocol.MsgPlayerJoined, protocol.PlayerEvent{
		PlayerID: c.id, Name: c.name,
	})
}

// broadcastExcept is broadcast minus one recipient, for join announcements.
func (r *Runtime) broadcastExcept(room *session.Room, skipID, msgType string, payload any) {
	b, err := protocol.Encode(msgType, payload)
	if err != nil {
		return
	}
	var failed []string
	for id, c := range r.clients {
		if c.roomID != room.ID || id == skipID {
			continue
		}
		if err := c.conn.Send(b); err != nil {
			failed = append(failed, id)
		}
	}
	for _, id := range failed {
		r.Disconnect(id, time.Now())
	}
}

// joinReason maps registry errors to wire reason codes.
func joinReason(err error) string {
	switch {
	case errors.Is(err, session.ErrRoomNotFound):
		return protocol.ReasonRoomNotFound
	case errors.Is(err, session.ErrWrongPassword):
		return protocol.ReasonWrongPassword
	case errors.Is(err, session.ErrRoomFull):
		return protocol.ReasonRoomFull
	default:
		return protocol.ReasonUnknownAction
	}
}
