// Package protocol defines the client↔worker wire format: a JSON envelope
// carrying a type tag, a raw payload, and a client timestamp. The envelope is
// decoded once at the socket and the payload decoded again by the handler
// that owns the type.
package protocol

import "encoding/json"

// Client→server message types.
const (
	MsgLobby        = "lobby"
	MsgInput        = "input"
	MsgShoot        = "shoot"
	MsgWeaponChange = "weaponChange"
	MsgReload       = "reload"
	MsgDash         = "dash"
	MsgJump         = "jump"
	MsgRespawn      = "respawn"
	MsgMeleeAttack  = "meleeAttack"
	MsgAmmoPickup   = "ammoPickup"
	MsgHealStart    = "healStart"
	MsgHealCancel   = "healCancel"
	MsgHealComplete = "healComplete"
)

// Server→client message types.
const (
	MsgConnected     = "connected"
	MsgWelcome       = "welcome"
	MsgState         = "state"
	MsgPlayerJoined  = "playerJoined"
	MsgPlayerLeft    = "playerLeft"
	MsgHit           = "hit"
	MsgDeath         = "death"
	MsgRespawned     = "respawn"
	MsgBulletCreated = "bulletCreated"
	MsgDamageDealt   = "damageDealt"
	MsgLobbyResponse = "lobbyResponse"
	MsgActionDenied  = "actionDenied"
)

// Lobby actions carried inside a MsgLobby payload.
const (
	ActionMatchmaking   = "matchmaking"
	ActionCreatePrivate = "createPrivate"
	ActionJoinPrivate   = "joinPrivate"
	ActionListRooms     = "listRooms"
)

// Stable reason codes for failed lobby actions.
const (
	ReasonRoomFull      = "room_full"
	ReasonWrongPassword = "wrong_password"
	ReasonRoomNotFound  = "room_not_found"
	ReasonUnknownAction = "unknown_action"
)

// Envelope is the wire frame. Data stays raw until the typed handler
// decodes it; Timestamp is the client's clock in unix milliseconds and is
// echoed, never trusted.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}
