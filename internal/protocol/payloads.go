package protocol

import "github.com/lowline/skirmish/internal/game"

// LobbyRequest is the payload of a MsgLobby envelope.
type LobbyRequest struct {
	Action   string `json:"action"`
	Name     string `json:"name,omitempty"`
	Code     string `json:"code,omitempty"`
	Password string `json:"password,omitempty"`
}

// LobbyResponse reports the outcome of a lobby action. Reason is set only
// when OK is false and is one of the fixed reason codes.
type LobbyResponse struct {
	Action string     `json:"action"`
	OK     bool       `json:"ok"`
	Reason string     `json:"reason,omitempty"`
	RoomID string     `json:"roomId,omitempty"`
	Code   string     `json:"code,omitempty"`
	Rooms  []RoomInfo `json:"rooms,omitempty"`
}

// RoomInfo is one row of a listRooms response.
type RoomInfo struct {
	Code       string `json:"code"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"maxPlayers"`
	State      string `json:"state"`
}

// InputRequest is the payload of movement and aim updates.
type InputRequest struct {
	Position game.Vec3 `json:"position"`
	Velocity game.Vec3 `json:"velocity"`
	Yaw      float64   `json:"yaw"`
	Pitch    float64   `json:"pitch"`
}

// ShootRequest carries the aim direction for shoot and melee.
type ShootRequest struct {
	Direction game.Vec3 `json:"direction"`
}

// WeaponChangeRequest selects a weapon by id.
type WeaponChangeRequest struct {
	WeaponID string `json:"weaponId"`
}

// DashRequest carries the optional dash direction.
type DashRequest struct {
	Direction game.Vec3 `json:"direction"`
}

// Welcome assigns the player id and describes the joined room.
type Welcome struct {
	PlayerID string       `json:"playerId"`
	RoomID   string       `json:"roomId"`
	Code     string       `json:"code"`
	TickRate int          `json:"tickRate"`
	Self     PlayerView   `json:"self"`
	Players  []PlayerView `json:"players"`
}

// PlayerView is the per-player slice of a state snapshot.
type PlayerView struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Position game.Vec3 `json:"position"`
	Velocity game.Vec3 `json:"velocity"`
	Yaw      float64   `json:"yaw"`
	Pitch    float64   `json:"pitch"`
	Health   int       `json:"health"`
	Alive    bool      `json:"alive"`
	WeaponID string    `json:"weaponId"`
	Magazine int       `json:"magazine"`
	Reserve  int       `json:"reserve"`
}

// ProjectileView is the per-projectile slice of a state snapshot.
type ProjectileView struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Position  game.Vec3 `json:"position"`
	Direction game.Vec3 `json:"direction"`
}

// StateSnapshot is the per-tick broadcast.
type StateSnapshot struct {
	Players     []PlayerView     `json:"players"`
	Projectiles []ProjectileView `json:"projectiles"`
	Scoreboard  map[string]int   `json:"scoreboard"`
}

// PlayerEvent announces a join or leave.
type PlayerEvent struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name,omitempty"`
}

// HitEvent reports damage landing on a player.
type HitEvent struct {
	PlayerID  string    `json:"playerId"`
	ShooterID string    `json:"shooterId"`
	Damage    int       `json:"damage"`
	Health    int       `json:"health"`
	Position  game.Vec3 `json:"position"`
}

// DeathEvent names killer and victim and carries the updated scoreboard.
type DeathEvent struct {
	VictimID   string         `json:"victimId"`
	VictimName string         `json:"victimName"`
	KillerID   string         `json:"killerId"`
	KillerName string         `json:"killerName"`
	Scoreboard map[string]int `json:"scoreboard"`
}

// RespawnEvent announces a player returning at a fresh spawn.
type RespawnEvent struct {
	PlayerID string    `json:"playerId"`
	Position game.Vec3 `json:"position"`
	Health   int       `json:"health"`
}

// BulletEvent announces a spawned projectile.
type BulletEvent struct {
	ProjectileID string    `json:"projectileId"`
	OwnerID      string    `json:"ownerId"`
	Position     game.Vec3 `json:"position"`
}

// ActionDenied reports a rejected gameplay input with its reason code.
type ActionDenied struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}
