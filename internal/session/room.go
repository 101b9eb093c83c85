// Package session is the per-worker room registry: room creation and lookup,
// join codes, the matchmaking placement policy, and the idle sweep. Everything
// here is owned by the worker's event goroutine; there is no locking because
// there is exactly one writer.
package session

import (
	"time"

	"github.com/lowline/skirmish/internal/game"
)

// Visibility controls whether a room is eligible for public matchmaking.
type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
)

// State tracks whether a room has ever seen a player this round.
type State string

const (
	Waiting State = "waiting"
	Playing State = "playing"
)

// Room binds a join code and its membership to one game session. Kill
// counters live on the room, not the player, so a disconnect and rejoin
// within the same room keeps the score.
type Room struct {
	ID         string
	Code       string
	Visibility Visibility
	Password   string // ignored for Public rooms
	MaxPlayers int
	State      State

	Session *game.Session

	players        map[string]string // playerID -> display name
	killCounts     map[string]int
	lastActivityAt time.Time
}

func newRoom(id, code string, visibility Visibility, password string, maxPlayers int, settings game.Settings, now time.Time) *Room {
	return &Room{
		ID:             id,
		Code:           code,
		Visibility:     visibility,
		Password:       password,
		MaxPlayers:     maxPlayers,
		State:          Waiting,
		Session:        game.NewSession(settings),
		players:        make(map[string]string),
		killCounts:     make(map[string]int),
		lastActivityAt: now,
	}
}

// Join adds a player to the room and its session. Capacity is the only
// check here; password and code resolution happen in the registry.
func (r *Room) Join(playerID, name string, now time.Time) error {
	if len(r.players) >= r.MaxPlayers {
		return ErrRoomFull
	}
	r.players[playerID] = name
	if _, ok := r.killCounts[playerID]; !ok {
		r.killCounts[playerID] = 0
	}
	r.Session.AddPlayer(playerID, name)
	r.State = Playing
	r.lastActivityAt = now
	return nil
}

// Leave removes a player from the room and its session. The kill counter
// stays so a reconnect within the room's lifetime resumes the score.
func (r *Room) Leave(playerID string, now time.Time) {
	delete(r.players, playerID)
	r.Session.RemovePlayer(playerID)
	r.lastActivityAt = now
	if len(r.players) == 0 {
		r.State = Waiting
	}
}

// Has reports whether playerID is currently in the room.
func (r *Room) Has(playerID string) bool {
	_, ok := r.players[playerID]
	return ok
}

// PlayerName returns the display name registered at join time.
func (r *Room) PlayerName(playerID string) string { return r.players[playerID] }

// PlayerCount returns the current membership size.
func (r *Room) PlayerCount() int { return len(r.players) }

// Full reports whether the room is at capacity.
func (r *Room) Full() bool { return len(r.players) >= r.MaxPlayers }

// RecordKill bumps the room-scoped kill counter for playerID.
func (r *Room) RecordKill(playerID string) {
	r.killCounts[playerID]++
}

// KillCounts returns a copy of the room scoreboard.
func (r *Room) KillCounts() map[string]int {
	out := make(map[string]int, len(r.killCounts))
	for id, n := range r.killCounts {
		out[id] = n
	}
	return out
}

// Touch marks the room active now, deferring the idle sweep.
func (r *Room) Touch(now time.Time) { r.lastActivityAt = now }

// idleSince reports whether the room has been empty past the idle window.
// A room holding even one player is never idle.
func (r *Room) idleSince(now time.Time, window time.Duration) bool {
	return len(r.players) == 0 && now.Sub(r.lastActivityAt) > window
}
