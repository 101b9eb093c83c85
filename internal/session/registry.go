package session

import (
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"github.com/rs/xid"

	"github.com/lowline/skirmish/internal/game"
)

// Distinct user-facing join failures. These map 1:1 onto the lobby reason
// codes sent back to clients.
var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrWrongPassword = errors.New("wrong password")
	ErrRoomFull      = errors.New("room full")
)

// Ambiguous characters (0/O, 1/I) are excluded from join codes.
const codeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLength = 6

// Settings configure the registry and the sessions it creates.
type Settings struct {
	MaxPlayersPerRoom int
	IdleTimeout       time.Duration
	Game              game.Settings
}

// Events let the owner observe registry mutations, typically to forward them
// to the master over IPC. Any hook may be nil.
type Events struct {
	RoomCreated  func(r *Room)
	RoomDeleted  func(r *Room)
	PlayerJoined func(r *Room, playerID string)
	PlayerLeft   func(r *Room, playerID string)
}

// Registry owns every room on one worker. Codes and room ids are unique
// within the worker only; clients always reach a room through the worker
// they are connected to, so cluster-global uniqueness is unnecessary.
type Registry struct {
	settings Settings
	events   Events

	rooms  map[string]*Room // by id
	byCode map[string]*Room
}

func NewRegistry(settings Settings, events Events) *Registry {
	return &Registry{
		settings: settings,
		events:   events,
		rooms:    make(map[string]*Room),
		byCode:   make(map[string]*Room),
	}
}

// CreateRoom makes a room with a fresh id and join code. Code generation
// retries until it lands on an unused code.
func (g *Registry) CreateRoom(visibility Visibility, password string, now time.Time) *Room {
	code := g.newCode()
	r := newRoom(xid.New().String(), code, visibility, password, g.settings.MaxPlayersPerRoom, g.settings.Game, now)
	g.rooms[r.ID] = r
	g.byCode[code] = r
	if g.events.RoomCreated != nil {
		g.events.RoomCreated(r)
	}
	return r
}

// Room returns the room with the given id, or nil.
func (g *Registry) Room(id string) *Room { return g.rooms[id] }

// RoomByCode returns the room with the given join code, or nil.
func (g *Registry) RoomByCode(code string) *Room { return g.byCode[code] }

// Rooms returns every live room.
func (g *Registry) Rooms() []*Room {
	out := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		out = append(out, r)
	}
	return out
}

// RoomCount returns the number of live rooms.
func (g *Registry) RoomCount() int { return len(g.rooms) }

// PlayerCount returns the number of players across all rooms.
func (g *Registry) PlayerCount() int {
	n := 0
	for _, r := range g.rooms {
		n += r.PlayerCount()
	}
	return n
}

// Join puts a player into the room addressed by code, enforcing the
// password for private rooms. The three failure modes are distinct so the
// lobby can report them separately.
func (g *Registry) Join(code, password, playerID, name string, now time.Time) (*Room, error) {
	r := g.byCode[code]
	if r == nil {
		return nil, ErrRoomNotFound
	}
	if r.Visibility == Private && r.Password != password {
		return nil, ErrWrongPassword
	}
	if err := r.Join(playerID, name, now); err != nil {
		return nil, err
	}
	if g.events.PlayerJoined != nil {
		g.events.PlayerJoined(r, playerID)
	}
	return r, nil
}

// Leave removes a player from their room, if any.
func (g *Registry) Leave(playerID string, now time.Time) *Room {
	for _, r := range g.rooms {
		if !r.Has(playerID) {
			continue
		}
		r.Leave(playerID, now)
		if g.events.PlayerLeft != nil {
			g.events.PlayerLeft(r, playerID)
		}
		return r
	}
	return nil
}

// AvailablePublicRooms returns public rooms with space left.
func (g *Registry) AvailablePublicRooms() []*Room {
	var out []*Room
	for _, r := range g.rooms {
		if r.Visibility == Public && !r.Full() {
			out = append(out, r)
		}
	}
	return out
}

// Matchmake places a player in the fullest available public room, creating a
// new one when none has space. The create fallback means matchmaking never
// fails at the single-worker level.
func (g *Registry) Matchmake(playerID, name string, now time.Time) *Room {
	r := g.bestRoom()
	if r == nil {
		r = g.CreateRoom(Public, "", now)
	}
	// A fresh room always has space; an existing bestRoom was filtered on it.
	_, _ = g.Join(r.Code, "", playerID, name, now)
	return r
}

// bestRoom picks the available public room with the most players, ties going
// to the first found. Filling rooms before opening new ones keeps matches
// dense.
func (g *Registry) bestRoom() *Room {
	var best *Room
	for _, r := range g.AvailablePublicRooms() {
		if best == nil || r.PlayerCount() > best.PlayerCount() {
			best = r
		}
	}
	return best
}

// Sweep deletes rooms that have sat empty past the idle window and returns
// them. It runs on a timer rather than eagerly on last-leave so a brief
// disconnect can rejoin the same room.
func (g *Registry) Sweep(now time.Time) []*Room {
	var removed []*Room
	for id, r := range g.rooms {
		if !r.idleSince(now, g.settings.IdleTimeout) {
			continue
		}
		delete(g.rooms, id)
		delete(g.byCode, r.Code)
		removed = append(removed, r)
		if g.events.RoomDeleted != nil {
			g.events.RoomDeleted(r)
		}
	}
	return removed
}

func (g *Registry) newCode() string {
	for {
		code := generateCode(codeLength)
		if _, taken := g.byCode[code]; !taken {
			return code
		}
	}
}

func generateCode(n int) string {
	b := make([]byte, n)
	max := big.NewInt(int64(len(codeChars)))
	for i := range b {
		idx, _ := rand.Int(rand.Reader, max)
		b[i] = codeChars[idx.Int64()]
	}
	return string(b)
}
