// Package worker implements the worker process: the per-worker room
// registry, the websocket frontend, the fixed-tick simulation drive, and the
// IPC link back to the master. All state is owned by a single event
// goroutine; socket pumps and tickers communicate with it exclusively
// through the inbox, which is what lets rooms and sessions go lock-free.
package worker

import (
	"time"

	"github.com/rs/xid"
	"pkt.systems/pslog"

	"github.com/lowline/skirmish/internal/config"
	"github.com/lowline/skirmish/internal/game"
	"github.com/lowline/skirmish/internal/ipc"
	"github.com/lowline/skirmish/internal/protocol"
	"github.com/lowline/skirmish/internal/session"
)

// ClientConn is the transport-facing surface of one connected player. The
// websocket server provides the real implementation; tests substitute a
// buffer.
type ClientConn interface {
	Send(b []byte) error
	Close() error
}

// IPCSender delivers frames to the master. Nil-safe wrapper methods on the
// runtime keep standalone mode (no master) working.
type IPCSender interface {
	Send(msg ipc.Message) error
}

type client struct {
	id     string
	name   string
	conn   ClientConn
	roomID string
}

// Runtime is one worker's event-loop state.
type Runtime struct {
	cfg config.Config
	id  int
	log pslog.Logger

	ipcOut   IPCSender
	registry *session.Registry
	clients  map[string]*client

	inbox     chan func()
	done      chan struct{}
	startedAt time.Time

	// memoryPercent returns the process heap ratio in [0,1]; swapped out in
	// tests.
	memoryPercent func() float64
}

// NewRuntime builds a worker runtime. ipcOut may be nil for standalone runs
// without a master.
func NewRuntime(cfg config.Config, workerID int, ipcOut IPCSender, log pslog.Logger) *Runtime {
	r := &Runtime{
		cfg:           cfg,
		id:            workerID,
		log:           log,
		ipcOut:        ipcOut,
		clients:       make(map[string]*client),
		inbox:         make(chan func(), 256),
		done:          make(chan struct{}),
		startedAt:     time.Now(),
		memoryPercent: processMemoryPercent,
	}
	r.registry = session.NewRegistry(session.Settings{
		MaxPlayersPerRoom: defaultRoomSize,
		IdleTimeout:       cfg.RoomIdleTimeout,
		Game: game.Settings{
			TickInterval: time.Second / time.Duration(cfg.TickRate),
			RespawnDelay: cfg.RespawnDelay,
			HealDuration: cfg.HealDuration,
			DashRecharge: cfg.DashRecharge,
		},
	}, session.Events{
		RoomCreated: func(room *session.Room) {
			r.sendIPC(ipc.TypeRoomCreated, ipc.RoomEventPayload{RoomID: room.ID, Code: room.Code})
		},
		RoomDeleted: func(room *session.Room) {
			r.sendIPC(ipc.TypeRoomDeleted, ipc.RoomEventPayload{RoomID: room.ID, Code: room.Code})
		},
		PlayerJoined: func(room *session.Room, playerID string) {
			r.sendIPC(ipc.TypePlayerJoined, ipc.PlayerEventPayload{RoomID: room.ID, PlayerID: playerID})
		},
		PlayerLeft: func(room *session.Room, playerID string) {
			r.sendIPC(ipc.TypePlayerLeft, ipc.PlayerEventPayload{RoomID: room.ID, PlayerID: playerID})
		},
	})
	return r
}

// defaultRoomSize is the per-room player cap handed to the registry.
const defaultRoomSize = 8

// Registry exposes the room registry for the status IPC handlers and tests.
func (r *Runtime) Registry() *session.Registry { return r.registry }

// Run drives the event loop until a shutdown message or ctx-free stop via
// Stop. Tick, sweep, and metrics all fire here so every handler runs on this
// one goroutine.
func (r *Runtime) Run() {
	tick := time.NewTicker(time.Second / time.Duration(r.cfg.TickRate))
	defer tick.Stop()
	sweep := time.NewTicker(r.cfg.RoomIdleTimeout / 2)
	defer sweep.Stop()
	metrics := time.NewTicker(r.cfg.HeartbeatInterval)
	defer metrics.Stop()

	r.reportMetrics()

	for {
		select {
		case <-r.done:
			return
		case fn := <-r.inbox:
			fn()
		case <-tick.C:
			r.Tick(time.Now())
		case <-sweep.C:
			r.registry.Sweep(time.Now())
		case <-metrics.C:
			r.reportMetrics()
		}
	}
}

// Dispatch queues fn onto the event goroutine. Socket pumps use this to
// hand frames over; it never blocks the loop itself.
func (r *Runtime) Dispatch(fn func()) {
	select {
	case r.inbox <- fn:
	case <-r.done:
	}
}

// Stop terminates the event loop. Idempotent.
func (r *Runtime) Stop() {
	select {
	case <-r.done:
	default:
		close(r.done)
	}
}

// Done reports loop termination to the main goroutine.
func (r *Runtime) Done() <-chan struct{} { return r.done }

// Connect registers a fresh connection, assigns a player id, and sends the
// connected frame. The ban gate has already passed by the time this runs.
func (r *Runtime) Connect(conn ClientConn, name string) string {
	id := xid.New().String()
	r.clients[id] = &client{id: id, name: name, conn: conn}
	r.sendTo(id, protocol.MsgConnected, protocol.PlayerEvent{PlayerID: id, Name: name})
	r.log.Debug("client connected", "player", id)
	return id
}

// Disconnect removes a client, leaving its room if it was in one. The
// client is dropped from the map before the leave announcement so it never
// receives its own departure.
func (r *Runtime) Disconnect(clientID string, now time.Time) {
	c, ok := r.clients[clientID]
	if !ok {
		return
	}
	delete(r.clients, clientID)
	if c.roomID != "" {
		if room := r.registry.Leave(clientID, now); room != nil {
			r.broadcast(room, protocol.MsgPlayerLeft, protocol.PlayerEvent{PlayerID: clientID, Name: c.name})
		}
	}
	_ = c.conn.Close()
	r.log.Debug("client disconnected", "player", clientID)
}

// HandleFrame dispatches one decoded client envelope. Unknown types are
// answered with a denial rather than dropped silently so client bugs
// surface.
func (r *Runtime) HandleFrame(clientID string, env protocol.Envelope, now time.Time) {
	c, ok := r.clients[clientID]
	if !ok {
		return
	}

	switch env.Type {
	case protocol.MsgLobby:
		r.handleLobby(c, env, now)
	case protocol.MsgInput, protocol.MsgShoot, protocol.MsgWeaponChange,
		protocol.MsgReload, protocol.MsgDash, protocol.MsgJump,
		protocol.MsgRespawn, protocol.MsgMeleeAttack, protocol.MsgAmmoPickup,
		protocol.MsgHealStart, protocol.MsgHealCancel, protocol.MsgHealComplete:
		r.handleGameplay(c, env, now)
	default:
		r.sendTo(clientID, protocol.MsgActionDenied, protocol.ActionDenied{
			Action: env.Type,
			Reason: protocol.ReasonUnknownAction,
		})
	}
}

// handleGameplay translates a wire message into a session input and applies
// it. Rejected inputs produce an actionDenied frame; the session state is
// untouched.
func (r *Runtime) handleGameplay(c *client, env protocol.Envelope, now time.Time) {
	if c.roomID == "" {
		r.sendTo(c.id, protocol.MsgActionDenied, protocol.ActionDenied{
			Action: env.Type,
			Reason: protocol.ReasonRoomNotFound,
		})
		return
	}
	room := r.registry.Room(c.roomID)
	if room == nil {
		c.roomID = ""
		return
	}

	in, err := inputFromEnvelope(env)
	if err != nil {
		r.log.Warn("bad gameplay payload", "player", c.id, "type", env.Type, "error", err)
		return
	}

	room.Touch(now)
	res := room.Session.Apply(c.id, in, now)
	if !res.OK {
		r.sendTo(c.id, protocol.MsgActionDenied, protocol.ActionDenied{Action: env.Type, Reason: res.Reason})
	}
}

// inputFromEnvelope maps wire message types onto simulation inputs.
func inputFromEnvelope(env protocol.Envelope) (game.Input, error) {
	switch env.Type {
	case protocol.MsgInput:
		p, err := protocol.DecodePayload[protocol.InputRequest](env)
		if err != nil {
			return game.Input{}, err
		}
		return game.Input{
			Kind:     game.InputMove,
			Position: p.Position,
			Velocity: p.Velocity,
			Yaw:      p.Yaw,
			Pitch:    p.Pitch,
		}, nil
	case protocol.MsgShoot:
		p, err := protocol.DecodePayload[protocol.ShootRequest](env)
		if err != nil {
			return game.Input{}, err
		}
		return game.Input{Kind: game.InputShoot, Direction: p.Direction}, nil
	case protocol.MsgMeleeAttack:
		p, err := protocol.DecodePayload[protocol.ShootRequest](env)
		if err != nil {
			return game.Input{}, err
		}
		return game.Input{Kind: game.InputMelee, Direction: p.Direction}, nil
	case protocol.MsgWeaponChange:
		p, err := protocol.DecodePayload[protocol.WeaponChangeRequest](env)
		if err != nil {
			return game.Input{}, err
		}
		return game.Input{Kind: game.InputWeaponChange, WeaponID: p.WeaponID}, nil
	case protocol.MsgDash:
		// Direction is optional on a dash.
		p, _ := protocol.DecodePayload[protocol.DashRequest](env)
		return game.Input{Kind: game.InputDash, Direction: p.Direction}, nil
	case protocol.MsgReload:
		return game.Input{Kind: game.InputReload}, nil
	case protocol.MsgJump:
		return game.Input{Kind: game.InputJump}, nil
	case protocol.MsgRespawn:
		return game.Input{Kind: game.InputRespawn}, nil
	case protocol.MsgAmmoPickup:
		return game.Input{Kind: game.InputAmmoPickup}, nil
	case protocol.MsgHealStart:
		return game.Input{Kind: game.InputHealStart}, nil
	case protocol.MsgHealCancel:
		return game.Input{Kind: game.InputHealCancel}, nil
	case protocol.MsgHealComplete:
		return game.Input{Kind: game.InputHealComplete}, nil
	}
	return game.Input{Kind: game.InputKind(env.Type)}, nil
}

// sendTo encodes and delivers one frame to one client, disconnecting it on a
// dead socket.
func (r *Runtime) sendTo(clientID, msgType string, payload any) {
	c, ok := r.clients[clientID]
	if !ok {
		return
	}
	b, err := protocol.Encode(msgType, payload)
	if err != nil {
		r.log.Error("encode failed", "type", msgType, "error", err)
		return
	}
	if err := c.conn.Send(b); err != nil {
		r.Disconnect(clientID, time.Now())
	}
}

// broadcast sends one frame to every client in the room.
func (r *Runtime) broadcast(room *session.Room, msgType string, payload any) {
	b, err := protocol.Encode(msgType, payload)
	if err != nil {
		r.log.Error("encode failed", "type", msgType, "error", err)
		return
	}
	var failed []string
	for id, c := range r.clients {
		if c.roomID != room.ID {
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

// sendIPC fires one frame at the master, logging and dropping on failure (a
// lost metric or event is corrected by the next heartbeat, never worth
// crashing over).
func (r *Runtime) sendIPC(t ipc.Type, payload any) {
	if r.ipcOut == nil {
		return
	}
	if err := r.ipcOut.Send(ipc.New(t, r.id, payload)); err != nil {
		r.log.Warn("ipc send failed", "type", t, "error", err)
	}
}

// sendIPCPlayerLeft reports a leave that bypassed the registry's Leave scan
// (switching rooms removes the player from the old room directly, since the
// registry scan would find the newly joined room first).
func (r *Runtime) sendIPCPlayerLeft(room *session.Room, playerID string) {
	r.sendIPC(ipc.TypePlayerLeft, ipc.PlayerEventPayload{RoomID: room.ID, PlayerID: playerID})
}

// reportMetrics pushes the heartbeat metrics frame.
func (r *Runtime) reportMetrics() {
	r.sendIPC(ipc.TypeMetrics, ipc.MetricsPayload{
		Rooms:         r.registry.RoomCount(),
		Players:       r.registry.PlayerCount(),
		MemoryPercent: r.memoryPercent(),
	})
}
