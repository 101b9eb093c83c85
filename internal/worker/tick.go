package worker

import (
	"time"

	"github.com/lowline/skirmish/internal/game"
	"github.com/lowline/skirmish/internal/protocol"
	"github.com/lowline/skirmish/internal/session"
)

// Tick advances every room one simulation step, fans the resulting events
// out to the room's clients, and broadcasts the fresh state snapshot. Rooms
// are independent; a panic-free step in one is never affected by another.
func (r *Runtime) Tick(now time.Time) {
	for _, room := range r.registry.Rooms() {
		room.Session.Step(now)
		for _, ev := range room.Session.DrainEvents() {
			r.broadcastEvent(room, ev)
		}
		if room.PlayerCount() > 0 {
			r.broadcast(room, protocol.MsgState, r.snapshot(room))
		}
	}
}

// broadcastEvent translates one simulation event to its wire frame. Deaths
// also bump the room scoreboard before it is attached to the frame.
func (r *Runtime) broadcastEvent(room *session.Room, ev game.Event) {
	switch ev.Kind {
	case game.EventBulletCreated:
		r.broadcast(room, protocol.MsgBulletCreated, protocol.BulletEvent{
			ProjectileID: ev.ProjectileID,
			OwnerID:      ev.PlayerID,
			Position:     ev.Position,
		})
	case game.EventHit:
		r.broadcast(room, protocol.MsgHit, protocol.HitEvent{
			PlayerID:  ev.PlayerID,
			ShooterID: ev.OtherID,
			Damage:    ev.Damage,
			Position:  ev.Position,
		})
	case game.EventDamageDealt:
		r.broadcast(room, protocol.MsgDamageDealt, protocol.HitEvent{
			PlayerID:  ev.PlayerID,
			ShooterID: ev.OtherID,
			Damage:    ev.Damage,
			Health:    ev.Health,
		})
	case game.EventDeath:
		if ev.OtherID != "" && ev.OtherID != ev.PlayerID {
			room.RecordKill(ev.OtherID)
		}
		r.broadcast(room, protocol.MsgDeath, protocol.DeathEvent{
			VictimID:   ev.PlayerID,
			VictimName: room.PlayerName(ev.PlayerID),
			KillerID:   ev.OtherID,
			KillerName: room.PlayerName(ev.OtherID),
			Scoreboard: room.KillCounts(),
		})
	case game.EventRespawn:
		r.broadcast(room, protocol.MsgRespawned, protocol.RespawnEvent{
			PlayerID: ev.PlayerID,
			Position: ev.Position,
			Health:   game.PlayerMaxHealth,
		})
	}
}

// snapshot builds the per-tick state frame for one room.
func (r *Runtime) snapshot(room *session.Room) protocol.StateSnapshot {
	players := room.Session.Players()
	snap := protocol.StateSnapshot{
		Players:     make([]protocol.PlayerView, 0, len(players)),
		Projectiles: make([]protocol.ProjectileView, 0),
		Scoreboard:  room.KillCounts(),
	}
	for _, p := range players {
		snap.Players = append(snap.Players, playerView(p, room))
	}
	for _, pr := range room.Session.Projectiles() {
		snap.Projectiles = append(snap.Projectiles, protocol.ProjectileView{
			ID:        pr.ID,
			OwnerID:   pr.OwnerID,
			Position:  pr.Position,
			Direction: pr.Direction,
		})
	}
	return snap
}

func playerView(p *game.PlayerState, room *session.Room) protocol.PlayerView {
	if p == nil {
		return protocol.PlayerView{}
	}
	return protocol.PlayerView{
		ID:       p.ID,
		Name:     room.PlayerName(p.ID),
		Position: p.Position,
		Velocity: p.Velocity,
		Yaw:      p.Yaw,
		Pitch:    p.Pitch,
		Health:   p.Health,
		Alive:    p.Alive,
		WeaponID: p.WeaponID,
		Magazine: p.Magazine,
		Reserve:  p.Reserve,
	}
}
