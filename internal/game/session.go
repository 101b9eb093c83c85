// Package game implements the authoritative simulation for one room: the
// player roster, live projectiles, and the fixed-tick step that advances
// physics, resolves collisions, and applies damage. The package is pure in
// the sense that nothing here reads the wall clock or touches the network;
// the owner passes `now` into Step and Apply, which keeps every test
// deterministic.
package game

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Settings are the injected timing knobs. They are configuration, not
// invariants: the simulation is correct for any positive values.
type Settings struct {
	TickInterval time.Duration
	RespawnDelay time.Duration
	HealDuration time.Duration
	DashRecharge time.Duration
}

// Session holds the authoritative state for one room and advances it tick by
// tick. All mutation happens through Apply (validated input) and Step (time);
// the owner is expected to call both from a single goroutine.
type Session struct {
	settings Settings

	players map[string]*PlayerState
	// order preserves roster insertion order so per-tick iteration is
	// deterministic (players updated in roster order, then projectiles,
	// then collisions).
	order []string

	projectiles []*Projectile

	events         []Event
	nextProjectile int
	spawnIdx       int
	rng            *rand.Rand
}

// NewSession creates an empty session. The rng only perturbs shotgun pellet
// spread; it never influences who gets hit first within a tick.
func NewSession(settings Settings) *Session {
	return &Session{
		settings: settings,
		players:  make(map[string]*PlayerState),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// AddPlayer joins a player with full health and the default loadout. Joining
// an id that already exists returns the existing state unchanged.
func (s *Session) AddPlayer(id, name string) *PlayerState {
	if p, ok := s.players[id]; ok {
		return p
	}
	p := newPlayer(id, name, s.nextSpawn())
	s.players[id] = p
	s.order = append(s.order, id)
	return p
}

// RemovePlayer drops a player from the roster. Kill counters live on the
// owning room and are unaffected.
func (s *Session) RemovePlayer(id string) {
	if _, ok := s.players[id]; !ok {
		return
	}
	delete(s.players, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Player returns the state for id, or nil.
func (s *Session) Player(id string) *PlayerState { return s.players[id] }

// Players returns the roster in insertion order.
func (s *Session) Players() []*PlayerState {
	out := make([]*PlayerState, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.players[id])
	}
	return out
}

// PlayerCount returns the roster size.
func (s *Session) PlayerCount() int { return len(s.players) }

// Projectiles returns the live projectile set.
func (s *Session) Projectiles() []*Projectile { return s.projectiles }

// DrainEvents returns and clears the events accumulated since the last call.
func (s *Session) DrainEvents() []Event {
	ev := s.events
	s.events = nil
	return ev
}

// Step advances the simulation one tick. Order within a tick is fixed:
// players (gravity, respawn poll, reload completion, dash recharge) in roster
// order, then projectile movement, then collision and damage resolution.
func (s *Session) Step(now time.Time) {
	dt := s.settings.TickInterval.Seconds()

	for _, id := range s.order {
		s.stepPlayer(s.players[id], now, dt)
	}

	// Advance projectiles, compacting expired ones in place.
	live := s.projectiles[:0]
	for _, pr := range s.projectiles {
		pr.Position = pr.Position.Add(pr.Direction.Scale(pr.Speed * dt))
		if !pr.expired(now) {
			live = append(live, pr)
		}
	}
	s.projectiles = live

	s.resolveCollisions(now)
}

func (s *Session) stepPlayer(p *PlayerState, now time.Time, dt float64) {
	if !p.Alive {
		if now.Sub(p.DeathTime) >= s.settings.RespawnDelay {
			p.respawn(s.nextSpawn())
			s.events = append(s.events, Event{Kind: EventRespawn, PlayerID: p.ID, Position: p.Position})
		}
		return
	}

	if !p.grounded() {
		p.Velocity.Y += Gravity * dt
		p.Position.Y += p.Velocity.Y * dt
		if p.Position.Y <= GroundY {
			p.Position.Y = GroundY
			p.Velocity.Y = 0
		}
	}

	if p.Reloading && !now.Before(p.ReloadedAt) {
		w := p.weapon()
		need := w.MagazineSize - p.Magazine
		if need > p.Reserve {
			need = p.Reserve
		}
		p.Magazine += need
		p.Reserve -= need
		p.Reloading = false
	}

	for len(p.dashReady) > 0 && !now.Before(p.dashReady[0]) {
		p.dashReady = p.dashReady[1:]
		if p.DashCharges < DashMaxCharges {
			p.DashCharges++
		}
	}
}

// resolveCollisions tests every live projectile against every player in
// roster order, skipping the shooter and the dead. The cylinder test is
// horizontal distance < PlayerRadius and vertical offset within half the
// player height, measured at chest height.
func (s *Session) resolveCollisions(now time.Time) {
	live := s.projectiles[:0]
	for _, pr := range s.projectiles {
		hit := false
		for _, id := range s.order {
			p := s.players[id]
			if p.ID == pr.OwnerID || !p.Alive {
				continue
			}
			center := p.Position
			center.Y += PlayerHalfHeight
			if pr.Position.HorizontalDist(center) < PlayerRadius &&
				math.Abs(pr.Position.Y-center.Y) < PlayerHalfHeight {
				s.events = append(s.events, Event{
					Kind:         EventHit,
					PlayerID:     p.ID,
					OtherID:      pr.OwnerID,
					Damage:       pr.Damage,
					ProjectileID: pr.ID,
					Position:     pr.Position,
				})
				s.applyDamage(p, pr.OwnerID, pr.Damage, now)
				hit = true
				break
			}
		}
		if !hit {
			live = append(live, pr)
		}
	}
	s.projectiles = live
}

// applyDamage lowers health and performs the at-most-once death transition.
// Damage to an already-dead player is a no-op, so cumulative overkill within
// a tick produces exactly one death event.
func (s *Session) applyDamage(victim *PlayerState, attackerID string, damage int, now time.Time) {
	if !victim.Alive {
		return
	}
	victim.Health -= damage
	s.events = append(s.events, Event{
		Kind:     EventDamageDealt,
		PlayerID: victim.ID,
		OtherID:  attackerID,
		Damage:   damage,
		Health:   victim.Health,
	})
	if victim.Health > 0 {
		return
	}
	victim.Health = 0
	victim.Alive = false
	victim.DeathTime = now
	victim.Deaths++
	victim.Healing = false
	victim.Reloading = false
	if attacker, ok := s.players[attackerID]; ok {
		attacker.Kills++
	}
	s.events = append(s.events, Event{
		Kind:     EventDeath,
		PlayerID: victim.ID,
		OtherID:  attackerID,
	})
}

func (s *Session) nextSpawn() Vec3 {
	sp := spawnPoints[s.spawnIdx%len(spawnPoints)]
	s.spawnIdx++
	return sp
}

func (s *Session) nextProjectileID() string {
	s.nextProjectile++
	return fmt.Sprintf("pr%d", s.nextProjectile)
}
