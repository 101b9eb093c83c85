package game

import (
	"math"
	"time"
)

// InputKind selects the handler in the Apply dispatch table.
type InputKind string

const (
	InputMove         InputKind = "move"
	InputShoot        InputKind = "shoot"
	InputReload       InputKind = "reload"
	InputDash         InputKind = "dash"
	InputJump         InputKind = "jump"
	InputWeaponChange InputKind = "weaponChange"
	InputMelee        InputKind = "melee"
	InputRespawn      InputKind = "respawn"
	InputAmmoPickup   InputKind = "ammoPickup"
	InputHealStart    InputKind = "healStart"
	InputHealCancel   InputKind = "healCancel"
	InputHealComplete InputKind = "healComplete"
)

// Input is one client action after protocol decoding. Only the fields
// relevant to Kind are read.
type Input struct {
	Kind InputKind

	Position Vec3
	Velocity Vec3
	Yaw      float64
	Pitch    float64

	Direction Vec3 // aim for shoot/melee

	WeaponID string
}

// Stable reason codes for rejected input. Rejection is a normal outcome, not
// an error; state is never mutated on a rejected input.
const (
	ReasonUnknownPlayer  = "unknown_player"
	ReasonDead           = "dead"
	ReasonNotDead        = "not_dead"
	ReasonReloading      = "reloading"
	ReasonNoAmmo         = "no_ammo"
	ReasonCooldown       = "cooldown"
	ReasonNoDashCharge   = "no_dash_charge"
	ReasonNotGrounded    = "not_grounded"
	ReasonUnknownWeapon  = "unknown_weapon"
	ReasonInvalidMove    = "invalid_move"
	ReasonMagazineFull   = "magazine_full"
	ReasonNoReserve      = "no_reserve"
	ReasonRespawnPending = "respawn_pending"
	ReasonFullHealth     = "full_health"
	ReasonAlreadyHealing = "already_healing"
	ReasonNotHealing     = "not_healing"
	ReasonHealIncomplete = "heal_incomplete"
	ReasonUnknownInput   = "unknown_input"
)

// Result is the structured outcome of one input application.
type Result struct {
	OK     bool
	Reason string
}

func ok() Result                { return Result{OK: true} }
func fail(reason string) Result { return Result{Reason: reason} }

// Apply validates and executes one input for playerID. Each handler checks
// its preconditions first and returns a reason code on failure; a failed
// input leaves the session untouched.
func (s *Session) Apply(playerID string, in Input, now time.Time) Result {
	p, exists := s.players[playerID]
	if !exists {
		return fail(ReasonUnknownPlayer)
	}

	switch in.Kind {
	case InputMove:
		return s.applyMove(p, in)
	case InputShoot:
		return s.applyShoot(p, in, now)
	case InputReload:
		return s.applyReload(p, now)
	case InputDash:
		return s.applyDash(p, in, now)
	case InputJump:
		return s.applyJump(p)
	case InputWeaponChange:
		return s.applyWeaponChange(p, in)
	case InputMelee:
		return s.applyMelee(p, in, now)
	case InputRespawn:
		return s.applyRespawn(p, now)
	case InputAmmoPickup:
		return s.applyAmmoPickup(p)
	case InputHealStart:
		return s.applyHealStart(p, now)
	case InputHealCancel:
		return s.applyHealCancel(p)
	case InputHealComplete:
		return s.applyHealComplete(p, now)
	default:
		return fail(ReasonUnknownInput)
	}
}

// applyMove accepts the client-simulated position. Server-side movement
// validation is limited to sanity (finite, inside the play volume); fine
// reconciliation thresholds are a client concern.
func (s *Session) applyMove(p *PlayerState, in Input) Result {
	if !p.Alive {
		return fail(ReasonDead)
	}
	if !in.Position.Finite() || !in.Velocity.Finite() ||
		math.Abs(in.Position.X) > MaxCoordinate ||
		math.Abs(in.Position.Y) > MaxCoordinate ||
		math.Abs(in.Position.Z) > MaxCoordinate {
		return fail(ReasonInvalidMove)
	}
	p.Position = in.Position
	p.Velocity = in.Velocity
	p.Yaw = in.Yaw
	p.Pitch = in.Pitch
	return ok()
}

func (s *Session) applyShoot(p *PlayerState, in Input, now time.Time) Result {
	if !p.Alive {
		return fail(ReasonDead)
	}
	if p.Reloading {
		return fail(ReasonReloading)
	}
	w := p.weapon()
	if w.Melee {
		return s.applyMelee(p, in, now)
	}
	if p.Magazine <= 0 {
		return fail(ReasonNoAmmo)
	}
	if now.Sub(p.LastShot) < w.FireInterval {
		return fail(ReasonCooldown)
	}
	dir := in.Direction.Normalized()
	if dir.Len() == 0 || !dir.Finite() {
		return fail(ReasonInvalidMove)
	}

	p.Magazine--
	p.LastShot = now
	p.Healing = false // shooting interrupts a heal channel

	origin := p.Position
	origin.Y += PlayerEyeHeight
	pellets := w.Pellets
	if pellets < 1 {
		pellets = 1
	}
	for i := 0; i < pellets; i++ {
		d := dir
		if w.Spread > 0 {
			d = s.spreadDirection(dir, w.Spread)
		}
		pr := &Projectile{
			ID:        s.nextProjectileID(),
			OwnerID:   p.ID,
			Position:  origin,
			Direction: d,
			Speed:     w.Speed,
			Damage:    w.Damage,
			Range:     w.Range,
			Origin:    origin,
			SpawnedAt: now,
		}
		s.projectiles = append(s.projectiles, pr)
		s.events = append(s.events, Event{
			Kind:         EventBulletCreated,
			PlayerID:     p.ID,
			ProjectileID: pr.ID,
			Position:     pr.Position,
		})
	}
	return ok()
}

func (s *Session) applyReload(p *PlayerState, now time.Time) Result {
	if !p.Alive {
		return fail(ReasonDead)
	}
	if p.Reloading {
		return fail(ReasonReloading)
	}
	w := p.weapon()
	if w.Melee || p.Magazine >= w.MagazineSize {
		return fail(ReasonMagazineFull)
	}
	if p.Reserve <= 0 {
		return fail(ReasonNoReserve)
	}
	p.Reloading = true
	p.ReloadedAt = now.Add(w.ReloadTime)
	return ok()
}

func (s *Session) applyDash(p *PlayerState, in Input, now time.Time) Result {
	if !p.Alive {
		return fail(ReasonDead)
	}
	if p.DashCharges <= 0 {
		return fail(ReasonNoDashCharge)
	}
	p.DashCharges--
	p.dashReady = append(p.dashReady, now.Add(s.settings.DashRecharge))
	// The dash impulse itself is client-simulated; the server spends the
	// charge and accepts the resulting move updates.
	if dir := in.Direction.Normalized(); dir.Len() > 0 && dir.Finite() {
		p.Velocity = p.Velocity.Add(dir.Scale(2))
	}
	return ok()
}

func (s *Session) applyJump(p *PlayerState) Result {
	if !p.Alive {
		return fail(ReasonDead)
	}
	if !p.grounded() {
		return fail(ReasonNotGrounded)
	}
	p.Velocity.Y = JumpVelocity
	p.Position.Y = GroundY + 0.001 // leave the ground so gravity applies next tick
	return ok()
}

func (s *Session) applyWeaponChange(p *PlayerState, in Input) Result {
	if !p.Alive {
		return fail(ReasonDead)
	}
	w, known := WeaponByID(in.WeaponID)
	if !known {
		return fail(ReasonUnknownWeapon)
	}
	p.WeaponID = w.ID
	p.Magazine = w.MagazineSize
	p.Reserve = w.ReserveAmmo
	p.Reloading = false
	p.LastShot = time.Time{}
	return ok()
}

// applyMelee resolves a single swing as an immediate hit test against every
// living player within range and inside the aim arc. At most one target is
// struck per swing, nearest first.
func (s *Session) applyMelee(p *PlayerState, in Input, now time.Time) Result {
	if !p.Alive {
		return fail(ReasonDead)
	}
	w, _ := WeaponByID("knife")
	if now.Sub(p.LastShot) < w.FireInterval {
		return fail(ReasonCooldown)
	}
	p.LastShot = now

	aim := in.Direction
	aim.Y = 0
	aim = aim.Normalized()

	var target *PlayerState
	best := math.Inf(1)
	for _, id := range s.order {
		other := s.players[id]
		if other.ID == p.ID || !other.Alive {
			continue
		}
		dist := p.Position.HorizontalDist(other.Position)
		if dist > MeleeRange || dist >= best {
			continue
		}
		if aim.Len() > 0 {
			to := other.Position.Sub(p.Position)
			to.Y = 0
			if to.Normalized().Dot(aim) < MeleeArcCos {
				continue
			}
		}
		target = other
		best = dist
	}
	if target != nil {
		s.events = append(s.events, Event{
			Kind:     EventHit,
			PlayerID: target.ID,
			OtherID:  p.ID,
			Damage:   w.Damage,
			Position: target.Position,
		})
		s.applyDamage(target, p.ID, w.Damage, now)
	}
	return ok()
}

func (s *Session) applyRespawn(p *PlayerState, now time.Time) Result {
	if p.Alive {
		return fail(ReasonNotDead)
	}
	if now.Sub(p.DeathTime) < s.settings.RespawnDelay {
		return fail(ReasonRespawnPending)
	}
	p.respawn(s.nextSpawn())
	s.events = append(s.events, Event{Kind: EventRespawn, PlayerID: p.ID, Position: p.Position})
	return ok()
}

func (s *Session) applyAmmoPickup(p *PlayerState) Result {
	if !p.Alive {
		return fail(ReasonDead)
	}
	w := p.weapon()
	if w.Melee {
		return fail(ReasonMagazineFull)
	}
	p.Reserve += AmmoPickupAmount
	if p.Reserve > w.ReserveAmmo*2 {
		p.Reserve = w.ReserveAmmo * 2
	}
	return ok()
}

func (s *Session) applyHealStart(p *PlayerState, now time.Time) Result {
	if !p.Alive {
		return fail(ReasonDead)
	}
	if p.Health >= p.MaxHealth {
		return fail(ReasonFullHealth)
	}
	if p.Healing {
		return fail(ReasonAlreadyHealing)
	}
	p.Healing = true
	p.HealStarted = now
	return ok()
}

func (s *Session) applyHealCancel(p *PlayerState) Result {
	if !p.Healing {
		return fail(ReasonNotHealing)
	}
	p.Healing = false
	return ok()
}

func (s *Session) applyHealComplete(p *PlayerState, now time.Time) Result {
	if !p.Alive {
		return fail(ReasonDead)
	}
	if !p.Healing {
		return fail(ReasonNotHealing)
	}
	if now.Sub(p.HealStarted) < s.settings.HealDuration {
		return fail(ReasonHealIncomplete)
	}
	p.Healing = false
	p.Health += HealAmount
	if p.Health > p.MaxHealth {
		p.Health = p.MaxHealth
	}
	return ok()
}

// spreadDirection perturbs dir by up to `spread` radians on two axes. Only
// pellet dispersion uses randomness; hit resolution stays deterministic.
func (s *Session) spreadDirection(dir Vec3, spread float64) Vec3 {
	yaw := (s.rng.Float64()*2 - 1) * spread
	pitch := (s.rng.Float64()*2 - 1) * spread

	sinY, cosY := math.Sincos(yaw)
	x := dir.X*cosY - dir.Z*sinY
	z := dir.X*sinY + dir.Z*cosY
	y := dir.Y + pitch
	return Vec3{X: x, Y: y, Z: z}.Normalized()
}
