package game

import "time"

// PlayerState is the authoritative per-player state inside one session. It is
// mutated only by the session in response to validated input or the tick; the
// room's kill counters live outside and survive this struct's removal.
type PlayerState struct {
	ID   string
	Name string

	Position Vec3
	Velocity Vec3
	Yaw      float64
	Pitch    float64

	Health    int
	MaxHealth int
	Alive     bool
	DeathTime time.Time

	WeaponID   string
	Magazine   int
	Reserve    int
	Reloading  bool
	ReloadedAt time.Time // when the in-progress reload completes

	DashCharges int
	dashReady   []time.Time // recharge completion time per spent charge

	Healing     bool
	HealStarted time.Time

	LastShot time.Time

	Kills  int
	Deaths int
}

func newPlayer(id, name string, spawn Vec3) *PlayerState {
	w, _ := WeaponByID(DefaultWeaponID)
	return &PlayerState{
		ID:          id,
		Name:        name,
		Position:    spawn,
		Health:      PlayerMaxHealth,
		MaxHealth:   PlayerMaxHealth,
		Alive:       true,
		WeaponID:    w.ID,
		Magazine:    w.MagazineSize,
		Reserve:     w.ReserveAmmo,
		DashCharges: DashMaxCharges,
	}
}

// weapon returns the player's current weapon row. The id is always valid
// because weapon changes are validated on the way in.
func (p *PlayerState) weapon() Weapon {
	w, _ := WeaponByID(p.WeaponID)
	return w
}

func (p *PlayerState) grounded() bool {
	return p.Position.Y <= GroundY
}

// respawn resets the player to a fresh spawn with full health and a full
// magazine for the weapon they died holding.
func (p *PlayerState) respawn(spawn Vec3) {
	w := p.weapon()
	p.Position = spawn
	p.Velocity = Vec3{}
	p.Health = p.MaxHealth
	p.Alive = true
	p.DeathTime = time.Time{}
	p.Magazine = w.MagazineSize
	p.Reserve = w.ReserveAmmo
	p.Reloading = false
	p.Healing = false
	p.DashCharges = DashMaxCharges
	p.dashReady = nil
}
