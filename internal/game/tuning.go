package game

import "time"

// Simulation tuning constants. These are read-only parameter tables; gameplay
// balance lives here, correctness does not.
const (
	PlayerRadius     = 0.6  // cylinder radius for projectile hits
	PlayerHalfHeight = 0.9  // half the hit cylinder height
	PlayerEyeHeight  = 1.6  // projectile spawn height above feet
	PlayerMaxHealth  = 100
	GroundY          = 0.0
	Gravity          = -22.0 // units/s², applied while airborne
	JumpVelocity     = 8.5
	MaxCoordinate    = 4096.0 // positions outside ±this are rejected as invalid

	DashMaxCharges = 2

	MeleeRange  = 2.2
	MeleeDamage = 55
	// Dot product threshold between aim and target direction for a melee hit.
	// cos(~60°) half-angle keeps swings from hitting targets behind the player.
	MeleeArcCos = 0.5

	ProjectileLifetime = 3 * time.Second

	AmmoPickupAmount = 30
	HealAmount       = 50
)

// spawnPoints are cycled through as players join or respawn.
var spawnPoints = []Vec3{
	{X: -18, Y: 0, Z: -18},
	{X: 18, Y: 0, Z: -18},
	{X: -18, Y: 0, Z: 18},
	{X: 18, Y: 0, Z: 18},
	{X: 0, Y: 0, Z: -24},
	{X: 0, Y: 0, Z: 24},
	{X: -24, Y: 0, Z: 0},
	{X: 24, Y: 0, Z: 0},
}
