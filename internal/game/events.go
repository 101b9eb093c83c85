package game

// EventKind tags simulation events drained once per tick for broadcast.
type EventKind string

const (
	EventBulletCreated EventKind = "bulletCreated"
	EventDamageDealt   EventKind = "damageDealt"
	EventHit           EventKind = "hit"
	EventDeath         EventKind = "death"
	EventRespawn       EventKind = "respawn"
)

// Event is one simulation occurrence. PlayerID is the subject (victim,
// respawner); OtherID names the second party (shooter, killer) where one
// exists.
type Event struct {
	Kind         EventKind
	PlayerID     string
	OtherID      string
	Damage       int
	Health       int
	ProjectileID string
	Position     Vec3
}
