package game

import "time"

// Projectile is a live bullet owned exclusively by its session's projectile
// collection. It is destroyed on lifetime expiry, max-range expiry, or the
// first scored hit.
type Projectile struct {
	ID        string
	OwnerID   string
	Position  Vec3
	Direction Vec3 // unit vector
	Speed     float64
	Damage    int
	Range     float64
	Origin    Vec3
	SpawnedAt time.Time
}

// expired reports whether the projectile has outlived its lifetime or
// travelled past its weapon's range.
func (pr *Projectile) expired(now time.Time) bool {
	if now.Sub(pr.SpawnedAt) >= ProjectileLifetime {
		return true
	}
	return pr.Position.Sub(pr.Origin).Len() >= pr.Range
}
