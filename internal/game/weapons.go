package game

import "time"

// Weapon is one row of the read-only weapon parameter table.
type Weapon struct {
	ID           string
	Damage       int
	FireInterval time.Duration
	MagazineSize int
	ReserveAmmo  int
	ReloadTime   time.Duration
	Speed        float64 // projectile units/s
	Range        float64 // max travel distance before expiry
	Pellets      int     // >1 means one trigger pull spawns N projectiles
	Spread       float64 // max angular deviation in radians per pellet
	Melee        bool    // hit test instead of projectiles
}

// DefaultWeaponID is every player's starting loadout.
const DefaultWeaponID = "rifle"

var weapons = map[string]Weapon{
	"rifle": {
		ID:           "rifle",
		Damage:       18,
		FireInterval: 120 * time.Millisecond,
		MagazineSize: 30,
		ReserveAmmo:  90,
		ReloadTime:   1800 * time.Millisecond,
		Speed:        90,
		Range:        120,
		Pellets:      1,
	},
	"shotgun": {
		ID:           "shotgun",
		Damage:       12, // per pellet
		FireInterval: 800 * time.Millisecond,
		MagazineSize: 6,
		ReserveAmmo:  24,
		ReloadTime:   2400 * time.Millisecond,
		Speed:        70,
		Range:        35,
		Pellets:      8,
		Spread:       0.09,
	},
	"pistol": {
		ID:           "pistol",
		Damage:       25,
		FireInterval: 250 * time.Millisecond,
		MagazineSize: 12,
		ReserveAmmo:  48,
		ReloadTime:   1200 * time.Millisecond,
		Speed:        80,
		Range:        80,
		Pellets:      1,
	},
	"knife": {
		ID:           "knife",
		Damage:       MeleeDamage,
		FireInterval: 600 * time.Millisecond,
		Melee:        true,
	},
}

// WeaponByID looks up the parameter table. The second return is false for
// unknown ids; callers reject the input rather than guessing.
func WeaponByID(id string) (Weapon, bool) {
	w, ok := weapons[id]
	return w, ok
}
