package game

import (
	"testing"
	"time"
)

var testSettings = Settings{
	TickInterval: 50 * time.Millisecond,
	RespawnDelay: 3 * time.Second,
	HealDuration: 2 * time.Second,
	DashRecharge: 5 * time.Second,
}

func testClock() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func eventsOfKind(events []Event, kind EventKind) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func TestAddPlayerDefaults(t *testing.T) {
	s := NewSession(testSettings)
	p := s.AddPlayer("p1", "alice")

	if !p.Alive {
		t.Fatal("new player should be alive")
	}
	if p.Health != PlayerMaxHealth {
		t.Errorf("health = %d, want %d", p.Health, PlayerMaxHealth)
	}
	if p.WeaponID != DefaultWeaponID {
		t.Errorf("weapon = %q, want %q", p.WeaponID, DefaultWeaponID)
	}
	if p.DashCharges != DashMaxCharges {
		t.Errorf("dash charges = %d, want %d", p.DashCharges, DashMaxCharges)
	}

	// Re-adding the same id must not reset state.
	p.Health = 40
	again := s.AddPlayer("p1", "alice")
	if again.Health != 40 {
		t.Errorf("re-add reset health to %d", again.Health)
	}
	if s.PlayerCount() != 1 {
		t.Errorf("player count = %d, want 1", s.PlayerCount())
	}
}

func TestRemovePlayer(t *testing.T) {
	s := NewSession(testSettings)
	s.AddPlayer("p1", "alice")
	s.AddPlayer("p2", "bob")

	s.RemovePlayer("p1")
	s.RemovePlayer("missing") // no-op

	if s.PlayerCount() != 1 {
		t.Fatalf("player count = %d, want 1", s.PlayerCount())
	}
	if s.Player("p1") != nil {
		t.Error("removed player still present")
	}
	roster := s.Players()
	if len(roster) != 1 || roster[0].ID != "p2" {
		t.Errorf("roster = %v", roster)
	}
}

func TestDeathExactlyOnce(t *testing.T) {
	s := NewSession(testSettings)
	victim := s.AddPlayer("victim", "v")
	s.AddPlayer("killer", "k")
	now := testClock()

	victim.Health = 10
	// Overkill across multiple hits in the same tick: one death event.
	s.applyDamage(victim, "killer", 30, now)
	s.applyDamage(victim, "killer", 30, now)
	s.applyDamage(victim, "killer", 30, now)

	deaths := eventsOfKind(s.DrainEvents(), EventDeath)
	if len(deaths) != 1 {
		t.Fatalf("death events = %d, want exactly 1", len(deaths))
	}
	if deaths[0].PlayerID != "victim" || deaths[0].OtherID != "killer" {
		t.Errorf("death event = %+v", deaths[0])
	}
	if victim.Alive {
		t.Error("victim still alive")
	}
	if victim.Health != 0 {
		t.Errorf("health clamped to %d, want 0", victim.Health)
	}
	if victim.Deaths != 1 {
		t.Errorf("deaths = %d, want 1", victim.Deaths)
	}
	if got := s.Player("killer").Kills; got != 1 {
		t.Errorf("killer kills = %d, want 1", got)
	}
}

func TestDamageInterruptsHealAndReload(t *testing.T) {
	s := NewSession(testSettings)
	p := s.AddPlayer("p1", "alice")
	now := testClock()

	p.Health = 20
	p.Healing = true
	p.Reloading = true
	s.applyDamage(p, "p2", 50, now)

	if p.Healing || p.Reloading {
		t.Error("death should clear healing and reloading")
	}
	if !p.DeathTime.Equal(now) {
		t.Errorf("death time = %v, want %v", p.DeathTime, now)
	}
}

func TestProjectileHitCylinder(t *testing.T) {
	cases := []struct {
		name string
		pos  Vec3 // projectile position relative to a target at origin
		hit  bool
	}{
		{"dead center chest", Vec3{Y: PlayerHalfHeight}, true},
		{"inside radius", Vec3{X: 0.5, Y: PlayerHalfHeight}, true},
		{"outside radius", Vec3{X: 0.7, Y: PlayerHalfHeight}, false},
		{"above head", Vec3{Y: PlayerHalfHeight*2 + 0.1}, false},
		{"at feet", Vec3{Y: 0.1}, true},
		{"below ground", Vec3{Y: -0.1}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSession(testSettings)
			target := s.AddPlayer("target", "t")
			s.AddPlayer("shooter", "s")
			target.Position = Vec3{}
			now := testClock()

			s.projectiles = append(s.projectiles, &Projectile{
				ID:        "pr1",
				OwnerID:   "shooter",
				Position:  tc.pos,
				Direction: Vec3{X: 1},
				Damage:    10,
				Range:     100,
				SpawnedAt: now,
			})
			s.resolveCollisions(now)

			hits := eventsOfKind(s.DrainEvents(), EventHit)
			if tc.hit && len(hits) != 1 {
				t.Fatalf("expected hit, got %d hit events", len(hits))
			}
			if !tc.hit && len(hits) != 0 {
				t.Fatalf("expected miss, got %d hit events", len(hits))
			}
			if tc.hit && len(s.Projectiles()) != 0 {
				t.Error("projectile should be consumed on hit")
			}
		})
	}
}

func TestProjectileNeverHitsOwnerOrDead(t *testing.T) {
	s := NewSession(testSettings)
	shooter := s.AddPlayer("shooter", "s")
	corpse := s.AddPlayer("corpse", "c")
	shooter.Position = Vec3{}
	corpse.Position = Vec3{}
	corpse.Alive = false
	now := testClock()

	s.projectiles = append(s.projectiles, &Projectile{
		ID:        "pr1",
		OwnerID:   "shooter",
		Position:  Vec3{Y: PlayerHalfHeight},
		Direction: Vec3{X: 1},
		Damage:    10,
		Range:     100,
		SpawnedAt: now,
	})
	s.resolveCollisions(now)

	if hits := eventsOfKind(s.DrainEvents(), EventHit); len(hits) != 0 {
		t.Fatalf("got %d hit events against owner/dead targets", len(hits))
	}
	if len(s.Projectiles()) != 1 {
		t.Error("projectile should survive a pass through owner and corpse")
	}
}

func TestProjectileExpiry(t *testing.T) {
	s := NewSession(testSettings)
	now := testClock()

	s.projectiles = append(s.projectiles,
		&Projectile{ID: "old", Direction: Vec3{X: 1}, Speed: 1, Range: 1000, SpawnedAt: now.Add(-ProjectileLifetime)},
		&Projectile{ID: "spent", Direction: Vec3{X: 1}, Speed: 1, Range: 0.001, SpawnedAt: now},
		&Projectile{ID: "live", Direction: Vec3{X: 1}, Speed: 1, Range: 1000, SpawnedAt: now},
	)
	s.Step(now)

	live := s.Projectiles()
	if len(live) != 1 || live[0].ID != "live" {
		t.Fatalf("surviving projectiles = %v", live)
	}
}

func TestStepRespawnsAfterDelay(t *testing.T) {
	s := NewSession(testSettings)
	p := s.AddPlayer("p1", "alice")
	now := testClock()

	p.Health = 5
	s.applyDamage(p, "p2", 10, now)
	s.DrainEvents()

	// One tick before the delay elapses: still dead.
	s.Step(now.Add(testSettings.RespawnDelay - time.Millisecond))
	if p.Alive {
		t.Fatal("respawned before delay elapsed")
	}

	s.Step(now.Add(testSettings.RespawnDelay))
	if !p.Alive {
		t.Fatal("not respawned after delay")
	}
	if p.Health != p.MaxHealth {
		t.Errorf("respawn health = %d, want %d", p.Health, p.MaxHealth)
	}
	respawns := eventsOfKind(s.DrainEvents(), EventRespawn)
	if len(respawns) != 1 {
		t.Errorf("respawn events = %d, want 1", len(respawns))
	}
}

func TestStepCompletesReload(t *testing.T) {
	s := NewSession(testSettings)
	p := s.AddPlayer("p1", "alice")
	now := testClock()
	w := p.weapon()

	p.Magazine = 2
	p.Reserve = 10
	if res := s.Apply("p1", Input{Kind: InputReload}, now); !res.OK {
		t.Fatalf("reload rejected: %s", res.Reason)
	}

	s.Step(now.Add(w.ReloadTime - time.Millisecond))
	if !p.Reloading {
		t.Fatal("reload completed early")
	}

	s.Step(now.Add(w.ReloadTime))
	if p.Reloading {
		t.Fatal("reload still in progress after reload time")
	}
	// Needed 28 rounds but only 10 in reserve.
	if p.Magazine != 12 || p.Reserve != 0 {
		t.Errorf("magazine/reserve = %d/%d, want 12/0", p.Magazine, p.Reserve)
	}
}

func TestStepRechargesDash(t *testing.T) {
	s := NewSession(testSettings)
	p := s.AddPlayer("p1", "alice")
	now := testClock()

	s.Apply("p1", Input{Kind: InputDash}, now)
	s.Apply("p1", Input{Kind: InputDash}, now.Add(time.Second))
	if p.DashCharges != 0 {
		t.Fatalf("dash charges = %d, want 0", p.DashCharges)
	}

	s.Step(now.Add(testSettings.DashRecharge))
	if p.DashCharges != 1 {
		t.Fatalf("charges after first recharge = %d, want 1", p.DashCharges)
	}

	s.Step(now.Add(testSettings.DashRecharge + time.Second))
	if p.DashCharges != 2 {
		t.Fatalf("charges after second recharge = %d, want 2", p.DashCharges)
	}
}

func TestGravityPullsAirbornePlayerDown(t *testing.T) {
	s := NewSession(testSettings)
	p := s.AddPlayer("p1", "alice")
	now := testClock()

	p.Position.Y = 5
	p.Velocity.Y = 0
	for i := 0; i < 400; i++ {
		s.Step(now.Add(time.Duration(i) * testSettings.TickInterval))
	}
	if p.Position.Y != GroundY {
		t.Errorf("player did not settle on the ground: y = %v", p.Position.Y)
	}
	if p.Velocity.Y != 0 {
		t.Errorf("grounded vertical velocity = %v, want 0", p.Velocity.Y)
	}
}

func TestDrainEventsClears(t *testing.T) {
	s := NewSession(testSettings)
	p := s.AddPlayer("p1", "alice")
	s.applyDamage(p, "x", 10, testClock())

	if len(s.DrainEvents()) == 0 {
		t.Fatal("expected events from damage")
	}
	if len(s.DrainEvents()) != 0 {
		t.Fatal("second drain should be empty")
	}
}
