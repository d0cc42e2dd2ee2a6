package world

import (
	"testing"
	"time"

	"quickstrike/server/internal/geom"
	"quickstrike/server/internal/history"
	"quickstrike/server/weapons/catalog"
)

func newTestWorld(t *testing.T, cfg Config) *World {
	t.Helper()
	resolver, err := catalog.NewResolver()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	w, err := New(cfg, Deps{
		History: history.NewBuffer(time.Second, 20, nil),
		Catalog: resolver,
	})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	return w
}

func TestSpawnPlayerDefaults(t *testing.T) {
	w := newTestWorld(t, Config{})
	now := time.Unix(100, 0)
	player := w.SpawnPlayer("p1", now)

	if player.Health != 100 || player.MaxHealth != 100 {
		t.Fatalf("expected full health, got %d/%d", player.Health, player.MaxHealth)
	}
	if player.WeaponID != "rifle" {
		t.Fatalf("expected default rifle, got %q", player.WeaponID)
	}
	pocket := player.Ammo["rifle"]
	if pocket.Magazine != 30 || pocket.Reserve != 90 {
		t.Fatalf("expected full pocket 30/90, got %d/%d", pocket.Magazine, pocket.Reserve)
	}
	if got := w.PlayerCount(); got != 1 {
		t.Fatalf("expected 1 player, got %d", got)
	}
}

func TestApplyMoveRecordsHistory(t *testing.T) {
	w := newTestWorld(t, Config{})
	now := time.Unix(100, 0)
	w.SpawnPlayer("p1", now)

	moved := geom.Vec3{X: 3, Y: 1, Z: -2}
	if !w.ApplyMove("p1", moved, geom.Vec3{Y: 90}, now.Add(50*time.Millisecond)) {
		t.Fatalf("expected move to apply")
	}
	view, _ := w.ActorByID("p1")
	if view.Position != moved {
		t.Fatalf("expected authoritative position %+v, got %+v", moved, view.Position)
	}
	sample, ok := w.history.SampleAt("p1", now.Add(50*time.Millisecond).UnixMilli())
	if !ok || sample.Position != moved {
		t.Fatalf("expected history sample at moved position, got %+v ok=%v", sample, ok)
	}
}

func TestHistorySamplingHonorsInterval(t *testing.T) {
	w := newTestWorld(t, Config{SampleInterval: 50 * time.Millisecond})
	now := time.Unix(100, 0)
	w.SpawnPlayer("p1", now)

	if !w.ApplyMove("p1", geom.Vec3{X: 1, Y: 1}, geom.Vec3{}, now.Add(20*time.Millisecond)) {
		t.Fatalf("expected move to apply")
	}
	if got := w.history.Len("p1"); got != 1 {
		t.Fatalf("track len after throttled move = %d, want 1", got)
	}

	w.ApplyMove("p1", geom.Vec3{X: 2, Y: 1}, geom.Vec3{}, now.Add(60*time.Millisecond))
	if got := w.history.Len("p1"); got != 2 {
		t.Fatalf("track len after due sample = %d, want 2", got)
	}
}

func TestApplyMoveClampsToArena(t *testing.T) {
	w := newTestWorld(t, Config{ArenaExtent: 10})
	now := time.Unix(100, 0)
	w.SpawnPlayer("p1", now)

	if !w.ApplyMove("p1", geom.Vec3{X: 45, Y: 1, Z: -45}, geom.Vec3{}, now) {
		t.Fatalf("expected move to apply")
	}
	view, _ := w.ActorByID("p1")
	want := geom.Vec3{X: 10, Y: 1, Z: -10}
	if view.Position != want {
		t.Fatalf("expected clamped position %+v, got %+v", want, view.Position)
	}
}

func TestApplyMoveIgnoredWhileDead(t *testing.T) {
	w := newTestWorld(t, Config{})
	now := time.Unix(100, 0)
	player := w.SpawnPlayer("p1", now)
	w.ApplyDamage("p1", 100)

	before := player.Position
	if w.ApplyMove("p1", geom.Vec3{X: 9}, geom.Vec3{}, now) {
		t.Fatalf("expected move rejected for dead player")
	}
	if player.Position != before {
		t.Fatalf("dead player moved from %+v to %+v", before, player.Position)
	}
}

func TestApplyDamageClampsAndKills(t *testing.T) {
	w := newTestWorld(t, Config{})
	now := time.Unix(100, 0)
	w.SpawnPlayer("p1", now)

	result, ok := w.ApplyDamage("p1", 60)
	if !ok || result.Remaining != 40 || result.Died {
		t.Fatalf("unexpected damage result %+v ok=%v", result, ok)
	}
	result, ok = w.ApplyDamage("p1", 999)
	if !ok || result.Remaining != 0 || !result.Died {
		t.Fatalf("expected clamped fatal damage, got %+v ok=%v", result, ok)
	}
	if _, ok := w.ApplyDamage("p1", 10); ok {
		t.Fatalf("expected damage on dead player to be rejected")
	}
	view, _ := w.ActorByID("p1")
	if view.Health != 0 || !view.Dead {
		t.Fatalf("expected dead at zero health, got %d dead=%v", view.Health, view.Dead)
	}
}

func TestRespawnResetsLoadout(t *testing.T) {
	w := newTestWorld(t, Config{})
	now := time.Unix(100, 0)
	player := w.SpawnPlayer("p1", now)
	for i := 0; i < 5; i++ {
		w.ConsumeRound("p1")
	}
	w.ApplyDamage("p1", 100)

	respawned, ok := w.RespawnPlayer("p1", now.Add(5*time.Second))
	if !ok {
		t.Fatalf("expected respawn")
	}
	if respawned.Dead || respawned.Health != respawned.MaxHealth {
		t.Fatalf("expected live full-health player, got %d dead=%v", respawned.Health, respawned.Dead)
	}
	pocket := player.Ammo[player.WeaponID]
	if pocket.Magazine != 30 || pocket.Reserve != 90 {
		t.Fatalf("expected refilled pocket, got %d/%d", pocket.Magazine, pocket.Reserve)
	}
}

func TestRemovePlayerClearsHistory(t *testing.T) {
	w := newTestWorld(t, Config{})
	now := time.Unix(100, 0)
	w.SpawnPlayer("p1", now)

	if !w.RemovePlayer("p1") {
		t.Fatalf("expected removal")
	}
	if _, ok := w.history.SampleAt("p1", now.UnixMilli()); ok {
		t.Fatalf("expected history cleared on removal")
	}
	if w.RemovePlayer("p1") {
		t.Fatalf("expected second removal to report missing")
	}
}

func TestTransformSnapshotRoundTrip(t *testing.T) {
	w := newTestWorld(t, Config{})
	now := time.Unix(100, 0)
	w.SpawnPlayer("p1", now)
	w.SpawnEnemy(geom.Vec3{X: 5, Y: 1}, "rifle", now)

	saved := w.Transforms()
	if len(saved) != 2 {
		t.Fatalf("expected 2 saved transforms, got %d", len(saved))
	}
	w.SetTransform("p1", Transform{Position: geom.Vec3{X: -7, Y: 1, Z: 3}})
	w.RestoreTransforms(saved)

	view, _ := w.ActorByID("p1")
	if view.Position != saved["p1"].Position {
		t.Fatalf("expected restored position %+v, got %+v", saved["p1"].Position, view.Position)
	}
}

func TestLoadoutFlow(t *testing.T) {
	w := newTestWorld(t, Config{})
	now := time.Unix(100, 0)
	player := w.SpawnPlayer("p1", now)

	pocket, ok := w.ConsumeRound("p1")
	if !ok || pocket.Magazine != 29 {
		t.Fatalf("expected magazine 29 after one round, got %+v ok=%v", pocket, ok)
	}

	if !w.StartReload("p1") {
		t.Fatalf("expected reload to start with a partial magazine")
	}
	if !player.Reloading {
		t.Fatalf("expected reloading flag set")
	}
	pocket, ok = w.FinishReload("p1", "rifle")
	if !ok || pocket.Magazine != 30 || pocket.Reserve != 89 {
		t.Fatalf("expected 30/89 after reload, got %+v ok=%v", pocket, ok)
	}
	if player.Reloading {
		t.Fatalf("expected reloading flag cleared")
	}

	pocket, ok = w.SwitchWeapon("p1", "pistol")
	if !ok || player.WeaponID != "pistol" {
		t.Fatalf("expected switch to pistol, got %q ok=%v", player.WeaponID, ok)
	}
	if pocket.Magazine != 12 || pocket.Reserve != 36 {
		t.Fatalf("expected fresh pistol pocket 12/36, got %+v", pocket)
	}
	if _, ok := w.SwitchWeapon("p1", "bfg"); ok {
		t.Fatalf("expected unknown weapon switch to be rejected")
	}
}

func TestFinishReloadAfterSwitchIsNoop(t *testing.T) {
	w := newTestWorld(t, Config{})
	now := time.Unix(100, 0)
	w.SpawnPlayer("p1", now)
	w.ConsumeRound("p1")
	w.StartReload("p1")
	w.SwitchWeapon("p1", "pistol")

	if _, ok := w.FinishReload("p1", "rifle"); ok {
		t.Fatalf("expected stale reload completion to no-op after switch")
	}
}

func TestConsumeRoundEmptyMagazine(t *testing.T) {
	w := newTestWorld(t, Config{})
	now := time.Unix(100, 0)
	player := w.SpawnPlayer("p1", now)
	player.Ammo["rifle"] = AmmoPocket{Magazine: 0, Reserve: 10}

	if _, ok := w.ConsumeRound("p1"); ok {
		t.Fatalf("expected empty magazine to reject the round")
	}
}

func TestClaimPickupAppliesEffect(t *testing.T) {
	w := newTestWorld(t, Config{})
	now := time.Unix(100, 0)
	player := w.SpawnPlayer("p1", now)
	w.ApplyDamage("p1", 50)

	health := w.SpawnPickup(PickupHealth, geom.Vec3{}, 25)
	result, ok := w.ClaimPickup("p1", health.ID, now)
	if !ok || result.Health != 75 {
		t.Fatalf("expected heal to 75, got %+v ok=%v", result, ok)
	}
	if _, ok := w.Pickup(health.ID); ok {
		t.Fatalf("expected pickup removed after claim")
	}

	ammo := w.SpawnPickup(PickupAmmo, geom.Vec3{}, 30)
	result, ok = w.ClaimPickup("p1", ammo.ID, now)
	if !ok || result.Pocket.Reserve != 120 {
		t.Fatalf("expected reserve 120 after ammo pickup, got %+v ok=%v", result, ok)
	}
	if result.WeaponID != player.WeaponID {
		t.Fatalf("expected pocket for active weapon %q, got %q", player.WeaponID, result.WeaponID)
	}

	if _, ok := w.ClaimPickup("p1", "pk-missing", now); ok {
		t.Fatalf("expected claim on missing pickup to be rejected")
	}
}

func TestMaybeDropPickupRespectsProbability(t *testing.T) {
	always := newTestWorld(t, Config{DropProbability: 1})
	if _, ok := always.MaybeDropPickup(geom.Vec3{X: 1}); !ok {
		t.Fatalf("expected guaranteed drop")
	}
	never := newTestWorld(t, Config{DropProbability: 0})
	if _, ok := never.MaybeDropPickup(geom.Vec3{X: 1}); ok {
		t.Fatalf("expected no drop at zero probability")
	}
}

func TestStalePlayers(t *testing.T) {
	w := newTestWorld(t, Config{})
	now := time.Unix(100, 0)
	w.SpawnPlayer("p1", now)
	w.SpawnPlayer("p2", now)
	w.RecordHeartbeat("p2", now.Add(8*time.Second), 40)

	stale := w.StalePlayers(now.Add(5 * time.Second))
	if len(stale) != 1 || stale[0] != "p1" {
		t.Fatalf("expected only p1 stale, got %v", stale)
	}
}
