package world

import (
	"time"

	"quickstrike/server/internal/geom"
)

// ApplyMove writes a client-reported transform straight into authoritative
// state and appends it to the history buffer. Movement is trusted; only
// damage goes through validation. The one correction applied is the arena
// clamp, so a wild transform cannot place a player outside the level.
func (w *World) ApplyMove(id string, position, rotation geom.Vec3, now time.Time) bool {
	if w == nil {
		return false
	}
	player, ok := w.players[id]
	if !ok || player.Dead {
		return false
	}
	player.Position = w.clampToArena(position)
	player.Rotation = rotation
	w.recordHistory(&player.Actor, now)
	return true
}

// ActorByID resolves any damageable entity into a read-only view.
func (w *World) ActorByID(id string) (ActorView, bool) {
	if w == nil {
		return ActorView{}, false
	}
	if player, ok := w.players[id]; ok {
		return ActorView{
			ID:        player.ID,
			Kind:      KindPlayer,
			Position:  player.Position,
			Rotation:  player.Rotation,
			Health:    player.Health,
			MaxHealth: player.MaxHealth,
			Dead:      player.Dead,
			WeaponID:  player.WeaponID,
		}, true
	}
	if enemy, ok := w.enemies[id]; ok {
		return ActorView{
			ID:        enemy.ID,
			Kind:      KindEnemy,
			Position:  enemy.Position,
			Rotation:  enemy.Rotation,
			Health:    enemy.Health,
			MaxHealth: enemy.MaxHealth,
			Dead:      enemy.Dead,
			WeaponID:  enemy.WeaponID,
		}, true
	}
	if target, ok := w.targets[id]; ok {
		return ActorView{
			ID:        target.ID,
			Kind:      KindTarget,
			Position:  target.Position,
			Rotation:  target.Rotation,
			Health:    target.Health,
			MaxHealth: target.MaxHealth,
			Dead:      target.Dead,
		}, true
	}
	return ActorView{}, false
}

// Transforms snapshots every live entity's transform, keyed by id. Hit
// validation captures this before rewinding and restores from it after.
func (w *World) Transforms() map[string]Transform {
	if w == nil {
		return nil
	}
	saved := make(map[string]Transform, len(w.players)+len(w.enemies)+len(w.targets))
	for id, p := range w.players {
		saved[id] = Transform{Position: p.Position, Rotation: p.Rotation}
	}
	for id, e := range w.enemies {
		saved[id] = Transform{Position: e.Position, Rotation: e.Rotation}
	}
	for id, t := range w.targets {
		saved[id] = Transform{Position: t.Position, Rotation: t.Rotation}
	}
	return saved
}

// SetTransform overwrites an entity's live transform. Returns false when the
// id is unknown.
func (w *World) SetTransform(id string, tr Transform) bool {
	if w == nil {
		return false
	}
	if player, ok := w.players[id]; ok {
		player.Position = tr.Position
		player.Rotation = tr.Rotation
		return true
	}
	if enemy, ok := w.enemies[id]; ok {
		enemy.Position = tr.Position
		enemy.Rotation = tr.Rotation
		return true
	}
	if target, ok := w.targets[id]; ok {
		target.Position = tr.Position
		target.Rotation = tr.Rotation
		return true
	}
	return false
}

// RestoreTransforms writes back a snapshot taken with Transforms. Entities
// that despawned since the snapshot are skipped.
func (w *World) RestoreTransforms(saved map[string]Transform) {
	if w == nil {
		return
	}
	for id, tr := range saved {
		w.SetTransform(id, tr)
	}
}

// Hitbox returns the entity's hitbox at its current transform.
func (w *World) Hitbox(id string) (geom.Box, bool) {
	view, ok := w.ActorByID(id)
	if !ok {
		return geom.Box{}, false
	}
	return hitboxFor(view.Kind, view.Position), true
}

// DamageResult reports the outcome of an ApplyDamage call.
type DamageResult struct {
	Remaining int
	Died      bool
}

// ApplyDamage subtracts validated damage from the entity's health, clamped at
// zero. Dead entities reject further damage so kill credit stays idempotent.
func (w *World) ApplyDamage(id string, amount int) (DamageResult, bool) {
	if w == nil || amount < 0 {
		return DamageResult{}, false
	}
	actor := w.actorRef(id)
	if actor == nil || actor.Dead {
		return DamageResult{}, false
	}
	actor.Health -= amount
	if actor.Health <= 0 {
		actor.Health = 0
		actor.Dead = true
	}
	return DamageResult{Remaining: actor.Health, Died: actor.Dead}, true
}

// HealPlayer restores health up to the player's maximum.
func (w *World) HealPlayer(id string, amount int) (int, bool) {
	if w == nil || amount < 0 {
		return 0, false
	}
	player, ok := w.players[id]
	if !ok || player.Dead {
		return 0, false
	}
	player.Health += amount
	if player.Health > player.MaxHealth {
		player.Health = player.MaxHealth
	}
	return player.Health, true
}

// RespawnPlayer resets a dead player to full health at the next spawn point
// and refills every ammo pocket.
func (w *World) RespawnPlayer(id string, now time.Time) (*Player, bool) {
	if w == nil {
		return nil, false
	}
	player, ok := w.players[id]
	if !ok {
		return nil, false
	}
	player.Health = player.MaxHealth
	player.Dead = false
	player.Reloading = false
	player.Position = w.nextSpawnPoint()
	player.Rotation = geom.Vec3{}
	w.refillAmmo(player)
	w.recordHistory(&player.Actor, now)
	return player, true
}

// RespawnAll resets every player in place for a match restart. Callers decide
// whether to broadcast; a full-reset snapshot usually covers it.
func (w *World) RespawnAll(now time.Time) {
	if w == nil {
		return
	}
	for _, player := range w.players {
		player.Health = player.MaxHealth
		player.Dead = false
		player.Reloading = false
		player.Ready = false
		player.Position = w.nextSpawnPoint()
		player.Rotation = geom.Vec3{}
		w.refillAmmo(player)
		w.recordHistory(&player.Actor, now)
	}
}

// RecordHeartbeat stamps the player's liveness and reported round trip.
func (w *World) RecordHeartbeat(id string, now time.Time, rttMillis int64) bool {
	if w == nil {
		return false
	}
	player, ok := w.players[id]
	if !ok {
		return false
	}
	player.LastHeartbeat = now
	if rttMillis >= 0 {
		player.RTTMillis = rttMillis
	}
	return true
}

// StalePlayers lists players whose last heartbeat predates the cutoff.
func (w *World) StalePlayers(cutoff time.Time) []string {
	if w == nil {
		return nil
	}
	var stale []string
	for id, player := range w.players {
		if player.LastHeartbeat.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	return stale
}

// MarkReady flags the player as ready for the countdown.
func (w *World) MarkReady(id string) bool {
	if w == nil {
		return false
	}
	player, ok := w.players[id]
	if !ok {
		return false
	}
	player.Ready = true
	return true
}

// ReadyCount reports how many players have readied up.
func (w *World) ReadyCount() int {
	if w == nil {
		return 0
	}
	count := 0
	for _, player := range w.players {
		if player.Ready {
			count++
		}
	}
	return count
}

func (w *World) actorRef(id string) *Actor {
	if player, ok := w.players[id]; ok {
		return &player.Actor
	}
	if enemy, ok := w.enemies[id]; ok {
		return &enemy.Actor
	}
	if target, ok := w.targets[id]; ok {
		return &target.Actor
	}
	return nil
}
