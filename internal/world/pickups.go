package world

import (
	"time"

	"quickstrike/server/internal/geom"
)

const (
	healthPickupAmount = 25
	ammoPickupRounds   = 30
)

// MaybeDropPickup rolls the configured drop probability and spawns a pickup
// at the given position when it passes. Enemy defeat is the only caller.
func (w *World) MaybeDropPickup(at geom.Vec3) (*Pickup, bool) {
	if w == nil {
		return nil, false
	}
	if w.rng.Float64() >= w.config.DropProbability {
		return nil, false
	}
	kind := PickupHealth
	amount := healthPickupAmount
	if w.rng.Float64() < 0.5 {
		kind = PickupAmmo
		amount = ammoPickupRounds
	}
	return w.SpawnPickup(kind, at, amount), true
}

// PickupResult reports the effect a claimed pickup had.
type PickupResult struct {
	Pickup   Pickup
	Health   int
	WeaponID string
	Pocket   AmmoPocket
}

// ClaimPickup applies a pickup to the claiming player and removes it. The
// claim is validated only for existence, mirroring movement trust: the client
// decides it touched the pickup.
func (w *World) ClaimPickup(playerID, pickupID string, _ time.Time) (PickupResult, bool) {
	if w == nil {
		return PickupResult{}, false
	}
	player, ok := w.players[playerID]
	if !ok || player.Dead {
		return PickupResult{}, false
	}
	pickup, ok := w.pickups[pickupID]
	if !ok {
		return PickupResult{}, false
	}
	result := PickupResult{Pickup: *pickup}
	switch pickup.Kind {
	case PickupAmmo:
		pocket, _ := w.AddReserve(playerID, pickup.Amount)
		result.WeaponID = player.WeaponID
		result.Pocket = pocket
		result.Health = player.Health
	default:
		health, _ := w.HealPlayer(playerID, pickup.Amount)
		result.Health = health
	}
	delete(w.pickups, pickupID)
	w.storeGauges()
	return result, true
}
