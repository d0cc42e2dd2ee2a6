package world

// Loadout mutations cover fire, reload and weapon switching. The engine calls
// them between ticks while handling staged requests; ammo counts replicate
// through ammoSync events rather than the entity delta.

// ConsumeRound decrements the player's current magazine. Firing on an empty
// magazine is ignored without further policing, consistent with the movement
// trust model.
func (w *World) ConsumeRound(id string) (AmmoPocket, bool) {
	if w == nil {
		return AmmoPocket{}, false
	}
	player, ok := w.players[id]
	if !ok || player.Dead {
		return AmmoPocket{}, false
	}
	pocket := player.Ammo[player.WeaponID]
	if pocket.Magazine <= 0 {
		return pocket, false
	}
	pocket.Magazine--
	player.Ammo[player.WeaponID] = pocket
	return pocket, true
}

// StartReload marks the player as reloading. The refill lands when the
// scheduled task fires FinishReload after the catalog reload time.
func (w *World) StartReload(id string) bool {
	if w == nil {
		return false
	}
	player, ok := w.players[id]
	if !ok || player.Dead || player.Reloading {
		return false
	}
	pocket := player.Ammo[player.WeaponID]
	weapon, ok := w.catalog.Resolve(player.WeaponID)
	if !ok {
		return false
	}
	if pocket.Magazine >= weapon.MagazineSize || pocket.Reserve <= 0 {
		return false
	}
	player.Reloading = true
	return true
}

// FinishReload moves rounds from reserve into the magazine up to the catalog
// magazine size. Safe to call for players that died or switched weapons since
// the reload began; it just no-ops.
func (w *World) FinishReload(id, weaponID string) (AmmoPocket, bool) {
	if w == nil {
		return AmmoPocket{}, false
	}
	player, ok := w.players[id]
	if !ok || player.Dead {
		return AmmoPocket{}, false
	}
	player.Reloading = false
	if player.WeaponID != weaponID {
		return player.Ammo[player.WeaponID], false
	}
	weapon, ok := w.catalog.Resolve(weaponID)
	if !ok {
		return AmmoPocket{}, false
	}
	pocket := player.Ammo[weaponID]
	need := weapon.MagazineSize - pocket.Magazine
	if need <= 0 || pocket.Reserve <= 0 {
		return pocket, false
	}
	if need > pocket.Reserve {
		need = pocket.Reserve
	}
	pocket.Magazine += need
	pocket.Reserve -= need
	player.Ammo[weaponID] = pocket
	return pocket, true
}

// SwitchWeapon swaps the player's active weapon when the id exists in the
// catalog, creating a full pocket the first time a weapon is used.
func (w *World) SwitchWeapon(id, weaponID string) (AmmoPocket, bool) {
	if w == nil {
		return AmmoPocket{}, false
	}
	player, ok := w.players[id]
	if !ok || player.Dead {
		return AmmoPocket{}, false
	}
	weapon, ok := w.catalog.Resolve(weaponID)
	if !ok {
		return AmmoPocket{}, false
	}
	player.WeaponID = weapon.ID
	player.Reloading = false
	pocket, ok := player.Ammo[weapon.ID]
	if !ok {
		pocket = fullPocket(weapon)
		player.Ammo[weapon.ID] = pocket
	}
	return pocket, true
}

// AddReserve adds rounds to the pocket of the player's current weapon.
func (w *World) AddReserve(id string, rounds int) (AmmoPocket, bool) {
	if w == nil || rounds <= 0 {
		return AmmoPocket{}, false
	}
	player, ok := w.players[id]
	if !ok || player.Dead {
		return AmmoPocket{}, false
	}
	pocket := player.Ammo[player.WeaponID]
	pocket.Reserve += rounds
	player.Ammo[player.WeaponID] = pocket
	return pocket, true
}

func (w *World) refillAmmo(player *Player) {
	for weaponID := range player.Ammo {
		weapon, ok := w.catalog.Resolve(weaponID)
		if !ok {
			continue
		}
		player.Ammo[weaponID] = fullPocket(weapon)
	}
}
