package world

import "quickstrike/server/internal/net/proto"

// Replication views. Each helper flattens authoritative state into the wire
// field subset; ordering by id keeps encoded frames deterministic.

// PlayerData flattens one player for replication.
func PlayerData(p *Player) proto.PlayerData {
	return proto.PlayerData{
		ID:       p.ID,
		X:        p.Position.X,
		Y:        p.Position.Y,
		Z:        p.Position.Z,
		RotX:     p.Rotation.X,
		RotY:     p.Rotation.Y,
		RotZ:     p.Rotation.Z,
		Health:   p.Health,
		Dead:     p.Dead,
		WeaponID: p.WeaponID,
	}
}

// EnemyData flattens one enemy for replication.
func EnemyData(e *Enemy) proto.EnemyData {
	return proto.EnemyData{
		ID:      e.ID,
		X:       e.Position.X,
		Y:       e.Position.Y,
		Z:       e.Position.Z,
		RotY:    e.Rotation.Y,
		Health:  e.Health,
		Dead:    e.Dead,
		AIState: string(e.State),
	}
}

// TargetData flattens one target for replication.
func TargetData(t *Target) proto.TargetData {
	return proto.TargetData{
		ID:     t.ID,
		X:      t.Position.X,
		Y:      t.Position.Y,
		Z:      t.Position.Z,
		Health: t.Health,
		Dead:   t.Dead,
	}
}

// PickupData flattens one pickup for replication.
func PickupData(p *Pickup) proto.PickupData {
	return proto.PickupData{
		ID:   p.ID,
		Kind: string(p.Kind),
		X:    p.Position.X,
		Y:    p.Position.Y,
		Z:    p.Position.Z,
	}
}

// PlayersData returns every player's replicated view ordered by id.
func (w *World) PlayersData() []proto.PlayerData {
	players := w.Players()
	data := make([]proto.PlayerData, 0, len(players))
	for _, p := range players {
		data = append(data, PlayerData(p))
	}
	return data
}

// EnemiesData returns every enemy's replicated view ordered by id.
func (w *World) EnemiesData() []proto.EnemyData {
	enemies := w.Enemies()
	data := make([]proto.EnemyData, 0, len(enemies))
	for _, e := range enemies {
		data = append(data, EnemyData(e))
	}
	return data
}

// TargetsData returns every target's replicated view ordered by id.
func (w *World) TargetsData() []proto.TargetData {
	targets := w.Targets()
	data := make([]proto.TargetData, 0, len(targets))
	for _, t := range targets {
		data = append(data, TargetData(t))
	}
	return data
}

// PickupsData returns every pickup's replicated view ordered by id.
func (w *World) PickupsData() []proto.PickupData {
	pickups := w.Pickups()
	data := make([]proto.PickupData, 0, len(pickups))
	for _, p := range pickups {
		data = append(data, PickupData(p))
	}
	return data
}

// BuildSnapshot assembles the full-state frame used for joins, resync
// requests and the periodic reliable baseline.
func (w *World) BuildSnapshot(tick uint64, serverTime int64) proto.Snapshot {
	return proto.Snapshot{
		Tick:       tick,
		ServerTime: serverTime,
		Players:    w.PlayersData(),
		Enemies:    w.EnemiesData(),
		Targets:    w.TargetsData(),
		Pickups:    w.PickupsData(),
	}
}
