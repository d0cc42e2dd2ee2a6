package world

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/segmentio/ksuid"

	"quickstrike/server/internal/geom"
	"quickstrike/server/internal/history"
	"quickstrike/server/internal/telemetry"
	"quickstrike/server/weapons/catalog"
)

// DefaultSeed keeps worlds deterministic when no seed is configured.
const DefaultSeed = "quickstrike"

const (
	defaultArenaExtent   = 20.0
	defaultBodyCenterY   = 1.0
	defaultReserveFactor = 3
	spawnRingRadius      = 12.0
)

// RNGFactory produces deterministic RNG instances for world subsystems.
type RNGFactory func(rootSeed, label string) *rand.Rand

// Config carries the world-level tunables.
type Config struct {
	Seed            string
	ArenaExtent     float64
	DefaultWeapon   string
	DropProbability float64
	// SampleInterval throttles pose history recording. Zero records a
	// sample on every mutation, which is what most tests want.
	SampleInterval time.Duration
}

func (c Config) normalized() Config {
	if c.Seed == "" {
		c.Seed = DefaultSeed
	}
	if c.ArenaExtent <= 0 {
		c.ArenaExtent = defaultArenaExtent
	}
	if c.DefaultWeapon == "" {
		c.DefaultWeapon = "rifle"
	}
	if c.DropProbability < 0 {
		c.DropProbability = 0
	}
	if c.DropProbability > 1 {
		c.DropProbability = 1
	}
	if c.SampleInterval < 0 {
		c.SampleInterval = 0
	}
	return c
}

// Deps bundles runtime dependencies required to construct a World instance.
// The world publishes no events itself: mutations are silent and the layers
// above it (validator, engine, coordinator) own the structured event stream.
type Deps struct {
	Metrics telemetry.Metrics
	History *history.Buffer
	Catalog *catalog.Resolver
	RNG     RNGFactory
}

// World is the authoritative entity registry. It is not internally locked:
// the engine owns the instance and serializes every access, matching the
// single-writer discipline the tick loop guarantees.
type World struct {
	config Config

	metrics telemetry.Metrics
	history *history.Buffer
	catalog *catalog.Resolver
	rng     *rand.Rand

	players map[string]*Player
	enemies map[string]*Enemy
	targets map[string]*Target
	pickups map[string]*Pickup

	spawnPoints []geom.Vec3
	spawnCursor int

	seedEnemies       int
	seedStaticTargets int
	seedMovingTargets int
}

// New constructs a world with normalized configuration and a seeded RNG.
func New(cfg Config, deps Deps) (*World, error) {
	normalized := cfg.normalized()

	if deps.Catalog == nil {
		return nil, fmt.Errorf("world: weapon catalog is required")
	}
	if _, ok := deps.Catalog.Resolve(normalized.DefaultWeapon); !ok {
		return nil, fmt.Errorf("world: default weapon %q not in catalog", normalized.DefaultWeapon)
	}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	factory := deps.RNG
	if factory == nil {
		factory = NewDeterministicRNG
	}

	return &World{
		config:      normalized,
		metrics:     metrics,
		history:     deps.History,
		catalog:     deps.Catalog,
		rng:         factory(normalized.Seed, "world"),
		players:     make(map[string]*Player),
		enemies:     make(map[string]*Enemy),
		targets:     make(map[string]*Target),
		pickups:     make(map[string]*Pickup),
		spawnPoints: ringSpawnPoints(spawnRingRadius, 8),
	}, nil
}

// Config returns the normalized world configuration.
func (w *World) Config() Config {
	if w == nil {
		return Config{}
	}
	return w.config
}

// DeterministicSeedValue derives a stable seed from a root seed and a label.
func DeterministicSeedValue(rootSeed, label string) int64 {
	hasher := fnv.New64a()
	hasher.Write([]byte(rootSeed))
	hasher.Write([]byte{0})
	hasher.Write([]byte(label))
	sum := hasher.Sum64()
	if sum == 0 {
		sum = 1
	}
	return int64(sum)
}

// NewDeterministicRNG produces a labeled RNG for reproducible simulations.
func NewDeterministicRNG(rootSeed, label string) *rand.Rand {
	return rand.New(rand.NewSource(DeterministicSeedValue(rootSeed, label)))
}

func ringSpawnPoints(radius float64, count int) []geom.Vec3 {
	points := make([]geom.Vec3, 0, count)
	for i := 0; i < count; i++ {
		angle := 2 * math.Pi * float64(i) / float64(count)
		points = append(points, geom.Vec3{
			X: math.Cos(angle) * radius,
			Y: defaultBodyCenterY,
			Z: math.Sin(angle) * radius,
		})
	}
	return points
}

func (w *World) nextSpawnPoint() geom.Vec3 {
	point := w.spawnPoints[w.spawnCursor%len(w.spawnPoints)]
	w.spawnCursor++
	return point
}

// clampToArena keeps horizontal coordinates inside the playable square. The
// vertical axis stays free; clients own jump and fall arcs.
func (w *World) clampToArena(v geom.Vec3) geom.Vec3 {
	v.X = geom.Clamp(v.X, -w.config.ArenaExtent, w.config.ArenaExtent)
	v.Z = geom.Clamp(v.Z, -w.config.ArenaExtent, w.config.ArenaExtent)
	return v
}

func mintID(prefix string) string {
	return prefix + "-" + ksuid.New().String()
}

// MintPlayerID allocates a fresh player identifier.
func MintPlayerID() string {
	return mintID("p")
}

// SpawnPlayer registers a player at the next spawn point with a full default
// loadout. An empty id mints one.
func (w *World) SpawnPlayer(id string, now time.Time) *Player {
	if w == nil {
		return nil
	}
	if id == "" {
		id = MintPlayerID()
	}
	weapon, _ := w.catalog.Resolve(w.config.DefaultWeapon)
	player := &Player{
		Actor: Actor{
			ID:        id,
			Kind:      KindPlayer,
			Position:  w.nextSpawnPoint(),
			Health:    100,
			MaxHealth: 100,
		},
		WeaponID:      weapon.ID,
		Ammo:          map[string]AmmoPocket{weapon.ID: fullPocket(weapon)},
		JoinedAt:      now,
		LastHeartbeat: now,
	}
	w.players[id] = player
	w.recordHistory(&player.Actor, now)
	w.storeGauges()
	return player
}

// RemovePlayer drops the player from the registry and its transform history.
// Pending tasks referencing the id no-op once this returns.
func (w *World) RemovePlayer(id string) bool {
	if w == nil {
		return false
	}
	if _, ok := w.players[id]; !ok {
		return false
	}
	delete(w.players, id)
	w.history.Remove(id)
	w.storeGauges()
	return true
}

// SpawnEnemy registers an AI hostile at the given position.
func (w *World) SpawnEnemy(position geom.Vec3, weaponID string, now time.Time) *Enemy {
	if w == nil {
		return nil
	}
	if _, ok := w.catalog.Resolve(weaponID); !ok {
		weaponID = w.config.DefaultWeapon
	}
	enemy := &Enemy{
		Actor: Actor{
			ID:        mintID("e"),
			Kind:      KindEnemy,
			Position:  position,
			Health:    60,
			MaxHealth: 60,
		},
		WeaponID: weaponID,
		State:    AIWander,
	}
	w.enemies[enemy.ID] = enemy
	w.recordHistory(&enemy.Actor, now)
	w.storeGauges()
	return enemy
}

// RemoveEnemy despawns the enemy and clears its history.
func (w *World) RemoveEnemy(id string) bool {
	if w == nil {
		return false
	}
	if _, ok := w.enemies[id]; !ok {
		return false
	}
	delete(w.enemies, id)
	w.history.Remove(id)
	w.storeGauges()
	return true
}

// SpawnTarget registers a practice target. Amplitude zero makes it static.
func (w *World) SpawnTarget(origin, amplitude geom.Vec3, period time.Duration, now time.Time) *Target {
	if w == nil {
		return nil
	}
	target := &Target{
		Actor: Actor{
			ID:        mintID("t"),
			Kind:      KindTarget,
			Position:  origin,
			Health:    50,
			MaxHealth: 50,
		},
		Origin:    origin,
		Amplitude: amplitude,
		Period:    period,
		Phase:     w.rng.Float64() * 2 * math.Pi,
	}
	w.targets[target.ID] = target
	w.recordHistory(&target.Actor, now)
	w.storeGauges()
	return target
}

// RemoveTarget despawns the target and clears its history.
func (w *World) RemoveTarget(id string) bool {
	if w == nil {
		return false
	}
	if _, ok := w.targets[id]; !ok {
		return false
	}
	delete(w.targets, id)
	w.history.Remove(id)
	w.storeGauges()
	return true
}

// SpawnPickup registers a collectible at the given position.
func (w *World) SpawnPickup(kind PickupKind, position geom.Vec3, amount int) *Pickup {
	if w == nil {
		return nil
	}
	pickup := &Pickup{
		ID:       mintID("pk"),
		Kind:     kind,
		Position: position,
		Amount:   amount,
	}
	w.pickups[pickup.ID] = pickup
	w.storeGauges()
	return pickup
}

// RemovePickup drops the pickup without applying its effect.
func (w *World) RemovePickup(id string) bool {
	if w == nil {
		return false
	}
	if _, ok := w.pickups[id]; !ok {
		return false
	}
	delete(w.pickups, id)
	w.storeGauges()
	return true
}

// Player looks up a player by id.
func (w *World) Player(id string) (*Player, bool) {
	if w == nil {
		return nil, false
	}
	player, ok := w.players[id]
	return player, ok
}

// Enemy looks up an enemy by id.
func (w *World) Enemy(id string) (*Enemy, bool) {
	if w == nil {
		return nil, false
	}
	enemy, ok := w.enemies[id]
	return enemy, ok
}

// Target looks up a target by id.
func (w *World) Target(id string) (*Target, bool) {
	if w == nil {
		return nil, false
	}
	target, ok := w.targets[id]
	return target, ok
}

// Pickup looks up a pickup by id.
func (w *World) Pickup(id string) (*Pickup, bool) {
	if w == nil {
		return nil, false
	}
	pickup, ok := w.pickups[id]
	return pickup, ok
}

// Players returns the registered players ordered by id.
func (w *World) Players() []*Player {
	if w == nil {
		return nil
	}
	players := make([]*Player, 0, len(w.players))
	for _, p := range w.players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })
	return players
}

// Enemies returns the registered enemies ordered by id.
func (w *World) Enemies() []*Enemy {
	if w == nil {
		return nil
	}
	enemies := make([]*Enemy, 0, len(w.enemies))
	for _, e := range w.enemies {
		enemies = append(enemies, e)
	}
	sort.Slice(enemies, func(i, j int) bool { return enemies[i].ID < enemies[j].ID })
	return enemies
}

// Targets returns the registered targets ordered by id.
func (w *World) Targets() []*Target {
	if w == nil {
		return nil
	}
	targets := make([]*Target, 0, len(w.targets))
	for _, t := range w.targets {
		targets = append(targets, t)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].ID < targets[j].ID })
	return targets
}

// Pickups returns the registered pickups ordered by id.
func (w *World) Pickups() []*Pickup {
	if w == nil {
		return nil
	}
	pickups := make([]*Pickup, 0, len(w.pickups))
	for _, p := range w.pickups {
		pickups = append(pickups, p)
	}
	sort.Slice(pickups, func(i, j int) bool { return pickups[i].ID < pickups[j].ID })
	return pickups
}

// PlayerCount reports the number of registered players.
func (w *World) PlayerCount() int {
	if w == nil {
		return 0
	}
	return len(w.players)
}

// SeedArena spawns the default enemy and target layout for a fresh instance.
func (w *World) SeedArena(enemies, staticTargets, movingTargets int, now time.Time) {
	if w == nil {
		return
	}
	w.seedEnemies = enemies
	w.seedStaticTargets = staticTargets
	w.seedMovingTargets = movingTargets
	for i := 0; i < enemies; i++ {
		angle := w.rng.Float64() * 2 * math.Pi
		distance := 4 + w.rng.Float64()*4
		w.SpawnEnemy(geom.Vec3{
			X: math.Cos(angle) * distance,
			Y: defaultBodyCenterY,
			Z: math.Sin(angle) * distance,
		}, w.config.DefaultWeapon, now)
	}
	lane := -float64(staticTargets+movingTargets) / 2 * 3
	for i := 0; i < staticTargets; i++ {
		w.SpawnTarget(geom.Vec3{X: lane, Y: defaultBodyCenterY, Z: -15}, geom.Vec3{}, 0, now)
		lane += 3
	}
	for i := 0; i < movingTargets; i++ {
		w.SpawnTarget(
			geom.Vec3{X: lane, Y: defaultBodyCenterY, Z: -15},
			geom.Vec3{X: 4},
			4*time.Second,
			now,
		)
		lane += 3
	}
}

// ResetArena despawns every enemy, target, and pickup and seeds the arena
// again with the counts from the last SeedArena call. Match restarts use it
// to hand the fresh match a full field.
func (w *World) ResetArena(now time.Time) {
	if w == nil {
		return
	}
	for id := range w.enemies {
		w.RemoveEnemy(id)
	}
	for id := range w.targets {
		w.RemoveTarget(id)
	}
	for id := range w.pickups {
		delete(w.pickups, id)
	}
	w.SeedArena(w.seedEnemies, w.seedStaticTargets, w.seedMovingTargets, now)
}

func (w *World) recordHistory(actor *Actor, now time.Time) {
	if w.history == nil || actor == nil {
		return
	}
	at := now.UnixMilli()
	if interval := w.config.SampleInterval.Milliseconds(); interval > 0 {
		if latest, ok := w.history.Latest(actor.ID); ok && at-latest.At < interval {
			return
		}
	}
	w.history.Record(actor.ID, history.Sample{
		At:       at,
		Position: actor.Position,
		Rotation: actor.Rotation,
	})
}

func (w *World) storeGauges() {
	w.metrics.Store("world_players", uint64(len(w.players)))
	w.metrics.Store("world_enemies", uint64(len(w.enemies)))
	w.metrics.Store("world_targets", uint64(len(w.targets)))
	w.metrics.Store("world_pickups", uint64(len(w.pickups)))
}

func fullPocket(weapon catalog.Weapon) AmmoPocket {
	return AmmoPocket{
		Magazine: weapon.MagazineSize,
		Reserve:  weapon.MagazineSize * defaultReserveFactor,
	}
}
