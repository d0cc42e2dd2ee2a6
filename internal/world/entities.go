package world

import (
	"time"

	"quickstrike/server/internal/geom"
)

// Kind discriminates the entity families tracked by the registry.
type Kind string

const (
	KindPlayer Kind = "player"
	KindEnemy  Kind = "enemy"
	KindTarget Kind = "target"
	KindPickup Kind = "pickup"
)

// Hitbox dimensions per kind, in world units. Position is the body center, so
// boxes are symmetric around it.
const (
	playerHitboxWidth  = 0.9
	playerHitboxHeight = 1.8
	playerHitboxDepth  = 0.9

	targetHitboxWidth  = 1.2
	targetHitboxHeight = 1.2
	targetHitboxDepth  = 0.3
)

// Actor is the state shared by every damageable entity. Position and Rotation
// are authoritative; clients hold replicated mirrors.
type Actor struct {
	ID        string
	Kind      Kind
	Position  geom.Vec3
	Rotation  geom.Vec3
	Health    int
	MaxHealth int
	Dead      bool
}

// AmmoPocket tracks magazine and reserve rounds for one weapon.
type AmmoPocket struct {
	Magazine int
	Reserve  int
}

// Player is a connected participant.
type Player struct {
	Actor
	WeaponID      string
	Ammo          map[string]AmmoPocket
	Reloading     bool
	Ready         bool
	JoinedAt      time.Time
	LastHeartbeat time.Time
	RTTMillis     int64
}

// AIState names the behavior an enemy is currently running.
type AIState string

const (
	AIWander AIState = "wander"
	AIPursue AIState = "pursue"
	AIAttack AIState = "attack"
)

// Enemy is a server-driven hostile. Blackboard fields stay unexported; only
// the AI advance step touches them.
type Enemy struct {
	Actor
	WeaponID string
	State    AIState

	wanderGoal     geom.Vec3
	nextDecisionAt time.Time
	nextShotAt     time.Time
}

// Target is a practice target. A zero Amplitude makes it static; otherwise it
// oscillates around Origin with the given period and phase.
type Target struct {
	Actor
	Origin    geom.Vec3
	Amplitude geom.Vec3
	Period    time.Duration
	Phase     float64
}

// Moving reports whether the target oscillates.
func (t *Target) Moving() bool {
	if t == nil {
		return false
	}
	return t.Amplitude.Length() > 0 && t.Period > 0
}

// PickupKind selects the effect a pickup applies when claimed.
type PickupKind string

const (
	PickupHealth PickupKind = "health"
	PickupAmmo   PickupKind = "ammo"
)

// Pickup is a collectible lying in the world. Amount is hit points for health
// pickups and reserve rounds for ammo pickups.
type Pickup struct {
	ID       string
	Kind     PickupKind
	Position geom.Vec3
	Amount   int
}

// Transform is the rewindable subset of an actor's state.
type Transform struct {
	Position geom.Vec3
	Rotation geom.Vec3
}

// ActorView is a read-only projection of a damageable entity, the shape hit
// validation works against.
type ActorView struct {
	ID        string
	Kind      Kind
	Position  geom.Vec3
	Rotation  geom.Vec3
	Health    int
	MaxHealth int
	Dead      bool
	WeaponID  string
}

func hitboxFor(kind Kind, center geom.Vec3) geom.Box {
	switch kind {
	case KindTarget:
		return geom.NewBox(center, targetHitboxWidth, targetHitboxHeight, targetHitboxDepth)
	default:
		return geom.NewBox(center, playerHitboxWidth, playerHitboxHeight, playerHitboxDepth)
	}
}
