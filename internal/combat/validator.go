package combat

import (
	"context"
	"time"

	"quickstrike/server/internal/geom"
	"quickstrike/server/internal/history"
	"quickstrike/server/internal/telemetry"
	"quickstrike/server/internal/world"
	"quickstrike/server/logging"
	loggingcombat "quickstrike/server/logging/combat"
	"quickstrike/server/weapons/catalog"
)

const (
	hitsAcceptedMetricKey = "combat_hits_accepted_total"
	hitsRejectedMetricKey = "combat_hits_rejected_total"
	hitsLenientMetricKey  = "combat_hits_lenient_total"
)

// Reject reasons. Shooters receive no explicit rejection frame; these feed
// structured events and metrics only.
const (
	RejectUnknownShooter = "unknown_shooter"
	RejectUnknownTarget  = "unknown_target"
	RejectShooterDead    = "shooter_dead"
	RejectTargetDead     = "target_dead"
	RejectSelfHit        = "self_hit"
	RejectNoDamage       = "no_damage"
	RejectOutOfRange     = "out_of_range"
	RejectMissed         = "missed"
)

// HitPartHead is the one body part the damage model distinguishes. Claims
// declaring it are clamped against the weapon's headshot ceiling instead of
// the base one. Other part strings ride along for logging only.
const HitPartHead = "head"

// Claim is a declared hit: the shooter's ray, the target it says it struck,
// the damage it wants applied, and the client time the shot happened.
type Claim struct {
	ShooterID string
	TargetID  string
	Origin    geom.Vec3
	Direction geom.Vec3
	Damage    int
	Part      string
	At        int64
}

// Verdict is the outcome of validating one claim. Damage and Remaining are
// meaningful only when Accepted.
type Verdict struct {
	Accepted     bool
	Reason       string
	Damage       int
	Remaining    int
	Died         bool
	TargetKind   world.Kind
	WeaponID     string
	Distance     float64
	RewindMillis int64
	Lenient      bool
}

// Config carries the validation tunables.
type Config struct {
	LenientMargin float64
	MaxRewind     time.Duration
}

func (c Config) normalized() Config {
	if c.LenientMargin <= 0 {
		c.LenientMargin = 0.8
	}
	if c.MaxRewind <= 0 {
		c.MaxRewind = time.Second
	}
	return c
}

// Deps wires the validator into the rest of the simulation.
type Deps struct {
	World     *world.World
	History   *history.Buffer
	Catalog   *catalog.Resolver
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
}

// Validator performs lag-compensated hit validation. It owns no transport:
// the engine turns verdicts into broadcasts. Damage is the one mutation it
// applies, through the world's clamped damage path.
type Validator struct {
	cfg       Config
	world     *world.World
	history   *history.Buffer
	catalog   *catalog.Resolver
	publisher logging.Publisher
	metrics   telemetry.Metrics
}

// NewValidator constructs a validator with normalized tunables.
func NewValidator(cfg Config, deps Deps) *Validator {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	return &Validator{
		cfg:       cfg.normalized(),
		world:     deps.World,
		history:   deps.History,
		catalog:   deps.Catalog,
		publisher: publisher,
		metrics:   metrics,
	}
}

// Validate runs the rewind-validate-restore algorithm for one claim.
//
// Every live transform is snapshotted first and restored unconditionally on
// the way out, so a claim can never leak rewound geometry into the live
// simulation. Only the declared target is rewound and tested; claims are not
// full-scene casts.
func (v *Validator) Validate(tick uint64, now time.Time, claim Claim) Verdict {
	if v == nil || v.world == nil {
		return Verdict{Reason: RejectUnknownShooter}
	}

	shooter, ok := v.world.ActorByID(claim.ShooterID)
	if !ok {
		return v.reject(tick, claim, RejectUnknownShooter, 0)
	}
	if shooter.Dead {
		return v.reject(tick, claim, RejectShooterDead, 0)
	}
	if claim.TargetID == "" || claim.TargetID == claim.ShooterID {
		return v.reject(tick, claim, RejectSelfHit, 0)
	}
	target, ok := v.world.ActorByID(claim.TargetID)
	if !ok {
		return v.reject(tick, claim, RejectUnknownTarget, 0)
	}
	if target.Dead {
		return v.reject(tick, claim, RejectTargetDead, 0)
	}

	weapon, haveWeapon := v.resolveWeapon(shooter.WeaponID)
	damage := claim.Damage
	if haveWeapon {
		ceiling := weapon.Damage
		if claim.Part == HitPartHead {
			ceiling = weapon.HeadshotDamage()
		}
		if damage > ceiling {
			damage = ceiling
		}
	}
	if damage <= 0 {
		return v.reject(tick, claim, RejectNoDamage, 0)
	}

	nowMillis := now.UnixMilli()
	lookupAt := claim.At
	if oldest := nowMillis - v.cfg.MaxRewind.Milliseconds(); lookupAt < oldest {
		lookupAt = oldest
	}
	if lookupAt > nowMillis {
		lookupAt = nowMillis
	}
	rewind := nowMillis - lookupAt

	saved := v.world.Transforms()
	defer v.world.RestoreTransforms(saved)

	if sample, ok := v.history.SampleAt(claim.TargetID, lookupAt); ok {
		v.world.SetTransform(claim.TargetID, world.Transform{
			Position: sample.Position,
			Rotation: sample.Rotation,
		})
	}
	// No history means the live transform stands in for the rewound one.

	rewound, _ := v.world.ActorByID(claim.TargetID)
	ray := geom.NewRay(claim.Origin, claim.Direction)

	distance := 0.0
	lenient := false
	box, _ := v.world.Hitbox(claim.TargetID)
	if t, hit := box.IntersectRay(ray); hit {
		distance = t
	} else if ray.DistanceToPoint(rewound.Position) <= v.cfg.LenientMargin {
		distance = claim.Origin.DistanceTo(rewound.Position)
		lenient = true
	} else {
		return v.reject(tick, claim, RejectMissed, rewind)
	}

	if haveWeapon && weapon.MaxRange > 0 && distance > weapon.MaxRange {
		return v.reject(tick, claim, RejectOutOfRange, rewind)
	}

	result, ok := v.world.ApplyDamage(claim.TargetID, damage)
	if !ok {
		return v.reject(tick, claim, RejectTargetDead, rewind)
	}

	verdict := Verdict{
		Accepted:     true,
		Damage:       damage,
		Remaining:    result.Remaining,
		Died:         result.Died,
		TargetKind:   target.Kind,
		WeaponID:     shooter.WeaponID,
		Distance:     distance,
		RewindMillis: rewind,
		Lenient:      lenient,
	}
	v.metrics.Add(hitsAcceptedMetricKey, 1)
	if lenient {
		v.metrics.Add(hitsLenientMetricKey, 1)
	}
	loggingcombat.HitConfirmed(context.Background(), v.publisher, tick,
		entityRef(shooter.ID, shooter.Kind), entityRef(target.ID, target.Kind),
		loggingcombat.HitPayload{
			Weapon:       shooter.WeaponID,
			Damage:       damage,
			Distance:     distance,
			RewindMillis: rewind,
		}, nil)
	return verdict
}

func (v *Validator) reject(tick uint64, claim Claim, reason string, rewind int64) Verdict {
	v.metrics.Add(hitsRejectedMetricKey, 1)
	shooterRef := logging.EntityRef{ID: claim.ShooterID, Kind: logging.EntityKindUnknown}
	targetRef := logging.EntityRef{ID: claim.TargetID, Kind: logging.EntityKindUnknown}
	if view, ok := v.world.ActorByID(claim.ShooterID); ok {
		shooterRef = entityRef(view.ID, view.Kind)
	}
	if view, ok := v.world.ActorByID(claim.TargetID); ok {
		targetRef = entityRef(view.ID, view.Kind)
	}
	loggingcombat.HitRejected(context.Background(), v.publisher, tick, shooterRef, targetRef,
		loggingcombat.HitPayload{
			Damage:       claim.Damage,
			RewindMillis: rewind,
			Reason:       reason,
		}, nil)
	return Verdict{Reason: reason, RewindMillis: rewind}
}

func (v *Validator) resolveWeapon(id string) (catalog.Weapon, bool) {
	if v.catalog == nil {
		return catalog.Weapon{}, false
	}
	return v.catalog.Resolve(id)
}

func entityRef(id string, kind world.Kind) logging.EntityRef {
	mapped := logging.EntityKindUnknown
	switch kind {
	case world.KindPlayer:
		mapped = logging.EntityKindPlayer
	case world.KindEnemy:
		mapped = logging.EntityKindEnemy
	case world.KindTarget:
		mapped = logging.EntityKindTarget
	}
	return logging.EntityRef{ID: id, Kind: mapped}
}
