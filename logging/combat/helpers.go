package combat

import (
	"context"

	"quickstrike/server/logging"
)

const (
	// EventHitConfirmed is emitted when a shot passes lag-compensated validation.
	EventHitConfirmed logging.EventType = "combat.hit_confirmed"
	// EventHitRejected is emitted when a claimed hit fails validation.
	EventHitRejected logging.EventType = "combat.hit_rejected"
	// EventDamage is emitted when validated damage is applied to a target.
	EventDamage logging.EventType = "combat.damage"
	// EventDeath is emitted when a target's health reaches zero.
	EventDeath logging.EventType = "combat.death"
	// EventRespawn is emitted when a previously dead entity re-enters play.
	EventRespawn logging.EventType = "combat.respawn"
)

// HitPayload captures the validation outcome for a single shot.
type HitPayload struct {
	Weapon       string  `json:"weapon"`
	Damage       int     `json:"damage,omitempty"`
	Distance     float64 `json:"distance"`
	RewindMillis int64   `json:"rewindMillis"`
	Reason       string  `json:"reason,omitempty"`
}

// DamagePayload captures the amount dealt to a single target.
type DamagePayload struct {
	Weapon       string `json:"weapon,omitempty"`
	Amount       int    `json:"amount"`
	TargetHealth int    `json:"targetHealth"`
}

// DeathPayload describes the fatal blow.
type DeathPayload struct {
	Weapon       string `json:"weapon,omitempty"`
	RespawnDelay int64  `json:"respawnDelayMillis,omitempty"`
}

// RespawnPayload records where the entity came back.
type RespawnPayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HitConfirmed publishes a validated hit.
func HitConfirmed(ctx context.Context, pub logging.Publisher, tick uint64, shooter, target logging.EntityRef, payload HitPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventHitConfirmed,
		Tick:     tick,
		Actor:    shooter,
		Targets:  []logging.EntityRef{target},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
		Payload:  payload,
		Extra:    extra,
	})
}

// HitRejected publishes a debug event for a shot that failed validation.
func HitRejected(ctx context.Context, pub logging.Publisher, tick uint64, shooter, target logging.EntityRef, payload HitPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventHitRejected,
		Tick:     tick,
		Actor:    shooter,
		Targets:  []logging.EntityRef{target},
		Severity: logging.SeverityDebug,
		Category: logging.CategoryCombat,
		Payload:  payload,
		Extra:    extra,
	})
}

// Damage publishes a combat damage event for a single target.
func Damage(ctx context.Context, pub logging.Publisher, tick uint64, actor, target logging.EntityRef, payload DamagePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventDamage,
		Tick:     tick,
		Actor:    actor,
		Targets:  []logging.EntityRef{target},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
		Payload:  payload,
		Extra:    extra,
	})
}

// Death publishes a combat death event for the eliminated entity.
func Death(ctx context.Context, pub logging.Publisher, tick uint64, killer, target logging.EntityRef, payload DeathPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventDeath,
		Tick:     tick,
		Actor:    killer,
		Targets:  []logging.EntityRef{target},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
		Payload:  payload,
		Extra:    extra,
	})
}

// Respawn publishes a respawn event for the revived entity.
func Respawn(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload RespawnPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRespawn,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
		Payload:  payload,
		Extra:    extra,
	})
}
