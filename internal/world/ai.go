package world

import (
	"math"
	"time"

	"quickstrike/server/internal/geom"
)

const (
	enemyAggroRadius   = 15.0
	enemyAttackRange   = 11.0
	enemyPursueSpeed   = 3.0
	enemyWanderSpeed   = 1.2
	enemyArriveRadius  = 0.8
	enemyWanderRadius  = 8.0
	enemyDecisionMin   = 1500 * time.Millisecond
	enemyDecisionMax   = 3500 * time.Millisecond
	enemyDefaultWindup = 1200 * time.Millisecond
)

// Shot is an enemy fire decision. The engine routes shots through the same
// validation pipeline as player hit claims, with a claim timestamp of now.
type Shot struct {
	ShooterID string
	TargetID  string
	Origin    geom.Vec3
	Direction geom.Vec3
	WeaponID  string
	Damage    int
	At        int64
}

// AdvanceEnemies runs one AI step for every live enemy: pursue the nearest
// live player inside the aggro radius, fire inside attack range on a cooldown,
// wander otherwise. Returns the shots taken this step.
func (w *World) AdvanceEnemies(now time.Time, dt float64) []Shot {
	if w == nil || dt <= 0 {
		return nil
	}
	var shots []Shot
	for _, enemy := range w.Enemies() {
		if enemy.Dead {
			continue
		}
		target := w.nearestLivePlayer(enemy.Position)
		if target == nil {
			w.wander(enemy, now, dt)
			continue
		}
		distance := enemy.Position.DistanceTo(target.Position)
		switch {
		case distance <= enemyAttackRange:
			enemy.State = AIAttack
			w.faceToward(enemy, target.Position)
			if shot, ok := w.tryShot(enemy, target, now); ok {
				shots = append(shots, shot)
			}
		case distance <= enemyAggroRadius:
			enemy.State = AIPursue
			w.stepToward(enemy, target.Position, enemyPursueSpeed, dt)
		default:
			w.wander(enemy, now, dt)
		}
		w.recordHistory(&enemy.Actor, now)
	}
	return shots
}

func (w *World) nearestLivePlayer(from geom.Vec3) *Player {
	var nearest *Player
	best := math.Inf(1)
	for _, player := range w.players {
		if player.Dead {
			continue
		}
		d := from.DistanceTo(player.Position)
		if d < best {
			best = d
			nearest = player
		}
	}
	return nearest
}

func (w *World) wander(enemy *Enemy, now time.Time, dt float64) {
	enemy.State = AIWander
	arrived := enemy.Position.DistanceTo(enemy.wanderGoal) < enemyArriveRadius
	if now.After(enemy.nextDecisionAt) || arrived || enemy.wanderGoal == (geom.Vec3{}) {
		angle := w.rng.Float64() * 2 * math.Pi
		span := enemyDecisionMax - enemyDecisionMin
		enemy.wanderGoal = geom.Vec3{
			X: math.Cos(angle) * enemyWanderRadius,
			Y: defaultBodyCenterY,
			Z: math.Sin(angle) * enemyWanderRadius,
		}
		enemy.nextDecisionAt = now.Add(enemyDecisionMin + time.Duration(w.rng.Int63n(int64(span))))
	}
	w.stepToward(enemy, enemy.wanderGoal, enemyWanderSpeed, dt)
}

func (w *World) stepToward(enemy *Enemy, goal geom.Vec3, speed, dt float64) {
	delta := goal.Sub(enemy.Position)
	delta.Y = 0
	length := delta.Length()
	if length < 1e-6 {
		return
	}
	step := speed * dt
	if step > length {
		step = length
	}
	enemy.Position = w.clampToArena(enemy.Position.Add(delta.Scale(step / length)))
	w.faceToward(enemy, goal)
}

func (w *World) faceToward(enemy *Enemy, at geom.Vec3) {
	delta := at.Sub(enemy.Position)
	enemy.Rotation.Y = yawDegrees(delta)
}

func (w *World) tryShot(enemy *Enemy, target *Player, now time.Time) (Shot, bool) {
	if now.Before(enemy.nextShotAt) {
		return Shot{}, false
	}
	cooldown := enemyDefaultWindup
	damage := 10
	if weapon, ok := w.catalog.Resolve(enemy.WeaponID); ok {
		damage = weapon.Damage
		if weapon.FireIntervalMillis > 0 {
			cooldown = time.Duration(weapon.FireIntervalMillis) * time.Millisecond
		}
	}
	enemy.nextShotAt = now.Add(cooldown)
	direction := target.Position.Sub(enemy.Position).Normalized()
	return Shot{
		ShooterID: enemy.ID,
		TargetID:  target.ID,
		Origin:    enemy.Position,
		Direction: direction,
		WeaponID:  enemy.WeaponID,
		Damage:    damage,
		At:        now.UnixMilli(),
	}, true
}

// yawDegrees maps a direction onto the yaw convention clients use: zero faces
// +Z, increasing counterclockwise when seen from above.
func yawDegrees(dir geom.Vec3) float64 {
	if dir.X == 0 && dir.Z == 0 {
		return 0
	}
	return math.Atan2(dir.X, dir.Z) * 180 / math.Pi
}
