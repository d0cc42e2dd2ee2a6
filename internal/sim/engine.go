package sim

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"quickstrike/server/internal/combat"
	"quickstrike/server/internal/match"
	"quickstrike/server/internal/net/proto"
	"quickstrike/server/internal/replication"
	"quickstrike/server/internal/telemetry"
	"quickstrike/server/internal/world"
	"quickstrike/server/logging"
	loggingcombat "quickstrike/server/logging/combat"
	loggingnetwork "quickstrike/server/logging/network"
	"quickstrike/server/weapons/catalog"
)

const (
	ticksMetricKey            = "sim_ticks_total"
	commandsMetricKey         = "sim_commands_total"
	tasksRunMetricKey         = "sim_tasks_run_total"
	staleDisconnectsMetricKey = "sim_stale_disconnects_total"
	broadcastErrorsMetricKey  = "sim_broadcast_encode_errors_total"
	resyncsMetricKey          = "sim_resyncs_total"
)

// Semantic reject reasons for reliable requests. Unlike the queue reasons
// these are not retryable; the request itself was wrong.
const (
	RejectUnknownActor  = "unknown_actor"
	RejectUnknownWeapon = "unknown_weapon"
	RejectUnknownItem   = "unknown_item"
	RejectReloadBlocked = "reload_blocked"
	RejectAlreadyReady  = "already_ready"
)

// Disconnect reasons passed to the session closer and leave frames.
const (
	DisconnectHeartbeatTimeout = "heartbeat_timeout"
	DisconnectSocketClosed     = "socket_closed"
)

// SessionCloser tears down a client's transport session. The websocket
// gateway implements it; the engine calls it when liveness lapses.
type SessionCloser interface {
	CloseSession(actorID, reason string)
}

// Config tunes the engine's cadences and follow-up delays.
type Config struct {
	TickRate               int
	SnapshotIntervalTicks  int
	MatchSyncIntervalTicks int
	HeartbeatTimeout       time.Duration
	RespawnDelay           time.Duration
	DespawnDelay           time.Duration
	RestartDelay           time.Duration
}

func (c Config) normalized() Config {
	if c.TickRate <= 0 {
		c.TickRate = 30
	}
	if c.TickRate > 128 {
		c.TickRate = 128
	}
	if c.SnapshotIntervalTicks <= 0 {
		c.SnapshotIntervalTicks = 60
	}
	if c.MatchSyncIntervalTicks <= 0 {
		c.MatchSyncIntervalTicks = 30
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 10 * time.Second
	}
	if c.RespawnDelay <= 0 {
		c.RespawnDelay = 5 * time.Second
	}
	if c.DespawnDelay <= 0 {
		c.DespawnDelay = time.Second
	}
	if c.RestartDelay <= 0 {
		c.RestartDelay = 10 * time.Second
	}
	return c
}

// Deps carries the services the engine composes. World, Match, Validator and
// Replicator are required; the rest default to no-ops.
type Deps struct {
	World      *world.World
	Match      *match.Coordinator
	Validator  *combat.Validator
	Replicator *replication.Replicator
	Catalog    *catalog.Resolver
	Sender     proto.Sender
	Closer     SessionCloser
	Publisher  logging.Publisher
	Logger     telemetry.Logger
	Metrics    telemetry.Metrics
}

// Engine is the single logical writer. Every state mutation funnels through
// its mutex: ticks via Step, join/heartbeat/status via the locked methods.
// Helpers below the exported surface assume the lock is already held.
type Engine struct {
	mu sync.Mutex

	cfg        Config
	world      *world.World
	match      *match.Coordinator
	validator  *combat.Validator
	replicator *replication.Replicator
	catalog    *catalog.Resolver
	sender     proto.Sender
	closer     SessionCloser
	publisher  logging.Publisher
	logger     telemetry.Logger
	metrics    telemetry.Metrics
	tasks      *match.TaskQueue

	tick uint64
}

// NewEngine validates dependencies and wires the task queue.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if deps.World == nil {
		return nil, fmt.Errorf("sim: world is required")
	}
	if deps.Match == nil {
		return nil, fmt.Errorf("sim: match coordinator is required")
	}
	if deps.Validator == nil {
		return nil, fmt.Errorf("sim: hit validator is required")
	}
	if deps.Replicator == nil {
		return nil, fmt.Errorf("sim: replicator is required")
	}
	sender := deps.Sender
	if sender == nil {
		sender = proto.SenderFunc(func(proto.Envelope) {})
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	return &Engine{
		cfg:        cfg.normalized(),
		world:      deps.World,
		match:      deps.Match,
		validator:  deps.Validator,
		replicator: deps.Replicator,
		catalog:    deps.Catalog,
		sender:     sender,
		closer:     deps.Closer,
		publisher:  publisher,
		logger:     deps.Logger,
		metrics:    metrics,
		tasks:      match.NewTaskQueue(),
	}, nil
}

// Tick reports the last completed tick.
func (e *Engine) Tick() uint64 {
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}

// StepResult summarizes one tick for the loop's telemetry.
type StepResult struct {
	Tick     uint64
	Commands int
	TasksRun int
}

// Step runs one simulation tick: drained commands first, then AI and moving
// geometry, match timers, due tasks, liveness, and finally the replication
// passes. dt is the clamped seconds since the previous tick.
func (e *Engine) Step(now time.Time, dt float64, commands []Command) StepResult {
	if e == nil {
		return StepResult{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.tick++
	tick := e.tick
	e.metrics.Add(ticksMetricKey, 1)
	if len(commands) > 0 {
		e.metrics.Add(commandsMetricKey, uint64(len(commands)))
	}

	for _, cmd := range commands {
		e.handleCommand(tick, now, cmd)
	}

	if e.match.InPlay() {
		for _, shot := range e.world.AdvanceEnemies(now, dt) {
			e.resolveEnemyShot(tick, now, shot)
		}
	}
	e.world.AdvanceTargets(now)

	if e.match.Advance(tick, now) {
		e.onPhaseChange(tick, now)
	}

	ran := e.tasks.RunDue(now, e.match.Generation())
	if ran > 0 {
		e.metrics.Add(tasksRunMetricKey, uint64(ran))
	}

	e.disconnectStale(tick, now)

	e.broadcastDelta(tick, now)
	if tick%uint64(e.cfg.SnapshotIntervalTicks) == 0 {
		e.broadcastSnapshot(tick, now, proto.ReceiverAll, "")
	}
	if tick%uint64(e.cfg.MatchSyncIntervalTicks) == 0 {
		e.broadcastMatchState(now)
	}

	return StepResult{Tick: tick, Commands: len(commands), TasksRun: ran}
}

// Join allocates a player and returns the join message the HTTP surface
// serializes. The websocket attach repeats it with a fresh snapshot.
func (e *Engine) Join(now time.Time) (proto.JoinMessage, error) {
	if e == nil {
		return proto.JoinMessage{}, fmt.Errorf("sim: engine not running")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	id := world.MintPlayerID()
	e.world.SpawnPlayer(id, now)
	e.replicator.Forget(id)

	loggingnetwork.ClientJoined(context.Background(), e.publisher, e.tick,
		logging.EntityRef{ID: id, Kind: logging.EntityKindPlayer},
		loggingnetwork.JoinPayload{}, nil)

	return e.joinMessage(id, now), nil
}

// AttachSession delivers the authoritative baseline to a session that just
// connected its websocket. Unknown ids report false so the gateway can close
// the socket.
func (e *Engine) AttachSession(actorID string, now time.Time) bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.world.Player(actorID); !ok {
		return false
	}
	env, err := proto.JoinFrame(e.joinMessage(actorID, now))
	if err != nil {
		e.logEncodeFailure("join", err)
		return false
	}
	e.sender.Send(env)
	return true
}

// Heartbeat records liveness and echoes the clock exchange to the sender.
// Sessions call it directly from their read loop; the lock keeps the world
// write serialized with the tick.
func (e *Engine) Heartbeat(actorID string, clientSent int64, now time.Time) bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	rtt := now.UnixMilli() - clientSent
	if rtt < 0 {
		rtt = 0
	}
	if !e.world.RecordHeartbeat(actorID, now, rtt) {
		return false
	}
	env, err := proto.HeartbeatFrame(actorID, proto.HeartbeatMessage{
		ClientSent: clientSent,
		ServerTime: now.UnixMilli(),
		RTTMillis:  rtt,
	})
	if err != nil {
		e.logEncodeFailure("heartbeat", err)
		return true
	}
	e.sender.Send(env)
	return true
}

// StatusReport is the GET /status body.
type StatusReport struct {
	Tick             uint64 `json:"tick"`
	MatchID          string `json:"matchId"`
	Phase            string `json:"phase"`
	RemainingSeconds int    `json:"remainingSeconds"`
	Players          int    `json:"players"`
	ReadyPlayers     int    `json:"readyPlayers"`
	Enemies          int    `json:"enemies"`
	Targets          int    `json:"targets"`
	Pickups          int    `json:"pickups"`
}

// Status snapshots match and registry counts for the HTTP surface.
func (e *Engine) Status(now time.Time) StatusReport {
	if e == nil {
		return StatusReport{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return StatusReport{
		Tick:             e.tick,
		MatchID:          e.match.MatchID(),
		Phase:            string(e.match.Phase()),
		RemainingSeconds: e.match.RemainingSeconds(now),
		Players:          e.world.PlayerCount(),
		ReadyPlayers:     e.world.ReadyCount(),
		Enemies:          len(e.world.Enemies()),
		Targets:          len(e.world.Targets()),
		Pickups:          len(e.world.Pickups()),
	}
}

// SessionDiagnostics is one row of the /diagnostics connectivity table.
type SessionDiagnostics struct {
	PlayerID           string `json:"playerId"`
	HeartbeatAgeMillis int64  `json:"heartbeatAgeMillis"`
	RTTMillis          int64  `json:"rttMillis"`
}

// Diagnostics lists per-player connectivity, sorted by id.
func (e *Engine) Diagnostics(now time.Time) []SessionDiagnostics {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	players := e.world.Players()
	out := make([]SessionDiagnostics, 0, len(players))
	for _, player := range players {
		out = append(out, SessionDiagnostics{
			PlayerID:           player.ID,
			HeartbeatAgeMillis: now.Sub(player.LastHeartbeat).Milliseconds(),
			RTTMillis:          player.RTTMillis,
		})
	}
	return out
}

// --- tick internals; every method below runs with e.mu held ---

func (e *Engine) handleCommand(tick uint64, now time.Time, cmd Command) {
	switch cmd.Type {
	case CommandMove:
		if cmd.Move != nil {
			e.world.ApplyMove(cmd.ActorID, cmd.Move.Position, cmd.Move.Rotation, now)
		}
	case CommandFire:
		e.handleFire(tick, now, cmd)
	case CommandHitClaim:
		e.handleHitClaim(tick, now, cmd)
	case CommandReload:
		e.handleReload(tick, now, cmd)
	case CommandSwitchWeapon:
		e.handleSwitchWeapon(tick, now, cmd)
	case CommandUseItem:
		e.handleUseItem(tick, now, cmd)
	case CommandReady:
		e.handleReady(tick, now, cmd)
	case CommandStateRequest:
		e.handleStateRequest(tick, now, cmd)
	case CommandLeave:
		reason := DisconnectSocketClosed
		if cmd.Leave != nil && cmd.Leave.Reason != "" {
			reason = cmd.Leave.Reason
		}
		e.removePlayer(tick, cmd.ActorID, reason)
	}
}

func (e *Engine) handleFire(_ uint64, _ time.Time, cmd Command) {
	if cmd.Fire == nil {
		return
	}
	player, ok := e.world.Player(cmd.ActorID)
	if !ok {
		return
	}
	pocket, ok := e.world.ConsumeRound(cmd.ActorID)
	if !ok {
		// Dead shooter or dry magazine: the shot simply does not happen.
		return
	}
	fired, err := proto.FiredFrame(proto.FiredMessage{
		ShooterID: cmd.ActorID,
		OriginX:   cmd.Fire.Origin.X, OriginY: cmd.Fire.Origin.Y, OriginZ: cmd.Fire.Origin.Z,
		DirX: cmd.Fire.Direction.X, DirY: cmd.Fire.Direction.Y, DirZ: cmd.Fire.Direction.Z,
		WeaponID: player.WeaponID,
	})
	if err != nil {
		e.logEncodeFailure("fired", err)
	} else {
		e.sender.Send(fired)
	}
	e.sendAmmoSync(cmd.ActorID, player.WeaponID, pocket)
}

func (e *Engine) handleHitClaim(tick uint64, now time.Time, cmd Command) {
	if cmd.HitClaim == nil {
		return
	}
	verdict := e.validator.Validate(tick, now, combat.Claim{
		ShooterID: cmd.ActorID,
		TargetID:  cmd.HitClaim.TargetID,
		Origin:    cmd.HitClaim.Origin,
		Direction: cmd.HitClaim.Direction,
		Damage:    cmd.HitClaim.Damage,
		Part:      cmd.HitClaim.Part,
		At:        cmd.HitClaim.At,
	})
	if verdict.Accepted {
		e.applyVerdict(tick, now, cmd.ActorID, cmd.HitClaim.TargetID, verdict)
	}
}

func (e *Engine) handleReload(tick uint64, now time.Time, cmd Command) {
	if !e.world.StartReload(cmd.ActorID) {
		e.reject(tick, cmd, RejectReloadBlocked)
		return
	}
	player, _ := e.world.Player(cmd.ActorID)
	weaponID := player.WeaponID
	reloadTime := 1500 * time.Millisecond
	if weapon, ok := e.catalog.Resolve(weaponID); ok {
		reloadTime = weapon.ReloadDuration()
	}
	actorID := cmd.ActorID
	e.tasks.Schedule(now.Add(reloadTime), e.match.Generation(), func(time.Time) {
		pocket, ok := e.world.FinishReload(actorID, weaponID)
		if !ok {
			return
		}
		e.sendAmmoSync(actorID, weaponID, pocket)
	})
	e.ack(cmd)
}

func (e *Engine) handleSwitchWeapon(tick uint64, _ time.Time, cmd Command) {
	if cmd.SwitchWeapon == nil {
		e.reject(tick, cmd, RejectUnknownWeapon)
		return
	}
	pocket, ok := e.world.SwitchWeapon(cmd.ActorID, cmd.SwitchWeapon.WeaponID)
	if !ok {
		e.reject(tick, cmd, RejectUnknownWeapon)
		return
	}
	e.ack(cmd)
	e.sendAmmoSync(cmd.ActorID, cmd.SwitchWeapon.WeaponID, pocket)
}

func (e *Engine) handleUseItem(tick uint64, now time.Time, cmd Command) {
	if cmd.UseItem == nil {
		e.reject(tick, cmd, RejectUnknownItem)
		return
	}
	result, ok := e.world.ClaimPickup(cmd.ActorID, cmd.UseItem.ItemID, now)
	if !ok {
		e.reject(tick, cmd, RejectUnknownItem)
		return
	}
	e.ack(cmd)
	taken, err := proto.PickupTakenFrame(proto.PickupTakenMessage{
		PickupID: result.Pickup.ID,
		PlayerID: cmd.ActorID,
		Kind:     string(result.Pickup.Kind),
	})
	if err != nil {
		e.logEncodeFailure("pickupTaken", err)
	} else {
		e.sender.Send(taken)
	}
	if result.Pickup.Kind == world.PickupAmmo {
		e.sendAmmoSync(cmd.ActorID, result.WeaponID, result.Pocket)
	}
}

func (e *Engine) handleReady(tick uint64, now time.Time, cmd Command) {
	player, ok := e.world.Player(cmd.ActorID)
	if !ok {
		e.reject(tick, cmd, RejectUnknownActor)
		return
	}
	if player.Ready {
		e.reject(tick, cmd, RejectAlreadyReady)
		return
	}
	e.world.MarkReady(cmd.ActorID)
	armed := e.match.PlayerReady(tick, now)
	e.ack(cmd)
	if armed {
		e.broadcastMatchState(now)
	}
}

func (e *Engine) handleStateRequest(tick uint64, now time.Time, cmd Command) {
	if _, ok := e.world.Player(cmd.ActorID); !ok {
		e.reject(tick, cmd, RejectUnknownActor)
		return
	}
	e.ack(cmd)
	e.broadcastSnapshot(tick, now, proto.ReceiverSelf, cmd.ActorID)
	e.metrics.Add(resyncsMetricKey, 1)
	loggingnetwork.Resync(context.Background(), e.publisher, tick,
		logging.EntityRef{ID: cmd.ActorID, Kind: logging.EntityKindPlayer},
		loggingnetwork.ResyncPayload{Cause: "state_request"}, nil)
}

// resolveEnemyShot pushes an AI shot through the same validation pipeline as
// client claims. The claim timestamp is now: the server has no latency to
// compensate for itself.
func (e *Engine) resolveEnemyShot(tick uint64, now time.Time, shot world.Shot) {
	fired, err := proto.FiredFrame(proto.FiredMessage{
		ShooterID: shot.ShooterID,
		OriginX:   shot.Origin.X, OriginY: shot.Origin.Y, OriginZ: shot.Origin.Z,
		DirX: shot.Direction.X, DirY: shot.Direction.Y, DirZ: shot.Direction.Z,
		WeaponID: shot.WeaponID,
	})
	if err != nil {
		e.logEncodeFailure("fired", err)
	} else {
		e.sender.Send(fired)
	}
	verdict := e.validator.Validate(tick, now, combat.Claim{
		ShooterID: shot.ShooterID,
		TargetID:  shot.TargetID,
		Origin:    shot.Origin,
		Direction: shot.Direction,
		Damage:    shot.Damage,
		At:        shot.At,
	})
	if verdict.Accepted {
		e.applyVerdict(tick, now, shot.ShooterID, shot.TargetID, verdict)
	}
}

// applyVerdict fans out an accepted hit: the broadcast, the score, and the
// type-specific death follow-up.
func (e *Engine) applyVerdict(tick uint64, now time.Time, shooterID, targetID string, verdict combat.Verdict) {
	confirmed, err := proto.HitConfirmedFrame(proto.HitConfirmedMessage{
		ShooterID:       shooterID,
		TargetID:        targetID,
		Damage:          verdict.Damage,
		RemainingHealth: verdict.Remaining,
	})
	if err != nil {
		e.logEncodeFailure("hitConfirmed", err)
	} else {
		e.sender.Send(confirmed)
	}

	_, shooterIsPlayer := e.world.Player(shooterID)
	shooterKind := world.KindEnemy
	if shooterIsPlayer {
		shooterKind = world.KindPlayer
		e.match.AwardDamage(shooterID, verdict.Damage)
	}
	loggingcombat.Damage(context.Background(), e.publisher, tick,
		entityRef(shooterID, shooterKind), entityRef(targetID, verdict.TargetKind),
		loggingcombat.DamagePayload{
			Weapon:       verdict.WeaponID,
			Amount:       verdict.Damage,
			TargetHealth: verdict.Remaining,
		}, nil)

	if !verdict.Died {
		return
	}

	died, err := proto.DiedFrame(proto.DiedMessage{TargetID: targetID, KillerID: shooterID})
	if err != nil {
		e.logEncodeFailure("died", err)
	} else {
		e.sender.Send(died)
	}
	deathPayload := loggingcombat.DeathPayload{Weapon: verdict.WeaponID}
	if verdict.TargetKind == world.KindPlayer {
		deathPayload.RespawnDelay = e.cfg.RespawnDelay.Milliseconds()
	}
	loggingcombat.Death(context.Background(), e.publisher, tick,
		entityRef(shooterID, shooterKind), entityRef(targetID, verdict.TargetKind), deathPayload, nil)

	switch verdict.TargetKind {
	case world.KindPlayer:
		e.match.RecordDeath(targetID)
		if shooterIsPlayer {
			e.match.AwardKill(tick, shooterID)
			e.broadcastScores()
		}
		e.scheduleRespawn(now, targetID)
	case world.KindEnemy:
		if shooterIsPlayer {
			e.match.AwardKill(tick, shooterID)
			e.broadcastScores()
		}
		e.scheduleEnemyDespawn(now, targetID)
	case world.KindTarget:
		e.scheduleTargetDespawn(now, targetID)
	}
}

// scheduleRespawn arms the delayed revive. The generation stamp drops the
// task wholesale on restart; the closure re-checks phase and existence at run
// time because both can change while the delay elapses. GAME_OVER suppresses
// the revive (nobody pops back up on the results screen); warmup deaths
// respawn normally.
func (e *Engine) scheduleRespawn(now time.Time, playerID string) {
	e.tasks.Schedule(now.Add(e.cfg.RespawnDelay), e.match.Generation(), func(runAt time.Time) {
		if e.match.Phase() == match.PhaseGameOver {
			return
		}
		player, ok := e.world.RespawnPlayer(playerID, runAt)
		if !ok {
			return
		}
		env, err := proto.RespawnFrame(proto.RespawnMessage{
			PlayerID: playerID,
			X:        player.Position.X,
			Y:        player.Position.Y,
			Z:        player.Position.Z,
		})
		if err != nil {
			e.logEncodeFailure("respawn", err)
		} else {
			e.sender.Send(env)
		}
		pocket := player.Ammo[player.WeaponID]
		e.sendAmmoSync(playerID, player.WeaponID, pocket)
		loggingcombat.Respawn(context.Background(), e.publisher, e.tick,
			logging.EntityRef{ID: playerID, Kind: logging.EntityKindPlayer},
			loggingcombat.RespawnPayload{X: player.Position.X, Y: player.Position.Y, Z: player.Position.Z}, nil)
	})
}

// scheduleEnemyDespawn lets the body linger briefly, then removes it and
// maybe leaves a pickup at the death spot.
func (e *Engine) scheduleEnemyDespawn(now time.Time, enemyID string) {
	var at world.Enemy
	if enemy, ok := e.world.Enemy(enemyID); ok {
		at = *enemy
	}
	e.tasks.Schedule(now.Add(e.cfg.DespawnDelay), e.match.Generation(), func(time.Time) {
		if !e.world.RemoveEnemy(enemyID) {
			return
		}
		e.replicator.Forget(enemyID)
		pickup, dropped := e.world.MaybeDropPickup(at.Position)
		if !dropped {
			return
		}
		env, err := proto.PickupAddedFrame(proto.PickupAddedMessage{Pickup: world.PickupData(pickup)})
		if err != nil {
			e.logEncodeFailure("pickupAdded", err)
			return
		}
		e.sender.Send(env)
	})
}

func (e *Engine) scheduleTargetDespawn(now time.Time, targetID string) {
	e.tasks.Schedule(now.Add(e.cfg.DespawnDelay), e.match.Generation(), func(time.Time) {
		if e.world.RemoveTarget(targetID) {
			e.replicator.Forget(targetID)
		}
	})
}

// onPhaseChange reacts to transitions Advance performed this tick.
func (e *Engine) onPhaseChange(tick uint64, now time.Time) {
	e.broadcastMatchState(now)
	if e.match.Phase() != match.PhaseGameOver {
		return
	}
	env, err := proto.MatchEndFrame(proto.MatchEndMessage{
		Winner: e.match.Winner(),
		Scores: e.scoreEntries(),
	})
	if err != nil {
		e.logEncodeFailure("matchEnd", err)
	} else {
		e.sender.Send(env)
	}
	e.tasks.Schedule(now.Add(e.cfg.RestartDelay), e.match.Generation(), func(runAt time.Time) {
		e.restartMatch(runAt)
	})
}

// restartMatch resets scores, silently respawns everyone, reseeds the arena,
// and hands clients a fresh baseline. No per-player respawn frames: the
// snapshot carries the whole reset at once.
func (e *Engine) restartMatch(now time.Time) {
	e.world.RespawnAll(now)
	e.world.ResetArena(now)
	e.match.Restart(e.tick, now)
	e.replicator.Reset()
	e.broadcastMatchState(now)
	e.broadcastSnapshot(e.tick, now, proto.ReceiverAll, "")
}

func (e *Engine) disconnectStale(tick uint64, now time.Time) {
	cutoff := now.Add(-e.cfg.HeartbeatTimeout)
	for _, id := range e.world.StalePlayers(cutoff) {
		player, ok := e.world.Player(id)
		if !ok {
			continue
		}
		e.metrics.Add(staleDisconnectsMetricKey, 1)
		loggingnetwork.HeartbeatTimeout(context.Background(), e.publisher, tick,
			logging.EntityRef{ID: id, Kind: logging.EntityKindPlayer},
			loggingnetwork.HeartbeatPayload{
				LastSeenMillis: now.Sub(player.LastHeartbeat).Milliseconds(),
				RTTMillis:      player.RTTMillis,
			}, nil)
		if e.closer != nil {
			e.closer.CloseSession(id, DisconnectHeartbeatTimeout)
		}
		e.removePlayer(tick, id, DisconnectHeartbeatTimeout)
	}
}

// removePlayer is idempotent: the heartbeat sweep and the socket-close leave
// command can both race to it for the same id.
func (e *Engine) removePlayer(tick uint64, id, reason string) {
	if _, ok := e.world.Player(id); !ok {
		return
	}
	e.world.RemovePlayer(id)
	e.match.DropPlayer(id)
	e.replicator.Forget(id)
	env, err := proto.LeaveFrame(proto.LeaveMessage{PlayerID: id, Reason: reason})
	if err != nil {
		e.logEncodeFailure("leave", err)
	} else {
		e.sender.Send(env)
	}
	loggingnetwork.ClientLeft(context.Background(), e.publisher, tick,
		logging.EntityRef{ID: id, Kind: logging.EntityKindPlayer},
		loggingnetwork.LeavePayload{Reason: reason}, nil)
}

func (e *Engine) broadcastDelta(tick uint64, now time.Time) {
	delta := e.replicator.Delta(tick, now.UnixMilli(),
		e.world.PlayersData(), e.world.EnemiesData(), e.world.TargetsData())
	if delta.Empty() {
		return
	}
	payload, err := e.replicator.EncodeDelta(delta)
	if err != nil {
		e.logEncodeFailure("stateDelta", err)
		return
	}
	e.sender.Send(proto.DeltaFrame(payload))
}

func (e *Engine) broadcastSnapshot(tick uint64, now time.Time, group proto.ReceiverGroup, actorID string) {
	snapshot := e.world.BuildSnapshot(tick, now.UnixMilli())
	payload, err := e.replicator.EncodeSnapshot(snapshot)
	if err != nil {
		e.logEncodeFailure("stateSync", err)
		return
	}
	e.sender.Send(proto.SnapshotFrame(group, actorID, payload))
}

func (e *Engine) broadcastMatchState(now time.Time) {
	env, err := proto.MatchStateFrame(proto.MatchStateMessage{
		MatchID:          e.match.MatchID(),
		Phase:            string(e.match.Phase()),
		RemainingSeconds: e.match.RemainingSeconds(now),
		Scores:           e.scoreEntries(),
	})
	if err != nil {
		e.logEncodeFailure("matchState", err)
		return
	}
	e.sender.Send(env)
}

func (e *Engine) broadcastScores() {
	env, err := proto.ScoreSyncFrame(proto.ScoreSyncMessage{
		Scores: e.scoreEntries(),
		Total:  e.match.Total(),
	})
	if err != nil {
		e.logEncodeFailure("scoreSync", err)
		return
	}
	e.sender.Send(env)
}

func (e *Engine) scoreEntries() []proto.ScoreEntry {
	scores := e.match.Scores()
	entries := make([]proto.ScoreEntry, 0, len(scores))
	for id, line := range scores {
		entries = append(entries, proto.ScoreEntry{
			PlayerID: id,
			Score:    line.Score,
			Kills:    line.Kills,
			Deaths:   line.Deaths,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].PlayerID < entries[j].PlayerID })
	return entries
}

func (e *Engine) joinMessage(id string, now time.Time) proto.JoinMessage {
	return proto.JoinMessage{
		PlayerID:         id,
		Snapshot:         e.world.BuildSnapshot(e.tick, now.UnixMilli()),
		CatalogHash:      e.catalog.Fingerprint(),
		Phase:            string(e.match.Phase()),
		RemainingSeconds: e.match.RemainingSeconds(now),
		TickRate:         e.cfg.TickRate,
		ServerTime:       now.UnixMilli(),
	}
}

func (e *Engine) sendAmmoSync(playerID, weaponID string, pocket world.AmmoPocket) {
	env, err := proto.AmmoSyncFrame(proto.AmmoSyncMessage{
		PlayerID: playerID,
		WeaponID: weaponID,
		Magazine: pocket.Magazine,
		Reserve:  pocket.Reserve,
	})
	if err != nil {
		e.logEncodeFailure("ammoSync", err)
		return
	}
	e.sender.Send(env)
}

func (e *Engine) ack(cmd Command) {
	if !cmd.Type.Acked() {
		return
	}
	env, err := proto.AckFrame(cmd.ActorID, cmd.Type.Code(), cmd.Seq)
	if err != nil {
		e.logEncodeFailure("commandAck", err)
		return
	}
	e.sender.Send(env)
}

func (e *Engine) reject(tick uint64, cmd Command, reason string) {
	loggingnetwork.CommandRejected(context.Background(), e.publisher, tick,
		logging.EntityRef{ID: cmd.ActorID, Kind: logging.EntityKindPlayer},
		loggingnetwork.RejectPayload{Command: string(cmd.Type.Code()), Reason: reason, Seq: uint32(cmd.Seq)}, nil)
	if !cmd.Type.Acked() {
		return
	}
	env, err := proto.RejectFrame(cmd.ActorID, cmd.Type.Code(), cmd.Seq, reason, false)
	if err != nil {
		e.logEncodeFailure("commandReject", err)
		return
	}
	e.sender.Send(env)
}

func (e *Engine) logEncodeFailure(code string, err error) {
	e.metrics.Add(broadcastErrorsMetricKey, 1)
	if e.logger != nil {
		e.logger.Printf("sim: encode %s frame: %v", code, err)
	}
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
