package match

import (
	"context"
	"sort"
	"time"

	"github.com/segmentio/ksuid"

	"quickstrike/server/internal/telemetry"
	"quickstrike/server/logging"
	loggingmatch "quickstrike/server/logging/match"
)

// Phase is the match state machine position. Transitions run one direction;
// only an explicit restart returns to READY.
type Phase string

const (
	PhaseReady     Phase = "READY"
	PhaseCountdown Phase = "COUNTDOWN"
	PhasePlaying   Phase = "PLAYING"
	PhaseGameOver  Phase = "GAME_OVER"
)

const (
	phaseGaugeMetricKey   = "match_phase"
	restartsMetricKey     = "match_restarts_total"
	scoreAwardedMetricKey = "match_score_awarded_total"
)

// Config carries the match tunables.
type Config struct {
	Countdown       time.Duration
	Duration        time.Duration
	TargetScore     int
	KillBonus       int
	MinReadyPlayers int
}

func (c Config) normalized() Config {
	if c.Countdown <= 0 {
		c.Countdown = 5 * time.Second
	}
	if c.Duration <= 0 {
		c.Duration = 180 * time.Second
	}
	if c.TargetScore <= 0 {
		c.TargetScore = 500
	}
	if c.KillBonus < 0 {
		c.KillBonus = 0
	}
	if c.MinReadyPlayers < 1 {
		c.MinReadyPlayers = 1
	}
	return c
}

// Score is one player's line in the score table.
type Score struct {
	Score  int `json:"score"`
	Kills  int `json:"kills"`
	Deaths int `json:"deaths"`
}

// Coordinator owns the match state machine, the score table and the aggregate
// total. The engine serializes access the same way it does for the world.
type Coordinator struct {
	cfg       Config
	publisher logging.Publisher
	metrics   telemetry.Metrics

	matchID    string
	phase      Phase
	deadline   time.Time
	generation uint64
	readyCount int

	scores map[string]*Score
	total  int
	winner string
}

// NewCoordinator constructs a coordinator in READY with normalized tunables.
func NewCoordinator(cfg Config, publisher logging.Publisher, metrics telemetry.Metrics) *Coordinator {
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	return &Coordinator{
		cfg:        cfg.normalized(),
		publisher:  publisher,
		metrics:    metrics,
		matchID:    ksuid.New().String(),
		phase:      PhaseReady,
		generation: 1,
		scores:     make(map[string]*Score),
	}
}

// MatchID identifies the current match instance.
func (c *Coordinator) MatchID() string {
	if c == nil {
		return ""
	}
	return c.matchID
}

// Phase reports the current state machine position.
func (c *Coordinator) Phase() Phase {
	if c == nil {
		return PhaseReady
	}
	return c.phase
}

// InPlay reports whether gameplay effects like respawns may land.
func (c *Coordinator) InPlay() bool {
	return c != nil && c.phase == PhasePlaying
}

// Generation stamps scheduled tasks; it bumps on restart so stale tasks from
// the previous match are discarded instead of firing.
func (c *Coordinator) Generation() uint64 {
	if c == nil {
		return 0
	}
	return c.generation
}

// Winner names the leading player once the match is over.
func (c *Coordinator) Winner() string {
	if c == nil {
		return ""
	}
	return c.winner
}

// RemainingSeconds reports the countdown or play clock, zero elsewhere.
func (c *Coordinator) RemainingSeconds(now time.Time) int {
	if c == nil {
		return 0
	}
	switch c.phase {
	case PhaseCountdown, PhasePlaying:
		remaining := c.deadline.Sub(now)
		if remaining < 0 {
			return 0
		}
		return int(remaining.Round(time.Second) / time.Second)
	default:
		return 0
	}
}

// PlayerReady counts a ready-up. The first ready (or the configured minimum)
// arms the countdown. Returns true when the phase changed.
func (c *Coordinator) PlayerReady(tick uint64, now time.Time) bool {
	if c == nil || c.phase != PhaseReady {
		return false
	}
	c.readyCount++
	if c.readyCount < c.cfg.MinReadyPlayers {
		return false
	}
	c.transition(tick, now, PhaseCountdown, now.Add(c.cfg.Countdown))
	return true
}

// Advance moves the state machine forward on timer expiry or score target.
// Returns true when the phase changed this call.
func (c *Coordinator) Advance(tick uint64, now time.Time) bool {
	if c == nil {
		return false
	}
	switch c.phase {
	case PhaseCountdown:
		if !now.Before(c.deadline) {
			c.transition(tick, now, PhasePlaying, now.Add(c.cfg.Duration))
			return true
		}
	case PhasePlaying:
		if !now.Before(c.deadline) || c.total >= c.cfg.TargetScore {
			c.finish(tick, now)
			return true
		}
	}
	return false
}

// AwardDamage credits damage-proportional score to the shooter's line and the
// aggregate total in one step.
func (c *Coordinator) AwardDamage(shooterID string, damage int) {
	if c == nil || shooterID == "" || damage <= 0 || c.phase != PhasePlaying {
		return
	}
	line := c.line(shooterID)
	line.Score += damage
	c.total += damage
	c.metrics.Add(scoreAwardedMetricKey, uint64(damage))
}

// AwardKill credits the kill bonus and increments the killer's kill count.
func (c *Coordinator) AwardKill(tick uint64, shooterID string) {
	if c == nil || shooterID == "" || c.phase != PhasePlaying {
		return
	}
	line := c.line(shooterID)
	line.Kills++
	line.Score += c.cfg.KillBonus
	c.total += c.cfg.KillBonus
	c.metrics.Add(scoreAwardedMetricKey, uint64(c.cfg.KillBonus))
	loggingmatch.Score(context.Background(), c.publisher, tick,
		logging.EntityRef{ID: shooterID, Kind: logging.EntityKindPlayer},
		loggingmatch.ScorePayload{Kills: line.Kills, Deaths: line.Deaths}, nil)
}

// RecordDeath increments the victim's death count.
func (c *Coordinator) RecordDeath(victimID string) {
	if c == nil || victimID == "" {
		return
	}
	c.line(victimID).Deaths++
}

// DropPlayer removes a disconnected player's score line.
func (c *Coordinator) DropPlayer(id string) {
	if c == nil {
		return
	}
	delete(c.scores, id)
}

// Scores copies the score table.
func (c *Coordinator) Scores() map[string]Score {
	if c == nil {
		return nil
	}
	table := make(map[string]Score, len(c.scores))
	for id, line := range c.scores {
		table[id] = *line
	}
	return table
}

// Total reports the aggregate score driving the early-end condition.
func (c *Coordinator) Total() int {
	if c == nil {
		return 0
	}
	return c.total
}

// Restart resets scores and returns the machine to READY under a fresh match
// id and generation. Callers respawn players silently; no per-player respawn
// broadcasts accompany a full reset.
func (c *Coordinator) Restart(tick uint64, now time.Time) {
	if c == nil {
		return
	}
	from := c.phase
	c.matchID = ksuid.New().String()
	c.phase = PhaseReady
	c.deadline = time.Time{}
	c.generation++
	c.readyCount = 0
	c.scores = make(map[string]*Score)
	c.total = 0
	c.winner = ""
	c.metrics.Add(restartsMetricKey, 1)
	c.storePhaseGauge()
	loggingmatch.PhaseChanged(context.Background(), c.publisher, tick, loggingmatch.PhasePayload{
		From: string(from),
		To:   string(PhaseReady),
	}, map[string]any{"matchId": c.matchID})
}

func (c *Coordinator) finish(tick uint64, now time.Time) {
	c.transition(tick, now, PhaseGameOver, now)
	c.winner = c.leader()
	loggingmatch.Victory(context.Background(), c.publisher, tick,
		logging.EntityRef{ID: c.winner, Kind: logging.EntityKindPlayer},
		loggingmatch.VictoryPayload{Winner: c.winner, Kills: c.killTable()}, nil)
}

func (c *Coordinator) transition(tick uint64, now time.Time, to Phase, deadline time.Time) {
	from := c.phase
	c.phase = to
	c.deadline = deadline
	c.storePhaseGauge()
	loggingmatch.PhaseChanged(context.Background(), c.publisher, tick, loggingmatch.PhasePayload{
		From:             string(from),
		To:               string(to),
		SecondsRemaining: c.RemainingSeconds(now),
	}, map[string]any{"matchId": c.matchID})
}

// leader picks the top score line, ties broken by id for determinism.
func (c *Coordinator) leader() string {
	ids := make([]string, 0, len(c.scores))
	for id := range c.scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	best := ""
	bestScore := -1
	for _, id := range ids {
		if line := c.scores[id]; line.Score > bestScore {
			best = id
			bestScore = line.Score
		}
	}
	return best
}

func (c *Coordinator) killTable() map[string]int {
	kills := make(map[string]int, len(c.scores))
	for id, line := range c.scores {
		kills[id] = line.Kills
	}
	return kills
}

func (c *Coordinator) line(id string) *Score {
	line, ok := c.scores[id]
	if !ok {
		line = &Score{}
		c.scores[id] = line
	}
	return line
}

func (c *Coordinator) storePhaseGauge() {
	var value uint64
	switch c.phase {
	case PhaseCountdown:
		value = 1
	case PhasePlaying:
		value = 2
	case PhaseGameOver:
		value = 3
	}
	c.metrics.Store(phaseGaugeMetricKey, value)
}
