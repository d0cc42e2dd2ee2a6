package match

import (
	"context"

	"quickstrike/server/logging"
)

const (
	// EventPhaseChanged is emitted on every match phase transition.
	EventPhaseChanged logging.EventType = "match.phase_changed"
	// EventVictory is emitted once when a match resolves a winner.
	EventVictory logging.EventType = "match.victory"
	// EventScore is emitted when the score table changes.
	EventScore logging.EventType = "match.score"
)

// PhasePayload captures a phase transition.
type PhasePayload struct {
	From             string `json:"from"`
	To               string `json:"to"`
	SecondsRemaining int    `json:"secondsRemaining,omitempty"`
}

// VictoryPayload names the winner and the closing score line.
type VictoryPayload struct {
	Winner string         `json:"winner"`
	Kills  map[string]int `json:"kills,omitempty"`
}

// ScorePayload carries a single actor's updated score line.
type ScorePayload struct {
	Kills  int `json:"kills"`
	Deaths int `json:"deaths"`
}

// PhaseChanged publishes a match phase transition.
func PhaseChanged(ctx context.Context, pub logging.Publisher, tick uint64, payload PhasePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPhaseChanged,
		Tick:     tick,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryMatch,
		Payload:  payload,
		Extra:    extra,
	})
}

// Victory publishes the match result.
func Victory(ctx context.Context, pub logging.Publisher, tick uint64, winner logging.EntityRef, payload VictoryPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventVictory,
		Tick:     tick,
		Actor:    winner,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryMatch,
		Payload:  payload,
		Extra:    extra,
	})
}

// Score publishes an updated score line for one actor.
func Score(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ScorePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventScore,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryMatch,
		Payload:  payload,
		Extra:    extra,
	})
}
