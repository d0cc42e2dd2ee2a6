package proto

import (
	"encoding/json"
	"fmt"
)

// Control frames are JSON text messages. Requests arrive as a single flat
// ClientMessage so the session read loop decodes once and hands the result to
// the intake layer; outbound frames are typed per code with a constructor
// that fixes version, type, and the protocol's addressing policy.

// ClientMessage is the decode target for every inbound request frame. Unused
// fields stay at their zero value; Type selects which ones matter.
type ClientMessage struct {
	Ver  int    `json:"ver"`
	Type Code   `json:"type"`
	Seq  uint64 `json:"seq,omitempty"`

	// Transform fields for move.
	X    float64 `json:"x,omitempty"`
	Y    float64 `json:"y,omitempty"`
	Z    float64 `json:"z,omitempty"`
	RotX float64 `json:"rx,omitempty"`
	RotY float64 `json:"ry,omitempty"`
	RotZ float64 `json:"rz,omitempty"`

	// Ray fields for fire and hitClaim.
	OriginX float64 `json:"ox,omitempty"`
	OriginY float64 `json:"oy,omitempty"`
	OriginZ float64 `json:"oz,omitempty"`
	DirX    float64 `json:"dx,omitempty"`
	DirY    float64 `json:"dy,omitempty"`
	DirZ    float64 `json:"dz,omitempty"`

	TargetID string `json:"targetId,omitempty"`
	Damage   int    `json:"damage,omitempty"`
	Part     string `json:"part,omitempty"`
	WeaponID string `json:"weapon,omitempty"`
	ItemID   string `json:"item,omitempty"`

	// At is the client's clock in unix milliseconds when the input happened;
	// hit claims rewind against it. SentAt is the heartbeat echo timestamp.
	At     int64 `json:"at,omitempty"`
	SentAt int64 `json:"sentAt,omitempty"`
}

// DecodeClientMessage parses and gates an inbound text frame. Frames with a
// foreign version or a non-request code are rejected before any simulation
// code sees them.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("proto: decode client message: %w", err)
	}
	if msg.Ver != Version {
		return ClientMessage{}, fmt.Errorf("proto: unsupported client version %d", msg.Ver)
	}
	if ClassOf(msg.Type) != ClassRequest {
		return ClientMessage{}, fmt.Errorf("proto: code %q is not a request", msg.Type)
	}
	return msg, nil
}

// PeekType reads only the code of a JSON frame. Tests and diagnostics use it
// to classify captured traffic without decoding full payloads.
func PeekType(data []byte) (Code, error) {
	var probe struct {
		Type Code `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return "", fmt.Errorf("proto: peek type: %w", err)
	}
	return probe.Type, nil
}

// ScoreEntry is one row of a serialized score table, sorted by player ID for
// stable wire output.
type ScoreEntry struct {
	PlayerID string `json:"playerId"`
	Score    int    `json:"score"`
	Kills    int    `json:"kills"`
	Deaths   int    `json:"deaths"`
}

// JoinMessage is the first frame a new session receives: its identity, the
// full world baseline, and enough match context to render immediately.
type JoinMessage struct {
	Ver              int      `json:"ver"`
	Type             Code     `json:"type"`
	PlayerID         string   `json:"playerId"`
	Snapshot         Snapshot `json:"snapshot"`
	CatalogHash      string   `json:"catalogHash"`
	Phase            string   `json:"phase"`
	RemainingSeconds int      `json:"remainingSeconds"`
	TickRate         int      `json:"tickRate"`
	ServerTime       int64    `json:"serverTime"`
}

// LeaveMessage announces a departed player.
type LeaveMessage struct {
	Ver      int    `json:"ver"`
	Type     Code   `json:"type"`
	PlayerID string `json:"playerId"`
	Reason   string `json:"reason,omitempty"`
}

// MatchStateMessage carries the phase clock and score table on the match-sync
// cadence and on every transition.
type MatchStateMessage struct {
	Ver              int          `json:"ver"`
	Type             Code         `json:"type"`
	MatchID          string       `json:"matchId"`
	Phase            string       `json:"phase"`
	RemainingSeconds int          `json:"remainingSeconds"`
	Scores           []ScoreEntry `json:"scores,omitempty"`
}

// ScoreSyncMessage pushes the score table after scoring events.
type ScoreSyncMessage struct {
	Ver    int          `json:"ver"`
	Type   Code         `json:"type"`
	Scores []ScoreEntry `json:"scores,omitempty"`
	Total  int          `json:"total"`
}

// MatchEndMessage closes a match with the winner and final table.
type MatchEndMessage struct {
	Ver    int          `json:"ver"`
	Type   Code         `json:"type"`
	Winner string       `json:"winner,omitempty"`
	Scores []ScoreEntry `json:"scores,omitempty"`
}

// CommandAckMessage confirms a reliable request by echoed sequence number.
type CommandAckMessage struct {
	Ver  int    `json:"ver"`
	Type Code   `json:"type"`
	Cmd  Code   `json:"cmd"`
	Seq  uint64 `json:"seq"`
}

// CommandRejectMessage refuses a reliable request. Retryable reasons are
// transient (queue pressure); the rest are semantic and retrying is futile.
type CommandRejectMessage struct {
	Ver       int    `json:"ver"`
	Type      Code   `json:"type"`
	Cmd       Code   `json:"cmd"`
	Seq       uint64 `json:"seq"`
	Reason    string `json:"reason"`
	Retryable bool   `json:"retryable,omitempty"`
}

// HeartbeatMessage echoes the client clock with the server's, letting the
// client estimate offset and the server publish measured RTT back.
type HeartbeatMessage struct {
	Ver        int   `json:"ver"`
	Type       Code  `json:"type"`
	ClientSent int64 `json:"clientSent"`
	ServerTime int64 `json:"serverTime"`
	RTTMillis  int64 `json:"rtt"`
}

// FiredMessage relays a validated shot so other clients can play effects.
type FiredMessage struct {
	Ver       int     `json:"ver"`
	Type      Code    `json:"type"`
	ShooterID string  `json:"shooterId"`
	OriginX   float64 `json:"ox"`
	OriginY   float64 `json:"oy"`
	OriginZ   float64 `json:"oz"`
	DirX      float64 `json:"dx"`
	DirY      float64 `json:"dy"`
	DirZ      float64 `json:"dz"`
	WeaponID  string  `json:"weapon"`
}

// HitConfirmedMessage is the authoritative result of an accepted hit claim.
type HitConfirmedMessage struct {
	Ver             int    `json:"ver"`
	Type            Code   `json:"type"`
	ShooterID       string `json:"shooterId"`
	TargetID        string `json:"targetId"`
	Damage          int    `json:"damage"`
	RemainingHealth int    `json:"remainingHealth"`
}

// DiedMessage announces a death with kill attribution.
type DiedMessage struct {
	Ver      int    `json:"ver"`
	Type     Code   `json:"type"`
	TargetID string `json:"targetId"`
	KillerID string `json:"killerId,omitempty"`
}

// AmmoSyncMessage pushes authoritative ammo counts after fire/reload/switch.
type AmmoSyncMessage struct {
	Ver      int    `json:"ver"`
	Type     Code   `json:"type"`
	PlayerID string `json:"playerId"`
	WeaponID string `json:"weapon"`
	Magazine int    `json:"magazine"`
	Reserve  int    `json:"reserve"`
}

// RespawnMessage repositions a revived player for every client.
type RespawnMessage struct {
	Ver      int     `json:"ver"`
	Type     Code    `json:"type"`
	PlayerID string  `json:"playerId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
}

// PickupAddedMessage announces a new collectible.
type PickupAddedMessage struct {
	Ver    int        `json:"ver"`
	Type   Code       `json:"type"`
	Pickup PickupData `json:"pickup"`
}

// PickupTakenMessage removes a collected pickup everywhere.
type PickupTakenMessage struct {
	Ver      int    `json:"ver"`
	Type     Code   `json:"type"`
	PickupID string `json:"pickupId"`
	PlayerID string `json:"playerId"`
	Kind     string `json:"kind"`
}

// JoinFrame addresses the join response to the new session only.
func JoinFrame(msg JoinMessage) (Envelope, error) {
	msg.Ver, msg.Type = Version, CodeJoin
	return jsonFrame(CodeJoin, ReceiverSelf, msg.PlayerID, msg)
}

// LeaveFrame tells every remaining session about a departure.
func LeaveFrame(msg LeaveMessage) (Envelope, error) {
	msg.Ver, msg.Type = Version, CodeLeave
	return jsonFrame(CodeLeave, ReceiverAll, msg.PlayerID, msg)
}

// MatchStateFrame broadcasts the match clock.
func MatchStateFrame(msg MatchStateMessage) (Envelope, error) {
	msg.Ver, msg.Type = Version, CodeMatchState
	return jsonFrame(CodeMatchState, ReceiverAll, "", msg)
}

// ScoreSyncFrame broadcasts the score table.
func ScoreSyncFrame(msg ScoreSyncMessage) (Envelope, error) {
	msg.Ver, msg.Type = Version, CodeScoreSync
	return jsonFrame(CodeScoreSync, ReceiverAll, "", msg)
}

// MatchEndFrame broadcasts the final result.
func MatchEndFrame(msg MatchEndMessage) (Envelope, error) {
	msg.Ver, msg.Type = Version, CodeMatchEnd
	return jsonFrame(CodeMatchEnd, ReceiverAll, "", msg)
}

// AckFrame confirms a reliable request to its issuer.
func AckFrame(actorID string, cmd Code, seq uint64) (Envelope, error) {
	msg := CommandAckMessage{Ver: Version, Type: CodeCommandAck, Cmd: cmd, Seq: seq}
	return jsonFrame(CodeCommandAck, ReceiverSelf, actorID, msg)
}

// RejectFrame refuses a reliable request.
func RejectFrame(actorID string, cmd Code, seq uint64, reason string, retryable bool) (Envelope, error) {
	msg := CommandRejectMessage{Ver: Version, Type: CodeCommandReject, Cmd: cmd, Seq: seq, Reason: reason, Retryable: retryable}
	return jsonFrame(CodeCommandReject, ReceiverSelf, actorID, msg)
}

// HeartbeatFrame echoes a heartbeat to its sender.
func HeartbeatFrame(actorID string, msg HeartbeatMessage) (Envelope, error) {
	msg.Ver, msg.Type = Version, CodeHeartbeat
	return jsonFrame(CodeHeartbeat, ReceiverSelf, actorID, msg)
}

// FiredFrame relays a shot to everyone but the shooter, who already rendered
// it locally.
func FiredFrame(msg FiredMessage) (Envelope, error) {
	msg.Ver, msg.Type = Version, CodeFired
	return jsonFrame(CodeFired, ReceiverOthers, msg.ShooterID, msg)
}

// HitConfirmedFrame broadcasts an accepted hit.
func HitConfirmedFrame(msg HitConfirmedMessage) (Envelope, error) {
	msg.Ver, msg.Type = Version, CodeHitConfirmed
	return jsonFrame(CodeHitConfirmed, ReceiverAll, "", msg)
}

// DiedFrame broadcasts a death.
func DiedFrame(msg DiedMessage) (Envelope, error) {
	msg.Ver, msg.Type = Version, CodeDied
	return jsonFrame(CodeDied, ReceiverAll, "", msg)
}

// AmmoSyncFrame addresses ammo counts to the owning player.
func AmmoSyncFrame(msg AmmoSyncMessage) (Envelope, error) {
	msg.Ver, msg.Type = Version, CodeAmmoSync
	return jsonFrame(CodeAmmoSync, ReceiverSelf, msg.PlayerID, msg)
}

// RespawnFrame broadcasts a revived player's new transform.
func RespawnFrame(msg RespawnMessage) (Envelope, error) {
	msg.Ver, msg.Type = Version, CodeRespawn
	return jsonFrame(CodeRespawn, ReceiverAll, msg.PlayerID, msg)
}

// PickupAddedFrame broadcasts a new collectible.
func PickupAddedFrame(msg PickupAddedMessage) (Envelope, error) {
	msg.Ver, msg.Type = Version, CodePickupAdded
	return jsonFrame(CodePickupAdded, ReceiverAll, "", msg)
}

// PickupTakenFrame broadcasts a collected pickup.
func PickupTakenFrame(msg PickupTakenMessage) (Envelope, error) {
	msg.Ver, msg.Type = Version, CodePickupTaken
	return jsonFrame(CodePickupTaken, ReceiverAll, msg.PlayerID, msg)
}

// DeltaFrame wraps an encoded delta for unreliable broadcast.
func DeltaFrame(payload []byte) Envelope {
	return Envelope{
		Code:        CodeStateDelta,
		Reliability: Unreliable,
		Receivers:   ReceiverAll,
		Binary:      true,
		Payload:     payload,
	}
}

// SnapshotFrame wraps an encoded snapshot. The group varies: All on the
// resync cadence, Self for join and stateRequest answers.
func SnapshotFrame(group ReceiverGroup, actorID string, payload []byte) Envelope {
	return Envelope{
		Code:        CodeStateSync,
		Reliability: Reliable,
		Receivers:   group,
		ActorID:     actorID,
		Binary:      true,
		Payload:     payload,
	}
}

func jsonFrame(code Code, group ReceiverGroup, actorID string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("proto: encode %s: %w", code, err)
	}
	return Envelope{
		Code:        code,
		Reliability: DefaultReliability(code),
		Receivers:   group,
		ActorID:     actorID,
		Payload:     data,
	}, nil
}
