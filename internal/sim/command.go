package sim

import (
	"time"

	"quickstrike/server/internal/geom"
	"quickstrike/server/internal/net/proto"
)

// CommandType enumerates the intents the engine drains at tick start.
type CommandType string

const (
	CommandMove         CommandType = "Move"
	CommandFire         CommandType = "Fire"
	CommandHitClaim     CommandType = "HitClaim"
	CommandReload       CommandType = "Reload"
	CommandSwitchWeapon CommandType = "SwitchWeapon"
	CommandUseItem      CommandType = "UseItem"
	CommandReady        CommandType = "Ready"
	CommandStateRequest CommandType = "StateRequest"
	// CommandLeave is staged internally when a session closes; it never
	// arrives from the wire.
	CommandLeave CommandType = "Leave"
)

// Code maps a command back to its wire code for ack and reject frames.
func (t CommandType) Code() proto.Code {
	switch t {
	case CommandMove:
		return proto.CodeMove
	case CommandFire:
		return proto.CodeFire
	case CommandHitClaim:
		return proto.CodeHitClaim
	case CommandReload:
		return proto.CodeReload
	case CommandSwitchWeapon:
		return proto.CodeSwitchWeapon
	case CommandUseItem:
		return proto.CodeUseItem
	case CommandReady:
		return proto.CodeReady
	case CommandStateRequest:
		return proto.CodeStateRequest
	default:
		return ""
	}
}

// Acked reports whether the command class answers with ack/reject frames.
// Unreliable request classes are fire-and-forget.
func (t CommandType) Acked() bool {
	switch t {
	case CommandReload, CommandSwitchWeapon, CommandUseItem, CommandReady, CommandStateRequest:
		return true
	default:
		return false
	}
}

// MoveCommand carries a client-authoritative transform update.
type MoveCommand struct {
	Position geom.Vec3 `json:"position"`
	Rotation geom.Vec3 `json:"rotation"`
}

// FireCommand declares a trigger pull.
type FireCommand struct {
	Origin    geom.Vec3 `json:"origin"`
	Direction geom.Vec3 `json:"direction"`
	WeaponID  string    `json:"weapon"`
	At        int64     `json:"at"`
}

// HitClaimCommand declares a hit the validator must confirm or reject.
type HitClaimCommand struct {
	TargetID  string    `json:"targetId"`
	Origin    geom.Vec3 `json:"origin"`
	Direction geom.Vec3 `json:"direction"`
	Damage    int       `json:"damage"`
	Part      string    `json:"part,omitempty"`
	At        int64     `json:"at"`
}

// ReloadCommand starts a reload of the named weapon.
type ReloadCommand struct {
	WeaponID string `json:"weapon"`
}

// SwitchWeaponCommand swaps the active weapon.
type SwitchWeaponCommand struct {
	WeaponID string `json:"weapon"`
}

// UseItemCommand claims a pickup the client says it touched.
type UseItemCommand struct {
	ItemID string `json:"item"`
}

// LeaveCommand is the internal disconnect intent.
type LeaveCommand struct {
	Reason string `json:"reason,omitempty"`
}

// Command is one staged intent. Exactly one payload pointer is set, chosen by
// Type; Seq echoes back in ack frames for reliable classes.
type Command struct {
	OriginTick uint64      `json:"originTick"`
	ActorID    string      `json:"actorId"`
	Type       CommandType `json:"type"`
	IssuedAt   time.Time   `json:"issuedAt"`
	Seq        uint64      `json:"seq,omitempty"`

	Move         *MoveCommand         `json:"move,omitempty"`
	Fire         *FireCommand         `json:"fire,omitempty"`
	HitClaim     *HitClaimCommand     `json:"hitClaim,omitempty"`
	Reload       *ReloadCommand       `json:"reload,omitempty"`
	SwitchWeapon *SwitchWeaponCommand `json:"switchWeapon,omitempty"`
	UseItem      *UseItemCommand      `json:"useItem,omitempty"`
	Leave        *LeaveCommand        `json:"leave,omitempty"`
}
