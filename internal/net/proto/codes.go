package proto

// Version tracks the wire-protocol revision expected by clients.
const Version = 1

// Code identifies a wire event. Every message is one of three disjoint
// classes: Request (client to authority), Authority (authority to clients),
// System (lifecycle and match bookkeeping).
type Code string

// Request codes.
const (
	CodeMove         Code = "move"
	CodeFire         Code = "fire"
	CodeHitClaim     Code = "hitClaim"
	CodeReload       Code = "reload"
	CodeUseItem      Code = "useItem"
	CodeSwitchWeapon Code = "switchWeapon"
	CodeReady        Code = "ready"
	CodeHeartbeat    Code = "heartbeat"
	CodeStateRequest Code = "stateRequest"
)

// Authority codes.
const (
	CodeFired        Code = "fired"
	CodeHitConfirmed Code = "hitConfirmed"
	CodeDied         Code = "died"
	CodeAmmoSync     Code = "ammoSync"
	CodeRespawn      Code = "respawn"
	CodeStateSync    Code = "stateSync"
	CodeStateDelta   Code = "stateDelta"
	CodePickupAdded  Code = "pickupAdded"
	CodePickupTaken  Code = "pickupTaken"
)

// System codes.
const (
	CodeJoin          Code = "join"
	CodeLeave         Code = "leave"
	CodeMatchState    Code = "matchState"
	CodeScoreSync     Code = "scoreSync"
	CodeMatchEnd      Code = "matchEnd"
	CodeCommandAck    Code = "commandAck"
	CodeCommandReject Code = "commandReject"
)

// Class partitions codes by direction and intent.
type Class uint8

const (
	ClassUnknown Class = iota
	ClassRequest
	ClassAuthority
	ClassSystem
)

// ClassOf reports which class a code belongs to.
func ClassOf(code Code) Class {
	switch code {
	case CodeMove, CodeFire, CodeHitClaim, CodeReload, CodeUseItem,
		CodeSwitchWeapon, CodeReady, CodeHeartbeat, CodeStateRequest:
		return ClassRequest
	case CodeFired, CodeHitConfirmed, CodeDied, CodeAmmoSync, CodeRespawn,
		CodeStateSync, CodeStateDelta, CodePickupAdded, CodePickupTaken:
		return ClassAuthority
	case CodeJoin, CodeLeave, CodeMatchState, CodeScoreSync, CodeMatchEnd,
		CodeCommandAck, CodeCommandReject:
		return ClassSystem
	default:
		return ClassUnknown
	}
}

// Reliability selects the delivery tier for an outbound event. Unreliable
// events may be dropped under backpressure because the next delta or snapshot
// supersedes them; reliable events must reach the client or the session dies.
type Reliability uint8

const (
	Unreliable Reliability = iota
	Reliable
)

func (r Reliability) String() string {
	if r == Reliable {
		return "reliable"
	}
	return "unreliable"
}

// DefaultReliability returns the tier the protocol assigns each code.
// High-frequency movement and delta traffic is safe to drop; everything else
// carries state transitions that must arrive.
func DefaultReliability(code Code) Reliability {
	switch code {
	case CodeMove, CodeFire, CodeStateDelta:
		return Unreliable
	default:
		return Reliable
	}
}

// ReceiverGroup is the addressing mode of an outbound event.
type ReceiverGroup uint8

const (
	// ReceiverSelf targets only the actor named by the envelope.
	ReceiverSelf ReceiverGroup = iota
	// ReceiverMaster targets the current master client.
	ReceiverMaster
	// ReceiverOthers targets every connected client except the named actor.
	ReceiverOthers
	// ReceiverAll targets every connected client.
	ReceiverAll
)

func (g ReceiverGroup) String() string {
	switch g {
	case ReceiverSelf:
		return "self"
	case ReceiverMaster:
		return "master"
	case ReceiverOthers:
		return "others"
	case ReceiverAll:
		return "all"
	default:
		return "unknown"
	}
}

// Envelope is a fully encoded outbound event ready for fan-out. Payload holds
// the wire bytes so the encoder runs once regardless of receiver count; Binary
// selects the websocket frame type (msgpack state frames vs JSON control
// frames). ActorID anchors Self and Others resolution.
type Envelope struct {
	Code        Code
	Reliability Reliability
	Receivers   ReceiverGroup
	ActorID     string
	Binary      bool
	Payload     []byte
}

// Sender delivers envelopes to connected clients. The simulation depends only
// on this interface; the websocket gateway provides the production
// implementation and tests substitute an in-memory capture.
type Sender interface {
	Send(Envelope)
}

// SenderFunc adapts functions into the Sender interface.
type SenderFunc func(Envelope)

func (f SenderFunc) Send(env Envelope) {
	if f == nil {
		return
	}
	f(env)
}
