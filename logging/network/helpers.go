package network

import (
	"context"

	"quickstrike/server/logging"
)

const (
	// EventClientJoined is emitted when a websocket client completes the join handshake.
	EventClientJoined logging.EventType = "network.client_joined"
	// EventClientLeft is emitted when a client disconnects or is dropped.
	EventClientLeft logging.EventType = "network.client_left"
	// EventHeartbeatTimeout is emitted when a client misses its heartbeat deadline.
	EventHeartbeatTimeout logging.EventType = "network.heartbeat_timeout"
	// EventCommandRejected is emitted when an inbound command is refused before simulation.
	EventCommandRejected logging.EventType = "network.command_rejected"
	// EventResync is emitted when a client is served a full keyframe snapshot on request.
	EventResync logging.EventType = "network.resync"
)

// JoinPayload records handshake details for a new client.
type JoinPayload struct {
	RemoteAddr string `json:"remoteAddr,omitempty"`
	Master     bool   `json:"master,omitempty"`
}

// LeavePayload records why a client went away.
type LeavePayload struct {
	Reason string `json:"reason"`
}

// HeartbeatPayload captures staleness detail for a timed-out client.
type HeartbeatPayload struct {
	LastSeenMillis int64 `json:"lastSeenMillis"`
	RTTMillis      int64 `json:"rttMillis,omitempty"`
}

// RejectPayload names the refusal reason for an inbound command.
type RejectPayload struct {
	Command string `json:"command"`
	Reason  string `json:"reason"`
	Seq     uint32 `json:"seq,omitempty"`
}

// ResyncPayload records what triggered a keyframe resend.
type ResyncPayload struct {
	Cause string `json:"cause"`
}

// ClientJoined publishes a join event.
func ClientJoined(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload JoinPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventClientJoined,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}

// ClientLeft publishes a disconnect event.
func ClientLeft(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload LeavePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventClientLeft,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}

// HeartbeatTimeout publishes a warning for a client that went silent.
func HeartbeatTimeout(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload HeartbeatPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventHeartbeatTimeout,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}

// CommandRejected publishes a debug event for a refused inbound command.
func CommandRejected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload RejectPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCommandRejected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}

// Resync publishes an event when a client receives an on-demand keyframe.
func Resync(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ResyncPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventResync,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}
