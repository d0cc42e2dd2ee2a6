package intake

import (
	"quickstrike/server/internal/geom"
	"quickstrike/server/internal/net/proto"
	"quickstrike/server/internal/sim"
)

// Package intake translates decoded protocol requests into simulation
// commands and stages them on the tick queue. Sessions never touch the
// engine directly; everything funnels through here so the queue's
// backpressure applies uniformly.

// Queue stages commands for the next tick. *sim.Loop implements it; the
// returned reason is non-empty only when the command was dropped.
type Queue interface {
	Enqueue(sim.Command) (bool, string)
}

// Stager owns the message-to-command mapping for one transport. Queue drops
// answer reliable requests with a retryable reject; unreliable ones vanish,
// the client's next tick resends fresher state anyway.
type Stager struct {
	queue  Queue
	sender proto.Sender
}

// NewStager wires a stager to the tick queue and the reply sender.
func NewStager(queue Queue, sender proto.Sender) *Stager {
	if sender == nil {
		sender = proto.SenderFunc(func(proto.Envelope) {})
	}
	return &Stager{queue: queue, sender: sender}
}

// Stage maps and enqueues one client message. The actor id comes from the
// session, never from the payload, so clients cannot impersonate each other.
func (s *Stager) Stage(actorID string, msg proto.ClientMessage) bool {
	if s == nil || s.queue == nil {
		return false
	}
	cmd, ok := CommandFromMessage(actorID, msg)
	if !ok {
		return false
	}
	ok, reason := s.queue.Enqueue(cmd)
	if ok {
		return true
	}
	if cmd.Type.Acked() {
		if env, err := proto.RejectFrame(actorID, cmd.Type.Code(), cmd.Seq, reason, true); err == nil {
			s.sender.Send(env)
		}
	}
	return false
}

// CommandFromMessage maps a validated client message onto a simulation
// command. Heartbeats are not commands; sessions answer them inline, so they
// map to false here along with any unknown code.
func CommandFromMessage(actorID string, msg proto.ClientMessage) (sim.Command, bool) {
	cmd := sim.Command{ActorID: actorID, Seq: msg.Seq}
	switch msg.Type {
	case proto.CodeMove:
		cmd.Type = sim.CommandMove
		cmd.Move = &sim.MoveCommand{
			Position: geom.Vec3{X: msg.X, Y: msg.Y, Z: msg.Z},
			Rotation: geom.Vec3{X: msg.RotX, Y: msg.RotY, Z: msg.RotZ},
		}
	case proto.CodeFire:
		cmd.Type = sim.CommandFire
		cmd.Fire = &sim.FireCommand{
			Origin:    geom.Vec3{X: msg.OriginX, Y: msg.OriginY, Z: msg.OriginZ},
			Direction: geom.Vec3{X: msg.DirX, Y: msg.DirY, Z: msg.DirZ},
			WeaponID:  msg.WeaponID,
			At:        msg.At,
		}
	case proto.CodeHitClaim:
		cmd.Type = sim.CommandHitClaim
		cmd.HitClaim = &sim.HitClaimCommand{
			TargetID:  msg.TargetID,
			Origin:    geom.Vec3{X: msg.OriginX, Y: msg.OriginY, Z: msg.OriginZ},
			Direction: geom.Vec3{X: msg.DirX, Y: msg.DirY, Z: msg.DirZ},
			Damage:    msg.Damage,
			Part:      msg.Part,
			At:        msg.At,
		}
	case proto.CodeReload:
		cmd.Type = sim.CommandReload
		cmd.Reload = &sim.ReloadCommand{WeaponID: msg.WeaponID}
	case proto.CodeSwitchWeapon:
		cmd.Type = sim.CommandSwitchWeapon
		cmd.SwitchWeapon = &sim.SwitchWeaponCommand{WeaponID: msg.WeaponID}
	case proto.CodeUseItem:
		cmd.Type = sim.CommandUseItem
		cmd.UseItem = &sim.UseItemCommand{ItemID: msg.ItemID}
	case proto.CodeReady:
		cmd.Type = sim.CommandReady
	case proto.CodeStateRequest:
		cmd.Type = sim.CommandStateRequest
	default:
		return sim.Command{}, false
	}
	return cmd, true
}
