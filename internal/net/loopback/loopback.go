package loopback

import (
	"sort"
	"sync"

	"quickstrike/server/internal/net/proto"
)

// Package loopback is an in-process transport. It resolves receiver groups
// exactly like the websocket gateway but delivers envelopes to registered
// callbacks instead of sockets, which is what integration tests and headless
// bots want.

// Client consumes envelopes addressed to one actor.
type Client interface {
	Deliver(proto.Envelope)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(proto.Envelope)

// Deliver calls the wrapped function.
func (f ClientFunc) Deliver(env proto.Envelope) {
	if f != nil {
		f(env)
	}
}

// Bus fans envelopes out to attached clients by receiver group. The oldest
// attached client is the master; the role migrates to the next oldest on
// detach.
type Bus struct {
	mu      sync.RWMutex
	clients map[string]Client
	order   []string
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{clients: make(map[string]Client)}
}

// Attach registers a client for the actor id. Re-attaching replaces the
// callback without changing seniority.
func (b *Bus) Attach(actorID string, client Client) {
	if b == nil || actorID == "" || client == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, known := b.clients[actorID]; !known {
		b.order = append(b.order, actorID)
	}
	b.clients[actorID] = client
}

// Detach removes the client. When the master leaves, the next oldest client
// inherits the role implicitly through attach order.
func (b *Bus) Detach(actorID string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, known := b.clients[actorID]; !known {
		return
	}
	delete(b.clients, actorID)
	for i, id := range b.order {
		if id == actorID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Master reports the current master client's actor id, empty when nobody is
// attached.
func (b *Bus) Master() string {
	if b == nil {
		return ""
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.order) == 0 {
		return ""
	}
	return b.order[0]
}

// Clients lists attached actor ids, sorted.
func (b *Bus) Clients() []string {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.clients))
	for id := range b.clients {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Send resolves the envelope's receiver group and delivers synchronously.
func (b *Bus) Send(env proto.Envelope) {
	if b == nil {
		return
	}
	b.mu.RLock()
	var targets []Client
	switch env.Receivers {
	case proto.ReceiverSelf:
		if client, ok := b.clients[env.ActorID]; ok {
			targets = append(targets, client)
		}
	case proto.ReceiverMaster:
		if len(b.order) > 0 {
			if client, ok := b.clients[b.order[0]]; ok {
				targets = append(targets, client)
			}
		}
	case proto.ReceiverOthers:
		for _, id := range b.order {
			if id == env.ActorID {
				continue
			}
			targets = append(targets, b.clients[id])
		}
	case proto.ReceiverAll:
		for _, id := range b.order {
			targets = append(targets, b.clients[id])
		}
	}
	b.mu.RUnlock()

	for _, client := range targets {
		client.Deliver(env)
	}
}
