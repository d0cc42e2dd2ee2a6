package ws

import (
	"sync"

	"github.com/gorilla/websocket"

	"quickstrike/server/internal/net/proto"
	"quickstrike/server/internal/telemetry"
)

const (
	framesSentMetricKey       = "ws_frames_sent_total"
	framesDroppedMetricKey    = "ws_frames_dropped_total"
	masterSuppressedMetricKey = "ws_master_frames_suppressed_total"
	sessionsMetricKey         = "ws_sessions"
)

// Gateway fans encoded envelopes out over the connected session set and
// tears sessions down on behalf of the engine. The authority runs on this
// process, so frames addressed to the master client have no remote receiver;
// Send counts and suppresses them.
type Gateway struct {
	logger  telemetry.Logger
	metrics telemetry.Metrics

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewGateway builds an empty session registry.
func NewGateway(logger telemetry.Logger, metrics telemetry.Metrics) *Gateway {
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	return &Gateway{
		logger:   logger,
		metrics:  metrics,
		sessions: make(map[string]*session),
	}
}

// Register binds a connection to an actor id. A second connection for the
// same id supersedes the first: the stale socket closes and its read loop
// unwinds without evicting the replacement.
func (g *Gateway) Register(actorID string, conn *websocket.Conn) *session {
	sess := newSession(actorID, conn)

	g.mu.Lock()
	prev := g.sessions[actorID]
	g.sessions[actorID] = sess
	count := len(g.sessions)
	g.mu.Unlock()

	if prev != nil {
		prev.close(websocket.ClosePolicyViolation, "superseded by reconnect")
	}
	g.metrics.Store(sessionsMetricKey, uint64(count))
	return sess
}

// unregister removes a session if it is still the registered one for its
// actor. Pointer equality keeps a stale read loop from evicting a reconnect;
// the return value tells the caller whether it still owned the slot.
func (g *Gateway) unregister(sess *session) bool {
	if sess == nil {
		return false
	}
	g.mu.Lock()
	owned := g.sessions[sess.actorID] == sess
	if owned {
		delete(g.sessions, sess.actorID)
	}
	count := len(g.sessions)
	g.mu.Unlock()

	if owned {
		g.metrics.Store(sessionsMetricKey, uint64(count))
	}
	return owned
}

// CloseSession implements the engine's session closer: announce the reason in
// a close frame and drop the socket. The engine removes the player itself,
// so only transport state is touched here.
func (g *Gateway) CloseSession(actorID, reason string) {
	g.mu.Lock()
	sess, ok := g.sessions[actorID]
	if ok {
		delete(g.sessions, actorID)
	}
	count := len(g.sessions)
	g.mu.Unlock()

	if !ok {
		return
	}
	g.metrics.Store(sessionsMetricKey, uint64(count))
	sess.close(websocket.CloseGoingAway, reason)
	if g.logger != nil {
		g.logger.Printf("ws: closed session for %s: %s", actorID, reason)
	}
}

// Sessions reports the number of live sockets.
func (g *Gateway) Sessions() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}

// Send delivers one envelope to its receiver group. Targets resolve under the
// read lock; writes happen outside it so a stalled socket cannot block
// registration. A failed write closes the socket and lets the session's read
// loop stage the leave.
func (g *Gateway) Send(env proto.Envelope) {
	for _, sess := range g.resolve(env) {
		if err := sess.deliver(env); err != nil {
			g.metrics.Add(framesDroppedMetricKey, 1)
			if g.logger != nil {
				g.logger.Printf("ws: write %s to %s failed: %v", env.Code, sess.actorID, err)
			}
			sess.conn.Close()
			continue
		}
		g.metrics.Add(framesSentMetricKey, 1)
	}
}

func (g *Gateway) resolve(env proto.Envelope) []*session {
	g.mu.RLock()
	defer g.mu.RUnlock()

	switch env.Receivers {
	case proto.ReceiverSelf:
		if sess, ok := g.sessions[env.ActorID]; ok {
			return []*session{sess}
		}
		return nil
	case proto.ReceiverMaster:
		g.metrics.Add(masterSuppressedMetricKey, 1)
		return nil
	case proto.ReceiverOthers:
		targets := make([]*session, 0, len(g.sessions))
		for id, sess := range g.sessions {
			if id == env.ActorID {
				continue
			}
			targets = append(targets, sess)
		}
		return targets
	case proto.ReceiverAll:
		targets := make([]*session, 0, len(g.sessions))
		for _, sess := range g.sessions {
			targets = append(targets, sess)
		}
		return targets
	default:
		return nil
	}
}
