package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"quickstrike/server/internal/net/intake"
	"quickstrike/server/internal/net/proto"
	"quickstrike/server/internal/sim"
	"quickstrike/server/internal/telemetry"
	"quickstrike/server/logging"
)

// HandlerConfig carries the handler's ambient dependencies.
type HandlerConfig struct {
	Logger telemetry.Logger
	Clock  logging.Clock
	// AllowedOrigins gates the upgrade handshake. Empty allows every
	// origin; "*" does the same explicitly; anything else must match the
	// Origin header exactly.
	AllowedOrigins []string
}

// Handler upgrades GET /ws requests and runs the per-session read loop.
// Players join over HTTP first; the socket binds to the issued id.
type Handler struct {
	gateway  *Gateway
	engine   *sim.Engine
	stager   *intake.Stager
	queue    intake.Queue
	clock    logging.Clock
	logger   telemetry.Logger
	upgrader websocket.Upgrader
}

// NewHandler wires the upgrade path to the gateway and the tick queue.
func NewHandler(gateway *Gateway, engine *sim.Engine, stager *intake.Stager, queue intake.Queue, cfg HandlerConfig) *Handler {
	clock := cfg.Clock
	if clock == nil {
		clock = logging.ClockFunc(time.Now)
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return &Handler{
		gateway:  gateway,
		engine:   engine,
		stager:   stager,
		queue:    queue,
		clock:    clock,
		logger:   cfg.Logger,
		upgrader: upgrader,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	exact := make(map[string]bool, len(allowed))
	wildcard := false
	for _, origin := range allowed {
		if origin == "*" {
			wildcard = true
			continue
		}
		exact[origin] = true
	}
	return func(r *http.Request) bool {
		if wildcard {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients send no Origin; nothing to enforce.
			return true
		}
		return exact[origin]
	}
}

// Handle upgrades one connection and serves it until the socket dies.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	actorID := r.URL.Query().Get("id")
	if actorID == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.logger != nil {
			h.logger.Printf("ws: upgrade failed for %s: %v", actorID, err)
		}
		return
	}

	sess := h.gateway.Register(actorID, conn)
	if !h.engine.AttachSession(actorID, h.clock.Now()) {
		h.gateway.unregister(sess)
		sess.close(websocket.ClosePolicyViolation, "unknown player")
		return
	}

	h.readLoop(sess, conn)
}

// readLoop decodes request frames until the connection errors out.
// Heartbeats answer inline; every other request stages on the tick queue.
func (h *Handler) readLoop(sess *session, conn *websocket.Conn) {
	defer h.teardown(sess)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		msg, err := proto.DecodeClientMessage(payload)
		if err != nil {
			if h.logger != nil {
				h.logger.Printf("ws: discarding malformed message from %s: %v", sess.actorID, err)
			}
			continue
		}

		if msg.Type == proto.CodeHeartbeat {
			h.engine.Heartbeat(sess.actorID, msg.SentAt, h.clock.Now())
			continue
		}

		h.stager.Stage(sess.actorID, msg)
	}
}

// teardown runs when the read loop exits for any reason. Only the session
// that still owns its registry slot stages a leave: a loop unwinding after a
// reconnect or an engine-initiated close must not remove the live player.
// The staged leave races the heartbeat sweep for the same id; the engine
// dedupes.
func (h *Handler) teardown(sess *session) {
	owned := h.gateway.unregister(sess)
	sess.conn.Close()
	if !owned {
		return
	}
	ok, _ := h.queue.Enqueue(sim.Command{
		ActorID: sess.actorID,
		Type:    sim.CommandLeave,
		Leave:   &sim.LeaveCommand{Reason: sim.DisconnectSocketClosed},
	})
	if !ok && h.logger != nil {
		h.logger.Printf("ws: leave for %s dropped, heartbeat sweep will reap it", sess.actorID)
	}
}
