package ws

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quickstrike/server/internal/combat"
	"quickstrike/server/internal/history"
	"quickstrike/server/internal/match"
	"quickstrike/server/internal/net/intake"
	"quickstrike/server/internal/net/proto"
	"quickstrike/server/internal/replication"
	"quickstrike/server/internal/sim"
	"quickstrike/server/internal/world"
	"quickstrike/server/weapons/catalog"
)

const testDT = 1.0 / 30

type wsRig struct {
	t       *testing.T
	gateway *Gateway
	engine  *sim.Engine
	loop    *sim.Loop
	world   *world.World
	srv     *httptest.Server
}

func newWSRig(t *testing.T) *wsRig {
	t.Helper()

	resolver, err := catalog.NewResolver()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	track := history.NewBuffer(time.Second, 32, nil)
	w, err := world.New(world.Config{Seed: "ws-test"}, world.Deps{Catalog: resolver, History: track})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	coordinator := match.NewCoordinator(match.Config{MinReadyPlayers: 1}, nil, nil)
	validator := combat.NewValidator(combat.Config{}, combat.Deps{
		World:   w,
		History: track,
		Catalog: resolver,
	})
	gateway := NewGateway(nil, nil)
	engine, err := sim.NewEngine(sim.Config{
		TickRate:               30,
		SnapshotIntervalTicks:  10_000,
		MatchSyncIntervalTicks: 10_000,
		HeartbeatTimeout:       time.Minute,
	}, sim.Deps{
		World:      w,
		Match:      coordinator,
		Validator:  validator,
		Replicator: replication.NewReplicator(nil, nil),
		Catalog:    resolver,
		Sender:     gateway,
		Closer:     gateway,
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	loop := sim.NewLoop(engine, sim.LoopConfig{TickRate: 30}, nil)
	stager := intake.NewStager(loop, gateway)
	handler := NewHandler(gateway, engine, stager, loop, HandlerConfig{})

	srv := httptest.NewServer(http.HandlerFunc(handler.Handle))
	t.Cleanup(srv.Close)

	return &wsRig{
		t:       t,
		gateway: gateway,
		engine:  engine,
		loop:    loop,
		world:   w,
		srv:     srv,
	}
}

func (r *wsRig) join() string {
	r.t.Helper()
	msg, err := r.engine.Join(time.Now())
	if err != nil {
		r.t.Fatalf("join: %v", err)
	}
	return msg.PlayerID
}

func (r *wsRig) dial(playerID string) *websocket.Conn {
	r.t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(websocketURL(r.t, r.srv.URL, playerID), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		r.t.Fatalf("failed to open websocket connection: %v", err)
	}
	r.t.Cleanup(func() {
		conn.Close()
	})
	return conn
}

// awaitStaged waits until the read loops have pushed n commands onto the
// tick queue, keeping the test deterministic without sleeping blind.
func (r *wsRig) awaitStaged(n int) {
	r.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.loop.Pending() < n {
		if time.Now().After(deadline) {
			r.t.Fatalf("staged %d commands, want %d", r.loop.Pending(), n)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (r *wsRig) advance() {
	r.t.Helper()
	r.loop.Advance(time.Now(), testDT)
}

func sendJSON(t *testing.T, conn *websocket.Conn, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal client frame: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write client frame: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) (int, []byte) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return messageType, payload
}

func websocketURL(t *testing.T, baseURL, playerID string) string {
	t.Helper()

	parsed, err := url.Parse(baseURL)
	if err != nil {
		t.Fatalf("failed to parse test server url: %v", err)
	}
	parsed.Scheme = "ws"
	parsed.Path = "/"
	query := parsed.Query()
	query.Set("id", playerID)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func TestHandlerDeliversJoinFrameOnConnect(t *testing.T) {
	rig := newWSRig(t)
	id := rig.join()
	conn := rig.dial(id)

	messageType, payload := readFrame(t, conn)
	if messageType != websocket.TextMessage {
		t.Fatalf("join frame type = %d, want text", messageType)
	}
	var join proto.JoinMessage
	if err := json.Unmarshal(payload, &join); err != nil {
		t.Fatalf("decode join frame: %v", err)
	}
	if join.Type != proto.CodeJoin {
		t.Fatalf("first frame = %q, want join", join.Type)
	}
	if join.PlayerID != id {
		t.Fatalf("join playerId = %q, want %q", join.PlayerID, id)
	}
	if len(join.Snapshot.Players) != 1 {
		t.Fatalf("join snapshot players = %d, want 1", len(join.Snapshot.Players))
	}
	if join.TickRate != 30 {
		t.Fatalf("join tickRate = %d, want 30", join.TickRate)
	}
}

func TestHandlerRejectsMissingID(t *testing.T) {
	rig := newWSRig(t)

	resp, err := http.Get(rig.srv.URL + "/")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestHandlerClosesUnknownPlayerWithPolicyViolation(t *testing.T) {
	rig := newWSRig(t)

	conn, resp, err := websocket.DefaultDialer.Dial(websocketURL(t, rig.srv.URL, "ghost"), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		t.Fatalf("handshake should succeed before the identity check: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("read = %v, want policy violation close", err)
	}
	if rig.gateway.Sessions() != 0 {
		t.Fatalf("sessions = %d after rejected connect, want 0", rig.gateway.Sessions())
	}
}

func TestFireRoutesToOthersAndAmmoToSelf(t *testing.T) {
	rig := newWSRig(t)
	shooter := rig.join()
	witness := rig.join()
	shooterConn := rig.dial(shooter)
	readFrame(t, shooterConn)
	witnessConn := rig.dial(witness)
	readFrame(t, witnessConn)

	sendJSON(t, shooterConn, map[string]any{
		"ver":    1,
		"type":   "fire",
		"oy":     1.0,
		"dz":     1.0,
		"weapon": "rifle",
		"at":     time.Now().UnixMilli(),
	})
	rig.awaitStaged(1)
	rig.advance()

	messageType, payload := readFrame(t, witnessConn)
	if messageType != websocket.TextMessage {
		t.Fatalf("witness frame type = %d, want text", messageType)
	}
	var fired proto.FiredMessage
	if err := json.Unmarshal(payload, &fired); err != nil {
		t.Fatalf("decode fired frame: %v", err)
	}
	if fired.Type != proto.CodeFired || fired.ShooterID != shooter {
		t.Fatalf("witness got %q from %q, want fired from %q", fired.Type, fired.ShooterID, shooter)
	}

	messageType, payload = readFrame(t, witnessConn)
	if messageType != websocket.BinaryMessage {
		t.Fatalf("second witness frame type = %d, want binary", messageType)
	}
	frame, err := proto.DecodeStateFrame(payload)
	if err != nil {
		t.Fatalf("decode state frame: %v", err)
	}
	if frame.Code != proto.CodeStateDelta || frame.Delta == nil {
		t.Fatalf("second witness frame = %q, want stateDelta", frame.Code)
	}
	if len(frame.Delta.ChangedPlayers) != 2 {
		t.Fatalf("first delta carries %d players, want 2", len(frame.Delta.ChangedPlayers))
	}

	messageType, payload = readFrame(t, shooterConn)
	if messageType != websocket.TextMessage {
		t.Fatalf("shooter frame type = %d, want text", messageType)
	}
	var ammo proto.AmmoSyncMessage
	if err := json.Unmarshal(payload, &ammo); err != nil {
		t.Fatalf("decode ammo frame: %v", err)
	}
	if ammo.Type != proto.CodeAmmoSync {
		t.Fatalf("shooter got %q, want ammoSync instead of its own fired echo", ammo.Type)
	}
	if ammo.PlayerID != shooter || ammo.Magazine != 29 {
		t.Fatalf("ammoSync = %s %d, want %s 29", ammo.PlayerID, ammo.Magazine, shooter)
	}
	if messageType, _ = readFrame(t, shooterConn); messageType != websocket.BinaryMessage {
		t.Fatalf("shooter should see the delta after its ammo sync, got frame type %d", messageType)
	}
}

func TestHandlerAnswersHeartbeatInline(t *testing.T) {
	rig := newWSRig(t)
	id := rig.join()
	conn := rig.dial(id)
	readFrame(t, conn)

	sent := time.Now().UnixMilli() - 25
	sendJSON(t, conn, map[string]any{"ver": 1, "type": "heartbeat", "sentAt": sent})

	_, payload := readFrame(t, conn)
	var echo proto.HeartbeatMessage
	if err := json.Unmarshal(payload, &echo); err != nil {
		t.Fatalf("decode heartbeat echo: %v", err)
	}
	if echo.Type != proto.CodeHeartbeat || echo.ClientSent != sent {
		t.Fatalf("echo = %q clientSent %d, want heartbeat %d", echo.Type, echo.ClientSent, sent)
	}
	if echo.RTTMillis < 25 || echo.RTTMillis > 5000 {
		t.Fatalf("rtt = %d, want a plausible value >= 25", echo.RTTMillis)
	}
	if rig.loop.Pending() != 0 {
		t.Fatalf("heartbeat staged %d commands, want 0", rig.loop.Pending())
	}
}

func TestReconnectSupersedesWithoutKillingPlayer(t *testing.T) {
	rig := newWSRig(t)
	id := rig.join()

	first := rig.dial(id)
	readFrame(t, first)
	second := rig.dial(id)
	readFrame(t, second)

	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := first.ReadMessage(); !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("first socket read = %v, want supersede close", err)
	}

	// The stale read loop must not stage a leave for the live player.
	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		if n := rig.loop.Pending(); n != 0 {
			t.Fatalf("stale session staged %d commands after reconnect", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
	rig.advance()
	if _, ok := rig.world.Player(id); !ok {
		t.Fatalf("reconnect removed the live player")
	}

	sendJSON(t, second, map[string]any{"ver": 1, "type": "heartbeat", "sentAt": time.Now().UnixMilli()})
	_, payload := readFrame(t, second)
	var echo proto.HeartbeatMessage
	if err := json.Unmarshal(payload, &echo); err != nil {
		t.Fatalf("decode heartbeat echo: %v", err)
	}
	if echo.Type != proto.CodeHeartbeat {
		t.Fatalf("replacement socket got %q, want heartbeat echo", echo.Type)
	}
}

func TestCloseSessionDeliversReasonedCloseFrame(t *testing.T) {
	rig := newWSRig(t)
	id := rig.join()
	conn := rig.dial(id)
	readFrame(t, conn)

	rig.gateway.CloseSession(id, sim.DisconnectHeartbeatTimeout)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("read = %v, want close error", err)
	}
	if closeErr.Code != websocket.CloseGoingAway || closeErr.Text != sim.DisconnectHeartbeatTimeout {
		t.Fatalf("close = %d %q, want going-away %q", closeErr.Code, closeErr.Text, sim.DisconnectHeartbeatTimeout)
	}
	if rig.gateway.Sessions() != 0 {
		t.Fatalf("sessions = %d after CloseSession, want 0", rig.gateway.Sessions())
	}
}

func TestClientCloseStagesLeave(t *testing.T) {
	rig := newWSRig(t)
	id := rig.join()
	conn := rig.dial(id)
	readFrame(t, conn)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	rig.awaitStaged(1)
	rig.advance()
	if _, ok := rig.world.Player(id); ok {
		t.Fatalf("player survived its socket close")
	}
}

func TestMalformedFramesAreSkipped(t *testing.T) {
	rig := newWSRig(t)
	id := rig.join()
	conn := rig.dial(id)
	readFrame(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write malformed frame: %v", err)
	}
	// Authority codes are not requests and must be discarded too.
	sendJSON(t, conn, map[string]any{"ver": 1, "type": "stateDelta"})

	sendJSON(t, conn, map[string]any{"ver": 1, "type": "heartbeat", "sentAt": time.Now().UnixMilli()})
	_, payload := readFrame(t, conn)
	var echo proto.HeartbeatMessage
	if err := json.Unmarshal(payload, &echo); err != nil {
		t.Fatalf("decode heartbeat echo: %v", err)
	}
	if echo.Type != proto.CodeHeartbeat {
		t.Fatalf("session died on malformed input, got %q", echo.Type)
	}
	if rig.loop.Pending() != 0 {
		t.Fatalf("malformed frames staged %d commands, want 0", rig.loop.Pending())
	}
}

func TestGatewaySuppressesMasterFrames(t *testing.T) {
	rig := newWSRig(t)
	id := rig.join()
	conn := rig.dial(id)
	readFrame(t, conn)

	env, err := proto.MatchStateFrame(proto.MatchStateMessage{MatchID: "m-test", Phase: "READY"})
	if err != nil {
		t.Fatalf("build frame: %v", err)
	}
	env.Receivers = proto.ReceiverMaster
	rig.gateway.Send(env)

	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = conn.ReadMessage()
	if err == nil {
		t.Fatalf("master-addressed frame reached a remote client")
	}
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Fatalf("read = %v, want timeout", err)
	}
}

func TestOriginGateRejectsForeignBrowsers(t *testing.T) {
	rig := newWSRig(t)
	gated := NewHandler(rig.gateway, rig.engine, intake.NewStager(rig.loop, rig.gateway), rig.loop, HandlerConfig{
		AllowedOrigins: []string{"https://game.example"},
	})
	srv := httptest.NewServer(http.HandlerFunc(gated.Handle))
	defer srv.Close()

	id := rig.join()

	_, resp, err := websocket.DefaultDialer.Dial(websocketURL(t, srv.URL, id), http.Header{
		"Origin": []string{"https://evil.example"},
	})
	if !errors.Is(err, websocket.ErrBadHandshake) {
		t.Fatalf("dial with foreign origin = %v, want bad handshake", err)
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("handshake response = %+v, want 403", resp)
	}
	resp.Body.Close()

	conn, _, err := websocket.DefaultDialer.Dial(websocketURL(t, srv.URL, id), http.Header{
		"Origin": []string{"https://game.example"},
	})
	if err != nil {
		t.Fatalf("dial with allowed origin: %v", err)
	}
	defer conn.Close()

	messageType, payload := readFrame(t, conn)
	if messageType != websocket.TextMessage {
		t.Fatalf("first frame type = %d, want text", messageType)
	}
	var join proto.JoinMessage
	if err := json.Unmarshal(payload, &join); err != nil {
		t.Fatalf("decode join frame: %v", err)
	}
	if join.Type != proto.CodeJoin || join.PlayerID != id {
		t.Fatalf("first frame = %q for %q, want join for %q", join.Type, join.PlayerID, id)
	}
}
