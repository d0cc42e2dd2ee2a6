package net

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quickstrike/server/internal/combat"
	"quickstrike/server/internal/history"
	"quickstrike/server/internal/match"
	"quickstrike/server/internal/net/proto"
	"quickstrike/server/internal/observability"
	"quickstrike/server/internal/replication"
	"quickstrike/server/internal/sim"
	"quickstrike/server/internal/world"
	"quickstrike/server/logging"
	"quickstrike/server/weapons/catalog"
)

type httpRig struct {
	t        *testing.T
	engine   *sim.Engine
	weapons  *catalog.Resolver
	registry *logging.Metrics
	handler  http.Handler
}

func newHTTPRig(t *testing.T) *httpRig {
	t.Helper()

	resolver, err := catalog.NewResolver()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	track := history.NewBuffer(time.Second, 32, nil)
	w, err := world.New(world.Config{Seed: "http-test"}, world.Deps{Catalog: resolver, History: track})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	coordinator := match.NewCoordinator(match.Config{}, nil, nil)
	validator := combat.NewValidator(combat.Config{}, combat.Deps{
		World:   w,
		History: track,
		Catalog: resolver,
	})
	engine, err := sim.NewEngine(sim.Config{TickRate: 30}, sim.Deps{
		World:      w,
		Match:      coordinator,
		Validator:  validator,
		Replicator: replication.NewReplicator(nil, nil),
		Catalog:    resolver,
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	registry := logging.NewMetrics()
	handler := NewHTTPHandler(engine, nil, resolver, registry, HTTPHandlerConfig{
		TickRate:          30,
		HeartbeatInterval: 2 * time.Second,
	})

	return &httpRig{
		t:        t,
		engine:   engine,
		weapons:  resolver,
		registry: registry,
		handler:  handler,
	}
}

func (r *httpRig) request(method, path string) *httptest.ResponseRecorder {
	r.t.Helper()
	req := httptest.NewRequest(method, path, nil)
	resp := httptest.NewRecorder()
	r.handler.ServeHTTP(resp, req)
	return resp
}

func TestJoinEndpointAllocatesPlayer(t *testing.T) {
	rig := newHTTPRig(t)

	resp := rig.request(http.MethodPost, "/join")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Code)
	}
	if contentType := resp.Header().Get("Content-Type"); contentType != "application/json" {
		t.Fatalf("content type = %q, want application/json", contentType)
	}

	var join proto.JoinMessage
	if err := json.Unmarshal(resp.Body.Bytes(), &join); err != nil {
		t.Fatalf("decode join payload: %v", err)
	}
	if join.Type != proto.CodeJoin || join.PlayerID == "" {
		t.Fatalf("join = %q id %q, want join frame with an id", join.Type, join.PlayerID)
	}
	if len(join.Snapshot.Players) != 1 {
		t.Fatalf("snapshot players = %d, want 1", len(join.Snapshot.Players))
	}
	if join.CatalogHash != rig.weapons.Fingerprint() {
		t.Fatalf("catalogHash = %q, want resolver fingerprint %q", join.CatalogHash, rig.weapons.Fingerprint())
	}

	var second proto.JoinMessage
	if err := json.Unmarshal(rig.request(http.MethodPost, "/join").Body.Bytes(), &second); err != nil {
		t.Fatalf("decode second join: %v", err)
	}
	if second.PlayerID == join.PlayerID {
		t.Fatalf("both joins issued id %q", join.PlayerID)
	}

	if resp := rig.request(http.MethodGet, "/join"); resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /join = %d, want 405", resp.Code)
	}
}

func TestStatusReportsRegistry(t *testing.T) {
	rig := newHTTPRig(t)
	rig.request(http.MethodPost, "/join")
	rig.request(http.MethodPost, "/join")

	resp := rig.request(http.MethodGet, "/status")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Code)
	}
	var report sim.StatusReport
	if err := json.Unmarshal(resp.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode status payload: %v", err)
	}
	if report.Players != 2 {
		t.Fatalf("players = %d, want 2", report.Players)
	}
	if report.Phase != string(match.PhaseReady) {
		t.Fatalf("phase = %q, want %q", report.Phase, match.PhaseReady)
	}
	if report.MatchID == "" {
		t.Fatalf("matchId is empty")
	}
	if report.Tick != 0 {
		t.Fatalf("tick = %d before any step, want 0", report.Tick)
	}

	if resp := rig.request(http.MethodPost, "/status"); resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /status = %d, want 405", resp.Code)
	}
}

func TestWeaponsServesCatalog(t *testing.T) {
	rig := newHTTPRig(t)

	resp := rig.request(http.MethodGet, "/weapons")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Code)
	}
	var payload struct {
		Fingerprint string           `json:"fingerprint"`
		Weapons     []catalog.Weapon `json:"weapons"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode weapons payload: %v", err)
	}
	if payload.Fingerprint == "" {
		t.Fatalf("fingerprint is empty")
	}
	ids := make(map[string]bool, len(payload.Weapons))
	for _, weapon := range payload.Weapons {
		if weapon.Damage <= 0 {
			t.Fatalf("weapon %q served with damage %d", weapon.ID, weapon.Damage)
		}
		ids[weapon.ID] = true
	}
	if !ids["rifle"] || !ids["pistol"] {
		t.Fatalf("catalog ids = %v, want rifle and pistol", ids)
	}

	if resp := rig.request(http.MethodPost, "/weapons"); resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /weapons = %d, want 405", resp.Code)
	}
}

func TestHealthzAnswersPlainOK(t *testing.T) {
	rig := newHTTPRig(t)

	resp := rig.request(http.MethodGet, "/healthz")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Code)
	}
	if body := resp.Body.String(); body != "ok" {
		t.Fatalf("body = %q, want ok", body)
	}
}

func TestDiagnosticsListsSessionsAndTelemetry(t *testing.T) {
	rig := newHTTPRig(t)
	rig.registry.TelemetryAdd("http_test_counter", 3)

	var join proto.JoinMessage
	if err := json.Unmarshal(rig.request(http.MethodPost, "/join").Body.Bytes(), &join); err != nil {
		t.Fatalf("decode join: %v", err)
	}

	resp := rig.request(http.MethodGet, "/diagnostics")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Code)
	}
	var payload struct {
		Status     string                   `json:"status"`
		ServerTime int64                    `json:"serverTime"`
		Sessions   []sim.SessionDiagnostics `json:"sessions"`
		TickRate   int                      `json:"tickRate"`
		Heartbeat  int64                    `json:"heartbeatMillis"`
		Telemetry  map[string]uint64        `json:"telemetry"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode diagnostics payload: %v", err)
	}
	if payload.Status != "ok" || payload.ServerTime == 0 {
		t.Fatalf("diagnostics header = %q %d", payload.Status, payload.ServerTime)
	}
	if len(payload.Sessions) != 1 || payload.Sessions[0].PlayerID != join.PlayerID {
		t.Fatalf("sessions = %+v, want one row for %s", payload.Sessions, join.PlayerID)
	}
	if payload.TickRate != 30 || payload.Heartbeat != 2000 {
		t.Fatalf("tickRate = %d heartbeatMillis = %d, want 30 and 2000", payload.TickRate, payload.Heartbeat)
	}
	if payload.Telemetry["http_test_counter"] != 3 {
		t.Fatalf("telemetry counter = %d, want 3", payload.Telemetry["http_test_counter"])
	}
}

func TestPprofMountsOnlyWhenEnabled(t *testing.T) {
	rig := newHTTPRig(t)

	if resp := rig.request(http.MethodGet, "/debug/pprof/"); resp.Code != http.StatusNotFound {
		t.Fatalf("pprof disabled = %d, want 404", resp.Code)
	}

	traced := NewHTTPHandler(rig.engine, nil, rig.weapons, rig.registry, HTTPHandlerConfig{
		Observability: observability.Config{EnablePprofTrace: true},
	})
	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	resp := httptest.NewRecorder()
	traced.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("pprof enabled = %d, want 200", resp.Code)
	}
}
