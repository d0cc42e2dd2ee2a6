package net

import (
	"encoding/json"
	nethttp "net/http"
	"net/http/pprof"
	"time"

	"quickstrike/server/internal/net/ws"
	"quickstrike/server/internal/observability"
	"quickstrike/server/internal/sim"
	"quickstrike/server/internal/telemetry"
	"quickstrike/server/logging"
	"quickstrike/server/weapons/catalog"
)

// HTTPHandlerConfig tunes the HTTP surface around the simulation.
type HTTPHandlerConfig struct {
	ClientDir         string
	Logger            telemetry.Logger
	Clock             logging.Clock
	TickRate          int
	HeartbeatInterval time.Duration
	Observability     observability.Config
}

// NewHTTPHandler assembles the server mux: join and status for clients, the
// websocket upgrade, the weapon catalog, and operator diagnostics.
func NewHTTPHandler(engine *sim.Engine, socket *ws.Handler, weapons *catalog.Resolver, metrics *logging.Metrics, cfg HTTPHandlerConfig) nethttp.Handler {
	clock := cfg.Clock
	if clock == nil {
		clock = logging.ClockFunc(time.Now)
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/healthz", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/join", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		join, err := engine.Join(clock.Now())
		if err != nil {
			httpError(w, "join failed", nethttp.StatusInternalServerError)
			return
		}
		writeJSON(w, cfg.Logger, join)
	})

	mux.HandleFunc("/status", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, cfg.Logger, engine.Status(clock.Now()))
	})

	mux.HandleFunc("/weapons", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		payload := struct {
			Fingerprint string           `json:"fingerprint"`
			Weapons     []catalog.Weapon `json:"weapons"`
		}{
			Fingerprint: weapons.Fingerprint(),
			Weapons:     weapons.Weapons(),
		}
		writeJSON(w, cfg.Logger, payload)
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		now := clock.Now()
		payload := struct {
			Status     string                   `json:"status"`
			ServerTime int64                    `json:"serverTime"`
			Sessions   []sim.SessionDiagnostics `json:"sessions"`
			TickRate   int                      `json:"tickRate"`
			Heartbeat  int64                    `json:"heartbeatMillis"`
			Telemetry  map[string]uint64        `json:"telemetry"`
		}{
			Status:     "ok",
			ServerTime: now.UnixMilli(),
			Sessions:   engine.Diagnostics(now),
			TickRate:   cfg.TickRate,
			Heartbeat:  cfg.HeartbeatInterval.Milliseconds(),
			Telemetry:  metrics.Snapshot(),
		}
		writeJSON(w, cfg.Logger, payload)
	})

	if socket != nil {
		mux.HandleFunc("/ws", socket.Handle)
	}

	if cfg.Observability.EnablePprofTrace {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	if cfg.ClientDir != "" {
		fs := nethttp.FileServer(nethttp.Dir(cfg.ClientDir))
		mux.Handle("/", fs)
	}

	return mux
}

func writeJSON(w nethttp.ResponseWriter, logger telemetry.Logger, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		if logger != nil {
			logger.Printf("http: encode response: %v", err)
		}
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
