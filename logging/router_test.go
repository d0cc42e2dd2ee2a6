package logging

import (
	"context"
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Write(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) Close(context.Context) error { return nil }

func (s *captureSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func waitForEvents(t *testing.T, sink *captureSink, want int) []Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		events := sink.snapshot()
		if len(events) >= want {
			return events
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, have %d", want, len(sink.snapshot()))
	return nil
}

func TestRouterStampsClockAndForwards(t *testing.T) {
	frozen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sink := &captureSink{}
	metrics := NewMetrics()
	router, err := NewRouter(ClockFunc(func() time.Time { return frozen }), DefaultConfig(), metrics, []NamedSink{{Name: "capture", Sink: sink}})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	defer closeRouter(t, router)

	router.Publish(context.Background(), Event{Type: "match.phase_changed", Tick: 7})

	events := waitForEvents(t, sink, 1)
	if events[0].Time != frozen {
		t.Fatalf("event time = %v, want %v", events[0].Time, frozen)
	}
	if events[0].Tick != 7 {
		t.Fatalf("event tick = %d, want 7", events[0].Tick)
	}
	if got := metrics.Counter("logging.events_total"); got != 1 {
		t.Fatalf("events_total = %d, want 1", got)
	}
}

func TestRouterFiltersBelowMinimumSeverity(t *testing.T) {
	sink := &captureSink{}
	cfg := DefaultConfig()
	cfg.MinimumSeverity = SeverityWarn
	router, err := NewRouter(nil, cfg, NewMetrics(), []NamedSink{{Name: "capture", Sink: sink}})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	defer closeRouter(t, router)

	router.Publish(context.Background(), Event{Type: "combat.hit_rejected", Severity: SeverityDebug})
	router.Publish(context.Background(), Event{Type: "network.heartbeat_timeout", Severity: SeverityWarn})

	events := waitForEvents(t, sink, 1)
	if len(events) != 1 || events[0].Type != "network.heartbeat_timeout" {
		t.Fatalf("unexpected events after severity filter: %+v", events)
	}
}

func TestRouterAppliesConfiguredFields(t *testing.T) {
	sink := &captureSink{}
	cfg := DefaultConfig()
	cfg.Fields = map[string]any{"node": "test-1"}
	router, err := NewRouter(nil, cfg, NewMetrics(), []NamedSink{{Name: "capture", Sink: sink}})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	defer closeRouter(t, router)

	router.Publish(context.Background(), Event{Type: "match.victory"})

	events := waitForEvents(t, sink, 1)
	if got := events[0].Extra["node"]; got != "test-1" {
		t.Fatalf("extra node = %v, want test-1", got)
	}
}

func TestMetricsSnapshotMergesCountersAndGauges(t *testing.T) {
	metrics := NewMetrics()
	metrics.TelemetryAdd("replication.deltas_total", 3)
	metrics.TelemetryAdd("replication.deltas_total", 2)
	metrics.TelemetryStore("sessions.active", 4)

	snap := metrics.Snapshot()
	if snap["replication.deltas_total"] != 5 {
		t.Fatalf("counter = %d, want 5", snap["replication.deltas_total"])
	}
	if snap["sessions.active"] != 4 {
		t.Fatalf("gauge = %d, want 4", snap["sessions.active"])
	}
}

func closeRouter(t *testing.T, router *Router) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := router.Close(ctx); err != nil {
		t.Fatalf("router close: %v", err)
	}
}
