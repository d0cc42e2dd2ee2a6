package telemetry

import (
	"bytes"
	"log"
	"testing"

	"quickstrike/server/logging"
)

func TestWrapLogger(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		logger := WrapLogger(nil)
		logger.Printf("ignored %d", 42)
	})

	t.Run("forwards to logger", func(t *testing.T) {
		var buf bytes.Buffer
		base := log.New(&buf, "", 0)
		logger := WrapLogger(base)
		logger.Printf("hello %s", "world")
		if got := buf.String(); got != "hello world\n" {
			t.Fatalf("unexpected log output: %q", got)
		}
	})
}

func TestWrapMetrics(t *testing.T) {
	registry := logging.NewMetrics()
	adapter := WrapMetrics(registry)

	adapter.Add("shots_total", 2)
	adapter.Add("shots_total", 3)
	adapter.Store("sessions", 7)

	if got := registry.Counter("shots_total"); got != 5 {
		t.Fatalf("counter = %d, want 5", got)
	}
	if got := registry.Gauge("sessions"); got != 7 {
		t.Fatalf("gauge = %d, want 7", got)
	}
	snapshot := registry.Snapshot()
	if snapshot["shots_total"] != 5 || snapshot["sessions"] != 7 {
		t.Fatalf("snapshot = %v, want both keys", snapshot)
	}

	// Nil registry wiring must stay silent rather than panic.
	nilAdapter := WrapMetrics(nil)
	nilAdapter.Add("ignored", 1)
	nilAdapter.Store("ignored", 1)
}
