package sim

import (
	"context"
	"testing"
	"time"

	"quickstrike/server/internal/geom"
	"quickstrike/server/logging"
)

func TestLoopIntervalFollowsTickRate(t *testing.T) {
	rig := newEngineRig(t, defaultRigOptions())

	loop := NewLoop(rig.engine, LoopConfig{TickRate: 30}, nil)
	if got := loop.Interval(); got != time.Second/30 {
		t.Fatalf("expected 33ms interval, got %s", got)
	}

	clamped := NewLoop(rig.engine, LoopConfig{TickRate: 500}, nil)
	if got := clamped.Interval(); got != time.Second/128 {
		t.Fatalf("tick rate clamps at 128, got interval %s", got)
	}

	defaulted := NewLoop(rig.engine, LoopConfig{}, nil)
	if got := defaulted.Interval(); got != time.Second/30 {
		t.Fatalf("zero tick rate defaults to 30, got interval %s", got)
	}
}

func TestLoopEnqueueStagesAndAdvanceDrains(t *testing.T) {
	rig := newEngineRig(t, defaultRigOptions())
	id := rig.join(0)

	fixed := rig.at(10 * time.Millisecond)
	loop := NewLoop(rig.engine, LoopConfig{TickRate: 30, CommandCapacity: 8},
		logging.ClockFunc(func() time.Time { return fixed }))

	ok, reason := loop.Enqueue(moveCommand(id, geom.Vec3{X: 7, Y: 1, Z: 2}))
	if !ok || reason != "" {
		t.Fatalf("enqueue failed: %s", reason)
	}
	if got := loop.Pending(); got != 1 {
		t.Fatalf("expected 1 pending command, got %d", got)
	}

	result := loop.Advance(rig.at(33*time.Millisecond), testDT)
	if result.Commands != 1 {
		t.Fatalf("advance should drain 1 command, got %d", result.Commands)
	}
	if got := loop.Pending(); got != 0 {
		t.Fatalf("queue should be empty after advance, got %d", got)
	}
	player, _ := rig.world.Player(id)
	if player.Position.X != 7 {
		t.Fatalf("staged move must apply on the next tick, got %+v", player.Position)
	}
}

func TestLoopEnqueueReportsQueuePressure(t *testing.T) {
	rig := newEngineRig(t, defaultRigOptions())
	id := rig.join(0)

	loop := NewLoop(rig.engine, LoopConfig{TickRate: 30, CommandCapacity: 2}, nil)
	for i := 0; i < 2; i++ {
		if ok, _ := loop.Enqueue(moveCommand(id, geom.Vec3{Y: 1})); !ok {
			t.Fatalf("enqueue %d should fit", i)
		}
	}
	ok, reason := loop.Enqueue(moveCommand(id, geom.Vec3{Y: 1}))
	if ok || reason != CommandRejectQueueFull {
		t.Fatalf("expected queue_full drop, got ok=%v reason=%s", ok, reason)
	}
}

func TestLoopRunAdvancesUntilCanceled(t *testing.T) {
	rig := newEngineRig(t, defaultRigOptions())
	loop := NewLoop(rig.engine, LoopConfig{TickRate: 100}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for rig.engine.Tick() == 0 {
		select {
		case <-deadline:
			t.Fatalf("loop never ticked")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("loop did not stop on context cancel")
	}
}
