package replication

import (
	"testing"

	"quickstrike/server/internal/net/proto"
)

func testPlayers() []proto.PlayerData {
	return []proto.PlayerData{
		{ID: "p1", X: 0, Y: 1, Z: 0, Health: 100, WeaponID: "rifle"},
		{ID: "p2", X: 5, Y: 1, Z: 5, Health: 100, WeaponID: "rifle"},
	}
}

func TestDeltaCarriesOnlyChangedEntities(t *testing.T) {
	r := NewReplicator(nil, nil)
	players := testPlayers()
	enemies := []proto.EnemyData{{ID: "e1", X: -3, Y: 1, Z: -3, Health: 60, AIState: "wander"}}

	first := r.Delta(1, 1000, players, enemies, nil)
	if got := len(first.ChangedPlayers); got != 2 {
		t.Fatalf("first delta players = %d, want 2", got)
	}
	if got := len(first.ChangedEnemies); got != 1 {
		t.Fatalf("first delta enemies = %d, want 1", got)
	}

	second := r.Delta(2, 1033, players, enemies, nil)
	if !second.Empty() {
		t.Fatalf("unchanged entities replicated again: %+v", second)
	}

	players[1].X = 6.5
	third := r.Delta(3, 1066, players, enemies, nil)
	if len(third.ChangedPlayers) != 1 || third.ChangedPlayers[0].ID != "p2" {
		t.Fatalf("delta players = %+v, want only p2", third.ChangedPlayers)
	}
	if len(third.ChangedEnemies) != 0 {
		t.Fatalf("unchanged enemy replicated: %+v", third.ChangedEnemies)
	}
}

func TestLostDeltaIsNotRetried(t *testing.T) {
	r := NewReplicator(nil, nil)
	players := testPlayers()

	delta := r.Delta(1, 1000, players, nil, nil)
	if _, err := r.EncodeDelta(delta); err != nil {
		t.Fatalf("encode delta: %v", err)
	}

	// The frame above is considered sent the moment it is encoded. Even if
	// the wire drops it, the same state must not be resent.
	repeat := r.Delta(2, 1033, players, nil, nil)
	if !repeat.Empty() {
		t.Fatalf("lost delta retried: %+v", repeat)
	}

	players[0].Health = 75
	next := r.Delta(3, 1066, players, nil, nil)
	if len(next.ChangedPlayers) != 1 || next.ChangedPlayers[0].ID != "p1" {
		t.Fatalf("changed player missing after damage: %+v", next.ChangedPlayers)
	}
}

func TestSnapshotDoesNotDisturbDeltaCache(t *testing.T) {
	r := NewReplicator(nil, nil)
	players := testPlayers()

	r.Delta(1, 1000, players, nil, nil)

	snapshot := proto.Snapshot{Tick: 2, ServerTime: 1033, Players: players}
	if _, err := r.EncodeSnapshot(snapshot); err != nil {
		t.Fatalf("encode snapshot: %v", err)
	}

	after := r.Delta(3, 1066, players, nil, nil)
	if !after.Empty() {
		t.Fatalf("snapshot invalidated delta cache: %+v", after)
	}
}

func TestDepartedEntityReplicatesFreshOnReturn(t *testing.T) {
	r := NewReplicator(nil, nil)
	players := testPlayers()

	r.Delta(1, 1000, players, nil, nil)

	// p2 leaves; the pass without it must prune its summary.
	solo := r.Delta(2, 1033, players[:1], nil, nil)
	if !solo.Empty() {
		t.Fatalf("unexpected changes after departure: %+v", solo)
	}

	// p2 rejoins with identical replicated fields and must still be carried.
	back := r.Delta(3, 1066, players, nil, nil)
	if len(back.ChangedPlayers) != 1 || back.ChangedPlayers[0].ID != "p2" {
		t.Fatalf("rejoined player not replicated: %+v", back.ChangedPlayers)
	}
}

func TestForgetForcesReplication(t *testing.T) {
	r := NewReplicator(nil, nil)
	players := testPlayers()

	r.Delta(1, 1000, players, nil, nil)
	r.Forget("p1")

	delta := r.Delta(2, 1033, players, nil, nil)
	if len(delta.ChangedPlayers) != 1 || delta.ChangedPlayers[0].ID != "p1" {
		t.Fatalf("forgotten player not replicated: %+v", delta.ChangedPlayers)
	}
}

func TestResetForcesFullReplication(t *testing.T) {
	r := NewReplicator(nil, nil)
	players := testPlayers()
	enemies := []proto.EnemyData{{ID: "e1", Health: 60}}

	r.Delta(1, 1000, players, enemies, nil)
	r.Reset()

	delta := r.Delta(2, 1033, players, enemies, nil)
	if len(delta.ChangedPlayers) != 2 || len(delta.ChangedEnemies) != 1 {
		t.Fatalf("reset did not force full replication: %+v", delta)
	}
}

func TestEncodedDeltaRoundTrips(t *testing.T) {
	r := NewReplicator(nil, nil)
	players := testPlayers()

	delta := r.Delta(7, 7000, players, nil, nil)
	payload, err := r.EncodeDelta(delta)
	if err != nil {
		t.Fatalf("encode delta: %v", err)
	}

	frame, err := proto.DecodeStateFrame(payload)
	if err != nil {
		t.Fatalf("decode delta frame: %v", err)
	}
	if frame.Code != proto.CodeStateDelta || frame.Delta == nil {
		t.Fatalf("frame = %+v, want delta", frame)
	}
	if frame.Delta.Tick != 7 || len(frame.Delta.ChangedPlayers) != 2 {
		t.Fatalf("delta round trip mismatch: %+v", frame.Delta)
	}
}
