package proto

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// State frames ride as binary websocket messages encoded with msgpack; the
// short field names keep the high-frequency delta traffic small. Control
// frames stay JSON so the same structs carry json tags for the join response.

// PlayerData is the replicated field subset for a player entity.
type PlayerData struct {
	ID       string  `msgpack:"id" json:"id"`
	X        float64 `msgpack:"x" json:"x"`
	Y        float64 `msgpack:"y" json:"y"`
	Z        float64 `msgpack:"z" json:"z"`
	RotX     float64 `msgpack:"rx" json:"rx"`
	RotY     float64 `msgpack:"ry" json:"ry"`
	RotZ     float64 `msgpack:"rz" json:"rz"`
	Health   int     `msgpack:"hp" json:"hp"`
	Dead     bool    `msgpack:"dead" json:"dead"`
	WeaponID string  `msgpack:"wpn" json:"weapon"`
}

// EnemyData is the replicated field subset for an AI enemy.
type EnemyData struct {
	ID      string  `msgpack:"id" json:"id"`
	X       float64 `msgpack:"x" json:"x"`
	Y       float64 `msgpack:"y" json:"y"`
	Z       float64 `msgpack:"z" json:"z"`
	RotY    float64 `msgpack:"ry" json:"ry"`
	Health  int     `msgpack:"hp" json:"hp"`
	Dead    bool    `msgpack:"dead" json:"dead"`
	AIState string  `msgpack:"ai" json:"ai"`
}

// TargetData is the replicated field subset for a shootable range target.
type TargetData struct {
	ID     string  `msgpack:"id" json:"id"`
	X      float64 `msgpack:"x" json:"x"`
	Y      float64 `msgpack:"y" json:"y"`
	Z      float64 `msgpack:"z" json:"z"`
	Health int     `msgpack:"hp" json:"hp"`
	Dead   bool    `msgpack:"dead" json:"dead"`
}

// PickupData describes a collectible lying in the world.
type PickupData struct {
	ID   string  `msgpack:"id" json:"id"`
	Kind string  `msgpack:"kind" json:"kind"`
	X    float64 `msgpack:"x" json:"x"`
	Y    float64 `msgpack:"y" json:"y"`
	Z    float64 `msgpack:"z" json:"z"`
}

// Snapshot is a full-state broadcast: every tracked entity, sent reliably at
// join time and on a low cadence as the resync baseline.
type Snapshot struct {
	Ver        int          `msgpack:"ver" json:"ver"`
	Type       Code         `msgpack:"type" json:"type"`
	Tick       uint64       `msgpack:"t" json:"t"`
	ServerTime int64        `msgpack:"st" json:"serverTime"`
	Players    []PlayerData `msgpack:"pl,omitempty" json:"players,omitempty"`
	Enemies    []EnemyData  `msgpack:"en,omitempty" json:"enemies,omitempty"`
	Targets    []TargetData `msgpack:"tg,omitempty" json:"targets,omitempty"`
	Pickups    []PickupData `msgpack:"pk,omitempty" json:"pickups,omitempty"`
}

// DeltaRecord carries only the entities whose replicated fields changed since
// the last encoded record. Pickups never appear here; their lifecycle rides on
// reliable pickupAdded/pickupTaken events and the periodic snapshot.
type DeltaRecord struct {
	Ver            int          `msgpack:"ver" json:"ver"`
	Type           Code         `msgpack:"type" json:"type"`
	Tick           uint64       `msgpack:"t" json:"t"`
	ServerTime     int64        `msgpack:"st" json:"serverTime"`
	ChangedPlayers []PlayerData `msgpack:"pl,omitempty" json:"changedPlayers,omitempty"`
	ChangedEnemies []EnemyData  `msgpack:"en,omitempty" json:"changedEnemies,omitempty"`
	ChangedTargets []TargetData `msgpack:"tg,omitempty" json:"changedTargets,omitempty"`
}

// Empty reports whether the record carries no entities at all.
func (d DeltaRecord) Empty() bool {
	return len(d.ChangedPlayers) == 0 && len(d.ChangedEnemies) == 0 && len(d.ChangedTargets) == 0
}

// EncodeSnapshot renders a full-state frame.
func EncodeSnapshot(snapshot Snapshot) ([]byte, error) {
	snapshot.Ver = Version
	snapshot.Type = CodeStateSync
	return msgpack.Marshal(snapshot)
}

// EncodeDelta renders a changed-entities frame.
func EncodeDelta(delta DeltaRecord) ([]byte, error) {
	delta.Ver = Version
	delta.Type = CodeStateDelta
	return msgpack.Marshal(delta)
}

type frameProbe struct {
	Ver  int  `msgpack:"ver"`
	Type Code `msgpack:"type"`
}

// StateFrame is the decoded form of a binary state message. Exactly one of
// Snapshot and Delta is set, selected by Code.
type StateFrame struct {
	Code     Code
	Snapshot *Snapshot
	Delta    *DeltaRecord
}

// DecodeStateFrame parses a binary websocket frame into a snapshot or delta.
func DecodeStateFrame(data []byte) (StateFrame, error) {
	var probe frameProbe
	if err := msgpack.Unmarshal(data, &probe); err != nil {
		return StateFrame{}, fmt.Errorf("proto: decode state frame header: %w", err)
	}
	if probe.Ver != Version {
		return StateFrame{}, fmt.Errorf("proto: unsupported state frame version %d", probe.Ver)
	}
	switch probe.Type {
	case CodeStateSync:
		var snapshot Snapshot
		if err := msgpack.Unmarshal(data, &snapshot); err != nil {
			return StateFrame{}, fmt.Errorf("proto: decode snapshot: %w", err)
		}
		return StateFrame{Code: CodeStateSync, Snapshot: &snapshot}, nil
	case CodeStateDelta:
		var delta DeltaRecord
		if err := msgpack.Unmarshal(data, &delta); err != nil {
			return StateFrame{}, fmt.Errorf("proto: decode delta: %w", err)
		}
		return StateFrame{Code: CodeStateDelta, Delta: &delta}, nil
	default:
		return StateFrame{}, fmt.Errorf("proto: unexpected state frame type %q", probe.Type)
	}
}
