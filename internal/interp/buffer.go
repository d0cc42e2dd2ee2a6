package interp

import (
	"sort"
	"sync"
	"time"

	"quickstrike/server/internal/geom"
	"quickstrike/server/internal/net/proto"
)

// Package interp is the client half of the replication pipeline: it buffers
// received state frames and reconstructs a render-time-delayed view of remote
// entities. The server never imports it; headless clients and the loopback
// harness do.

const (
	// DefaultOffset is how far behind real time remote entities render. Two
	// delta arrivals usually straddle it, so motion stays interpolated rather
	// than extrapolated even when a frame drops.
	DefaultOffset = 100 * time.Millisecond

	// DefaultCapacity bounds retained entries, about a second of state at the
	// usual delta cadence.
	DefaultCapacity = 20
)

// Config tunes the render delay and the retention window.
type Config struct {
	Offset   time.Duration
	Capacity int
}

func (c Config) normalized() Config {
	if c.Offset <= 0 {
		c.Offset = DefaultOffset
	}
	if c.Capacity < 2 {
		c.Capacity = DefaultCapacity
	}
	return c
}

// Pose is an entity's interpolated transform at some render time.
type Pose struct {
	ID       string
	Position geom.Vec3
	Rotation geom.Vec3
}

// entry is the world as one received frame described it, keyed by the local
// receipt clock. Server timestamps never enter the math, so no clock
// synchronization is required.
type entry struct {
	at    time.Time
	poses map[string]Pose
}

// Buffer holds received frames in receipt order. The network goroutine writes
// through Ingest* while the render loop reads through Pose, so a mutex guards
// the entries.
type Buffer struct {
	mu      sync.Mutex
	cfg     Config
	entries []entry
}

// NewBuffer constructs an interpolation buffer with normalized tunables.
func NewBuffer(cfg Config) *Buffer {
	return &Buffer{cfg: cfg.normalized()}
}

// Len reports how many frames are buffered.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// IngestFrame routes a decoded state frame to the matching ingest path.
func (b *Buffer) IngestFrame(at time.Time, frame proto.StateFrame) {
	switch {
	case frame.Snapshot != nil:
		b.IngestSnapshot(at, *frame.Snapshot)
	case frame.Delta != nil:
		b.IngestDelta(at, *frame.Delta)
	}
}

// IngestSnapshot replaces the known world wholesale: entities absent from the
// snapshot stop appearing in entries from this point on, which is how
// departures reach the render side.
func (b *Buffer) IngestSnapshot(at time.Time, snapshot proto.Snapshot) {
	if b == nil {
		return
	}
	poses := make(map[string]Pose, len(snapshot.Players)+len(snapshot.Enemies)+len(snapshot.Targets))
	for _, p := range snapshot.Players {
		poses[p.ID] = Pose{
			ID:       p.ID,
			Position: geom.Vec3{X: p.X, Y: p.Y, Z: p.Z},
			Rotation: geom.Vec3{X: p.RotX, Y: p.RotY, Z: p.RotZ},
		}
	}
	for _, e := range snapshot.Enemies {
		poses[e.ID] = Pose{
			ID:       e.ID,
			Position: geom.Vec3{X: e.X, Y: e.Y, Z: e.Z},
			Rotation: geom.Vec3{Y: e.RotY},
		}
	}
	for _, tg := range snapshot.Targets {
		poses[tg.ID] = Pose{
			ID:       tg.ID,
			Position: geom.Vec3{X: tg.X, Y: tg.Y, Z: tg.Z},
		}
	}
	b.append(entry{at: at, poses: poses})
}

// IngestDelta extends the latest known world with the changed entities.
// Unchanged entities carry forward, so a delta-only stream still renders the
// full scene.
func (b *Buffer) IngestDelta(at time.Time, delta proto.DeltaRecord) {
	if b == nil {
		return
	}
	b.mu.Lock()
	var latest map[string]Pose
	if len(b.entries) > 0 {
		latest = b.entries[len(b.entries)-1].poses
	}
	poses := make(map[string]Pose, len(latest)+len(delta.ChangedPlayers))
	for id, pose := range latest {
		poses[id] = pose
	}
	b.mu.Unlock()

	for _, p := range delta.ChangedPlayers {
		poses[p.ID] = Pose{
			ID:       p.ID,
			Position: geom.Vec3{X: p.X, Y: p.Y, Z: p.Z},
			Rotation: geom.Vec3{X: p.RotX, Y: p.RotY, Z: p.RotZ},
		}
	}
	for _, e := range delta.ChangedEnemies {
		poses[e.ID] = Pose{
			ID:       e.ID,
			Position: geom.Vec3{X: e.X, Y: e.Y, Z: e.Z},
			Rotation: geom.Vec3{Y: e.RotY},
		}
	}
	for _, tg := range delta.ChangedTargets {
		poses[tg.ID] = Pose{
			ID:       tg.ID,
			Position: geom.Vec3{X: tg.X, Y: tg.Y, Z: tg.Z},
		}
	}
	b.append(entry{at: at, poses: poses})
}

func (b *Buffer) append(e entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, e)
	if excess := len(b.entries) - b.cfg.Capacity; excess > 0 {
		b.entries = append(b.entries[:0], b.entries[excess:]...)
	}
}

// Pose reports the entity's transform at now minus the configured offset.
func (b *Buffer) Pose(id string, now time.Time) (Pose, bool) {
	if b == nil {
		return Pose{}, false
	}
	return b.PoseAt(id, now.Add(-b.cfg.Offset))
}

// PoseAt interpolates the entity's transform at an explicit render time.
//
// The two entries straddling renderTime drive a linear blend; rotation
// components follow the shortest arc so yaw never unwinds the long way.
// Render times beyond the newest entry hold the last known state instead of
// extrapolating, render times before the oldest return the first known state,
// and entities that appear mid-stream snap to their first sample.
func (b *Buffer) PoseAt(id string, renderTime time.Time) (Pose, bool) {
	if b == nil {
		return Pose{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return Pose{}, false
	}

	idx := sort.Search(len(b.entries), func(i int) bool {
		return !b.entries[i].at.Before(renderTime)
	})
	if idx == 0 {
		return b.firstKnown(id)
	}
	if idx == len(b.entries) {
		return b.lastKnownThrough(id, len(b.entries)-1)
	}

	earlier, later := b.entries[idx-1], b.entries[idx]
	after, ok := later.poses[id]
	if !ok {
		// Gone from the later frame: hold whatever the past still knows.
		return b.lastKnownThrough(id, idx-1)
	}
	before, ok := earlier.poses[id]
	if !ok {
		return after, true
	}

	span := later.at.Sub(earlier.at)
	if span <= 0 {
		return after, true
	}
	alpha := float64(renderTime.Sub(earlier.at)) / float64(span)
	return Pose{
		ID:       id,
		Position: geom.Lerp(before.Position, after.Position, alpha),
		Rotation: geom.Vec3{
			X: geom.LerpAngle(before.Rotation.X, after.Rotation.X, alpha),
			Y: geom.LerpAngle(before.Rotation.Y, after.Rotation.Y, alpha),
			Z: geom.LerpAngle(before.Rotation.Z, after.Rotation.Z, alpha),
		},
	}, true
}

// Poses lists every entity known at now minus the offset, sorted by id.
func (b *Buffer) Poses(now time.Time) []Pose {
	if b == nil {
		return nil
	}
	renderTime := now.Add(-b.cfg.Offset)

	b.mu.Lock()
	ids := make(map[string]struct{})
	for _, e := range b.entries {
		for id := range e.poses {
			ids[id] = struct{}{}
		}
	}
	b.mu.Unlock()

	out := make([]Pose, 0, len(ids))
	for id := range ids {
		if pose, ok := b.PoseAt(id, renderTime); ok {
			out = append(out, pose)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (b *Buffer) firstKnown(id string) (Pose, bool) {
	for _, e := range b.entries {
		if pose, ok := e.poses[id]; ok {
			return pose, true
		}
	}
	return Pose{}, false
}

func (b *Buffer) lastKnownThrough(id string, idx int) (Pose, bool) {
	for i := idx; i >= 0; i-- {
		if pose, ok := b.entries[i].poses[id]; ok {
			return pose, true
		}
	}
	return Pose{}, false
}
