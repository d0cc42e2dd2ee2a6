package history

import (
	"sync"
	"time"

	"quickstrike/server/internal/geom"
)

const (
	trackedEntitiesMetricKey = "history_tracked_entities"
	recordedSamplesMetricKey = "history_recorded_samples_total"
)

// Sample is one timestamped transform. At carries unix milliseconds from the
// server clock; claims reference the same scale.
type Sample struct {
	At       int64
	Position geom.Vec3
	Rotation geom.Vec3
}

// Buffer keeps a bounded transform history per entity. Move handling appends
// on every authoritative update and hit validation rewinds against the stored
// samples, so retention only needs to cover the worst round trip the server
// tolerates. It is safe for concurrent use.
type Buffer struct {
	mu       sync.RWMutex
	window   int64
	capacity int
	tracks   map[string]*track
	metrics  telemetryMetrics
}

type telemetryMetrics interface {
	Add(string, uint64)
	Store(string, uint64)
}

// track is a fixed-size ring ordered oldest to newest.
type track struct {
	samples []Sample
	head    int
	count   int
}

// NewBuffer constructs a history buffer retaining at most capacity samples per
// entity, discarding samples older than window relative to the newest.
func NewBuffer(window time.Duration, capacity int, metrics telemetryMetrics) *Buffer {
	if window <= 0 {
		window = time.Second
	}
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		window:   window.Milliseconds(),
		capacity: capacity,
		tracks:   make(map[string]*track),
		metrics:  metrics,
	}
}

// Record appends a sample to the entity's track, evicting the oldest sample
// when the ring is full and pruning samples that fell out of the retention
// window.
func (b *Buffer) Record(id string, sample Sample) {
	if b == nil || id == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	tr, ok := b.tracks[id]
	if !ok {
		tr = &track{samples: make([]Sample, b.capacity)}
		b.tracks[id] = tr
		if b.metrics != nil {
			b.metrics.Store(trackedEntitiesMetricKey, uint64(len(b.tracks)))
		}
	}
	tr.push(sample)
	tr.pruneOlderThan(sample.At - b.window)
	if b.metrics != nil {
		b.metrics.Add(recordedSamplesMetricKey, 1)
	}
}

// SampleAt returns the stored sample whose timestamp is closest to at. The
// second return is false when the entity has no history, in which case callers
// fall back to the live transform.
func (b *Buffer) SampleAt(id string, at int64) (Sample, bool) {
	if b == nil {
		return Sample{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	tr, ok := b.tracks[id]
	if !ok || tr.count == 0 {
		return Sample{}, false
	}
	best := tr.at(0)
	bestDelta := absDelta(best.At, at)
	for i := 1; i < tr.count; i++ {
		candidate := tr.at(i)
		delta := absDelta(candidate.At, at)
		if delta < bestDelta {
			best = candidate
			bestDelta = delta
		}
	}
	return best, true
}

// Latest returns the newest sample for the entity.
func (b *Buffer) Latest(id string) (Sample, bool) {
	if b == nil {
		return Sample{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	tr, ok := b.tracks[id]
	if !ok || tr.count == 0 {
		return Sample{}, false
	}
	return tr.at(tr.count - 1), true
}

// Remove drops the entity's track entirely. Called on leave and despawn so
// stale geometry cannot validate future claims.
func (b *Buffer) Remove(id string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.tracks[id]; !ok {
		return
	}
	delete(b.tracks, id)
	if b.metrics != nil {
		b.metrics.Store(trackedEntitiesMetricKey, uint64(len(b.tracks)))
	}
}

// Len reports the number of retained samples for the entity.
func (b *Buffer) Len(id string) int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	tr, ok := b.tracks[id]
	if !ok {
		return 0
	}
	return tr.count
}

// Window reports the retention window.
func (b *Buffer) Window() time.Duration {
	if b == nil {
		return 0
	}
	return time.Duration(b.window) * time.Millisecond
}

func (t *track) push(sample Sample) {
	if t.count == len(t.samples) {
		t.samples[t.head] = sample
		t.head = (t.head + 1) % len(t.samples)
		return
	}
	idx := (t.head + t.count) % len(t.samples)
	t.samples[idx] = sample
	t.count++
}

func (t *track) pruneOlderThan(cutoff int64) {
	for t.count > 0 && t.at(0).At < cutoff {
		t.head = (t.head + 1) % len(t.samples)
		t.count--
	}
}

func (t *track) at(i int) Sample {
	return t.samples[(t.head+i)%len(t.samples)]
}

func absDelta(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
