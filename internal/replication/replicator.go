package replication

import (
	"hash/fnv"

	"github.com/vmihailenco/msgpack/v5"

	"quickstrike/server/internal/net/proto"
	"quickstrike/server/internal/telemetry"
)

const (
	deltaEntitiesMetricKey   = "replication_delta_entities_total"
	deltaSuppressedMetricKey = "replication_delta_suppressed_total"
	deltaBytesMetricKey      = "replication_delta_bytes_total"
	snapshotBytesMetricKey   = "replication_snapshot_bytes_total"
	encodeFailuresMetricKey  = "replication_encode_failures_total"
)

// Replicator tracks the last replicated summary per entity and builds
// changed-entities-only delta frames. The summary cache updates when an
// entity is included in an encoded outgoing delta, before any delivery
// confirmation; a delta lost on the wire is not retried until the entity
// changes again, and the periodic reliable snapshot is the recovery path.
type Replicator struct {
	summaries map[string]uint64
	metrics   telemetry.Metrics
	logger    telemetry.Logger
}

// NewReplicator constructs a replicator with an empty summary cache.
func NewReplicator(logger telemetry.Logger, metrics telemetry.Metrics) *Replicator {
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	return &Replicator{
		summaries: make(map[string]uint64),
		metrics:   metrics,
		logger:    logger,
	}
}

// Delta assembles the changed-entities frame for one tick. Unchanged entities
// are omitted entirely, so payload size is O(changed). Entities that left the
// registry since the last pass are forgotten so a reused id replicates fresh.
func (r *Replicator) Delta(tick uint64, serverTime int64, players []proto.PlayerData, enemies []proto.EnemyData, targets []proto.TargetData) proto.DeltaRecord {
	if r == nil {
		return proto.DeltaRecord{}
	}
	delta := proto.DeltaRecord{Tick: tick, ServerTime: serverTime}
	seen := make(map[string]struct{}, len(players)+len(enemies)+len(targets))

	for _, p := range players {
		seen[p.ID] = struct{}{}
		if r.changed(p.ID, p) {
			delta.ChangedPlayers = append(delta.ChangedPlayers, p)
		}
	}
	for _, e := range enemies {
		seen[e.ID] = struct{}{}
		if r.changed(e.ID, e) {
			delta.ChangedEnemies = append(delta.ChangedEnemies, e)
		}
	}
	for _, t := range targets {
		seen[t.ID] = struct{}{}
		if r.changed(t.ID, t) {
			delta.ChangedTargets = append(delta.ChangedTargets, t)
		}
	}

	for id := range r.summaries {
		if _, ok := seen[id]; !ok {
			delete(r.summaries, id)
		}
	}

	changed := len(delta.ChangedPlayers) + len(delta.ChangedEnemies) + len(delta.ChangedTargets)
	if changed > 0 {
		r.metrics.Add(deltaEntitiesMetricKey, uint64(changed))
	}
	r.metrics.Add(deltaSuppressedMetricKey, uint64(len(seen)-changed))
	return delta
}

// EncodeDelta renders the frame and records its size.
func (r *Replicator) EncodeDelta(delta proto.DeltaRecord) ([]byte, error) {
	payload, err := proto.EncodeDelta(delta)
	if err != nil {
		r.metrics.Add(encodeFailuresMetricKey, 1)
		return nil, err
	}
	r.metrics.Add(deltaBytesMetricKey, uint64(len(payload)))
	return payload, nil
}

// EncodeSnapshot renders a full-state frame. Snapshots never touch the delta
// summary cache: they are the baseline that corrects lost deltas, not a send
// that counts as one.
func (r *Replicator) EncodeSnapshot(snapshot proto.Snapshot) ([]byte, error) {
	payload, err := proto.EncodeSnapshot(snapshot)
	if err != nil {
		r.metrics.Add(encodeFailuresMetricKey, 1)
		return nil, err
	}
	r.metrics.Add(snapshotBytesMetricKey, uint64(len(payload)))
	return payload, nil
}

// Forget drops one entity's cached summary.
func (r *Replicator) Forget(id string) {
	if r == nil {
		return
	}
	delete(r.summaries, id)
}

// Reset clears the whole cache, forcing the next delta to carry everything.
func (r *Replicator) Reset() {
	if r == nil {
		return
	}
	r.summaries = make(map[string]uint64)
}

// changed hashes the entity's replicated field subset and compares it against
// the cached summary, updating the cache on mismatch.
func (r *Replicator) changed(id string, entity any) bool {
	sum, err := summarize(entity)
	if err != nil {
		if r.logger != nil {
			r.logger.Printf("replication: summarize %s: %v", id, err)
		}
		r.metrics.Add(encodeFailuresMetricKey, 1)
		return false
	}
	if cached, ok := r.summaries[id]; ok && cached == sum {
		return false
	}
	r.summaries[id] = sum
	return true
}

func summarize(entity any) (uint64, error) {
	encoded, err := msgpack.Marshal(entity)
	if err != nil {
		return 0, err
	}
	hasher := fnv.New64a()
	hasher.Write(encoded)
	return hasher.Sum64(), nil
}
