package sim

import (
	"sync"

	"quickstrike/server/internal/telemetry"
)

const (
	commandBufferOccupancyMetricKey = "sim_command_buffer_occupancy"
	commandBufferOverflowMetricKey  = "sim_command_buffer_overflow_total"
	commandThrottledMetricKey       = "sim_command_throttled_total"
)

// Command reject reasons surfaced to clients via commandReject frames. Both
// are transient: the client may retry after backing off.
const (
	CommandRejectQueueLimit = "queue_limit"
	CommandRejectQueueFull  = "queue_full"
)

// CommandBuffer stages commands between ticks in a fixed-size ring with
// per-actor throttling. Safe for concurrent producers and a single consumer;
// the engine drains it at tick start.
type CommandBuffer struct {
	mu            sync.Mutex
	data          []Command
	head          int
	tail          int
	count         int
	perActor      map[string]int
	perActorLimit int
	dropCounts    map[string]uint64
	logger        telemetry.Logger
	metrics       telemetry.Metrics
}

// NewCommandBuffer constructs the ring. perActorLimit 0 disables throttling.
func NewCommandBuffer(capacity, perActorLimit int, logger telemetry.Logger, metrics telemetry.Metrics) *CommandBuffer {
	if capacity < 1 {
		capacity = 1
	}
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	return &CommandBuffer{
		data:          make([]Command, capacity),
		perActor:      make(map[string]int),
		perActorLimit: perActorLimit,
		dropCounts:    make(map[string]uint64),
		logger:        logger,
		metrics:       metrics,
	}
}

// Capacity reports the ring size.
func (b *CommandBuffer) Capacity() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Push stages a command. The empty reason means it was accepted; otherwise
// the command was dropped for queue pressure and the reason is retryable.
func (b *CommandBuffer) Push(cmd Command) (bool, string) {
	if b == nil {
		return false, CommandRejectQueueFull
	}
	b.mu.Lock()
	if b.perActorLimit > 0 && cmd.ActorID != "" && b.perActor[cmd.ActorID] >= b.perActorLimit {
		count := b.recordDropLocked(cmd.ActorID)
		b.metrics.Add(commandThrottledMetricKey, 1)
		b.mu.Unlock()
		b.logDrop(CommandRejectQueueLimit, cmd, count)
		return false, CommandRejectQueueLimit
	}
	if b.count == len(b.data) {
		count := b.recordDropLocked(cmd.ActorID)
		b.metrics.Add(commandBufferOverflowMetricKey, 1)
		b.mu.Unlock()
		b.logDrop(CommandRejectQueueFull, cmd, count)
		return false, CommandRejectQueueFull
	}
	b.data[b.tail] = cmd
	b.tail = (b.tail + 1) % len(b.data)
	b.count++
	if cmd.ActorID != "" {
		b.perActor[cmd.ActorID]++
	}
	b.metrics.Store(commandBufferOccupancyMetricKey, uint64(b.count))
	b.mu.Unlock()
	return true, ""
}

// Drain returns all staged commands in FIFO order, clearing the ring and the
// per-actor counters.
func (b *CommandBuffer) Drain() []Command {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return nil
	}
	commands := make([]Command, b.count)
	for i := 0; i < b.count; i++ {
		commands[i] = b.data[(b.head+i)%len(b.data)]
	}
	b.head = 0
	b.tail = 0
	b.count = 0
	if len(b.perActor) > 0 {
		b.perActor = make(map[string]int)
	}
	b.metrics.Store(commandBufferOccupancyMetricKey, 0)
	return commands
}

// Len reports the number of staged commands.
func (b *CommandBuffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *CommandBuffer) recordDropLocked(actorID string) uint64 {
	if actorID == "" {
		return 0
	}
	count := b.dropCounts[actorID] + 1
	b.dropCounts[actorID] = count
	return count
}

// logDrop reports every power-of-two occurrence so a flooding client shows up
// in the log without writing a line per drop.
func (b *CommandBuffer) logDrop(reason string, cmd Command, count uint64) {
	if b.logger == nil || count == 0 || count&(count-1) != 0 {
		return
	}
	b.logger.Printf("[backpressure] dropping command actor=%s type=%s reason=%s count=%d",
		cmd.ActorID, cmd.Type, reason, count)
}
