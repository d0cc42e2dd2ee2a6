package sim

import (
	"context"
	"time"

	"quickstrike/server/internal/telemetry"
	"quickstrike/server/logging"
	loggingsim "quickstrike/server/logging/simulation"
)

const tickDurationMetricKey = "sim_tick_duration_millis"

// LoopConfig sizes the command queue and the fixed-timestep runner.
type LoopConfig struct {
	TickRate        int
	CatchUpMaxTicks int
	CommandCapacity int
	PerActorLimit   int
}

func (c LoopConfig) normalized() LoopConfig {
	if c.TickRate <= 0 {
		c.TickRate = 30
	}
	if c.TickRate > 128 {
		c.TickRate = 128
	}
	if c.CatchUpMaxTicks < 1 {
		c.CatchUpMaxTicks = 5
	}
	if c.CommandCapacity <= 0 {
		c.CommandCapacity = 1024
	}
	if c.PerActorLimit < 0 {
		c.PerActorLimit = 0
	}
	return c
}

// Loop drives the engine at a fixed rate and owns the staging queue between
// ticks. Producers enqueue from session goroutines; the loop goroutine is the
// only caller of Step.
type Loop struct {
	engine    *Engine
	buffer    *CommandBuffer
	cfg       LoopConfig
	clock     logging.Clock
	logger    telemetry.Logger
	metrics   telemetry.Metrics
	publisher logging.Publisher

	overrunStreak uint64
}

// NewLoop wraps the engine with a command queue and tick runner.
func NewLoop(engine *Engine, cfg LoopConfig, clock logging.Clock) *Loop {
	if engine == nil {
		return nil
	}
	cfg = cfg.normalized()
	if clock == nil {
		clock = logging.ClockFunc(time.Now)
	}
	return &Loop{
		engine:    engine,
		buffer:    NewCommandBuffer(cfg.CommandCapacity, cfg.PerActorLimit, engine.logger, engine.metrics),
		cfg:       cfg,
		clock:     clock,
		logger:    engine.logger,
		metrics:   engine.metrics,
		publisher: engine.publisher,
	}
}

// Interval is the tick period.
func (l *Loop) Interval() time.Duration {
	if l == nil {
		return 0
	}
	return time.Second / time.Duration(l.cfg.TickRate)
}

// Enqueue stages a command for the next tick. The reason is non-empty only
// when the command was dropped for queue pressure; both reasons are
// retryable.
func (l *Loop) Enqueue(cmd Command) (bool, string) {
	if l == nil {
		return false, CommandRejectQueueFull
	}
	if cmd.OriginTick == 0 {
		cmd.OriginTick = l.engine.Tick()
	}
	if cmd.IssuedAt.IsZero() {
		cmd.IssuedAt = l.clock.Now()
	}
	return l.buffer.Push(cmd)
}

// Pending reports the number of staged commands.
func (l *Loop) Pending() int {
	if l == nil {
		return 0
	}
	return l.buffer.Len()
}

// Advance drains the queue and runs exactly one tick. Run calls it on the
// ticker; tests call it directly with a crafted clock.
func (l *Loop) Advance(now time.Time, dt float64) StepResult {
	if l == nil {
		return StepResult{}
	}
	return l.engine.Step(now, dt, l.buffer.Drain())
}

// Run drives ticks until the context is canceled. Backlogged time beyond the
// catch-up budget is discarded rather than replayed, trading simulated time
// for a bounded tick duration after a stall.
func (l *Loop) Run(ctx context.Context) {
	if l == nil {
		return
	}
	interval := l.Interval()
	budget := interval.Seconds()
	maxDt := budget * float64(l.cfg.CatchUpMaxTicks)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := l.clock.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := l.clock.Now()
			dt := now.Sub(last).Seconds()
			last = now
			if dt <= 0 {
				dt = budget
			} else if dt > maxDt {
				loggingsim.CatchUpClamped(ctx, l.publisher, l.engine.Tick()+1, loggingsim.CatchUpClampedPayload{
					Pending: int(dt / budget),
					Limit:   l.cfg.CatchUpMaxTicks,
				}, nil)
				dt = maxDt
			}

			start := l.clock.Now()
			result := l.Advance(now, dt)
			duration := l.clock.Now().Sub(start)
			l.metrics.Store(tickDurationMetricKey, uint64(duration.Milliseconds()))

			if duration > interval {
				l.overrunStreak++
				loggingsim.TickBudgetOverrun(ctx, l.publisher, result.Tick, loggingsim.TickBudgetOverrunPayload{
					DurationMillis: duration.Milliseconds(),
					BudgetMillis:   interval.Milliseconds(),
					Ratio:          duration.Seconds() / budget,
					Streak:         l.overrunStreak,
				}, nil)
			} else {
				l.overrunStreak = 0
			}
		}
	}
}
