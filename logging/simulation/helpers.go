package simulation

import (
	"context"

	"quickstrike/server/logging"
)

const (
	// EventTickBudgetOverrun is emitted when a tick takes longer than the tick interval.
	EventTickBudgetOverrun logging.EventType = "simulation.tick_budget_overrun"
	// EventCatchUpClamped is emitted when the scheduler caps a burst of catch-up ticks.
	EventCatchUpClamped logging.EventType = "simulation.catch_up_clamped"
)

// TickBudgetOverrunPayload captures timing details for a tick budget breach.
type TickBudgetOverrunPayload struct {
	DurationMillis int64   `json:"durationMillis"`
	BudgetMillis   int64   `json:"budgetMillis"`
	Ratio          float64 `json:"ratio"`
	Streak         uint64  `json:"streak"`
}

// CatchUpClampedPayload records how many backlogged ticks were discarded.
type CatchUpClampedPayload struct {
	Pending int `json:"pending"`
	Limit   int `json:"limit"`
}

// TickBudgetOverrun publishes a warning when a tick exceeds its budget.
func TickBudgetOverrun(ctx context.Context, pub logging.Publisher, tick uint64, payload TickBudgetOverrunPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTickBudgetOverrun,
		Tick:     tick,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	})
}

// CatchUpClamped publishes a warning when backlogged ticks are dropped after a stall.
func CatchUpClamped(ctx context.Context, pub logging.Publisher, tick uint64, payload CatchUpClampedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCatchUpClamped,
		Tick:     tick,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	})
}
