package world

import (
	"math"
	"time"
)

// AdvanceTargets moves every live oscillating target along its sine track and
// records the new transform so lag-compensated claims can rewind against
// moving geometry.
func (w *World) AdvanceTargets(now time.Time) {
	if w == nil {
		return
	}
	for _, target := range w.targets {
		if target.Dead || !target.Moving() {
			continue
		}
		phase := 2*math.Pi*float64(now.UnixMilli())/float64(target.Period.Milliseconds()) + target.Phase
		offset := target.Amplitude.Scale(math.Sin(phase))
		target.Position = target.Origin.Add(offset)
		w.recordHistory(&target.Actor, now)
	}
}
