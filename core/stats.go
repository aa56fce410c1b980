package core

import (
	"time"

	"github.com/signalsfoundry/border-queue-sim/model"
)

// SimulationStats is the derived summary published after every tick.
type SimulationStats struct {
	Elapsed     time.Duration
	Crossed     int
	InQueue     int
	Held        int
	Moving      int
	AverageWait time.Duration
	ETA         ETA
}

// ComputeStats summarises q. elapsed and crossed come from the driver.
func ComputeStats(q *model.Queue, cfg SimulationConfig, elapsed time.Duration, crossed int) SimulationStats {
	stats := SimulationStats{
		Elapsed: elapsed,
		Crossed: crossed,
		InQueue: q.Len(),
		ETA:     EstimateETA(q, cfg, crossed),
	}

	var totalWait time.Duration
	q.Each(func(v *model.Vehicle) {
		if v.IsHeld {
			stats.Held++
		}
		totalWait += v.WaitTime
	})
	stats.Moving = stats.InQueue - stats.Held
	if stats.InQueue > 0 {
		stats.AverageWait = totalWait / time.Duration(stats.InQueue)
	}
	return stats
}
