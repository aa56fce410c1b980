package core

import (
	"fmt"
	"time"

	"github.com/signalsfoundry/border-queue-sim/model"
)

// ETA is the estimated time until the last vehicle in line reaches the
// crossing. When AllCrossed is set the queue is empty and Estimate carries
// no meaning.
type ETA struct {
	Estimate   time.Duration
	AllCrossed bool
}

func (e ETA) String() string {
	if e.AllCrossed {
		return "all crossed"
	}
	return fmt.Sprintf("~%s", e.Estimate)
}

// EstimateETA derives a heuristic upper bound on how long the back of the
// queue needs to reach the crossing. Active holds are only added once
// crossed has reached cfg.CrossingsBeforeHoldDelayCounted.
func EstimateETA(q *model.Queue, cfg SimulationConfig, crossed int) ETA {
	back, ok := q.Back()
	if !ok {
		return ETA{AllCrossed: true}
	}

	eta := time.Duration(back.Position) * cfg.TickInterval

	if crossed >= cfg.CrossingsBeforeHoldDelayCounted {
		q.Each(func(v *model.Vehicle) {
			if v.Blocks() {
				eta += time.Duration(v.HoldRemaining) * cfg.TickInterval
			}
		})
	}

	return ETA{Estimate: eta}
}
