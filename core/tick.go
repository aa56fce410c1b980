package core

import (
	"github.com/signalsfoundry/border-queue-sim/model"
)

// NoBlock is the TickReport.BlockPos value for a tick in which no active hold
// blocked the queue.
const NoBlock = -1

// TickReport summarises what happened during a single tick.
type TickReport struct {
	// Crossed holds the vehicles that left the queue, as they were when
	// they crossed.
	Crossed []model.Vehicle
	// Activated lists the IDs of held vehicles whose countdown started.
	Activated []int
	// Released lists the IDs of vehicles whose hold expired.
	Released []int
	// BlockPos is the position of the front-most active hold, or NoBlock.
	BlockPos int
	// Moved counts the vehicles that changed position.
	Moved int
}

// Blocked reports whether an active hold blocked part of the queue.
func (r TickReport) Blocked() bool {
	return r.BlockPos != NoBlock
}

// TickEngine advances a queue by one tick. It performs no I/O and holds no
// queue state of its own.
type TickEngine struct {
	Config SimulationConfig
	Rand   RandSource
}

// NewTickEngine constructs an engine. A nil rng is replaced by a time-seeded
// source.
func NewTickEngine(cfg SimulationConfig, rng RandSource) *TickEngine {
	if rng == nil {
		rng = NewRandSource(0)
	}
	return &TickEngine{Config: cfg, Rand: rng}
}

// Step computes the queue that follows current after one tick. current is not
// modified; the returned queue is a fresh copy.
//
// The phases run in a fixed order and each one sees the results of the
// previous: wait accrual, activation checks, hold countdowns, blocking,
// movement and crossing, removal, status recomputation.
func (e *TickEngine) Step(current *model.Queue) (*model.Queue, TickReport) {
	next := current.Clone()
	report := TickReport{BlockPos: NoBlock}

	wasHeld := make(map[int]bool)
	next.Each(func(v *model.Vehicle) {
		v.WaitTime += e.Config.TickInterval
		if v.IsHeld {
			wasHeld[v.ID] = true
		}
	})

	next.Sort()

	occupied := make(map[int]bool, next.Len())
	next.Each(func(v *model.Vehicle) {
		occupied[v.Position] = true
	})

	// A hold only starts counting down once enough road has opened up
	// in front of it.
	next.Each(func(v *model.Vehicle) {
		if !v.IsHeld || v.HoldCountdownActive {
			return
		}
		empty := emptyRunAhead(occupied, v.Position)
		required := intBetween(e.Rand, e.Config.ActivationThreshold.Low, e.Config.ActivationThreshold.High)
		if empty >= required {
			v.HoldCountdownActive = true
			report.Activated = append(report.Activated, v.ID)
		}
	})

	next.Each(func(v *model.Vehicle) {
		if !v.IsHeld || !v.HoldCountdownActive || v.HoldRemaining <= 0 {
			return
		}
		v.HoldRemaining--
		if v.HoldRemaining == 0 {
			v.IsHeld = false
			v.HoldCountdownActive = false
			v.Status = model.StatusJustReleased
			report.Released = append(report.Released, v.ID)
		}
	})

	next.Each(func(v *model.Vehicle) {
		if report.BlockPos == NoBlock && v.Blocks() {
			report.BlockPos = v.Position
		}
	})

	crossing := make(map[int]bool)
	next.Each(func(v *model.Vehicle) {
		if report.Blocked() && v.Position > report.BlockPos {
			return
		}
		if v.Position == 0 {
			// A held vehicle at the crossing still leaves once its
			// countdown is running.
			if !v.IsHeld || v.HoldCountdownActive {
				crossing[v.ID] = true
				delete(occupied, 0)
			}
			return
		}
		if v.IsHeld {
			return
		}
		// A crossing vehicle frees position 0 for the vehicle behind it
		// within the same tick.
		target := 0
		for pos := v.Position - 1; pos >= 0; pos-- {
			if occupied[pos] {
				target = pos + 1
				break
			}
		}
		if target != v.Position {
			delete(occupied, v.Position)
			occupied[target] = true
			v.Position = target
			report.Moved++
		}
	})

	report.Crossed = next.RemoveFunc(func(v *model.Vehicle) bool {
		return crossing[v.ID]
	})

	next.Each(func(v *model.Vehicle) {
		switch {
		case v.IsHeld:
			v.Status = model.StatusHeld
		case wasHeld[v.ID]:
			v.Status = model.StatusJustReleased
		default:
			v.Status = model.StatusMoving
		}
	})

	return next, report
}

// emptyRunAhead counts the contiguous empty positions directly in front of
// pos, stopping at the first occupied one.
func emptyRunAhead(occupied map[int]bool, pos int) int {
	empty := 0
	for p := pos - 1; p >= 0; p-- {
		if occupied[p] {
			break
		}
		empty++
	}
	return empty
}
