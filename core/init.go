package core

import (
	"fmt"

	"github.com/signalsfoundry/border-queue-sim/model"
)

// NewInitialQueue fills every slot of a fresh queue with a vehicle and puts a
// random subset of them on hold. Vehicle IDs start at firstID and follow
// queue order.
//
// Held vehicles in the front half of the queue (original position at or
// before MaxQueueLength/2) draw shorter holds than the ones further back.
func NewInitialQueue(cfg SimulationConfig, rng RandSource, firstID int) (*model.Queue, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: random source is required", ErrInvalidConfiguration)
	}

	n := cfg.MaxQueueLength
	vehicles := make([]model.Vehicle, n)
	for i := range vehicles {
		vehicles[i] = model.Vehicle{
			ID:               firstID + i,
			Position:         i,
			OriginalPosition: i,
			Status:           model.StatusMoving,
		}
	}

	midpoint := n / 2
	for _, idx := range sampleWithoutReplacement(rng, n, cfg.HeldVehicleCount) {
		v := &vehicles[idx]
		v.IsHeld = true
		v.HoldCountdownActive = false
		v.Status = model.StatusHeld
		if v.OriginalPosition <= midpoint {
			v.HoldRemaining = intBetween(rng, 1, cfg.nearHoldCap())
		} else {
			v.HoldRemaining = intBetween(rng, 1, cfg.MaxHoldDuration)
		}
	}

	return model.NewQueue(vehicles...), nil
}
