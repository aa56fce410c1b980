package core

import (
	"fmt"
	"time"
)

// ThresholdRange is an inclusive integer range.
type ThresholdRange struct {
	Low  int
	High int
}

// SimulationConfig holds the parameters of a single simulation run. It is
// treated as immutable once a run has been initialised from it.
type SimulationConfig struct {
	MaxQueueLength   int
	TickInterval     time.Duration
	HeldVehicleCount int
	MaxHoldDuration  int // in ticks

	// ActivationThreshold is the range the required empty run ahead of a
	// held vehicle is drawn from before its countdown starts.
	ActivationThreshold ThresholdRange

	// CrossingsBeforeHoldDelayCounted is how many vehicles must have crossed
	// before active holds are added to the ETA.
	CrossingsBeforeHoldDelayCounted int
}

const (
	DefaultMaxQueueLength                  = 50
	DefaultTickInterval                    = 5 * time.Second
	DefaultHeldVehicleCount                = 3
	DefaultMaxHoldDuration                 = 4
	DefaultActivationLow                   = 3
	DefaultActivationHigh                  = 6
	DefaultCrossingsBeforeHoldDelayCounted = 4
)

// DefaultConfig returns the stock simulation parameters.
func DefaultConfig() SimulationConfig {
	return SimulationConfig{
		MaxQueueLength:   DefaultMaxQueueLength,
		TickInterval:     DefaultTickInterval,
		HeldVehicleCount: DefaultHeldVehicleCount,
		MaxHoldDuration:  DefaultMaxHoldDuration,
		ActivationThreshold: ThresholdRange{
			Low:  DefaultActivationLow,
			High: DefaultActivationHigh,
		},
		CrossingsBeforeHoldDelayCounted: DefaultCrossingsBeforeHoldDelayCounted,
	}
}

// Validate checks every parameter and returns an error wrapping
// ErrInvalidConfiguration for the first violation found.
func (c SimulationConfig) Validate() error {
	switch {
	case c.MaxQueueLength <= 0:
		return fmt.Errorf("%w: max queue length must be positive, got %d", ErrInvalidConfiguration, c.MaxQueueLength)
	case c.TickInterval <= 0:
		return fmt.Errorf("%w: tick interval must be positive, got %s", ErrInvalidConfiguration, c.TickInterval)
	case c.HeldVehicleCount < 0:
		return fmt.Errorf("%w: held vehicle count must not be negative, got %d", ErrInvalidConfiguration, c.HeldVehicleCount)
	case c.MaxHoldDuration < 1:
		return fmt.Errorf("%w: max hold duration must be at least 1, got %d", ErrInvalidConfiguration, c.MaxHoldDuration)
	case c.ActivationThreshold.Low < 0:
		return fmt.Errorf("%w: activation threshold low must not be negative, got %d", ErrInvalidConfiguration, c.ActivationThreshold.Low)
	case c.ActivationThreshold.Low > c.ActivationThreshold.High:
		return fmt.Errorf("%w: activation threshold low %d exceeds high %d",
			ErrInvalidConfiguration, c.ActivationThreshold.Low, c.ActivationThreshold.High)
	case c.CrossingsBeforeHoldDelayCounted < 0:
		return fmt.Errorf("%w: crossings before hold delay counted must not be negative, got %d",
			ErrInvalidConfiguration, c.CrossingsBeforeHoldDelayCounted)
	}
	return nil
}

// nearHoldCap is the longest hold a vehicle in the front half of the queue
// can draw: max(1, floor(MaxHoldDuration / 1.5)).
func (c SimulationConfig) nearHoldCap() int {
	// floor(n / 1.5) == floor(2n / 3) for non-negative n.
	limit := (2 * c.MaxHoldDuration) / 3
	if limit < 1 {
		return 1
	}
	return limit
}
