package core

import "errors"

var (
	// ErrInvalidConfiguration indicates a non-positive or out-of-range
	// simulation parameter. The simulation state is left unchanged.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrInvalidOperation indicates a command that is not allowed in the
	// current lifecycle state, e.g. resetting a running simulation.
	ErrInvalidOperation = errors.New("invalid operation")
)
