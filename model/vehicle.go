package model

import "time"

// Status is the display classification of a vehicle. It is derived from the
// hold fields on every tick and is never set independently.
type Status int

const (
	StatusMoving       Status = iota
	StatusHeld                // cannot advance
	StatusJustReleased        // hold expired during the last tick
)

func (s Status) String() string {
	switch s {
	case StatusMoving:
		return "moving"
	case StatusHeld:
		return "held"
	case StatusJustReleased:
		return "just_released"
	default:
		return "unknown"
	}
}

// MarshalText renders the status as its lower-case name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Vehicle is a single vehicle waiting in the queue. Position 0 is the
// crossing; lower positions are closer to it.
type Vehicle struct {
	ID       int
	Position int

	IsHeld              bool
	HoldRemaining       int  // ticks left before the hold can end
	HoldCountdownActive bool // HoldRemaining only decrements once this is set

	OriginalPosition int
	WaitTime         time.Duration

	Status Status
}

// Blocks reports whether the vehicle is holding back the vehicles behind it.
func (v Vehicle) Blocks() bool {
	return v.IsHeld && v.HoldCountdownActive
}
