package core

import (
	"time"

	"github.com/signalsfoundry/border-queue-sim/model"
)

// scriptedRand replays a fixed sequence of draws, clamped into [0, n).
type scriptedRand struct {
	values []int
	calls  int
}

func (s *scriptedRand) Intn(n int) int {
	if len(s.values) == 0 {
		s.calls++
		return 0
	}
	v := s.values[s.calls%len(s.values)]
	s.calls++
	if v >= n {
		v = n - 1
	}
	if v < 0 {
		v = 0
	}
	return v
}

func testConfig(n int) SimulationConfig {
	cfg := DefaultConfig()
	cfg.MaxQueueLength = n
	cfg.TickInterval = time.Second
	cfg.HeldVehicleCount = 0
	return cfg
}

// lineOf returns n unheld vehicles at positions 0..n-1 with IDs 1..n.
func lineOf(n int) []model.Vehicle {
	vs := make([]model.Vehicle, n)
	for i := range vs {
		vs[i] = model.Vehicle{ID: i + 1, Position: i, OriginalPosition: i}
	}
	return vs
}

func hold(v *model.Vehicle, remaining int, active bool) {
	v.IsHeld = true
	v.HoldRemaining = remaining
	v.HoldCountdownActive = active
	v.Status = model.StatusHeld
}

func positionOf(t interface{ Fatalf(string, ...any) }, q *model.Queue, id int) int {
	v, ok := q.Find(id)
	if !ok {
		t.Fatalf("vehicle %d not in queue", id)
	}
	return v.Position
}
