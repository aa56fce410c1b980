package core

import (
	"math/rand"
	"testing"
	"time"

	"github.com/signalsfoundry/border-queue-sim/model"
)

func TestStep_NoHeldVehiclesDrainOnePerTick(t *testing.T) {
	cfg := testConfig(5)
	engine := NewTickEngine(cfg, &scriptedRand{})
	q := model.NewQueue(lineOf(5)...)

	crossed := 0
	for tick := 1; tick <= 5; tick++ {
		var report TickReport
		q, report = engine.Step(q)
		if len(report.Crossed) != 1 {
			t.Fatalf("tick %d: crossed %d vehicles, want 1", tick, len(report.Crossed))
		}
		if got := report.Crossed[0].ID; got != tick {
			t.Fatalf("tick %d: vehicle %d crossed, want %d", tick, got, tick)
		}
		crossed += len(report.Crossed)

		for i, v := range q.Vehicles() {
			if v.Position != i {
				t.Fatalf("tick %d: vehicle %d at position %d, want %d", tick, v.ID, v.Position, i)
			}
		}
	}

	if q.Len() != 0 {
		t.Fatalf("queue length after 5 ticks = %d, want 0", q.Len())
	}
	if crossed != 5 {
		t.Fatalf("crossed = %d, want 5", crossed)
	}
}

func TestStep_ActiveHoldBlocksVehiclesBehind(t *testing.T) {
	cfg := testConfig(6)
	engine := NewTickEngine(cfg, &scriptedRand{})

	vs := lineOf(6)
	hold(&vs[3], 2, true)
	q := model.NewQueue(vs...)

	q, report := engine.Step(q)
	if report.BlockPos != 3 {
		t.Fatalf("BlockPos = %d, want 3", report.BlockPos)
	}
	held, _ := q.Find(4)
	if !held.IsHeld || held.HoldRemaining != 1 {
		t.Fatalf("after tick 1 held vehicle = %+v, want held with 1 remaining", held)
	}
	if held.Position != 3 {
		t.Fatalf("held vehicle moved to %d", held.Position)
	}
	for _, id := range []int{5, 6} {
		if got, want := positionOf(t, q, id), id-1; got != want {
			t.Fatalf("blocked vehicle %d at position %d, want %d", id, got, want)
		}
	}
	// vehicles ahead of the hold are free to move
	if got := positionOf(t, q, 2); got != 0 {
		t.Fatalf("vehicle 2 at position %d, want 0", got)
	}

	q, report = engine.Step(q)
	if report.Blocked() {
		t.Fatalf("tick 2 still blocked at %d", report.BlockPos)
	}
	released, _ := q.Find(4)
	if released.IsHeld || released.HoldRemaining != 0 || released.HoldCountdownActive {
		t.Fatalf("after tick 2 vehicle = %+v, want released", released)
	}
	if released.Status != model.StatusJustReleased {
		t.Fatalf("status = %v, want %v", released.Status, model.StatusJustReleased)
	}
	if len(report.Released) != 1 || report.Released[0] != 4 {
		t.Fatalf("Released = %v, want [4]", report.Released)
	}
	if got := positionOf(t, q, 5); got >= 4 {
		t.Fatalf("vehicle 5 still at %d after release", got)
	}

	q, _ = engine.Step(q)
	if v, _ := q.Find(4); v.Status != model.StatusMoving {
		t.Fatalf("status one tick after release = %v, want %v", v.Status, model.StatusMoving)
	}
}

func TestStep_InactiveHoldDoesNotCountDown(t *testing.T) {
	cfg := testConfig(4)
	cfg.ActivationThreshold = ThresholdRange{Low: 10, High: 10}
	engine := NewTickEngine(cfg, &scriptedRand{})

	vs := lineOf(4)
	hold(&vs[2], 3, false)
	q := model.NewQueue(vs...)

	for tick := 1; tick <= 6; tick++ {
		var report TickReport
		q, report = engine.Step(q)
		if report.Blocked() {
			t.Fatalf("tick %d: inactive hold reported as blocking", tick)
		}
		v, ok := q.Find(3)
		if !ok {
			t.Fatalf("tick %d: held vehicle left the queue", tick)
		}
		if v.HoldRemaining != 3 || v.HoldCountdownActive || v.Position != 2 {
			t.Fatalf("tick %d: held vehicle = %+v, want untouched hold at 2", tick, v)
		}
		if v.Status != model.StatusHeld {
			t.Fatalf("tick %d: status = %v, want held", tick, v.Status)
		}
	}
	// the vehicle behind the held one can never pass it
	if got := positionOf(t, q, 4); got != 3 {
		t.Fatalf("vehicle 4 at %d, want 3", got)
	}
}

func TestStep_ActivationNeedsEmptyRunAhead(t *testing.T) {
	cfg := testConfig(5)
	cfg.ActivationThreshold = ThresholdRange{Low: 2, High: 2}
	engine := NewTickEngine(cfg, &scriptedRand{})

	vs := lineOf(5)
	hold(&vs[4], 1, false)
	q := model.NewQueue(vs...)

	// tick 1: nothing empty ahead; tick 2: one slot empty ahead.
	for tick := 1; tick <= 2; tick++ {
		var report TickReport
		q, report = engine.Step(q)
		if len(report.Activated) != 0 {
			t.Fatalf("tick %d: activated %v, want none", tick, report.Activated)
		}
	}

	q, report := engine.Step(q)
	if len(report.Activated) != 1 || report.Activated[0] != 5 {
		t.Fatalf("tick 3: Activated = %v, want [5]", report.Activated)
	}
	if len(report.Released) != 1 || report.Released[0] != 5 {
		t.Fatalf("tick 3: Released = %v, want [5]", report.Released)
	}
	v, _ := q.Find(5)
	if v.IsHeld || v.Position != 1 {
		t.Fatalf("tick 3: vehicle = %+v, want released and advanced to 1", v)
	}
}

func TestStep_ActivationThresholdDrawnPerCheck(t *testing.T) {
	cases := []struct {
		name       string
		heldAt     int
		draw       int
		wantActive bool
	}{
		{name: "draw fits empty run", heldAt: 7, draw: 3, wantActive: true},
		{name: "draw exceeds empty run", heldAt: 5, draw: 3, wantActive: false},
		{name: "draw equals empty run", heldAt: 5, draw: 2, wantActive: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(8)
			rng := &scriptedRand{values: []int{tc.draw}}
			engine := NewTickEngine(cfg, rng)

			v := model.Vehicle{ID: 1, Position: tc.heldAt, OriginalPosition: tc.heldAt}
			hold(&v, 5, false)

			next, report := engine.Step(model.NewQueue(v))
			if rng.calls != 1 {
				t.Fatalf("random draws = %d, want 1", rng.calls)
			}
			got, _ := next.Find(1)
			if got.HoldCountdownActive != tc.wantActive {
				t.Fatalf("HoldCountdownActive = %v, want %v", got.HoldCountdownActive, tc.wantActive)
			}
			if tc.wantActive && got.HoldRemaining != 4 {
				t.Fatalf("HoldRemaining = %d, want 4 after activation tick", got.HoldRemaining)
			}
			if tc.wantActive && report.BlockPos != tc.heldAt {
				t.Fatalf("BlockPos = %d, want %d", report.BlockPos, tc.heldAt)
			}
		})
	}
}

func TestStep_HeldVehicleAtCrossing(t *testing.T) {
	cfg := testConfig(3)
	cfg.ActivationThreshold = ThresholdRange{Low: 1, High: 1}
	engine := NewTickEngine(cfg, &scriptedRand{})

	t.Run("inactive hold stays", func(t *testing.T) {
		vs := lineOf(2)
		hold(&vs[0], 2, false)
		next, report := engine.Step(model.NewQueue(vs...))
		if len(report.Crossed) != 0 {
			t.Fatalf("crossed = %d, want 0", len(report.Crossed))
		}
		if got := positionOf(t, next, 2); got != 1 {
			t.Fatalf("vehicle behind moved to %d, want 1", got)
		}
	})

	t.Run("active hold crosses", func(t *testing.T) {
		vs := lineOf(2)
		hold(&vs[0], 3, true)
		next, report := engine.Step(model.NewQueue(vs...))
		if len(report.Crossed) != 1 || report.Crossed[0].ID != 1 {
			t.Fatalf("Crossed = %+v, want vehicle 1", report.Crossed)
		}
		if !report.Crossed[0].IsHeld {
			t.Fatalf("crossed vehicle should still carry its hold")
		}
		if report.BlockPos != 0 {
			t.Fatalf("BlockPos = %d, want 0", report.BlockPos)
		}
		// vehicle 2 sits behind the blocking hold and stays put
		if got := positionOf(t, next, 2); got != 1 {
			t.Fatalf("vehicle 2 at %d, want 1", got)
		}
	})
}

func TestStep_WaitTimeAccruesAndInputUntouched(t *testing.T) {
	cfg := testConfig(3)
	cfg.TickInterval = 5 * time.Second
	engine := NewTickEngine(cfg, &scriptedRand{})

	q := model.NewQueue(lineOf(3)...)
	before := q.Vehicles()

	next, _ := engine.Step(q)

	for i, v := range q.Vehicles() {
		if v != before[i] {
			t.Fatalf("input vehicle %d mutated: %+v -> %+v", v.ID, before[i], v)
		}
	}
	for _, v := range next.Vehicles() {
		if v.WaitTime != 5*time.Second {
			t.Fatalf("vehicle %d WaitTime = %s, want 5s", v.ID, v.WaitTime)
		}
	}
}

// TestStep_Invariants drives randomised queues and checks the per-tick
// guarantees that must hold regardless of the draws.
func TestStep_Invariants(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		cfg := testConfig(20)
		cfg.HeldVehicleCount = 6
		cfg.MaxHoldDuration = 5
		rng := rand.New(rand.NewSource(seed))

		q, err := NewInitialQueue(cfg, rng, 1)
		if err != nil {
			t.Fatalf("NewInitialQueue: %v", err)
		}
		engine := NewTickEngine(cfg, rng)

		for tick := 0; tick < 60 && q.Len() > 0; tick++ {
			prev := q
			atCrossing := 0
			prev.Each(func(v *model.Vehicle) {
				if v.Position == 0 {
					atCrossing++
				}
			})

			var report TickReport
			q, report = engine.Step(prev)

			if err := q.Validate(cfg.MaxQueueLength); err != nil {
				t.Fatalf("seed %d tick %d: %v", seed, tick, err)
			}
			if len(report.Crossed) > atCrossing {
				t.Fatalf("seed %d tick %d: crossed %d with %d at crossing", seed, tick, len(report.Crossed), atCrossing)
			}

			activated := make(map[int]bool)
			for _, id := range report.Activated {
				activated[id] = true
			}

			for _, old := range prev.Vehicles() {
				cur, ok := q.Find(old.ID)
				if !ok {
					continue
				}
				if cur.WaitTime != old.WaitTime+cfg.TickInterval {
					t.Fatalf("seed %d tick %d: vehicle %d wait %s -> %s", seed, tick, old.ID, old.WaitTime, cur.WaitTime)
				}
				if cur.HoldRemaining < old.HoldRemaining && !old.HoldCountdownActive && !activated[old.ID] {
					t.Fatalf("seed %d tick %d: vehicle %d counted down without an active countdown", seed, tick, old.ID)
				}
				if report.Blocked() && old.Position > report.BlockPos && cur.Position != old.Position {
					t.Fatalf("seed %d tick %d: vehicle %d moved %d -> %d behind block at %d",
						seed, tick, old.ID, old.Position, cur.Position, report.BlockPos)
				}
				if cur.Position > old.Position {
					t.Fatalf("seed %d tick %d: vehicle %d moved backwards", seed, tick, old.ID)
				}
			}
		}
	}
}
