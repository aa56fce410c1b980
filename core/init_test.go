package core

import (
	"errors"
	"math/rand"
	"testing"
)

func TestNewInitialQueue_Layout(t *testing.T) {
	cfg := testConfig(10)
	cfg.HeldVehicleCount = 3

	q, err := NewInitialQueue(cfg, rand.New(rand.NewSource(7)), 100)
	if err != nil {
		t.Fatalf("NewInitialQueue: %v", err)
	}
	if q.Len() != 10 {
		t.Fatalf("Len() = %d, want 10", q.Len())
	}

	held := 0
	for i, v := range q.Vehicles() {
		if v.Position != i || v.OriginalPosition != i {
			t.Fatalf("vehicle %d at %d (original %d), want %d", v.ID, v.Position, v.OriginalPosition, i)
		}
		if v.ID != 100+i {
			t.Fatalf("vehicle at %d has ID %d, want %d", i, v.ID, 100+i)
		}
		if v.WaitTime != 0 {
			t.Fatalf("vehicle %d starts with wait %s", v.ID, v.WaitTime)
		}
		if v.IsHeld {
			held++
			if v.HoldCountdownActive {
				t.Fatalf("vehicle %d starts with an active countdown", v.ID)
			}
			if v.HoldRemaining < 1 {
				t.Fatalf("vehicle %d HoldRemaining = %d, want >= 1", v.ID, v.HoldRemaining)
			}
		} else if v.HoldRemaining != 0 {
			t.Fatalf("unheld vehicle %d has HoldRemaining %d", v.ID, v.HoldRemaining)
		}
	}
	if held != 3 {
		t.Fatalf("held vehicles = %d, want 3", held)
	}
}

func TestNewInitialQueue_HeldCountCapped(t *testing.T) {
	cfg := testConfig(4)
	cfg.HeldVehicleCount = 9

	q, err := NewInitialQueue(cfg, rand.New(rand.NewSource(1)), 1)
	if err != nil {
		t.Fatalf("NewInitialQueue: %v", err)
	}
	for _, v := range q.Vehicles() {
		if !v.IsHeld {
			t.Fatalf("vehicle %d not held, want every vehicle held", v.ID)
		}
	}
}

func TestNewInitialQueue_NearVehiclesGetShorterHolds(t *testing.T) {
	cfg := testConfig(20)
	cfg.HeldVehicleCount = 20
	cfg.MaxHoldDuration = 6 // front half capped at 4

	for seed := int64(1); seed <= 30; seed++ {
		q, err := NewInitialQueue(cfg, rand.New(rand.NewSource(seed)), 1)
		if err != nil {
			t.Fatalf("NewInitialQueue: %v", err)
		}
		for _, v := range q.Vehicles() {
			limit := 6
			if v.OriginalPosition <= 10 {
				limit = 4
			}
			if v.HoldRemaining < 1 || v.HoldRemaining > limit {
				t.Fatalf("seed %d: vehicle at %d HoldRemaining = %d, want in [1, %d]",
					seed, v.OriginalPosition, v.HoldRemaining, limit)
			}
		}
	}
}

func TestNearHoldCap(t *testing.T) {
	cases := map[int]int{1: 1, 2: 1, 3: 2, 4: 2, 5: 3, 6: 4, 10: 6}
	for maxHold, want := range cases {
		cfg := DefaultConfig()
		cfg.MaxHoldDuration = maxHold
		if got := cfg.nearHoldCap(); got != want {
			t.Fatalf("nearHoldCap(%d) = %d, want %d", maxHold, got, want)
		}
	}
}

func TestNewInitialQueue_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(0)
	if _, err := NewInitialQueue(cfg, rand.New(rand.NewSource(1)), 1); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("err = %v, want ErrInvalidConfiguration", err)
	}
	if _, err := NewInitialQueue(testConfig(3), nil, 1); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("nil rng err = %v, want ErrInvalidConfiguration", err)
	}
}

func TestSampleWithoutReplacement(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	got := sampleWithoutReplacement(rng, 10, 10)
	seen := make(map[int]bool)
	for _, v := range got {
		if v < 0 || v >= 10 || seen[v] {
			t.Fatalf("sample %v has out-of-range or repeated value %d", got, v)
		}
		seen[v] = true
	}
	if len(got) != 10 {
		t.Fatalf("len = %d, want 10", len(got))
	}
	if s := sampleWithoutReplacement(rng, 5, 0); len(s) != 0 {
		t.Fatalf("k=0 sample = %v, want empty", s)
	}
}
