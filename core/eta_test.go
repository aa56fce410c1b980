package core

import (
	"testing"
	"time"

	"github.com/signalsfoundry/border-queue-sim/model"
)

func TestEstimateETA_EmptyQueueIsAllCrossed(t *testing.T) {
	eta := EstimateETA(model.NewQueue(), testConfig(5), 5)
	if !eta.AllCrossed {
		t.Fatalf("EstimateETA on empty queue = %+v, want AllCrossed", eta)
	}
	if eta.String() != "all crossed" {
		t.Fatalf("String() = %q, want %q", eta.String(), "all crossed")
	}
}

func TestEstimateETA(t *testing.T) {
	cfg := testConfig(10)
	cfg.TickInterval = 5 * time.Second
	cfg.CrossingsBeforeHoldDelayCounted = 4

	vs := []model.Vehicle{
		{ID: 1, Position: 1},
		{ID: 2, Position: 3},
		{ID: 3, Position: 6},
	}
	hold(&vs[1], 2, true)  // active: counted once enough vehicles crossed
	hold(&vs[2], 4, false) // inactive: never counted
	q := model.NewQueue(vs...)

	cases := []struct {
		name    string
		crossed int
		want    time.Duration
	}{
		{name: "before threshold", crossed: 3, want: 30 * time.Second},
		{name: "at threshold", crossed: 4, want: 40 * time.Second},
		{name: "past threshold", crossed: 9, want: 40 * time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eta := EstimateETA(q, cfg, tc.crossed)
			if eta.AllCrossed {
				t.Fatalf("unexpected AllCrossed")
			}
			if eta.Estimate != tc.want {
				t.Fatalf("Estimate = %s, want %s", eta.Estimate, tc.want)
			}
		})
	}
}

func TestComputeStats(t *testing.T) {
	cfg := testConfig(10)
	vs := []model.Vehicle{
		{ID: 1, Position: 0, WaitTime: 2 * time.Second},
		{ID: 2, Position: 4, WaitTime: 4 * time.Second},
	}
	hold(&vs[1], 3, false)

	stats := ComputeStats(model.NewQueue(vs...), cfg, 7*time.Second, 2)
	if stats.InQueue != 2 || stats.Held != 1 || stats.Moving != 1 {
		t.Fatalf("counts = %d/%d/%d, want 2/1/1", stats.InQueue, stats.Held, stats.Moving)
	}
	if stats.AverageWait != 3*time.Second {
		t.Fatalf("AverageWait = %s, want 3s", stats.AverageWait)
	}
	if stats.Elapsed != 7*time.Second || stats.Crossed != 2 {
		t.Fatalf("Elapsed/Crossed = %s/%d, want 7s/2", stats.Elapsed, stats.Crossed)
	}
	if stats.ETA.Estimate != 4*time.Second {
		t.Fatalf("ETA = %s, want 4s", stats.ETA.Estimate)
	}

	empty := ComputeStats(model.NewQueue(), cfg, 0, 10)
	if empty.AverageWait != 0 || !empty.ETA.AllCrossed {
		t.Fatalf("empty stats = %+v", empty)
	}
}
