package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/signalsfoundry/border-queue-sim/internal/sim/state"
	"github.com/signalsfoundry/border-queue-sim/kb"
	"github.com/signalsfoundry/border-queue-sim/model"
)

// printer writes one block per published snapshot. It skips the snapshot
// that closes a run since the tick before it has already been printed.
type printer struct {
	out      io.Writer
	details  bool
	lastTick int
	printed  bool
}

func (p *printer) print(s state.Snapshot) {
	if p.printed && s.Tick == p.lastTick {
		return
	}
	p.printed = true
	p.lastTick = s.Tick

	st := s.Stats
	fmt.Fprintf(p.out, "[tick %3d | %8s] %s\n", s.Tick, st.Elapsed, lane(s))
	fmt.Fprintf(p.out, "    in queue=%d moving=%d held=%d avg wait=%s crossed=%d eta=%s\n",
		st.InQueue, st.Moving, st.Held, st.AverageWait, st.Crossed, st.ETA)

	if !p.details {
		return
	}
	for _, v := range s.Vehicles {
		hold := "-"
		if v.IsHeld {
			hold = fmt.Sprintf("%dp", v.HoldRemaining)
			if v.HoldCountdownActive {
				hold += " counting"
			}
		}
		fmt.Fprintf(p.out, "    pos %2d | id %3d | %-13s | wait %8s | hold %s\n",
			v.Position, v.ID, v.Status, v.WaitTime, hold)
	}
}

// event prints one line per recorded event. Events of a tick are recorded
// before its snapshot is published, so they appear above the tick's block.
func (p *printer) event(e kb.Event) {
	switch e.Type {
	case kb.EventVehicleCrossed:
		fmt.Fprintf(p.out, "  * vehicle %d crossed after %s (from position %d)\n",
			e.VehicleID, e.Vehicle.WaitTime, e.Vehicle.OriginalPosition)
	case kb.EventHoldActivated:
		fmt.Fprintf(p.out, "  * vehicle %d hold countdown started (%d ticks)\n", e.VehicleID, e.Vehicle.HoldRemaining)
	case kb.EventHoldReleased:
		fmt.Fprintf(p.out, "  * vehicle %d released\n", e.VehicleID)
	case kb.EventQueueReset:
		fmt.Fprintf(p.out, "  * queue reset (run %s)\n", e.RunID)
	}
}

// lane renders the queue front first: '|' is the crossing, 'o' a moving
// vehicle, 'H' a held one, 'r' one released this tick and '.' an empty slot.
func lane(s state.Snapshot) string {
	cells := make([]byte, s.Config.MaxQueueLength)
	for i := range cells {
		cells[i] = '.'
	}
	for _, v := range s.Vehicles {
		if v.Position < 0 || v.Position >= len(cells) {
			continue
		}
		switch v.Status {
		case model.StatusHeld:
			cells[v.Position] = 'H'
		case model.StatusJustReleased:
			cells[v.Position] = 'r'
		default:
			cells[v.Position] = 'o'
		}
	}
	var b strings.Builder
	b.WriteByte('|')
	b.Write(cells)
	return b.String()
}
