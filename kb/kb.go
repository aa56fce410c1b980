package kb

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/border-queue-sim/model"
)

// ErrInvalidEvent indicates an event that cannot be recorded.
var ErrInvalidEvent = errors.New("invalid event")

// DefaultEventLimit bounds how many events the KB retains.
const DefaultEventLimit = 4096

// EventType indicates what kind of change happened in the queue.
type EventType int

const (
	EventQueueReset EventType = iota
	EventHoldActivated
	EventHoldReleased
	EventVehicleCrossed
)

func (t EventType) String() string {
	switch t {
	case EventQueueReset:
		return "queue_reset"
	case EventHoldActivated:
		return "hold_activated"
	case EventHoldReleased:
		return "hold_released"
	case EventVehicleCrossed:
		return "vehicle_crossed"
	default:
		return "unknown"
	}
}

// MarshalText renders the event type as its name.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a name produced by MarshalText.
func (t *EventType) UnmarshalText(text []byte) error {
	for _, c := range []EventType{EventQueueReset, EventHoldActivated, EventHoldReleased, EventVehicleCrossed} {
		if c.String() == string(text) {
			*t = c
			return nil
		}
	}
	return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, text)
}

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Seq       uint64
	Type      EventType
	RunID     string
	Tick      int
	Elapsed   time.Duration
	VehicleID int
	Vehicle   model.Vehicle // state when the event was recorded; zero for resets
}

// KnowledgeBase is an in-memory, thread-safe log of queue events.
type KnowledgeBase struct {
	mu sync.RWMutex

	limit     int
	seq       uint64
	events    []Event
	crossings int

	subs   map[int]func(Event)
	nextID int
}

// NewKnowledgeBase constructs an empty KB retaining at most limit events.
// A non-positive limit selects DefaultEventLimit.
func NewKnowledgeBase(limit int) *KnowledgeBase {
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	return &KnowledgeBase{
		limit: limit,
		subs:  make(map[int]func(Event)),
	}
}

// Record appends events to the log, assigning sequence numbers, and notifies
// subscribers. Nothing is recorded if any event is invalid.
func (kb *KnowledgeBase) Record(events ...Event) error {
	for _, e := range events {
		if err := validate(e); err != nil {
			return err
		}
	}

	kb.mu.Lock()
	for i := range events {
		kb.seq++
		events[i].Seq = kb.seq
		if events[i].Type == EventVehicleCrossed {
			kb.crossings++
		}
		kb.events = append(kb.events, events[i])
	}
	if over := len(kb.events) - kb.limit; over > 0 {
		kb.events = append([]Event(nil), kb.events[over:]...)
	}
	subs := make([]func(Event), 0, len(kb.subs))
	for _, fn := range kb.subs {
		subs = append(subs, fn)
	}
	kb.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, e := range events {
		for _, sub := range subs {
			sub(e)
		}
	}
	return nil
}

func validate(e Event) error {
	switch e.Type {
	case EventQueueReset:
		return nil
	case EventHoldActivated, EventHoldReleased, EventVehicleCrossed:
		if e.VehicleID <= 0 {
			return fmt.Errorf("%w: %s event without a vehicle", ErrInvalidEvent, e.Type)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown type %d", ErrInvalidEvent, int(e.Type))
	}
}

// ListEvents returns a snapshot of retained events with Seq greater than
// since, oldest first.
func (kb *KnowledgeBase) ListEvents(since uint64) []Event {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]Event, 0, len(kb.events))
	for _, e := range kb.events {
		if e.Seq > since {
			res = append(res, e)
		}
	}
	return res
}

// ListCrossings returns the retained crossing events, oldest first.
func (kb *KnowledgeBase) ListCrossings() []Event {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	var res []Event
	for _, e := range kb.events {
		if e.Type == EventVehicleCrossed {
			res = append(res, e)
		}
	}
	return res
}

// CrossingCount returns the number of crossings recorded, including ones no
// longer retained.
func (kb *KnowledgeBase) CrossingCount() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.crossings
}

// Clear drops all retained events and the crossing count. Sequence numbers
// keep increasing.
func (kb *KnowledgeBase) Clear() {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.events = nil
	kb.crossings = 0
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextID
	kb.nextID++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}
