package model

import (
	"fmt"
	"sort"
)

// Queue is an ordered-by-position collection of vehicles. Positions are
// unique; gaps between them are empty slots.
type Queue struct {
	vehicles []*Vehicle
}

// NewQueue builds a queue from the given vehicles, copying them and sorting
// by position.
func NewQueue(vehicles ...Vehicle) *Queue {
	q := &Queue{vehicles: make([]*Vehicle, 0, len(vehicles))}
	for i := range vehicles {
		v := vehicles[i]
		q.vehicles = append(q.vehicles, &v)
	}
	q.Sort()
	return q
}

// Len returns the number of vehicles in the queue.
func (q *Queue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.vehicles)
}

// Sort orders the vehicles front to back by ascending position.
func (q *Queue) Sort() {
	sort.SliceStable(q.vehicles, func(i, j int) bool {
		return q.vehicles[i].Position < q.vehicles[j].Position
	})
}

// Vehicles returns a copy of the vehicles, front to back.
func (q *Queue) Vehicles() []Vehicle {
	if q == nil {
		return nil
	}
	res := make([]Vehicle, 0, len(q.vehicles))
	for _, v := range q.vehicles {
		res = append(res, *v)
	}
	return res
}

// Each calls fn for every vehicle in ascending position order. fn may mutate
// the vehicle but must not change its position relative to its neighbours.
func (q *Queue) Each(fn func(v *Vehicle)) {
	if q == nil {
		return
	}
	for _, v := range q.vehicles {
		fn(v)
	}
}

// Occupied reports whether any vehicle sits at pos.
func (q *Queue) Occupied(pos int) bool {
	if q == nil {
		return false
	}
	for _, v := range q.vehicles {
		if v.Position == pos {
			return true
		}
	}
	return false
}

// Back returns the vehicle with the highest position.
func (q *Queue) Back() (Vehicle, bool) {
	if q.Len() == 0 {
		return Vehicle{}, false
	}
	back := q.vehicles[0]
	for _, v := range q.vehicles[1:] {
		if v.Position > back.Position {
			back = v
		}
	}
	return *back, true
}

// Find returns the vehicle with the given ID.
func (q *Queue) Find(id int) (Vehicle, bool) {
	if q == nil {
		return Vehicle{}, false
	}
	for _, v := range q.vehicles {
		if v.ID == id {
			return *v, true
		}
	}
	return Vehicle{}, false
}

// Clone returns a deep copy of the queue.
func (q *Queue) Clone() *Queue {
	if q == nil {
		return &Queue{}
	}
	out := &Queue{vehicles: make([]*Vehicle, 0, len(q.vehicles))}
	for _, v := range q.vehicles {
		cp := *v
		out.vehicles = append(out.vehicles, &cp)
	}
	return out
}

// RemoveFunc drops every vehicle for which drop returns true and returns the
// removed vehicles in queue order.
func (q *Queue) RemoveFunc(drop func(v *Vehicle) bool) []Vehicle {
	if q == nil {
		return nil
	}
	var removed []Vehicle
	kept := q.vehicles[:0]
	for _, v := range q.vehicles {
		if drop(v) {
			removed = append(removed, *v)
			continue
		}
		kept = append(kept, v)
	}
	for i := len(kept); i < len(q.vehicles); i++ {
		q.vehicles[i] = nil
	}
	q.vehicles = kept
	return removed
}

// Validate checks that positions are unique and inside [0, maxLen).
func (q *Queue) Validate(maxLen int) error {
	if q == nil {
		return nil
	}
	seen := make(map[int]int, len(q.vehicles))
	for _, v := range q.vehicles {
		if v.Position < 0 || v.Position >= maxLen {
			return fmt.Errorf("vehicle %d at position %d outside [0, %d)", v.ID, v.Position, maxLen)
		}
		if other, dup := seen[v.Position]; dup {
			return fmt.Errorf("vehicles %d and %d share position %d", other, v.ID, v.Position)
		}
		seen[v.Position] = v.ID
	}
	if len(q.vehicles) > maxLen {
		return fmt.Errorf("queue holds %d vehicles, limit %d", len(q.vehicles), maxLen)
	}
	return nil
}
