// internal/sim/state/state.go
package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/border-queue-sim/core"
	"github.com/signalsfoundry/border-queue-sim/internal/logging"
	"github.com/signalsfoundry/border-queue-sim/model"
)

// QueueState owns the simulated queue together with its run counters. It is
// the single source of truth read by every consumer.
//
// Mutations happen on one writer (the driver). A tick is computed from the
// current queue without holding the lock and the result is swapped in under
// the write lock, so readers only ever see whole ticks.
type QueueState struct {
	mu sync.RWMutex

	cfg   core.SimulationConfig
	queue *model.Queue

	runID   string
	ticks   int
	elapsed time.Duration
	crossed int
	stats   core.SimulationStats

	// nextID is the first vehicle ID handed out by the next reset. IDs are
	// never reused within a process.
	nextID int

	rng     core.RandSource
	log     logging.Logger
	metrics MetricsRecorder
}

// MetricsRecorder receives updates after resets and ticks.
type MetricsRecorder interface {
	RecordTick(stats core.SimulationStats, report core.TickReport, took time.Duration)
	RecordReset(stats core.SimulationStats)
}

// QueueStateOption customises QueueState construction.
type QueueStateOption func(*QueueState)

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) QueueStateOption {
	return func(s *QueueState) {
		s.metrics = m
	}
}

// WithRandSource replaces the time-seeded random source.
func WithRandSource(rng core.RandSource) QueueStateOption {
	return func(s *QueueState) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// VehicleView is the read-only projection of a vehicle handed to consumers.
type VehicleView struct {
	ID                  int
	Position            int
	OriginalPosition    int
	Status              model.Status
	IsHeld              bool
	HoldCountdownActive bool
	HoldRemaining       int
	WaitTime            time.Duration
}

// Snapshot captures a consistent, deep-copied view of the queue state.
type Snapshot struct {
	RunID    string
	Tick     int
	Config   core.SimulationConfig
	Running  bool
	Vehicles []VehicleView // front to back
	Stats    core.SimulationStats
}

// NewQueueState validates cfg and builds the initial queue.
func NewQueueState(cfg core.SimulationConfig, log logging.Logger, opts ...QueueStateOption) (*QueueState, error) {
	if log == nil {
		log = logging.Noop()
	}
	s := &QueueState{
		nextID: 1,
		log:    log,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.rng == nil {
		s.rng = core.NewRandSource(0)
	}
	if _, err := s.Reset(context.Background(), &cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// Reset rebuilds the queue. When cfg is nil the current configuration is
// reused. An invalid configuration leaves the state untouched.
func (s *QueueState) Reset(ctx context.Context, cfg *core.SimulationConfig) (Snapshot, error) {
	s.mu.Lock()
	next := s.cfg
	if cfg != nil {
		next = *cfg
	}
	queue, err := core.NewInitialQueue(next, s.rng, s.nextID)
	if err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}

	s.cfg = next
	s.queue = queue
	s.nextID += next.MaxQueueLength
	s.startRunLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordReset(snap.Stats)
	}
	s.log.Info(ctx, "queue initialised",
		logging.String("run_id", snap.RunID),
		logging.Int("vehicles", snap.Stats.InQueue),
		logging.Int("held", snap.Stats.Held),
	)
	return snap, nil
}

// Load installs a prepared queue, e.g. a recorded scenario, in place of the
// current one and starts a new run. The queue must fit the current
// configuration and carry unique positive vehicle IDs.
func (s *QueueState) Load(ctx context.Context, q *model.Queue) (Snapshot, error) {
	if q == nil {
		return Snapshot{}, fmt.Errorf("%w: queue is nil", core.ErrInvalidConfiguration)
	}

	s.mu.Lock()
	if err := q.Validate(s.cfg.MaxQueueLength); err != nil {
		s.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: %v", core.ErrInvalidConfiguration, err)
	}
	seen := make(map[int]bool, q.Len())
	maxID := 0
	for _, v := range q.Vehicles() {
		if v.ID <= 0 || seen[v.ID] {
			s.mu.Unlock()
			return Snapshot{}, fmt.Errorf("%w: vehicle id %d missing or repeated", core.ErrInvalidConfiguration, v.ID)
		}
		seen[v.ID] = true
		if err := checkHold(v); err != nil {
			s.mu.Unlock()
			return Snapshot{}, err
		}
		if v.ID > maxID {
			maxID = v.ID
		}
	}

	s.queue = q.Clone()
	if maxID >= s.nextID {
		s.nextID = maxID + 1
	}
	s.startRunLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordReset(snap.Stats)
	}
	s.log.Info(ctx, "queue loaded",
		logging.String("run_id", snap.RunID),
		logging.Int("vehicles", snap.Stats.InQueue),
	)
	return snap, nil
}

// checkHold rejects hold fields the tick engine cannot make progress on: a
// held vehicle must have ticks left, and only held vehicles count down.
func checkHold(v model.Vehicle) error {
	switch {
	case v.HoldRemaining < 0:
		return fmt.Errorf("%w: vehicle %d has negative hold remaining %d", core.ErrInvalidConfiguration, v.ID, v.HoldRemaining)
	case v.IsHeld && v.HoldRemaining == 0:
		return fmt.Errorf("%w: held vehicle %d has no hold remaining", core.ErrInvalidConfiguration, v.ID)
	case v.HoldCountdownActive && !v.IsHeld:
		return fmt.Errorf("%w: vehicle %d counts down without being held", core.ErrInvalidConfiguration, v.ID)
	}
	return nil
}

// startRunLocked clears the run counters for a freshly installed queue.
// Caller must hold s.mu.
func (s *QueueState) startRunLocked() {
	s.runID = logging.NewRunID()
	s.ticks = 0
	s.elapsed = 0
	s.crossed = 0
	s.stats = core.ComputeStats(s.queue, s.cfg, 0, 0)
}

// Advance runs one tick of the engine and publishes the result atomically.
// It must only be called from the single writer.
func (s *QueueState) Advance(ctx context.Context) (core.TickReport, Snapshot) {
	s.mu.RLock()
	current := s.queue
	cfg := s.cfg
	s.mu.RUnlock()

	start := time.Now()
	next, report := core.NewTickEngine(cfg, s.rng).Step(current)
	took := time.Since(start)

	s.mu.Lock()
	s.queue = next
	s.ticks++
	s.elapsed += cfg.TickInterval
	s.crossed += len(report.Crossed)
	s.stats = core.ComputeStats(next, cfg, s.elapsed, s.crossed)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordTick(snap.Stats, report, took)
	}
	s.log.Debug(ctx, "tick complete",
		logging.Int("tick", snap.Tick),
		logging.Int("crossed", len(report.Crossed)),
		logging.Int("released", len(report.Released)),
		logging.Int("block_pos", report.BlockPos),
		logging.Int("in_queue", snap.Stats.InQueue),
		logging.Duration("took", took),
	)
	return report, snap
}

// Snapshot returns a coherent view of the current queue state.
func (s *QueueState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Stats returns the stats computed after the latest tick or reset.
func (s *QueueState) Stats() core.SimulationStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// ETA returns the estimate computed after the latest tick or reset.
func (s *QueueState) ETA() core.ETA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats.ETA
}

// Config returns the active configuration.
func (s *QueueState) Config() core.SimulationConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// RunID returns the identifier of the current run.
func (s *QueueState) RunID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runID
}

// Empty reports whether every vehicle has crossed.
func (s *QueueState) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queue.Len() == 0
}

// snapshotLocked builds a Snapshot. Caller must hold s.mu.
func (s *QueueState) snapshotLocked() Snapshot {
	vehicles := s.queue.Vehicles()
	views := make([]VehicleView, 0, len(vehicles))
	for _, v := range vehicles {
		views = append(views, VehicleView{
			ID:                  v.ID,
			Position:            v.Position,
			OriginalPosition:    v.OriginalPosition,
			Status:              v.Status,
			IsHeld:              v.IsHeld,
			HoldCountdownActive: v.HoldCountdownActive,
			HoldRemaining:       v.HoldRemaining,
			WaitTime:            v.WaitTime,
		})
	}
	return Snapshot{
		RunID:    s.runID,
		Tick:     s.ticks,
		Config:   s.cfg,
		Vehicles: views,
		Stats:    s.stats,
	}
}
