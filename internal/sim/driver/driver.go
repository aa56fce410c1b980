// Package driver runs the queue simulation: it owns the Idle/Running
// lifecycle, advances the shared QueueState once per tick on a single
// goroutine and fans the resulting snapshots out to subscribers.
package driver

import (
	"context"
	"sync"
	"time"

	"github.com/anggasct/fluo"

	"github.com/signalsfoundry/border-queue-sim/core"
	"github.com/signalsfoundry/border-queue-sim/internal/logging"
	"github.com/signalsfoundry/border-queue-sim/internal/observability"
	"github.com/signalsfoundry/border-queue-sim/internal/sim/state"
	"github.com/signalsfoundry/border-queue-sim/kb"
	"github.com/signalsfoundry/border-queue-sim/model"
	"github.com/signalsfoundry/border-queue-sim/timectrl"
)

// Driver is the only writer of its QueueState. Commands and reads are safe
// for concurrent use.
type Driver struct {
	state *state.QueueState
	log   logging.Logger
	kb    *kb.KnowledgeBase

	mode          timectrl.Mode
	runDuration   time.Duration
	stopWhenEmpty bool

	// mu makes a lifecycle check and the action it guards atomic.
	mu        sync.Mutex
	lifecycle fluo.Machine
	clock     *timectrl.TimeController
	runCtx    context.Context
	cancel    context.CancelFunc
	done      chan struct{}

	// pubMu orders publishes across the run goroutines and commands.
	pubMu sync.Mutex

	subMu   sync.RWMutex
	subs    map[int]func(state.Snapshot)
	nextSub int
}

// Option customises a Driver.
type Option func(*Driver)

// WithMode selects how the clock advances. The default is RealTime.
func WithMode(mode timectrl.Mode) Option {
	return func(d *Driver) {
		d.mode = mode
	}
}

// WithRunDuration stops a run once d of simulated time has passed.
func WithRunDuration(dur time.Duration) Option {
	return func(d *Driver) {
		d.runDuration = dur
	}
}

// WithStopWhenEmpty stops a run after the tick in which the last vehicle
// crossed.
func WithStopWhenEmpty() Option {
	return func(d *Driver) {
		d.stopWhenEmpty = true
	}
}

// WithKnowledgeBase records hold and crossing events into k.
func WithKnowledgeBase(k *kb.KnowledgeBase) Option {
	return func(d *Driver) {
		d.kb = k
	}
}

// WithLogger sets the driver's logger.
func WithLogger(log logging.Logger) Option {
	return func(d *Driver) {
		if log != nil {
			d.log = log
		}
	}
}

// New returns an idle driver for s.
func New(s *state.QueueState, opts ...Option) *Driver {
	d := &Driver{
		state: s,
		log:   logging.Noop(),
		mode:  timectrl.RealTime,
		subs:  make(map[int]func(state.Snapshot)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	d.lifecycle = newLifecycle(d.log)
	d.clock = timectrl.NewTimeController(time.Now(), s.Config().TickInterval, d.mode)
	d.clock.AddListener(d.onTick)
	return d
}

// Start begins ticking in the background. It is a no-op when already
// running. ctx bounds the whole run, not just the call, so request-scoped
// contexts should not be passed. The run ends on Stop, when ctx is
// cancelled, when the configured run duration has elapsed, or when the
// queue empties and WithStopWhenEmpty is set.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	if err := fire(d.lifecycle, eventStart); err != nil {
		d.mu.Unlock()
		return nil
	}

	snap := d.state.Snapshot()
	cfg := snap.Config
	runCtx, log := logging.WithRunLogger(logging.ContextWithRunID(ctx, snap.RunID), d.log)
	runCtx, cancel := context.WithCancel(logging.ContextWithLogger(runCtx, log))

	done := make(chan struct{})
	d.runCtx = runCtx
	d.cancel = cancel
	d.done = done
	clock := d.clock
	d.mu.Unlock()

	log.Info(runCtx, "simulation started",
		logging.String("mode", d.mode.String()),
		logging.Duration("tick_interval", cfg.TickInterval),
		logging.Duration("run_duration", d.runDuration),
	)

	// Every publish of a run happens on this goroutine or the clock's, in
	// order: start, ticks, final.
	go func() {
		snap.Running = true
		d.pubMu.Lock()
		d.publish(snap)
		d.pubMu.Unlock()

		<-clock.Start(runCtx, d.runDuration)
		cancel()

		d.pubMu.Lock()
		final := d.state.Snapshot()
		log.Info(context.Background(), "simulation stopped",
			logging.Int("tick", final.Tick),
			logging.Duration("clock_elapsed", clock.Elapsed()),
		)
		d.publish(final)
		d.pubMu.Unlock()

		d.mu.Lock()
		if err := fire(d.lifecycle, eventRunEnded); err != nil {
			log.Error(context.Background(), "lifecycle out of step", logging.Err(err))
		}
		d.runCtx = nil
		d.cancel = nil
		d.mu.Unlock()
		close(done)
	}()
	return nil
}

// onTick advances the state by one tick. It runs on the clock goroutine,
// which makes it the single writer.
func (d *Driver) onTick(t timectrl.Tick) {
	d.mu.Lock()
	ctx, stop := d.runCtx, d.cancel
	d.mu.Unlock()
	if ctx == nil {
		return
	}
	log := logging.LoggerFromContext(ctx)
	if log == nil {
		log = d.log
	}

	tickCtx, span := observability.StartTickSpan(ctx, logging.RunIDFromContext(ctx), t.Seq)
	report, snap := d.state.Advance(tickCtx)
	observability.EndTickSpan(span, report, snap.Stats)

	for _, id := range report.Released {
		log.Debug(tickCtx, "hold released", logging.Int("vehicle_id", id), logging.Int("tick", snap.Tick))
	}
	for _, v := range report.Crossed {
		log.Debug(tickCtx, "vehicle crossed",
			logging.Int("vehicle_id", v.ID),
			logging.Duration("wait", v.WaitTime),
			logging.Int("tick", snap.Tick),
		)
	}
	d.recordTick(tickCtx, log, snap, report)

	snap.Running = true
	d.pubMu.Lock()
	d.publish(snap)
	d.pubMu.Unlock()

	if d.stopWhenEmpty && snap.Stats.InQueue == 0 {
		stop()
	}
}

func (d *Driver) recordTick(ctx context.Context, log logging.Logger, snap state.Snapshot, report core.TickReport) {
	if d.kb == nil {
		return
	}
	byID := make(map[int]model.Vehicle, len(snap.Vehicles))
	for _, v := range snap.Vehicles {
		byID[v.ID] = vehicleFromView(v)
	}

	events := make([]kb.Event, 0, len(report.Activated)+len(report.Released)+len(report.Crossed))
	base := kb.Event{RunID: snap.RunID, Tick: snap.Tick, Elapsed: snap.Stats.Elapsed}
	for _, id := range report.Activated {
		e := base
		e.Type, e.VehicleID, e.Vehicle = kb.EventHoldActivated, id, byID[id]
		events = append(events, e)
	}
	for _, id := range report.Released {
		e := base
		e.Type, e.VehicleID, e.Vehicle = kb.EventHoldReleased, id, byID[id]
		events = append(events, e)
	}
	for _, v := range report.Crossed {
		e := base
		e.Type, e.VehicleID, e.Vehicle = kb.EventVehicleCrossed, v.ID, v
		events = append(events, e)
	}
	if len(events) == 0 {
		return
	}
	if err := d.kb.Record(events...); err != nil {
		log.Warn(ctx, "failed to record tick events", logging.Err(err))
	}
}

func (d *Driver) recordReset(ctx context.Context, snap state.Snapshot) {
	if d.kb == nil {
		return
	}
	if err := d.kb.Record(kb.Event{Type: kb.EventQueueReset, RunID: snap.RunID}); err != nil {
		d.log.Warn(ctx, "failed to record reset event", logging.Err(err))
	}
}

// Stop ends the current run and blocks until the in-flight tick, if any,
// has completed. It is a no-op when idle.
func (d *Driver) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	<-done
}

// Wait blocks until the current run, if any, has ended.
func (d *Driver) Wait() {
	d.mu.Lock()
	done := d.done
	d.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Running reports whether a run is in progress.
func (d *Driver) Running() bool {
	return d.State() == StateRunning
}

// State returns the lifecycle state, StateIdle or StateRunning.
func (d *Driver) State() string {
	return d.lifecycle.CurrentState()
}

// Reset rebuilds the queue from the current configuration. It fails with
// core.ErrInvalidOperation while running.
func (d *Driver) Reset(ctx context.Context) error {
	return d.idleCommand(ctx, eventReset, func() (state.Snapshot, error) {
		return d.state.Reset(ctx, nil)
	})
}

// ApplyConfig validates cfg, installs it and resets the queue. An invalid
// cfg is rejected with core.ErrInvalidConfiguration before the lifecycle is
// checked; either way a rejected call leaves the state unchanged.
func (d *Driver) ApplyConfig(ctx context.Context, cfg core.SimulationConfig) error {
	if err := cfg.Validate(); err != nil {
		d.log.Warn(ctx, "rejected configuration", logging.Err(err))
		return err
	}
	return d.idleCommand(ctx, eventApplyConfig, func() (state.Snapshot, error) {
		return d.state.Reset(ctx, &cfg)
	})
}

// Load installs a prepared queue in place of the current one. Like Reset it
// requires the driver to be idle.
func (d *Driver) Load(ctx context.Context, q *model.Queue) error {
	return d.idleCommand(ctx, eventLoad, func() (state.Snapshot, error) {
		return d.state.Load(ctx, q)
	})
}

// idleCommand runs fn while holding the lifecycle lock so a concurrent Start
// cannot begin until the state has been replaced. The resulting snapshot is
// published before the lock is handed on, so it always precedes the start
// snapshot of a run that follows.
func (d *Driver) idleCommand(ctx context.Context, event string, fn func() (state.Snapshot, error)) (err error) {
	ctx, span := observability.StartCommandSpan(ctx, event)
	var runID string
	defer func() { observability.EndCommandSpan(span, runID, err) }()

	d.mu.Lock()
	if err := fire(d.lifecycle, event); err != nil {
		d.mu.Unlock()
		d.log.Warn(ctx, "rejected command", logging.String("command", event), logging.Err(err))
		return err
	}
	snap, err := fn()
	if err != nil {
		d.mu.Unlock()
		d.log.Warn(ctx, "command failed", logging.String("command", event), logging.Err(err))
		return err
	}
	d.clock.Reset(time.Now(), snap.Config.TickInterval)
	runID = snap.RunID

	d.pubMu.Lock()
	d.mu.Unlock()
	defer d.pubMu.Unlock()

	d.recordReset(ctx, snap)
	d.publish(snap)
	return nil
}

// Snapshot returns the current read surface.
func (d *Driver) Snapshot() state.Snapshot {
	snap := d.state.Snapshot()
	snap.Running = d.Running()
	return snap
}

// Stats returns the latest stats.
func (d *Driver) Stats() core.SimulationStats {
	return d.state.Stats()
}

// ETA returns the latest estimate for the back of the queue.
func (d *Driver) ETA() core.ETA {
	return d.state.ETA()
}

// Config returns the active configuration.
func (d *Driver) Config() core.SimulationConfig {
	return d.state.Config()
}

// Subscribe registers fn to receive a snapshot after every tick, when a run
// starts or ends and after every reset. Snapshots arrive one at a time in
// the order they were taken. fn must not block for long or call back into
// the driver. The returned
// function unsubscribes.
func (d *Driver) Subscribe(fn func(state.Snapshot)) (unsubscribe func()) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = fn

	return func() {
		d.subMu.Lock()
		defer d.subMu.Unlock()
		delete(d.subs, id)
	}
}

func (d *Driver) publish(snap state.Snapshot) {
	d.subMu.RLock()
	subs := make([]func(state.Snapshot), 0, len(d.subs))
	for _, fn := range d.subs {
		subs = append(subs, fn)
	}
	d.subMu.RUnlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func vehicleFromView(v state.VehicleView) model.Vehicle {
	return model.Vehicle{
		ID:                  v.ID,
		Position:            v.Position,
		IsHeld:              v.IsHeld,
		HoldRemaining:       v.HoldRemaining,
		HoldCountdownActive: v.HoldCountdownActive,
		OriginalPosition:    v.OriginalPosition,
		WaitTime:            v.WaitTime,
		Status:              v.Status,
	}
}
