package timectrl

import (
	"context"
	"sync"
	"time"
)

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime waits one wall-clock Tick before every advance.
	RealTime Mode = iota
	// Accelerated advances as quickly as the listeners allow, still stepping by Tick.
	Accelerated
)

func (m Mode) String() string {
	switch m {
	case RealTime:
		return "realtime"
	case Accelerated:
		return "accelerated"
	default:
		return "unknown"
	}
}

// Tick is passed to listeners each time the controller advances.
type Tick struct {
	Seq     int
	Time    time.Time
	Elapsed time.Duration
}

// TimeController drives simulation time and notifies registered listeners.
// One controller can serve many runs: Start resumes from the current time
// and Reset rewinds it.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time
	elapsed     time.Duration
	seq         int

	listeners []func(Tick)
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Elapsed returns the simulation time advanced since the last Reset.
func (tc *TimeController) Elapsed() time.Duration {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.elapsed
}

// Reset rewinds the clock to start, restarts tick numbering and sets the
// step used by the next Start. It must not be called while running.
func (tc *TimeController) Reset(start time.Time, tick time.Duration) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.StartTime = start
	tc.Tick = tick
	tc.currentTime = start
	tc.elapsed = 0
	tc.seq = 0
}

// AddListener registers a callback invoked on every tick. Listeners must be
// registered before Start.
func (tc *TimeController) AddListener(fn func(Tick)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Start advances the clock in a separate goroutine until ctx is cancelled or,
// when duration is positive, until that much simulation time has passed. It
// continues from the current time, so a stopped controller can be started
// again. The returned channel is closed when the loop exits.
//
// Cancellation is only observed between ticks: listeners for a tick that has
// begun always run to completion.
func (tc *TimeController) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		tc.mu.RLock()
		tick := tc.Tick
		mode := tc.Mode
		listeners := append([]func(Tick){}, tc.listeners...)
		tc.mu.RUnlock()

		var ticker *time.Ticker
		if mode == RealTime {
			ticker = time.NewTicker(tick)
			defer ticker.Stop()
		}

		var ran time.Duration
		for {
			if duration > 0 && ran >= duration {
				return
			}
			if ctx.Err() != nil {
				return
			}

			if ticker != nil {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}

			tc.mu.Lock()
			tc.currentTime = tc.currentTime.Add(tick)
			tc.elapsed += tick
			tc.seq++
			t := Tick{Seq: tc.seq, Time: tc.currentTime, Elapsed: tc.elapsed}
			tc.mu.Unlock()
			ran += tick

			for _, fn := range listeners {
				fn(t)
			}
		}
	}()
	return done
}
