package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/border-queue-sim/core"
)

// QueueCollector bundles Prometheus metrics for the simulated queue and the
// HTTP surface that exposes it.
type QueueCollector struct {
	gatherer prometheus.Gatherer

	Vehicles     prometheus.Gauge
	HeldVehicles prometheus.Gauge
	Moving       prometheus.Gauge
	ETASeconds   prometheus.Gauge
	AverageWait  prometheus.Gauge
	Elapsed      prometheus.Gauge

	Crossings    prometheus.Counter
	HoldReleases prometheus.Counter
	Ticks        prometheus.Counter
	TickDuration prometheus.Histogram

	APIRequests  *prometheus.CounterVec
	APIDurations *prometheus.HistogramVec
}

// NewQueueCollector registers queue metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil. Registering twice
// against the same registry returns the existing collectors.
func NewQueueCollector(reg prometheus.Registerer) (*QueueCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &QueueCollector{gatherer: gatherer}

	gauges := []struct {
		dst  *prometheus.Gauge
		name string
		help string
	}{
		{&c.Vehicles, "queue_vehicles", "Vehicles currently waiting in the queue."},
		{&c.HeldVehicles, "queue_vehicles_held", "Vehicles currently held and unable to advance."},
		{&c.Moving, "queue_vehicles_moving", "Vehicles currently free to advance."},
		{&c.ETASeconds, "queue_eta_seconds", "Estimated seconds until the last vehicle reaches the crossing; 0 once all have crossed."},
		{&c.AverageWait, "queue_average_wait_seconds", "Average wait of the vehicles still in the queue."},
		{&c.Elapsed, "queue_elapsed_seconds", "Simulation time elapsed in the current run."},
	}
	for _, g := range gauges {
		gauge, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{Name: g.name, Help: g.help}), g.name)
		if err != nil {
			return nil, err
		}
		*g.dst = gauge
	}

	counters := []struct {
		dst  *prometheus.Counter
		name string
		help string
	}{
		{&c.Crossings, "queue_crossings_total", "Vehicles that crossed since the process started."},
		{&c.HoldReleases, "queue_hold_releases_total", "Holds that expired since the process started."},
		{&c.Ticks, "queue_ticks_total", "Simulation ticks executed since the process started."},
	}
	for _, ct := range counters {
		counter, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{Name: ct.name, Help: ct.help}), ct.name)
		if err != nil {
			return nil, err
		}
		*ct.dst = counter
	}

	tickDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "queue_tick_duration_seconds",
		Help:    "Wall-clock time spent computing a simulation tick.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}), "queue_tick_duration_seconds")
	if err != nil {
		return nil, err
	}
	c.TickDuration = tickDuration

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "api_requests_total",
		Help: "Total number of handled API requests, labeled by route, method, and HTTP status code.",
	}, []string{"route", "method", "code"})
	c.APIRequests, err = registerCounterVec(reg, requests, "api_requests_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "api_request_duration_seconds",
		Help:    "API request latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"route", "method"})
	c.APIDurations, err = registerHistogramVec(reg, durations, "api_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *QueueCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetQueueStats sets the gauges from a stats snapshot.
func (c *QueueCollector) SetQueueStats(stats core.SimulationStats) {
	if c == nil {
		return
	}
	c.Vehicles.Set(float64(stats.InQueue))
	c.HeldVehicles.Set(float64(stats.Held))
	c.Moving.Set(float64(stats.Moving))
	c.AverageWait.Set(stats.AverageWait.Seconds())
	c.Elapsed.Set(stats.Elapsed.Seconds())
	if stats.ETA.AllCrossed {
		c.ETASeconds.Set(0)
	} else {
		c.ETASeconds.Set(stats.ETA.Estimate.Seconds())
	}
}

// RecordTick satisfies the state.MetricsRecorder interface so the queue
// state can drive metrics directly after every tick.
func (c *QueueCollector) RecordTick(stats core.SimulationStats, report core.TickReport, took time.Duration) {
	if c == nil {
		return
	}
	c.Ticks.Inc()
	c.Crossings.Add(float64(len(report.Crossed)))
	c.HoldReleases.Add(float64(len(report.Released)))
	c.TickDuration.Observe(took.Seconds())
	c.SetQueueStats(stats)
}

// RecordReset satisfies the state.MetricsRecorder interface.
func (c *QueueCollector) RecordReset(stats core.SimulationStats) {
	if c == nil {
		return
	}
	c.SetQueueStats(stats)
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}
