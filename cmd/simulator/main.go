// Command simulator runs the border queue headless and prints the queue
// after every tick.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/signalsfoundry/border-queue-sim/core"
	"github.com/signalsfoundry/border-queue-sim/internal/logging"
	"github.com/signalsfoundry/border-queue-sim/internal/sim/driver"
	"github.com/signalsfoundry/border-queue-sim/internal/sim/state"
	"github.com/signalsfoundry/border-queue-sim/kb"
	"github.com/signalsfoundry/border-queue-sim/timectrl"
)

// options is everything main parses from the command line.
type options struct {
	Config      core.SimulationConfig
	Duration    time.Duration
	Accelerated bool
	Seed        int64
	Details     bool
	Events      bool
}

func main() {
	opts, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts, logging.NewFromEnv(), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags layers explicitly set flags over an optional JSON config file
// over the defaults.
func parseFlags(fs *flag.FlagSet, args []string) (options, error) {
	def := core.DefaultConfig()

	configPath := fs.String("config", "", "path to a JSON simulation config")
	length := fs.Int("length", def.MaxQueueLength, "maximum queue length")
	tick := fs.Duration("tick", def.TickInterval, "tick interval")
	held := fs.Int("held", def.HeldVehicleCount, "number of held vehicles at reset")
	maxHold := fs.Int("max-hold", def.MaxHoldDuration, "maximum hold duration in ticks")
	low := fs.Int("activation-low", def.ActivationThreshold.Low, "lower bound of the empty run that starts a hold countdown")
	high := fs.Int("activation-high", def.ActivationThreshold.High, "upper bound of the empty run that starts a hold countdown")
	crossings := fs.Int("eta-hold-after", def.CrossingsBeforeHoldDelayCounted, "crossings before active holds are added to the ETA")
	duration := fs.Duration("duration", 0, "simulated time to run for; 0 runs until the queue is empty")
	accelerated := fs.Bool("accelerated", true, "run in accelerated mode (vs real-time)")
	seed := fs.Int64("seed", 0, "random seed; 0 seeds from the clock")
	details := fs.Bool("details", false, "print every vehicle after each tick")
	events := fs.Bool("events", false, "print hold and crossing events as they happen")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg := def
	if *configPath != "" {
		f, err := os.Open(*configPath)
		if err != nil {
			return options{}, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if cfg, err = core.LoadConfig(f, def); err != nil {
			return options{}, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "length":
			cfg.MaxQueueLength = *length
		case "tick":
			cfg.TickInterval = *tick
		case "held":
			cfg.HeldVehicleCount = *held
		case "max-hold":
			cfg.MaxHoldDuration = *maxHold
		case "activation-low":
			cfg.ActivationThreshold.Low = *low
		case "activation-high":
			cfg.ActivationThreshold.High = *high
		case "eta-hold-after":
			cfg.CrossingsBeforeHoldDelayCounted = *crossings
		}
	})
	if err := cfg.Validate(); err != nil {
		return options{}, err
	}

	return options{
		Config:      cfg,
		Duration:    *duration,
		Accelerated: *accelerated,
		Seed:        *seed,
		Details:     *details,
		Events:      *events,
	}, nil
}

func run(ctx context.Context, opts options, log logging.Logger, out io.Writer) error {
	qs, err := state.NewQueueState(opts.Config, log, state.WithRandSource(core.NewRandSource(opts.Seed)))
	if err != nil {
		return err
	}

	mode := timectrl.RealTime
	if opts.Accelerated {
		mode = timectrl.Accelerated
	}
	p := &printer{out: out, details: opts.Details}
	driverOpts := []driver.Option{
		driver.WithLogger(log),
		driver.WithMode(mode),
		driver.WithRunDuration(opts.Duration),
		driver.WithStopWhenEmpty(),
	}
	if opts.Events {
		events := kb.NewKnowledgeBase(0)
		defer events.Subscribe(p.event)()
		driverOpts = append(driverOpts, driver.WithKnowledgeBase(events))
	}
	d := driver.New(qs, driverOpts...)
	d.Subscribe(p.print)

	fmt.Fprintf(out, "Starting simulation: length=%d tick=%s held=%d mode=%v duration=%s\n",
		opts.Config.MaxQueueLength, opts.Config.TickInterval, opts.Config.HeldVehicleCount, mode, opts.Duration)
	if err := d.Start(ctx); err != nil {
		return err
	}
	d.Wait()

	stats := d.Stats()
	fmt.Fprintf(out, "Simulation complete: %d crossed, %d still queued after %s.\n",
		stats.Crossed, stats.InQueue, stats.Elapsed)
	return nil
}
