// Command queue-server runs the border queue simulation as a long-lived
// service with an HTTP/WebSocket API, Prometheus metrics and a gRPC health
// endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/signalsfoundry/border-queue-sim/core"
	"github.com/signalsfoundry/border-queue-sim/internal/api"
	"github.com/signalsfoundry/border-queue-sim/internal/health"
	"github.com/signalsfoundry/border-queue-sim/internal/logging"
	"github.com/signalsfoundry/border-queue-sim/internal/observability"
	"github.com/signalsfoundry/border-queue-sim/internal/sim/driver"
	"github.com/signalsfoundry/border-queue-sim/internal/sim/state"
	"github.com/signalsfoundry/border-queue-sim/kb"
	"github.com/signalsfoundry/border-queue-sim/timectrl"
)

// Config captures the server's startup options.
type Config struct {
	HTTPAddress string
	GRPCAddress string
	ConfigPath  string
	Seed        int64
	AutoStart   bool
	Accelerated bool
	EventLimit  int
	Simulation  core.SimulationConfig
}

func main() {
	httpAddr := flag.String("addr", ":8080", "HTTP address for the API, WebSocket stream and /metrics")
	grpcAddr := flag.String("grpc-addr", ":50051", "TCP address for the gRPC health service; empty disables it")
	configPath := flag.String("config", "", "path to a JSON simulation config")
	seed := flag.Int64("seed", 0, "random seed; 0 seeds from the clock")
	autostart := flag.Bool("autostart", false, "start the simulation immediately")
	accelerated := flag.Bool("accelerated", false, "tick as fast as possible instead of once per tick interval")
	eventLimit := flag.Int("event-limit", kb.DefaultEventLimit, "number of queue events retained for /api/events")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	cfg := Config{
		HTTPAddress: *httpAddr,
		GRPCAddress: *grpcAddr,
		ConfigPath:  *configPath,
		Seed:        *seed,
		AutoStart:   *autostart,
		Accelerated: *accelerated,
		EventLimit:  *eventLimit,
	}
	sim, err := loadSimulationConfig(cfg.ConfigPath)
	if err != nil {
		log.Error(ctx, "invalid simulation config", logging.String("path", cfg.ConfigPath), logging.Err(err))
		os.Exit(1)
	}
	cfg.Simulation = sim

	tracingCfg := observability.TracingConfigFromEnv()
	tracingCfg.Simulation = cfg.Simulation
	tracingCfg.Mode = cfg.mode().String()
	shutdownTracing, err := observability.InitTracing(ctx, tracingCfg, log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	httpLis, err := net.Listen("tcp", cfg.HTTPAddress)
	if err != nil {
		log.Error(ctx, "failed to listen for HTTP", logging.String("addr", cfg.HTTPAddress), logging.Err(err))
		os.Exit(1)
	}
	var grpcLis net.Listener
	if cfg.GRPCAddress != "" {
		if grpcLis, err = net.Listen("tcp", cfg.GRPCAddress); err != nil {
			log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.GRPCAddress), logging.Err(err))
			os.Exit(1)
		}
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(stopCtx, cfg, log, httpLis, grpcLis); err != nil {
		log.Error(ctx, "queue server exited", logging.Err(err))
		os.Exit(1)
	}
}

func (c Config) mode() timectrl.Mode {
	if c.Accelerated {
		return timectrl.Accelerated
	}
	return timectrl.RealTime
}

func loadSimulationConfig(path string) (core.SimulationConfig, error) {
	if path == "" {
		return core.DefaultConfig(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return core.SimulationConfig{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return core.LoadConfig(f, core.DefaultConfig())
}

// run serves until ctx is cancelled, then stops the simulation and shuts
// the listeners down. grpcLis may be nil.
func run(ctx context.Context, cfg Config, log logging.Logger, httpLis, grpcLis net.Listener) error {
	if log == nil {
		log = logging.Noop()
	}

	collector, err := observability.NewQueueCollector(nil)
	if err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}

	qs, err := state.NewQueueState(cfg.Simulation, log,
		state.WithMetricsRecorder(collector),
		state.WithRandSource(core.NewRandSource(cfg.Seed)),
	)
	if err != nil {
		return err
	}

	events := kb.NewKnowledgeBase(cfg.EventLimit)
	d := driver.New(qs,
		driver.WithLogger(log),
		driver.WithKnowledgeBase(events),
		driver.WithMode(cfg.mode()),
	)

	// Runs started over HTTP outlive their request, so they hang off the
	// server's lifetime instead.
	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()

	apiServer := api.NewServer(d,
		api.WithKnowledgeBase(events),
		api.WithCollector(collector),
		api.WithLogger(log),
		api.WithRunContext(runCtx),
	)
	defer apiServer.Close()

	httpSrv := &http.Server{
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info(ctx, "serving HTTP API", logging.String("addr", httpLis.Addr().String()))
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var healthSrv *health.Server
	if grpcLis != nil {
		healthSrv = health.NewServer(d, log)
		go func() {
			if err := healthSrv.Serve(grpcLis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	if cfg.AutoStart {
		if err := d.Start(runCtx); err != nil {
			return err
		}
	}

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info(context.Background(), "shutting down queue server")
	case serveErr = <-errCh:
		log.Error(context.Background(), "server failed", logging.Err(serveErr))
	}

	d.Stop()
	cancelRuns()
	if healthSrv != nil {
		healthSrv.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "http shutdown failed", logging.Err(err))
	}
	return serveErr
}
