package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/signalsfoundry/border-queue-sim/core"
	"github.com/signalsfoundry/border-queue-sim/internal/logging"
)

// Environment variables read by TracingConfigFromEnv.
const (
	EnvTracingEnabled  = "QUEUE_TRACING_ENABLED"
	EnvTracingExporter = "QUEUE_TRACING_EXPORTER"
	EnvTracingService  = "QUEUE_TRACING_SERVICE_NAME"
	EnvTracingRatio    = "QUEUE_TRACING_SAMPLE_RATIO"
	EnvOTLPEndpoint    = "QUEUE_OTLP_ENDPOINT"
)

// Exporter names.
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

const (
	defaultServiceName  = "border-queue-sim"
	defaultOTLPEndpoint = "localhost:4317"
	shutdownTimeout     = 5 * time.Second
)

// TracingConfig governs how tracing is initialised.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string // ExporterStdout or ExporterOTLP
	Endpoint    string // OTLP collector, host:port
	SampleRatio float64

	// Writer receives stdout exporter output. Nil means os.Stdout.
	Writer io.Writer

	// Simulation and Mode describe the queue this process simulates. They
	// are recorded on the tracer resource, so every exported span carries
	// the queue shape it was produced under.
	Simulation core.SimulationConfig
	Mode       string
}

// TracingConfigFromEnv reads the QUEUE_TRACING_* variables. Tracing is off
// unless QUEUE_TRACING_ENABLED is "true"; an unparsable or out-of-range
// sample ratio samples everything.
func TracingConfigFromEnv() TracingConfig {
	cfg := TracingConfig{
		Enabled:     strings.EqualFold(os.Getenv(EnvTracingEnabled), "true"),
		ServiceName: envOr(EnvTracingService, defaultServiceName),
		Exporter:    strings.ToLower(envOr(EnvTracingExporter, ExporterStdout)),
		Endpoint:    os.Getenv(EnvOTLPEndpoint),
		SampleRatio: 1,
	}
	if r, err := strconv.ParseFloat(os.Getenv(EnvTracingRatio), 64); err == nil && r >= 0 && r <= 1 {
		cfg.SampleRatio = r
	}
	return cfg
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// InitTracing installs the global tracer provider for cfg and returns the
// function that flushes it. With tracing disabled a noop provider is
// installed and the returned function does nothing.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		log.Info(ctx, "tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(resourceAttributes(cfg)...))
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", cfg.ServiceName),
		logging.Any("sample_ratio", cfg.SampleRatio),
		logging.Int("queue_length", cfg.Simulation.MaxQueueLength),
	)
	return tp.Shutdown, nil
}

func resourceAttributes(cfg TracingConfig) []attribute.KeyValue {
	service := cfg.ServiceName
	if service == "" {
		service = defaultServiceName
	}
	attrs := []attribute.KeyValue{
		attribute.String("service.name", service),
		attribute.String("service.namespace", "border-queue"),
	}
	if cfg.Mode != "" {
		attrs = append(attrs, attribute.String("queue.mode", cfg.Mode))
	}
	if sim := cfg.Simulation; sim.MaxQueueLength > 0 {
		attrs = append(attrs,
			attribute.Int("queue.max_length", sim.MaxQueueLength),
			attribute.String("queue.tick_interval", sim.TickInterval.String()),
			attribute.Int("queue.held_vehicles", sim.HeldVehicleCount),
			attribute.Int("queue.max_hold_ticks", sim.MaxHoldDuration),
			attribute.IntSlice("queue.activation_threshold", []int{sim.ActivationThreshold.Low, sim.ActivationThreshold.High}),
		)
	}
	return attrs
}

func newExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case "", ExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		return stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithoutTimestamps())
	case ExporterOTLP, "otlpgrpc":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = defaultOTLPEndpoint
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		))
	default:
		return nil, fmt.Errorf("unsupported tracing exporter %q", cfg.Exporter)
	}
}

// ShutdownWithTimeout flushes the tracer provider, giving up after a few
// seconds. Failures are logged, not returned.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}
