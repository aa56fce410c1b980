package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/border-queue-sim/core"
)

const tracerName = "github.com/signalsfoundry/border-queue-sim"

// StartTickSpan opens the span covering one simulation tick.
func StartTickSpan(ctx context.Context, runID string, seq int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "queue.tick", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.Int("tick.seq", seq),
	))
}

// EndTickSpan records what the tick did to the queue and ends span. Every
// crossing becomes a span event.
func EndTickSpan(span trace.Span, report core.TickReport, stats core.SimulationStats) {
	span.SetAttributes(
		attribute.Int("queue.crossed", len(report.Crossed)),
		attribute.Int("queue.activated", len(report.Activated)),
		attribute.Int("queue.released", len(report.Released)),
		attribute.Int("queue.moved", report.Moved),
		attribute.Int("queue.in_queue", stats.InQueue),
		attribute.Int("queue.held", stats.Held),
	)
	if report.Blocked() {
		span.SetAttributes(attribute.Int("queue.block_pos", report.BlockPos))
	}
	if stats.ETA.AllCrossed {
		span.AddEvent("queue.drained")
	} else {
		span.SetAttributes(attribute.Float64("queue.eta_seconds", stats.ETA.Estimate.Seconds()))
	}
	for _, v := range report.Crossed {
		span.AddEvent("vehicle.crossed", trace.WithAttributes(
			attribute.Int("vehicle.id", v.ID),
			attribute.Int("vehicle.original_position", v.OriginalPosition),
			attribute.Float64("vehicle.wait_seconds", v.WaitTime.Seconds()),
		))
	}
	span.End()
}

// StartCommandSpan opens a span for a lifecycle command such as reset.
func StartCommandSpan(ctx context.Context, command string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "queue."+command, trace.WithAttributes(
		attribute.String("queue.command", command),
	))
}

// EndCommandSpan marks span failed when err is set, otherwise tags it with
// the run the command started, and ends it.
func EndCommandSpan(span trace.Span, runID string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if runID != "" {
		span.SetAttributes(attribute.String("run_id", runID))
	}
	span.End()
}
