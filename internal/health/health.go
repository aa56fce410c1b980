// Package health serves the standard gRPC health protocol for the queue
// server so that orchestrators can health-check it without speaking HTTP.
package health

import (
	"context"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/border-queue-sim/internal/logging"
	"github.com/signalsfoundry/border-queue-sim/internal/sim/state"
)

// DriverService is the health service name that follows the simulation
// lifecycle: SERVING while a run is in progress, NOT_SERVING while idle.
// The empty service name reports SERVING for as long as the server is up.
const DriverService = "border_queue_sim.Driver"

// Subscriber is the part of the driver the health server watches.
type Subscriber interface {
	Running() bool
	Subscribe(fn func(state.Snapshot)) (unsubscribe func())
}

// Server wraps a gRPC server exposing grpc.health.v1.Health.
type Server struct {
	grpc        *grpc.Server
	health      *grpchealth.Server
	unsubscribe func()
	log         logging.Logger
}

// NewServer builds the gRPC server and starts tracking d.
func NewServer(d Subscriber, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}
	s := &Server{
		grpc:   grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler())),
		health: grpchealth.NewServer(),
		log:    log,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)

	s.setRunning(d.Running())
	s.unsubscribe = d.Subscribe(func(snap state.Snapshot) {
		s.setRunning(snap.Running)
	})
	return s
}

func (s *Server) setRunning(running bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if running {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(DriverService, status)
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info(context.Background(), "serving gRPC health", logging.String("addr", lis.Addr().String()))
	return s.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING, stops tracking the driver and
// drains in-flight RPCs.
func (s *Server) Stop() {
	s.health.Shutdown()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.grpc.GracefulStop()
}
