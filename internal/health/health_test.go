package health

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/border-queue-sim/internal/sim/state"
)

type fakeDriver struct {
	mu      sync.Mutex
	running bool
	sub     func(state.Snapshot)
}

func (f *fakeDriver) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeDriver) Subscribe(fn func(state.Snapshot)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sub = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.sub = nil
	}
}

func (f *fakeDriver) publish(running bool) {
	f.mu.Lock()
	f.running = running
	fn := f.sub
	f.mu.Unlock()
	if fn != nil {
		fn(state.Snapshot{Running: running})
	}
}

func startServer(t *testing.T, d Subscriber) healthpb.HealthClient {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := NewServer(d, nil)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func check(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.GetStatus()
}

func TestHealthFollowsDriverLifecycle(t *testing.T) {
	d := &fakeDriver{}
	client := startServer(t, d)

	if got := check(t, client, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("overall status = %v, want SERVING", got)
	}
	if got := check(t, client, DriverService); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("idle driver status = %v, want NOT_SERVING", got)
	}

	d.publish(true)
	if got := check(t, client, DriverService); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("running driver status = %v, want SERVING", got)
	}

	d.publish(false)
	if got := check(t, client, DriverService); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("stopped driver status = %v, want NOT_SERVING", got)
	}
}

func TestNewServerReflectsRunningDriver(t *testing.T) {
	d := &fakeDriver{running: true}
	client := startServer(t, d)

	if got := check(t, client, DriverService); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status = %v, want SERVING", got)
	}
}
